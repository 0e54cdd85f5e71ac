// Package tui renders a room session in the terminal.
package tui

import (
	"fmt"
	"strings"

	"roomchat/internal/messagestore"
	"roomchat/internal/session"
	"roomchat/internal/viewmodel"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controller receives the user's actions.
type Controller interface {
	SubmitText(text string)
	Tap(index int)
}

type viewsMsg viewmodel.MessagesView

type noticeMsg session.Notice

type theme struct {
	header   lipgloss.Style
	sender   lipgloss.Style
	mine     lipgloss.Style
	pending  lipgloss.Style
	failed   lipgloss.Style
	selected lipgloss.Style
	notice   lipgloss.Style
	help     lipgloss.Style
}

func newTheme() theme {
	muted := lipgloss.Color("#9ca3d8")
	return theme{
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#01cdfe")).Padding(0, 1),
		sender:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd166")),
		mine:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#05ffa1")),
		pending:  lipgloss.NewStyle().Foreground(muted).Italic(true),
		failed:   lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f87")),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")).Bold(true),
		notice:   lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f87")).Bold(true),
		help:     lipgloss.NewStyle().Foreground(muted),
	}
}

// Model is the bubbletea model of the room screen.
type Model struct {
	ctrl     Controller
	roomName string

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model

	views  viewmodel.MessagesView
	cursor int
	notice string

	theme theme
}

// New returns the room screen for ctrl.
func New(ctrl Controller, roomName string) Model {
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.CharLimit = 4096
	input.Focus()

	return Model{
		ctrl:     ctrl,
		roomName: roomName,
		input:    input,
		timeline: viewport.New(0, 0),
		cursor:   -1,
		theme:    newTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-4, 10)
		m.timeline.Width = msg.Width
		m.timeline.Height = max(msg.Height-4, 1)
		m.refresh(false)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			m.input.Reset()
			m.notice = ""
			// Session updates are delivered with Program.Send, which blocks
			// until Update returns, so actions run as commands.
			return m, func() tea.Msg {
				m.ctrl.SubmitText(text)
				return nil
			}
		case "up":
			if m.cursor > 0 {
				m.cursor--
				m.refresh(false)
			}
			return m, nil
		case "down":
			if m.cursor < len(m.views.Items)-1 {
				m.cursor++
				m.refresh(false)
			}
			return m, nil
		case "ctrl+r":
			if m.cursor < 0 {
				return m, nil
			}
			index := m.cursor
			m.notice = ""
			return m, func() tea.Msg {
				m.ctrl.Tap(index)
				return nil
			}
		}

	case viewsMsg:
		m.views = viewmodel.MessagesView(msg)
		added := msg.Change.Type == messagestore.ItemAdded
		if added || m.cursor >= len(m.views.Items) {
			m.cursor = len(m.views.Items) - 1
		}
		m.refresh(added)
		return m, nil

	case noticeMsg:
		m.notice = msg.Text
		if msg.Reason != "" {
			m.notice += " (" + msg.Reason + ")"
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.timeline, cmd = m.timeline.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) refresh(toBottom bool) {
	m.timeline.SetContent(m.renderTimeline())
	if toBottom {
		m.timeline.GotoBottom()
	}
}

func (m Model) renderTimeline() string {
	if len(m.views.Items) == 0 {
		return m.theme.help.Render("No messages yet.")
	}
	lines := make([]string, 0, len(m.views.Items))
	for i, v := range m.views.Items {
		marker := "  "
		if i == m.cursor {
			marker = m.theme.selected.Render("> ")
		}
		lines = append(lines, marker+m.renderRow(v))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(v viewmodel.MessageView) string {
	var avatar string
	if v.SenderAvatarURL != nil && *v.SenderAvatarURL != "" {
		avatar = " " + m.theme.help.Render("<"+*v.SenderAvatarURL+">")
	}

	switch v.Type {
	case viewmodel.Pending:
		return m.theme.pending.Render(fmt.Sprintf("%s: %s (sending...)", v.SenderName, v.Text))
	case viewmodel.Failed:
		return m.theme.failed.Render(fmt.Sprintf("%s: %s (failed, ctrl+r to retry)", v.SenderName, v.Text))
	case viewmodel.FromMe:
		return m.theme.mine.Render(v.SenderName) + avatar + ": " + v.Text
	default:
		return m.theme.sender.Render(v.SenderName) + avatar + ": " + v.Text
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.theme.header.Render("#" + m.roomName))
	b.WriteString("\n")
	b.WriteString(m.timeline.View())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(m.theme.notice.Render(m.notice))
	} else {
		b.WriteString(m.theme.help.Render("enter send | up/down select | ctrl+r retry | esc quit"))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Bind forwards s's views and notices to p. The returned function stops the
// forwarding.
func Bind(p Sender, s *session.Session) (unbind func()) {
	unsubViews := s.Views().Subscribe(func(v viewmodel.MessagesView) {
		p.Send(viewsMsg(v))
	})
	unsubNotices := s.Notices().Subscribe(func(n session.Notice) {
		p.Send(noticeMsg(n))
	})
	return func() {
		unsubViews()
		unsubNotices()
	}
}

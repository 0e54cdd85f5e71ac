// Package viewmodel projects message store state into display-ready rows.
package viewmodel

import (
	"roomchat/internal/messagestore"
	"roomchat/internal/multipart"
	"roomchat/internal/observable"
)

// DefaultSenderName is shown when a sender has no display name.
const DefaultSenderName = "Anonymous User"

// ViewType is the display category of a row.
type ViewType int

const (
	Pending ViewType = iota + 1
	Failed
	FromMe
	FromOther
)

func (v ViewType) String() string {
	switch v {
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	case FromMe:
		return "from_me"
	case FromOther:
		return "from_other"
	default:
		return "unknown"
	}
}

// MessageView is a single rendered row.
type MessageView struct {
	SenderName      string
	SenderAvatarURL *string
	Text            string
	Type            ViewType
}

// MessagesView is what the projector publishes: one row per store item, in
// store order, and the store change that produced it.
type MessagesView struct {
	Items  []MessageView
	Change messagestore.Change
}

// Projector recomputes MessagesView each time it receives a store Model.
type Projector struct {
	model observable.Value[MessagesView]
}

func New() *Projector {
	return &Projector{}
}

// Attach subscribes p to store and returns a function that detaches it.
func (p *Projector) Attach(store *messagestore.Store) (detach func()) {
	return store.Subscribe(p.Update)
}

// Update projects m and publishes the result.
func (p *Projector) Update(m messagestore.Model) {
	p.model.Set(Project(m))
}

// Subscribe registers fn to receive every future MessagesView.
func (p *Projector) Subscribe(fn func(MessagesView)) (unsubscribe func()) {
	return p.model.Subscribe(fn)
}

// Current returns the most recently published MessagesView.
func (p *Projector) Current() (MessagesView, bool) {
	return p.model.Current()
}

// Project maps every item of m to a row. The mapping is element-wise, so
// indices in the result equal indices in m.Items.
func Project(m messagestore.Model) MessagesView {
	items := make([]MessageView, len(m.Items))
	for i, item := range m.Items {
		items[i] = projectItem(m.CurrentUser, item)
	}
	return MessagesView{Items: items, Change: m.LastChange}
}

func projectItem(currentUser messagestore.Identity, item messagestore.Item) MessageView {
	switch item.Kind {
	case messagestore.KindFromServer:
		msg := item.Message
		if msg == nil {
			return MessageView{SenderName: DefaultSenderName, Type: FromOther}
		}
		viewType := FromOther
		if msg.Sender.ID == currentUser.ID {
			viewType = FromMe
		}
		return MessageView{
			SenderName:      nameOrDefault(msg.Sender.Name),
			SenderAvatarURL: msg.Sender.AvatarURL,
			Text:            multipart.DisplayText(msg.Parts),
			Type:            viewType,
		}
	default:
		return MessageView{
			SenderName:      nameOrDefault(currentUser.Name),
			SenderAvatarURL: currentUser.AvatarURL,
			Text:            multipart.DisplayText(item.Parts),
			Type:            localViewType(item.State),
		}
	}
}

func localViewType(state messagestore.LocalState) ViewType {
	switch state {
	case messagestore.StateFailed:
		return Failed
	case messagestore.StateSent:
		return FromMe
	default:
		return Pending
	}
}

func nameOrDefault(name *string) string {
	if name == nil {
		return DefaultSenderName
	}
	return *name
}

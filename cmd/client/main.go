package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"roomchat/internal/chatkit"
	"roomchat/internal/config"
	"roomchat/internal/session"
	"roomchat/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClientConfig(".env")
	if err != nil {
		return err
	}

	// The terminal belongs to the UI from here on.
	logFile, err := tea.LogToFile(cfg.LogFile, "client")
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", cfg.LogFile, err)
	}
	defer logFile.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager := chatkit.NewChatManager(cfg)
	user, conn, err := manager.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.ServerURL, err)
	}
	defer manager.Close()

	room, ok := user.Room(cfg.RoomName)
	if !ok {
		if cfg.RoomName == "" {
			return fmt.Errorf("user %s is not a member of any room", cfg.Email)
		}
		return fmt.Errorf("user %s is not a member of room %q", cfg.Email, cfg.RoomName)
	}

	s := session.New(user, room, conn, cfg.MessageLimit)
	defer s.Stop()

	program := tea.NewProgram(tui.New(s, room.Name), tea.WithAltScreen())
	unbind := tui.Bind(program, s)
	defer unbind()

	go func() {
		if err := s.Start(ctx); err != nil {
			log.Printf("Client: Failed to subscribe to room %s: %v", room.Name, err)
			program.Quit()
		}
	}()

	go func() {
		<-conn.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}

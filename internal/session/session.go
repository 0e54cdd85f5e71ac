// Package session drives one room screen: it feeds the room subscription
// into a message store, sends what the user types and retries failed sends
// on request.
package session

import (
	"context"
	"log"
	"strings"

	"roomchat/internal/chatkit"
	"roomchat/internal/messagestore"
	"roomchat/internal/models"
	"roomchat/internal/multipart"
	"roomchat/internal/observable"
	"roomchat/internal/viewmodel"

	"github.com/google/uuid"
)

// RetryHint is the notice shown when a send fails.
const RetryHint = "Message failed to send, tap it to retry"

// RoomClient is the part of a chatkit connection a session uses.
type RoomClient interface {
	SubscribeToRoomMultipart(ctx context.Context, roomID uuid.UUID, messageLimit int, consumer chatkit.MessageConsumer) error
	SendMultipartMessage(roomID uuid.UUID, parts []models.Part, callback func(chatkit.Result))
	Unsubscribe(roomID uuid.UUID) error
}

// Notice is a transient message for the user.
type Notice struct {
	Text   string
	Reason string
}

// Session owns the store and projector of one room.
type Session struct {
	client       RoomClient
	roomID       uuid.UUID
	messageLimit int

	store     *messagestore.Store
	projector *viewmodel.Projector
	detach    func()
	notices   observable.Value[Notice]
}

// New wires a store for user to a projector. Nothing is sent or received
// until Start.
func New(user *chatkit.CurrentUser, room *models.Room, client RoomClient, messageLimit int) *Session {
	st := messagestore.New(messagestore.Identity{
		ID:        user.ID,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	})
	projector := viewmodel.New()
	return &Session{
		client:       client,
		roomID:       room.ID,
		messageLimit: messageLimit,
		store:        st,
		projector:    projector,
		detach:       projector.Attach(st),
	}
}

// Start subscribes to the room. Every delivered message, backlog included,
// is recorded in the store.
func (s *Session) Start(ctx context.Context) error {
	return s.client.SubscribeToRoomMultipart(ctx, s.roomID, s.messageLimit, s.store.RecordServerMessage)
}

// Stop ends the room subscription and detaches the projector from the
// store.
func (s *Session) Stop() {
	if err := s.client.Unsubscribe(s.roomID); err != nil {
		log.Printf("Session: Failed to unsubscribe from room %s: %v", s.roomID, err)
	}
	s.detach()
}

// SubmitText sends text typed by the user. Blank input is ignored.
func (s *Session) SubmitText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.send(multipart.EncodeOutgoing(text))
}

// Tap retries the record at index if it is a local message that failed to
// send. Any other record is left alone.
func (s *Session) Tap(index int) {
	item, ok := s.store.Item(index)
	if !ok || item.Kind != messagestore.KindLocal || item.State != messagestore.StateFailed {
		return
	}
	s.send(item.Content())
}

func (s *Session) send(parts []models.Part) {
	s.store.RecordPendingMessage(parts)
	s.client.SendMultipartMessage(s.roomID, parts, func(result chatkit.Result) {
		if result.Err == nil {
			s.store.MarkSent(parts)
			return
		}
		log.Printf("Session: Send to room %s failed: %s", s.roomID, result.Err.Reason)
		s.store.MarkFailed(parts)
		s.notices.Set(Notice{Text: RetryHint, Reason: result.Err.Reason})
	})
}

// Views publishes the projected rows after every store change.
func (s *Session) Views() *viewmodel.Projector {
	return s.projector
}

// Notices returns the notice observable.
func (s *Session) Notices() *observable.Value[Notice] {
	return &s.notices
}

// Store exposes the underlying message store.
func (s *Session) Store() *messagestore.Store {
	return s.store
}

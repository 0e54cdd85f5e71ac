package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PayloadKind distinguishes how a part carries its content.
type PayloadKind string

const (
	PayloadInline     PayloadKind = "inline"
	PayloadURL        PayloadKind = "url"
	PayloadAttachment PayloadKind = "attachment"
)

const (
	MaxPartsPerMessage = 10
	MaxInlineContent   = 4096
)

// Payload is the body of a single message part. Only inline payloads carry
// their content directly; url and attachment payloads reference it.
type Payload struct {
	Kind    PayloadKind `json:"kind"`
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	URL     string      `json:"url,omitempty"`
	Name    string      `json:"name,omitempty"`
}

func (p Payload) IsInline() bool {
	return p.Kind == PayloadInline
}

// Part is one element of a multipart message. The same shape is used for
// parts a client is about to send and parts delivered by the server.
type Part struct {
	Payload Payload `json:"payload"`
}

// InlinePart builds a part carrying content of the given MIME type.
func InlinePart(mimeType, content string) Part {
	return Part{Payload: Payload{Kind: PayloadInline, Type: mimeType, Content: content}}
}

// Message is a message persisted by the server and delivered to room
// subscribers.
type Message struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	RoomID    uuid.UUID  `json:"roomId" db:"room_id"`
	SenderID  uuid.UUID  `json:"-" db:"sender_id"`
	Sender    PublicUser `json:"sender" db:"-"`
	Parts     []Part     `json:"parts" db:"parts"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// CreateMessageRequest is the REST payload for posting into a room.
type CreateMessageRequest struct {
	Parts []Part `json:"parts" binding:"required,min=1"`
}

var (
	ErrNoParts      = errors.New("message must contain at least one part")
	ErrTooManyParts = fmt.Errorf("message may contain at most %d parts", MaxPartsPerMessage)
)

// ValidateParts checks the structural limits the server enforces before
// persisting a message.
func ValidateParts(parts []Part) error {
	if len(parts) == 0 {
		return ErrNoParts
	}
	if len(parts) > MaxPartsPerMessage {
		return ErrTooManyParts
	}
	for i, p := range parts {
		if p.Payload.Type == "" {
			return fmt.Errorf("part %d: type is required", i)
		}
		switch p.Payload.Kind {
		case PayloadInline:
			if len(p.Payload.Content) > MaxInlineContent {
				return fmt.Errorf("part %d: inline content exceeds %d bytes", i, MaxInlineContent)
			}
		case PayloadURL, PayloadAttachment:
			if p.Payload.URL == "" {
				return fmt.Errorf("part %d: url is required for %s payloads", i, p.Payload.Kind)
			}
		default:
			return fmt.Errorf("part %d: unknown payload kind %q", i, p.Payload.Kind)
		}
	}
	return nil
}

// Package protocol defines the JSON frames exchanged over the room
// WebSocket between the server hub and the client SDK.
package protocol

import (
	"encoding/json"
	"fmt"

	"roomchat/internal/models"

	"github.com/google/uuid"
)

// Frame types.
const (
	TypeSubscribe   = "subscribe"    // client: start receiving a room's messages
	TypeUnsubscribe = "unsubscribe"  // client: stop receiving a room's messages
	TypeSendMessage = "send_message" // client: post parts into a room
	TypeSubscribed  = "subscribed"   // server: subscription established, backlog follows
	TypeNewMessage  = "new_message"  // server: a persisted message for a subscribed room
	TypeSendResult  = "send_result"  // server: outcome of a send_message
	TypeError       = "error"        // server: request could not be processed
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

// Frame wraps every message on the socket. Payload is decoded according to
// Type.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals payload into a frame of the given type.
func Encode(frameType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", frameType, err)
	}
	return json.Marshal(Frame{Type: frameType, Payload: raw})
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v interface{}) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Type)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", f.Type, err)
	}
	return nil
}

// SubscribePayload asks the server for the last MessageLimit messages of a
// room followed by every new one.
type SubscribePayload struct {
	RoomID       uuid.UUID `json:"roomId"`
	MessageLimit int       `json:"messageLimit,omitempty"`
}

// Limit clamps the requested backlog to the server's bounds.
func (p SubscribePayload) Limit() int {
	switch {
	case p.MessageLimit <= 0:
		return DefaultMessageLimit
	case p.MessageLimit > MaxMessageLimit:
		return MaxMessageLimit
	default:
		return p.MessageLimit
	}
}

type UnsubscribePayload struct {
	RoomID uuid.UUID `json:"roomId"`
}

type SubscribedPayload struct {
	RoomID uuid.UUID `json:"roomId"`
}

// SendMessagePayload is what a client sends to post a message. RequestID is
// chosen by the client and echoed in the SendResultPayload.
type SendMessagePayload struct {
	RequestID string        `json:"requestId"`
	RoomID    uuid.UUID     `json:"roomId"`
	Parts     []models.Part `json:"parts"`
}

// SendResultPayload acknowledges a SendMessagePayload. Reason is set when
// Success is false.
type SendResultPayload struct {
	RequestID string           `json:"requestId"`
	Success   bool             `json:"success"`
	MessageID *uuid.UUID       `json:"messageId,omitempty"`
	Timestamp models.Timestamp `json:"timestamp"`
	Reason    string           `json:"reason,omitempty"`
}

// ErrorPayload is used for sending error details over WebSocket.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

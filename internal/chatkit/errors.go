package chatkit

import "errors"

// Error is a failure reported by the chat service or the connection, with a
// human-readable reason.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

const (
	reasonConnectionClosed = "connection closed"
	reasonTimedOut         = "timed out waiting for the server"
)

var (
	ErrNotConnected     = errors.New("chatkit: not connected")
	ErrAlreadyConnected = errors.New("chatkit: already connected")
)

// Result is the outcome of SendMultipartMessage. Err is nil on success.
type Result struct {
	MessageID string
	Err       *Error
}

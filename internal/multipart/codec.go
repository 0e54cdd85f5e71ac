// Package multipart maps between user-visible text plus a hidden correlation
// identifier and the multipart message shape exchanged with the server.
package multipart

import (
	"roomchat/internal/models"

	"github.com/google/uuid"
)

const (
	// MimeTypeCorrelationID marks the hidden part that carries the
	// client-generated correlation identifier.
	MimeTypeCorrelationID = "com-pusher-gettingstarted/internal-id"
	MimeTypeText          = "text/plain"
)

// EncodeOutgoing returns the parts for a new message: the visible text
// followed by a freshly generated correlation identifier.
func EncodeOutgoing(text string) []models.Part {
	return []models.Part{
		models.InlinePart(MimeTypeText, text),
		models.InlinePart(MimeTypeCorrelationID, newCorrelationID()),
	}
}

func newCorrelationID() string {
	return uuid.NewString()
}

// CorrelationID returns the content of the first inline correlation part.
func CorrelationID(parts []models.Part) (string, bool) {
	return findContentOfType(MimeTypeCorrelationID, parts)
}

// MessageCorrelationID is CorrelationID for a server message. A nil message
// has no identifier.
func MessageCorrelationID(m *models.Message) (string, bool) {
	if m == nil {
		return "", false
	}
	return CorrelationID(m.Parts)
}

// Text returns the content of the first inline text/plain part.
func Text(parts []models.Part) (string, bool) {
	return findContentOfType(MimeTypeText, parts)
}

// MessageText is Text for a server message.
func MessageText(m *models.Message) (string, bool) {
	if m == nil {
		return "", false
	}
	return Text(m.Parts)
}

// DisplayText returns the text of parts, or "" when there is none.
func DisplayText(parts []models.Part) string {
	text, _ := Text(parts)
	return text
}

func findContentOfType(mimeType string, parts []models.Part) (string, bool) {
	for _, p := range parts {
		if p.Payload.IsInline() && p.Payload.Type == mimeType {
			return p.Payload.Content, true
		}
	}
	return "", false
}

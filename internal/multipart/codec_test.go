package multipart

import (
	"testing"

	"roomchat/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeOutgoing(t *testing.T) {
	parts := EncodeOutgoing("hello")
	require.Len(t, parts, 2)

	assert.Equal(t, models.PayloadInline, parts[0].Payload.Kind)
	assert.Equal(t, MimeTypeText, parts[0].Payload.Type)
	assert.Equal(t, "hello", parts[0].Payload.Content)

	assert.Equal(t, models.PayloadInline, parts[1].Payload.Kind)
	assert.Equal(t, MimeTypeCorrelationID, parts[1].Payload.Type)
	_, err := uuid.Parse(parts[1].Payload.Content)
	assert.NoError(t, err)

	text, ok := Text(parts)
	assert.True(t, ok)
	assert.Equal(t, "hello", text)

	id, ok := CorrelationID(parts)
	assert.True(t, ok)
	assert.Equal(t, parts[1].Payload.Content, id)
}

func TestEncodeOutgoingGeneratesDistinctIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, ok := CorrelationID(EncodeOutgoing("same text"))
		require.True(t, ok)
		require.False(t, seen[id], "duplicate correlation id %s", id)
		seen[id] = true
	}
}

func TestExtractionMisses(t *testing.T) {
	_, ok := CorrelationID(nil)
	assert.False(t, ok)

	parts := []models.Part{models.InlinePart(MimeTypeText, "only text")}
	_, ok = CorrelationID(parts)
	assert.False(t, ok)

	_, ok = Text([]models.Part{models.InlinePart(MimeTypeCorrelationID, "abc")})
	assert.False(t, ok)
	assert.Equal(t, "", DisplayText([]models.Part{models.InlinePart(MimeTypeCorrelationID, "abc")}))
}

func TestNonInlinePayloadsAreIgnored(t *testing.T) {
	parts := []models.Part{
		{Payload: models.Payload{Kind: models.PayloadURL, Type: MimeTypeText, URL: "https://example.com/a.txt"}},
		{Payload: models.Payload{Kind: models.PayloadAttachment, Type: MimeTypeCorrelationID, URL: "https://example.com/id"}},
		models.InlinePart(MimeTypeText, "inline text"),
	}

	text, ok := Text(parts)
	assert.True(t, ok)
	assert.Equal(t, "inline text", text)

	_, ok = CorrelationID(parts)
	assert.False(t, ok)
}

func TestMessageHelpers(t *testing.T) {
	_, ok := MessageCorrelationID(nil)
	assert.False(t, ok)
	_, ok = MessageText(nil)
	assert.False(t, ok)

	parts := EncodeOutgoing("from server")
	m := &models.Message{ID: uuid.New(), Parts: parts}

	id, ok := MessageCorrelationID(m)
	assert.True(t, ok)
	want, _ := CorrelationID(parts)
	assert.Equal(t, want, id)

	text, ok := MessageText(m)
	assert.True(t, ok)
	assert.Equal(t, "from server", text)
}

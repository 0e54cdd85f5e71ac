package viewmodel

import (
	"math/rand"
	"testing"

	"roomchat/internal/messagestore"
	"roomchat/internal/models"
	"roomchat/internal/multipart"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	meID    = uuid.MustParse("6f1d2c1e-4b7a-4f7e-9d1e-2a3b4c5d6e7f")
	otherID = uuid.MustParse("0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d")
)

func strPtr(s string) *string { return &s }

func attached(t *testing.T, identity messagestore.Identity) (*messagestore.Store, *[]messagestore.Model, *[]MessagesView) {
	t.Helper()
	store := messagestore.New(identity)
	var source []messagestore.Model
	store.Subscribe(func(m messagestore.Model) { source = append(source, m) })

	p := New()
	p.Attach(store)
	var views []MessagesView
	p.Subscribe(func(v MessagesView) { views = append(views, v) })
	return store, &source, &views
}

func TestProjectServerMessages(t *testing.T) {
	store, _, views := attached(t, messagestore.Identity{ID: meID, Name: strPtr("Me")})

	store.RecordServerMessage(&models.Message{
		ID:     uuid.New(),
		Sender: models.PublicUser{ID: otherID, Name: strPtr("Bob"), AvatarURL: strPtr("https://img/bob.png")},
		Parts:  multipart.EncodeOutgoing("hello"),
	})
	store.RecordServerMessage(&models.Message{
		ID:     uuid.New(),
		Sender: models.PublicUser{ID: meID, Name: strPtr("Me")},
		Parts:  multipart.EncodeOutgoing("hey"),
	})
	store.RecordServerMessage(&models.Message{
		ID:     uuid.New(),
		Sender: models.PublicUser{ID: otherID},
		Parts:  []models.Part{models.InlinePart(multipart.MimeTypeCorrelationID, uuid.NewString())},
	})

	require.Len(t, *views, 3)
	last := (*views)[2]
	require.Len(t, last.Items, 3)

	assert.Equal(t, MessageView{SenderName: "Bob", SenderAvatarURL: strPtr("https://img/bob.png"), Text: "hello", Type: FromOther}, last.Items[0])
	assert.Equal(t, FromMe, last.Items[1].Type)
	assert.Equal(t, "Me", last.Items[1].SenderName)
	assert.Equal(t, DefaultSenderName, last.Items[2].SenderName)
	assert.Equal(t, "", last.Items[2].Text)
	assert.Equal(t, messagestore.Added(2), last.Change)
}

func TestProjectLocalMessagesUseCurrentUser(t *testing.T) {
	identity := messagestore.Identity{ID: meID, Name: strPtr("Me"), AvatarURL: strPtr("https://img/me.png")}
	store, _, views := attached(t, identity)
	parts := multipart.EncodeOutgoing("hi")

	store.RecordPendingMessage(parts)
	store.MarkFailed(parts)
	store.MarkSent(parts)

	require.Len(t, *views, 3)
	assert.Equal(t, Pending, (*views)[0].Items[0].Type)
	assert.Equal(t, Failed, (*views)[1].Items[0].Type)
	assert.Equal(t, FromMe, (*views)[2].Items[0].Type)
	assert.Equal(t, "Me", (*views)[2].Items[0].SenderName)
	assert.Equal(t, identity.AvatarURL, (*views)[2].Items[0].SenderAvatarURL)
	assert.Equal(t, "hi", (*views)[2].Items[0].Text)
}

func TestProjectLocalWithoutCurrentUserName(t *testing.T) {
	store, _, views := attached(t, messagestore.Identity{ID: meID})
	store.RecordPendingMessage(multipart.EncodeOutgoing("hi"))

	require.Len(t, *views, 1)
	assert.Equal(t, DefaultSenderName, (*views)[0].Items[0].SenderName)
}

func TestSubmitThenServerEchoScenario(t *testing.T) {
	store, _, views := attached(t, messagestore.Identity{ID: meID, Name: strPtr("Me")})
	parts := multipart.EncodeOutgoing("hi")

	store.RecordPendingMessage(parts)
	require.Len(t, *views, 1)
	assert.Equal(t, messagestore.Added(0), (*views)[0].Change)
	assert.Equal(t, Pending, (*views)[0].Items[0].Type)

	store.RecordServerMessage(&models.Message{
		ID:     uuid.New(),
		Sender: models.PublicUser{ID: meID, Name: strPtr("Me")},
		Parts:  parts,
	})

	require.Len(t, *views, 2)
	final := (*views)[1]
	assert.Equal(t, messagestore.Updated(0), final.Change)
	require.Len(t, final.Items, 1)
	assert.Equal(t, FromMe, final.Items[0].Type)
	assert.Equal(t, "hi", final.Items[0].Text)
}

func TestProjectionIndexParity(t *testing.T) {
	store, source, views := attached(t, messagestore.Identity{ID: meID})
	rng := rand.New(rand.NewSource(42))

	var sent [][]models.Part
	for step := 0; step < 500; step++ {
		switch op := rng.Intn(5); {
		case op == 0 || len(sent) == 0:
			parts := multipart.EncodeOutgoing("msg")
			sent = append(sent, parts)
			store.RecordPendingMessage(parts)
		case op == 1:
			store.MarkSent(sent[rng.Intn(len(sent))])
		case op == 2:
			store.MarkFailed(sent[rng.Intn(len(sent))])
		case op == 3:
			sender := otherID
			if rng.Intn(2) == 0 {
				sender = meID
			}
			store.RecordServerMessage(&models.Message{
				ID:     uuid.New(),
				Sender: models.PublicUser{ID: sender},
				Parts:  sent[rng.Intn(len(sent))],
			})
		default:
			store.RecordServerMessage(&models.Message{
				ID:     uuid.New(),
				Sender: models.PublicUser{ID: otherID},
				Parts:  multipart.EncodeOutgoing("unrelated"),
			})
		}

		require.Equal(t, len(*source), len(*views))
		src := (*source)[len(*source)-1]
		view := (*views)[len(*views)-1]
		require.Equal(t, src.LastChange, view.Change)
		require.Equal(t, len(src.Items), len(view.Items))
	}
}

func TestCurrentReflectsLatest(t *testing.T) {
	store, _, _ := attached(t, messagestore.Identity{ID: meID})
	p := New()
	_, ok := p.Current()
	assert.False(t, ok)

	detach := p.Attach(store)
	store.RecordPendingMessage(multipart.EncodeOutgoing("a"))
	detach()
	store.RecordPendingMessage(multipart.EncodeOutgoing("b"))

	cur, ok := p.Current()
	require.True(t, ok)
	assert.Len(t, cur.Items, 1)
}

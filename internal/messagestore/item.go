package messagestore

import (
	"roomchat/internal/models"
	"roomchat/internal/multipart"

	"github.com/google/uuid"
)

// Kind tags which variant an Item holds.
type Kind int

const (
	// KindFromServer items wrap a message delivered by the server.
	KindFromServer Kind = iota + 1
	// KindLocal items wrap parts the current user created and which the
	// server has not yet echoed back.
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindFromServer:
		return "from_server"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// LocalState is the send lifecycle of a Local item.
type LocalState int

const (
	StatePending LocalState = iota + 1
	StateFailed
	StateSent
)

func (s LocalState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFailed:
		return "failed"
	case StateSent:
		return "sent"
	default:
		return "unknown"
	}
}

// Item is one record in the store. Exactly one of Message (KindFromServer)
// or Parts and State (KindLocal) is meaningful.
type Item struct {
	Kind    Kind
	Message *models.Message
	Parts   []models.Part
	State   LocalState
}

// FromServer wraps a server message.
func FromServer(m *models.Message) Item {
	return Item{Kind: KindFromServer, Message: m}
}

// Local wraps outgoing parts in the given state.
func Local(parts []models.Part, state LocalState) Item {
	return Item{Kind: KindLocal, Parts: clone(parts), State: state}
}

// CorrelationID returns the item's correlation identifier, if it carries one.
func (i Item) CorrelationID() (string, bool) {
	switch i.Kind {
	case KindFromServer:
		return multipart.MessageCorrelationID(i.Message)
	case KindLocal:
		return multipart.CorrelationID(i.Parts)
	default:
		return "", false
	}
}

// Content returns the parts an item carries regardless of variant.
func (i Item) Content() []models.Part {
	switch i.Kind {
	case KindFromServer:
		if i.Message == nil {
			return nil
		}
		return i.Message.Parts
	case KindLocal:
		return i.Parts
	default:
		return nil
	}
}

// Identity is the current user as known when the store was created. Local
// items carry no sender, so consumers render them with this identity.
type Identity struct {
	ID        uuid.UUID
	Name      *string
	AvatarURL *string
}

func clone(parts []models.Part) []models.Part {
	if parts == nil {
		return nil
	}
	out := make([]models.Part, len(parts))
	copy(out, parts)
	return out
}

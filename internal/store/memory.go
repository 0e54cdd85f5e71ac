package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"roomchat/internal/models"

	"github.com/google/uuid"
)

// MemoryURL selects MemoryStore instead of PostgreSQL as DATABASE_URL.
const MemoryURL = "memory://"

// MemoryStore is an in-process implementation of UserStore, RoomStore and
// MessageStore. Data lives only as long as the process.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	rooms    map[uuid.UUID]*models.Room
	members  map[uuid.UUID][]uuid.UUID // room -> members, in join order
	messages map[uuid.UUID][]*models.Message
}

var (
	_ UserStore    = (*MemoryStore)(nil)
	_ RoomStore    = (*MemoryStore)(nil)
	_ MessageStore = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]*models.User),
		rooms:    make(map[uuid.UUID]*models.Room),
		members:  make(map[uuid.UUID][]uuid.UUID),
		messages: make(map[uuid.UUID][]*models.Message),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrEmailExists
		}
		if u.Username == user.Username {
			return ErrUsernameExists
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) roomByName(name string) *models.Room {
	for _, r := range s.rooms {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, name string, creatorID uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomByName(name) != nil {
		return nil, ErrRoomExists
	}
	room := &models.Room{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	s.rooms[room.ID] = room
	s.members[room.ID] = []uuid.UUID{creatorID}
	cp := *room
	return &cp, nil
}

func (s *MemoryStore) EnsureRoom(_ context.Context, name string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.roomByName(name)
	if room == nil {
		room = &models.Room{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
		s.rooms[room.ID] = room
	}
	cp := *room
	return &cp, nil
}

func (s *MemoryStore) GetRoomByID(_ context.Context, roomID uuid.UUID) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

// GetUserRooms orders rooms by room creation time, which matches join order
// for the common case of joining the default room first.
func (s *MemoryStore) GetUserRooms(_ context.Context, userID uuid.UUID) ([]*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]*models.Room, 0)
	for roomID, members := range s.members {
		for _, m := range members {
			if m == userID {
				cp := *s.rooms[roomID]
				rooms = append(rooms, &cp)
				break
			}
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].Name < rooms[j].Name
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *MemoryStore) AddUserToRoom(_ context.Context, roomID uuid.UUID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return ErrRoomNotFound
	}
	for _, m := range s.members[roomID] {
		if m == userID {
			return nil
		}
	}
	s.members[roomID] = append(s.members[roomID], userID)
	return nil
}

func (s *MemoryStore) IsRoomMember(_ context.Context, roomID uuid.UUID, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members[roomID] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[message.RoomID]; !ok {
		return ErrRoomNotFound
	}
	cp := *message
	cp.Parts = append([]models.Part(nil), message.Parts...)
	s.messages[message.RoomID] = append(s.messages[message.RoomID], &cp)
	return nil
}

func (s *MemoryStore) withSender(m *models.Message) *models.Message {
	cp := *m
	if u, ok := s.users[m.SenderID]; ok {
		cp.Sender = *u.ToPublicUser()
	} else {
		cp.Sender = models.PublicUser{ID: m.SenderID}
	}
	return &cp
}

func (s *MemoryStore) GetRecentMessages(_ context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[roomID]
	start := 0
	if limit >= 0 && len(all) > limit {
		start = len(all) - limit
	}
	messages := make([]*models.Message, 0, len(all)-start)
	for _, m := range all[start:] {
		messages = append(messages, s.withSender(m))
	}
	return messages, nil
}

func (s *MemoryStore) GetMessageByID(_ context.Context, messageID uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				return s.withSender(m), nil
			}
		}
	}
	return nil, ErrMessageNotFound
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a chat room users subscribe to.
type Room struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// RoomMember links a user to a room.
type RoomMember struct {
	RoomID    uuid.UUID `json:"roomId" db:"room_id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// CreateRoomRequest defines the payload for creating a room.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an application user.
type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Username       string    `json:"username" db:"username"`
	DisplayName    *string   `json:"name,omitempty" db:"display_name"`
	AvatarURL      *string   `json:"avatarUrl,omitempty" db:"avatar_url"`
	Email          string    `json:"email" db:"email"`
	HashedPassword string    `json:"-" db:"hashed_password"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the identity attached to messages and returned via APIs.
// Name and AvatarURL are optional; clients substitute their own defaults.
type PublicUser struct {
	ID        uuid.UUID `json:"id"`
	Name      *string   `json:"name,omitempty"`
	AvatarURL *string   `json:"avatarUrl,omitempty"`
}

func (u *User) ToPublicUser() *PublicUser {
	name := u.DisplayName
	if name == nil && u.Username != "" {
		username := u.Username
		name = &username
	}
	return &PublicUser{
		ID:        u.ID,
		Name:      name,
		AvatarURL: u.AvatarURL,
	}
}

// CreateUserRequest captures registration input.
type CreateUserRequest struct {
	Username    string  `json:"username" binding:"required,min=3,max=50"`
	DisplayName *string `json:"name,omitempty" binding:"omitempty,max=100"`
	AvatarURL   *string `json:"avatarUrl,omitempty" binding:"omitempty,url,max=2048"`
	Email       string  `json:"email" binding:"required,email"`
	Password    string  `json:"password" binding:"required,min=6,max=72"`
}

// LoginUserRequest captures login input.
type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    *PublicUser `json:"user"`
	Rooms   []*Room     `json:"rooms"`
}

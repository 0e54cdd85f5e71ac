package store

import "errors"

// 23505 is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrUsernameExists  = errors.New("username already exists")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrNotRoomMember   = errors.New("user is not a member of the room")
	ErrMessageNotFound = errors.New("message not found")
)

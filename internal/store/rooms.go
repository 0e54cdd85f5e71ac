package store

import (
	"context"
	"errors"
	"fmt"

	"roomchat/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomStore defines persistence operations for rooms and their members.
type RoomStore interface {
	CreateRoom(ctx context.Context, name string, creatorID uuid.UUID) (*models.Room, error)
	EnsureRoom(ctx context.Context, name string) (*models.Room, error)
	GetRoomByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
	GetUserRooms(ctx context.Context, userID uuid.UUID) ([]*models.Room, error)
	AddUserToRoom(ctx context.Context, roomID uuid.UUID, userID uuid.UUID) error
	IsRoomMember(ctx context.Context, roomID uuid.UUID, userID uuid.UUID) (bool, error)
}

// PostgresRoomStore implements RoomStore with PostgreSQL.
type PostgresRoomStore struct {
	db *pgxpool.Pool
}

func NewPostgresRoomStore(db *pgxpool.Pool) *PostgresRoomStore {
	return &PostgresRoomStore{
		db: db,
	}
}

// CreateRoom creates a room and adds its creator as the first member.
func (s *PostgresRoomStore) CreateRoom(ctx context.Context, name string, creatorID uuid.UUID) (*models.Room, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	room := &models.Room{ID: uuid.New(), Name: name}
	err = tx.QueryRow(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES ($1, $2, NOW()) RETURNING created_at`,
		room.ID, room.Name,
	).Scan(&room.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrRoomExists
		}
		return nil, fmt.Errorf("failed to create room entry: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id, created_at) VALUES ($1, $2, NOW())`,
		room.ID, creatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add creator %s to room %s: %w", creatorID, room.ID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return room, nil
}

// EnsureRoom returns the room called name, creating it without members if
// it does not exist yet.
func (s *PostgresRoomStore) EnsureRoom(ctx context.Context, name string) (*models.Room, error) {
	room := &models.Room{}
	err := s.db.QueryRow(ctx, `
        INSERT INTO rooms (id, name, created_at) VALUES ($1, $2, NOW())
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id, name, created_at
    `, uuid.New(), name).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure room %q: %w", name, err)
	}
	return room, nil
}

func (s *PostgresRoomStore) GetRoomByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM rooms WHERE id = $1`, roomID,
	).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room by ID %s: %w", roomID, err)
	}
	return room, nil
}

// GetUserRooms lists the rooms userID belongs to, oldest membership first.
func (s *PostgresRoomStore) GetUserRooms(ctx context.Context, userID uuid.UUID) ([]*models.Room, error) {
	rows, err := s.db.Query(ctx, `
        SELECT r.id, r.name, r.created_at
        FROM rooms r
        JOIN room_members rm ON rm.room_id = r.id
        WHERE rm.user_id = $1
        ORDER BY rm.created_at ASC, r.name ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]*models.Room, 0)
	for rows.Next() {
		room := &models.Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room rows: %w", err)
	}
	return rooms, nil
}

// AddUserToRoom is idempotent.
func (s *PostgresRoomStore) AddUserToRoom(ctx context.Context, roomID uuid.UUID, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO room_members (room_id, user_id, created_at) VALUES ($1, $2, NOW())
        ON CONFLICT (room_id, user_id) DO NOTHING
    `, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to add user %s to room %s: %w", userID, roomID, err)
	}
	return nil
}

func (s *PostgresRoomStore) IsRoomMember(ctx context.Context, roomID uuid.UUID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership of user %s in room %s: %w", userID, roomID, err)
	}
	return exists, nil
}

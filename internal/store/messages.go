package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"roomchat/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageStore defines persistence operations for room messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	// GetRecentMessages returns at most limit of the newest messages in
	// roomID, oldest first.
	GetRecentMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error)
	GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
}

// PostgresMessageStore implements MessageStore with PostgreSQL. Parts are
// stored as a JSONB array.
type PostgresMessageStore struct {
	db *pgxpool.Pool
}

func NewPostgresMessageStore(db *pgxpool.Pool) *PostgresMessageStore {
	return &PostgresMessageStore{
		db: db,
	}
}

const messageWithSenderColumns = `
            m.id, m.room_id, m.sender_id, m.parts, m.created_at,
            COALESCE(u.display_name, u.username), u.avatar_url`

func scanMessageWithSender(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	var rawParts []byte

	err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&rawParts,
		&msg.CreatedAt,
		&msg.Sender.Name,
		&msg.Sender.AvatarURL,
	)
	if err != nil {
		return nil, err
	}
	msg.Sender.ID = msg.SenderID

	if err := json.Unmarshal(rawParts, &msg.Parts); err != nil {
		return nil, fmt.Errorf("failed to decode parts of message %s: %w", msg.ID, err)
	}
	return &msg, nil
}

func (s *PostgresMessageStore) CreateMessage(ctx context.Context, message *models.Message) error {
	rawParts, err := json.Marshal(message.Parts)
	if err != nil {
		return fmt.Errorf("failed to encode message parts: %w", err)
	}

	_, err = s.db.Exec(ctx, `
        INSERT INTO messages (id, room_id, sender_id, parts, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `,
		message.ID,
		message.RoomID,
		message.SenderID,
		rawParts,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (s *PostgresMessageStore) GetRecentMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error) {
	query := `
        SELECT * FROM (
            SELECT` + messageWithSenderColumns + `
            FROM messages m
            JOIN users u ON m.sender_id = u.id
            WHERE m.room_id = $1
            ORDER BY m.created_at DESC, m.id DESC
            LIMIT $2
        ) recent
        ORDER BY recent.created_at ASC, recent.id ASC
    `
	rows, err := s.db.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages of room %s: %w", roomID, err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessageWithSender(rows)
		if err != nil {
			log.Printf("Error scanning message row: %v", err)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func (s *PostgresMessageStore) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	query := `
        SELECT` + messageWithSenderColumns + `
        FROM messages m
        JOIN users u ON m.sender_id = u.id
        WHERE m.id = $1
    `
	msg, err := scanMessageWithSender(s.db.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message by ID: %w", err)
	}
	return msg, nil
}

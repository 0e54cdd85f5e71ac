// Package cache keeps the most recent messages of each room in Redis so
// subscription backlogs can be served without hitting Postgres.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"roomchat/internal/models"
	"roomchat/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// MaxCachedPerRoom bounds each room's sorted set.
const MaxCachedPerRoom = 100

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// CachedMessageStore wraps a store.MessageStore. Writes go to the backing
// store first and are then mirrored into Redis: a per-room sorted set of
// message ids scored by creation time, plus a hash of id to message JSON.
// Keying by id makes re-caching a message idempotent. Reads are served from
// Redis when it holds enough messages.
type CachedMessageStore struct {
	store.MessageStore
	client *redis.Client
}

var _ store.MessageStore = (*CachedMessageStore)(nil)

func NewCachedMessageStore(backing store.MessageStore, client *redis.Client) *CachedMessageStore {
	return &CachedMessageStore{MessageStore: backing, client: client}
}

func idsKey(roomID uuid.UUID) string {
	return fmt.Sprintf("room:%s:message_ids", roomID)
}

func bodiesKey(roomID uuid.UUID) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// CreateMessage stores message and caches it. message.Sender must already
// be filled in; the cache has no way to look it up.
func (c *CachedMessageStore) CreateMessage(ctx context.Context, message *models.Message) error {
	if err := c.MessageStore.CreateMessage(ctx, message); err != nil {
		return err
	}
	if err := c.cacheMessages(ctx, message.RoomID, []*models.Message{message}); err != nil {
		log.Printf("Cache: Failed to cache message %s for room %s: %v", message.ID, message.RoomID, err)
	}
	return nil
}

func (c *CachedMessageStore) cacheMessages(ctx context.Context, roomID uuid.UUID, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids, bodies := idsKey(roomID), bodiesKey(roomID)

	pipe := c.client.TxPipeline()
	for _, m := range messages {
		entry := *m
		if entry.Sender.ID == uuid.Nil {
			entry.Sender.ID = entry.SenderID
		}
		raw, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("failed to marshal message %s: %w", m.ID, err)
		}
		id := m.ID.String()
		pipe.ZAdd(ctx, ids, &redis.Z{Score: float64(m.CreatedAt.UnixMicro()), Member: id})
		pipe.HSet(ctx, bodies, id, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return c.trim(ctx, roomID)
}

// trim evicts everything but the newest MaxCachedPerRoom messages.
func (c *CachedMessageStore) trim(ctx context.Context, roomID uuid.UUID) error {
	ids, bodies := idsKey(roomID), bodiesKey(roomID)
	evicted, err := c.client.ZRange(ctx, ids, 0, -(MaxCachedPerRoom + 1)).Result()
	if err != nil || len(evicted) == 0 {
		return err
	}

	members := make([]interface{}, len(evicted))
	for i, id := range evicted {
		members[i] = id
	}
	pipe := c.client.TxPipeline()
	pipe.ZRem(ctx, ids, members...)
	pipe.HDel(ctx, bodies, evicted...)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRecentMessages returns cached messages when the cache can satisfy the
// whole request, and otherwise falls back to the backing store and refills
// the cache from its result.
func (c *CachedMessageStore) GetRecentMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error) {
	if limit > 0 && limit <= MaxCachedPerRoom {
		cached, err := c.cachedMessages(ctx, roomID, limit)
		if err != nil {
			log.Printf("Cache: Read of room %s failed, falling back to store: %v", roomID, err)
		} else if len(cached) == limit {
			return cached, nil
		}
	}

	messages, err := c.MessageStore.GetRecentMessages(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	if err := c.cacheMessages(ctx, roomID, messages); err != nil {
		log.Printf("Cache: Failed to refill room %s: %v", roomID, err)
	}
	return messages, nil
}

// cachedMessages returns up to limit of the newest cached messages, oldest
// first. Ids whose body is missing or unreadable are skipped, which makes
// the result short and the caller fall back to the backing store.
func (c *CachedMessageStore) cachedMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error) {
	ids, err := c.client.ZRevRange(ctx, idsKey(roomID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cached message ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := c.client.HMGet(ctx, bodiesKey(roomID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cached messages: %w", err)
	}

	messages := make([]*models.Message, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for i := len(bodies) - 1; i >= 0; i-- {
		raw, ok := bodies[i].(string)
		if !ok {
			continue
		}
		var m models.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		m.SenderID = m.Sender.ID
		messages = append(messages, &m)
	}
	return messages, nil
}

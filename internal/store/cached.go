package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const messageKeyPrefix = "msg:"

// CachedStore decorates a Conversations implementation with a redis
// read-through cache for message lookups. Branch index maintenance and
// history building are get-by-id heavy, so single-message reads dominate
// the store's load. Every message mutation invalidates its cache entry.
type CachedStore struct {
	Conversations
	redis *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedStore wraps inner with a redis message cache
func NewCachedStore(inner Conversations, client *redis.Client, ttl time.Duration, log *logger.Logger) *CachedStore {
	return &CachedStore{
		Conversations: inner,
		redis:         client,
		ttl:           ttl,
		log:           log,
	}
}

func (s *CachedStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	if raw, err := s.redis.Get(ctx, messageKeyPrefix+id).Result(); err == nil {
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err == nil {
			return &msg, nil
		}
		// Corrupt entry: drop it and fall through to the inner store
		s.redis.Del(ctx, messageKeyPrefix+id)
	}

	msg, err := s.Conversations.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(msg); err == nil {
		if err := s.redis.Set(ctx, messageKeyPrefix+msg.ID, raw, s.ttl).Err(); err != nil {
			s.log.Warn("message cache set failed", "id", msg.ID, "error", err.Error())
		}
	}
	return msg, nil
}

func (s *CachedStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	if err := s.Conversations.InsertMessage(ctx, msg); err != nil {
		return err
	}
	s.invalidate(ctx, msg.ID)
	return nil
}

func (s *CachedStore) PushChild(ctx context.Context, parentID, childID string) error {
	if err := s.Conversations.PushChild(ctx, parentID, childID); err != nil {
		return err
	}
	s.invalidate(ctx, parentID)
	return nil
}

func (s *CachedStore) SetMessageFields(ctx context.Context, id string, fields map[string]any) error {
	if err := s.Conversations.SetMessageFields(ctx, id, fields); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, id string) {
	if err := s.redis.Del(ctx, messageKeyPrefix+id).Err(); err != nil {
		s.log.Warn("message cache invalidation failed", "id", id, "error", err.Error())
	}
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"

	"gorm.io/gorm"
)

// GormStore implements Conversations on top of a gorm/postgres handle.
// PushChild and CompareAndSetLock rely on single-row UPDATE atomicity:
// the jsonb concatenation operator for the child append and a conditional
// WHERE clause for the lock CAS.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store backed by the given database handle
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (s *GormStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *GormStore) PushChild(ctx context.Context, parentID, childID string) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", parentID).
		Updates(map[string]any{
			"children_ids": gorm.Expr("children_ids || to_jsonb(?::text)", childID),
			"version":      gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetMessageFields(ctx context.Context, id string, fields map[string]any) error {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")

	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).First(&chat, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &chat, nil
}

func (s *GormStore) InsertChat(ctx context.Context, chat *models.Chat) error {
	return s.db.WithContext(ctx).Create(chat).Error
}

func (s *GormStore) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_updated DESC").
		Find(&chats).Error
	return chats, err
}

func (s *GormStore) TouchChat(ctx context.Context, chatID string) error {
	return s.db.WithContext(ctx).Model(&models.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]any{
			"message_count": gorm.Expr("message_count + 1"),
			"last_updated":  time.Now().UTC(),
		}).Error
}

func (s *GormStore) CompareAndSetLock(ctx context.Context, chatID string, expected, new bool) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Chat{}).
		Where("id = ? AND locked = ?", chatID, expected).
		Updates(map[string]any{
			"locked":       new,
			"last_updated": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

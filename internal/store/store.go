// Package store provides durable keyed storage for Chat and Message
// entities. All operations are atomic per row; nothing here spans multiple
// rows in one transaction, so callers must tolerate partially applied
// multi-document updates.
package store

import (
	"context"
	"errors"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
)

// ErrNotFound is returned when a chat or message id does not resolve
var ErrNotFound = errors.New("store: not found")

// Conversations is the storage contract consumed by the conversation engine.
type Conversations interface {
	// GetMessage returns the message with the given id or ErrNotFound.
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// InsertMessage stores a new message document.
	InsertMessage(ctx context.Context, msg *models.Message) error
	// PushChild atomically appends childID to the parent's children list.
	PushChild(ctx context.Context, parentID, childID string) error
	// SetMessageFields atomically applies a partial update to one message
	// and bumps its version counter.
	SetMessageFields(ctx context.Context, id string, fields map[string]any) error

	// GetChat returns the chat with the given id or ErrNotFound.
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	// InsertChat stores a new chat document.
	InsertChat(ctx context.Context, chat *models.Chat) error
	// ListChats returns all chats owned by a user, most recent first.
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)
	// TouchChat bumps the chat's message count and last-updated timestamp.
	TouchChat(ctx context.Context, chatID string) error
	// CompareAndSetLock flips the chat's locked flag from expected to new.
	// It reports false when the flag did not hold the expected value, which
	// is the lock-conflict signal.
	CompareAndSetLock(ctx context.Context, chatID string, expected, new bool) (bool, error)
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
)

// MemoryStore is an in-process Conversations implementation with the same
// per-document atomicity as the database-backed store. It backs tests and
// local development without a postgres instance.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	chats    map[string]*models.Chat
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*models.Message),
		chats:    make(map[string]*models.Chat),
	}
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ID] = copyMessage(msg)
	return nil
}

func (s *MemoryStore) PushChild(ctx context.Context, parentID, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.messages[parentID]
	if !ok {
		return ErrNotFound
	}
	parent.ChildrenIDs = append(parent.ChildrenIDs, childID)
	parent.Version++
	return nil
}

func (s *MemoryStore) SetMessageFields(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		applyMessageField(msg, k, v)
	}
	msg.Version++
	return nil
}

func (s *MemoryStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *chat
	return &out, nil
}

func (s *MemoryStore) InsertChat(ctx context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := *chat
	s.chats[chat.ID] = &out
	return nil
}

func (s *MemoryStore) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chats []models.Chat
	for _, chat := range s.chats {
		if chat.UserID == userID {
			chats = append(chats, *chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].LastUpdated.After(chats[j].LastUpdated)
	})
	return chats, nil
}

func (s *MemoryStore) TouchChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return ErrNotFound
	}
	chat.MessageCount++
	chat.LastUpdated = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CompareAndSetLock(ctx context.Context, chatID string, expected, new bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return false, ErrNotFound
	}
	if chat.Locked != expected {
		return false, nil
	}
	chat.Locked = new
	chat.LastUpdated = time.Now().UTC()
	return true, nil
}

func copyMessage(m *models.Message) *models.Message {
	out := *m
	out.ChildrenIDs = append(models.IDList{}, m.ChildrenIDs...)
	out.Path = append(models.IDList{}, m.Path...)
	out.ParentID = copyStringPtr(m.ParentID)
	out.BranchAnchor = copyStringPtr(m.BranchAnchor)
	out.CousinLeft = copyStringPtr(m.CousinLeft)
	out.CousinRight = copyStringPtr(m.CousinRight)
	return &out
}

func copyStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// applyMessageField mirrors the column names used by the database store so
// the same field maps work against both implementations.
func applyMessageField(msg *models.Message, key string, value any) {
	switch key {
	case "status":
		if v, ok := value.(string); ok {
			msg.Status = v
		}
	case "content":
		if v, ok := value.(string); ok {
			msg.Content = v
		}
	case "branch_anchor":
		msg.BranchAnchor = toStringPtr(value)
	case "cousin_left":
		msg.CousinLeft = toStringPtr(value)
	case "cousin_right":
		msg.CousinRight = toStringPtr(value)
	case "tokens_used":
		if v, ok := value.(int); ok {
			msg.TokensUsed = &v
		}
	}
}

func toStringPtr(value any) *string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return &v
	case *string:
		return copyStringPtr(v)
	default:
		return nil
	}
}

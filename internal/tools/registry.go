package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/cache"
)

// Tool kinds as stored
const (
	KindSnippet = "snippet"
	KindRemote  = "remote"
)

// Entry is the persisted form of a tool definition. One table holds both
// kinds; the kind column decides which columns are meaningful.
type Entry struct {
	ID          string `json:"_id" gorm:"primaryKey;size:36"`
	Name        string `json:"name" gorm:"size:100"`
	Description string `json:"description" gorm:"size:500"`
	Kind        string `json:"kind" gorm:"index;size:16"`

	// Snippet fields
	Language string `json:"language" gorm:"size:16"`
	Code     string `json:"code"`

	// Remote fields
	Command        string         `json:"command" gorm:"size:255"`
	Args           models.IDList  `json:"args" gorm:"type:jsonb;default:'[]'"`
	Env            models.JSONMap `json:"env" gorm:"type:jsonb;default:'{}'"`
	TimeoutSeconds int            `json:"timeout_seconds" gorm:"default:30"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName sets the table name for tool entries
func (Entry) TableName() string {
	return "tool_entries"
}

// Descriptor converts the stored entry into its runnable form
func (e *Entry) Descriptor() (Descriptor, error) {
	switch e.Kind {
	case KindSnippet:
		return Snippet{
			ID:          e.ID,
			Name:        e.Name,
			Description: e.Description,
			Language:    e.Language,
			Code:        e.Code,
		}, nil
	case KindRemote:
		env := make(map[string]string, len(e.Env))
		for k, v := range e.Env {
			if s, ok := v.(string); ok {
				env[k] = s
			}
		}
		return Remote{
			ID:          e.ID,
			Name:        e.Name,
			Description: e.Description,
			Command:     e.Command,
			Args:        append([]string{}, e.Args...),
			Env:         env,
			Timeout:     time.Duration(e.TimeoutSeconds) * time.Second,
		}, nil
	default:
		return nil, fmt.Errorf("unknown tool kind %q for tool %s", e.Kind, e.ID)
	}
}

// GormRegistry resolves tools from the database with a small TTL cache in
// front. Tool definitions change rarely and every agent turn re-resolves the
// chat's active set, so cached reads dominate.
type GormRegistry struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewGormRegistry creates a registry over db with the given cache TTL
func NewGormRegistry(db *gorm.DB, ttl time.Duration) *GormRegistry {
	return &GormRegistry{
		db:    db,
		cache: cache.NewCacheWithOptions(ttl, ttl, 1024),
	}
}

func (r *GormRegistry) Resolve(ctx context.Context, id string) (Descriptor, error) {
	if cached, ok := r.cache.Get("tool:" + id); ok {
		if d, ok := cached.(Descriptor); ok {
			return d, nil
		}
	}

	var entry Entry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	d, err := entry.Descriptor()
	if err != nil {
		return nil, err
	}
	r.cache.Set("tool:"+id, d)
	return d, nil
}

func (r *GormRegistry) ResolveAll(ctx context.Context, ids []string) ([]Descriptor, error) {
	descriptors := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		d, err := r.Resolve(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// Save upserts a tool entry and drops its cache slot
func (r *GormRegistry) Save(ctx context.Context, entry *Entry) error {
	if err := r.db.WithContext(ctx).Save(entry).Error; err != nil {
		return err
	}
	r.cache.Delete("tool:" + entry.ID)
	return nil
}

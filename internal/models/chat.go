package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a single branching conversation owned by one user. Locked is the
// cooperative turn-exclusion flag: it holds for the whole interval between a
// user message's insertion and the corresponding agent reply (or failure
// cleanup), guarded by compare-and-set updates in the store.
type Chat struct {
	ID      string  `json:"_id" gorm:"primaryKey;size:36"`
	UserID  string  `json:"user_id" gorm:"index;size:64"`
	AgentID *string `json:"agent_id" gorm:"size:36"`
	Title   string  `json:"title" gorm:"size:150"`
	// ActiveTools lists tool registry ids the agent may invoke in this chat.
	ActiveTools  IDList    `json:"active_tools" gorm:"type:jsonb;default:'[]'"`
	Metadata     JSONMap   `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	Locked       bool      `json:"locked" gorm:"default:false"`
	MessageCount int       `json:"message_count" gorm:"default:0"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
}

// NewChat builds a chat with a fresh id and timestamps
func NewChat(userID, title string) *Chat {
	now := time.Now().UTC()
	return &Chat{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		ActiveTools: IDList{},
		Metadata:    JSONMap{},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

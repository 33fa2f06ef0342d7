package models

import (
	"time"

	"github.com/google/uuid"
)

// Message roles
const (
	RoleUser        = "user"
	RoleAgent       = "agent"
	RoleSystem      = "system"
	RoleTool        = "tool"
	RoleInitializer = "initializer"
)

// Message statuses. Transitions only move forward except Failed, which is
// terminal.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Message is a node in a chat's branching conversation tree. The tree
// structure (ParentID, ChildrenIDs, Path) is append-only; BranchAnchor and
// the cousin pointers are denormalized navigation bookkeeping rewritten when
// a new sibling branch appears.
type Message struct {
	ID          string  `json:"_id" gorm:"primaryKey;size:36"`
	ChatID      string  `json:"chat_id" gorm:"index;size:36"`
	ParentID    *string `json:"parent_id" gorm:"size:36"`
	ChildrenIDs IDList  `json:"children_ids" gorm:"type:jsonb;default:'[]'"`
	// Path holds ancestor ids from the root down to this message's parent.
	Path IDList `json:"path" gorm:"type:jsonb;default:'[]'"`
	// BranchAnchor points at the nearest ancestor fork, if any.
	BranchAnchor *string `json:"branch_anchor" gorm:"size:36"`
	// CousinLeft / CousinRight are lateral shortcuts between sibling
	// branches; they are navigation hints, not tree structure.
	CousinLeft  *string   `json:"cousin_left" gorm:"size:36"`
	CousinRight *string   `json:"cousin_right" gorm:"size:36"`
	SenderID    string    `json:"sender_id" gorm:"index;size:64"`
	Role        string    `json:"role" gorm:"size:16"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type" gorm:"size:32"`
	Status      string    `json:"status" gorm:"size:16"`
	TokensUsed  *int      `json:"tokens_used"`
	CreatedAt   time.Time `json:"created_at"`
	Version     int       `json:"version" gorm:"default:0"`
}

// NewMessage builds a message with a fresh id and creation timestamp.
// Branch bookkeeping fields are filled in by the caller.
func NewMessage(chatID, senderID, role, content string) *Message {
	return &Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		ChildrenIDs: IDList{},
		Path:        IDList{},
		SenderID:    senderID,
		Role:        role,
		Content:     content,
		ContentType: "text",
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
}

// IsRoot reports whether this is the chat's seed message
func (m *Message) IsRoot() bool {
	return m.ParentID == nil
}

// HasChildren reports whether any replies reference this message
func (m *Message) HasChildren() bool {
	return len(m.ChildrenIDs) > 0
}

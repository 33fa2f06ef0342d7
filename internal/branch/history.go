package branch

import (
	"context"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
)

// Directions for FromTop traversal
const (
	DirectionLeft  = "left"
	DirectionRight = "right"
)

// History reconstructs bounded slices of a chat's message tree around an
// anchor message. Both reads are pure: they never mutate the store.
type History struct {
	store store.Conversations
}

// NewHistory creates a history builder over the given store
func NewHistory(s store.Conversations) *History {
	return &History{store: s}
}

// FromBottom walks ancestors upward from the anchor, at most limit steps,
// and returns them oldest-first followed by the anchor itself. The walk
// stops early, without error, when it reaches the root.
func (h *History) FromBottom(ctx context.Context, anchorID string, limit int) ([]models.Message, error) {
	target, err := h.store.GetMessage(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	var ancestors []models.Message
	current := target
	for i := 0; i < limit; i++ {
		if current.ParentID == nil {
			break
		}
		parent, err := h.store.GetMessage(ctx, *current.ParentID)
		if err != nil {
			if err == store.ErrNotFound {
				// Dangling parent reference: treat the chain as ended.
				break
			}
			return nil, err
		}
		ancestors = append(ancestors, *parent)
		current = parent
	}

	// Collected youngest-first; reverse to oldest-first.
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}

	return append(ancestors, *target), nil
}

// FromTop walks downward from the anchor along one branch direction, at
// most limit steps, picking the first child for "left" and the last child
// for "right" at every level. It returns the anchor followed by the visited
// descendants and stops early, without error, at a leaf.
func (h *History) FromTop(ctx context.Context, anchorID string, limit int, direction string) ([]models.Message, error) {
	target, err := h.store.GetMessage(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	result := []models.Message{*target}
	current := target
	for i := 0; i < limit; i++ {
		if !current.HasChildren() {
			break
		}

		var childID string
		if direction == DirectionLeft {
			childID = current.ChildrenIDs.First()
		} else {
			childID = current.ChildrenIDs.Last()
		}

		child, err := h.store.GetMessage(ctx, childID)
		if err != nil {
			if err == store.ErrNotFound {
				break
			}
			return nil, err
		}
		result = append(result, *child)
		current = child
	}

	return result, nil
}

// Package branch implements the incremental bookkeeping that keeps branch
// anchors and cousin pointers consistent as a chat's message tree grows, and
// the bounded history reads over that tree.
package branch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValeryJL/InsanusChat-Backend/internal/metrics"
	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"
)

// Maintainer rewrites branch anchors and cousin pointers when an insertion
// creates or extends a fork. A fork only matters from the moment a second
// child appears, so OnInsert must be called only when the parent already had
// at least one child before the insertion.
//
// The store provides per-document atomicity only, so a crash mid-walk can
// leave stale pointers behind. Failures are therefore logged and counted,
// never fatal: readers tolerate anchors that have not yet converged.
type Maintainer struct {
	store store.Conversations
	log   *logger.Logger
}

// NewMaintainer creates a maintainer over the given store
func NewMaintainer(s store.Conversations, log *logger.Logger) *Maintainer {
	return &Maintainer{store: s, log: log}
}

// OnInsert updates the pre-existing sibling branches of a newly inserted
// message. parent must be the parent's state from before the insertion, so
// its children list holds exactly the older sibling branch roots.
//
// Two independent passes run over each older sibling subtree:
//
//  1. Re-anchoring: every descendant still carrying the sibling's original
//     branch anchor is re-anchored to the parent, which has just become the
//     nearest fork for that branch. Subtrees whose anchor already diverged
//     belong to a nested fork and keep their own anchor.
//  2. Cousin chain: the rightmost chain of each older sibling is pointed at
//     the new message, giving any descendant of an older branch an O(1)
//     lateral jump to the newest sibling branch.
func (m *Maintainer) OnInsert(ctx context.Context, parent *models.Message, newMsgID string) error {
	var errs []error

	for _, childID := range parent.ChildrenIDs {
		child, err := m.store.GetMessage(ctx, childID)
		if err != nil {
			errs = append(errs, m.inconsistency(childID, "load sibling root", err))
			continue
		}

		if err := m.reanchorSubtree(ctx, child, parent.ID); err != nil {
			errs = append(errs, err)
		}
		if err := m.updateRightmostChain(ctx, child, newMsgID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// reanchorSubtree depth-first-walks root's subtree rewriting branch anchors
// that still equal root's original anchor. It stops descending wherever the
// anchor has already diverged.
func (m *Maintainer) reanchorSubtree(ctx context.Context, root *models.Message, newAnchor string) error {
	originalAnchor := root.BranchAnchor

	var errs []error
	stack := []*models.Message{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !anchorsEqual(node.BranchAnchor, originalAnchor) {
			// Nested fork below root: this subtree keeps its own anchor.
			continue
		}

		if err := m.store.SetMessageFields(ctx, node.ID, map[string]any{"branch_anchor": newAnchor}); err != nil {
			errs = append(errs, m.inconsistency(node.ID, "rewrite branch anchor", err))
			continue
		}
		metrics.BranchRewrites.Inc()

		for _, childID := range node.ChildrenIDs {
			child, err := m.store.GetMessage(ctx, childID)
			if err != nil {
				errs = append(errs, m.inconsistency(childID, "load descendant", err))
				continue
			}
			stack = append(stack, child)
		}
	}
	return errors.Join(errs...)
}

// updateRightmostChain follows the last child from root down to the current
// leaf, pointing every visited node's cousin_right at the new sibling branch.
func (m *Maintainer) updateRightmostChain(ctx context.Context, root *models.Message, newMsgID string) error {
	var errs []error
	curr := root
	for curr != nil {
		if err := m.store.SetMessageFields(ctx, curr.ID, map[string]any{"cousin_right": newMsgID}); err != nil {
			errs = append(errs, m.inconsistency(curr.ID, "rewrite cousin_right", err))
		} else {
			metrics.BranchRewrites.Inc()
		}

		nextID := curr.ChildrenIDs.Last()
		if nextID == "" {
			break
		}
		next, err := m.store.GetMessage(ctx, nextID)
		if err != nil {
			errs = append(errs, m.inconsistency(nextID, "follow rightmost chain", err))
			break
		}
		curr = next
	}
	return errors.Join(errs...)
}

func (m *Maintainer) inconsistency(id, op string, err error) error {
	metrics.StoreInconsistencies.Inc()
	m.log.Warn("branch index update incomplete",
		"message_id", id,
		"op", op,
		"error", err.Error(),
	)
	return fmt.Errorf("%s (message %s): %w", op, id, err)
}

// Insert writes a message into the tree under parent (nil for a chat's seed
// message): it fills the new message's pointers from the parent's pre-insert
// state, stores it, runs fork maintenance when this insertion creates or
// extends a fork, and finally appends the child reference to the parent.
// Maintenance failures are reported but do not abort the insertion.
func (m *Maintainer) Insert(ctx context.Context, msg *models.Message, parent *models.Message) error {
	FillNewMessagePointers(msg, parent)

	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return err
	}

	if parent != nil {
		if parent.HasChildren() {
			if err := m.OnInsert(ctx, parent, msg.ID); err != nil {
				m.log.Warn("fork maintenance incomplete", "message_id", msg.ID, "error", err.Error())
			}
		}

		if err := m.store.PushChild(ctx, parent.ID, msg.ID); err != nil {
			return m.inconsistency(parent.ID, "push child", err)
		}
	}

	return m.store.TouchChat(ctx, msg.ChatID)
}

// FillNewMessagePointers sets the branch bookkeeping fields on a message
// about to be inserted under parent, based on the parent's state before the
// insertion. A first child simply continues its parent's branch; any later
// child starts a new sibling branch rooted at the parent fork.
func FillNewMessagePointers(msg *models.Message, parent *models.Message) {
	if parent == nil {
		return
	}

	parentID := parent.ID
	msg.ParentID = &parentID
	msg.Path = append(append(models.IDList{}, parent.Path...), parent.ID)

	if parent.HasChildren() {
		msg.BranchAnchor = &parentID
		left := parent.ChildrenIDs.Last()
		msg.CousinLeft = &left
	} else {
		msg.BranchAnchor = parent.BranchAnchor
		msg.CousinLeft = parent.CousinLeft
	}
	msg.CousinRight = parent.CousinRight
}

func anchorsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

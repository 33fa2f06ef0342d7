package store

import (
	"context"
	"sync"
	"testing"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTripIsIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	msg := models.NewMessage("chat-1", "user-1", models.RoleUser, "hi")
	require.NoError(t, s.InsertMessage(ctx, msg))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, got.Content)

	// Mutating the returned copy must not leak into the store.
	got.Content = "tampered"
	got.ChildrenIDs = append(got.ChildrenIDs, "ghost")

	again, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Content)
	assert.Empty(t, again.ChildrenIDs)
}

func TestGetMessageNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPushChildAppendsAndBumpsVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	parent := models.NewMessage("chat-1", "user-1", models.RoleUser, "parent")
	require.NoError(t, s.InsertMessage(ctx, parent))

	require.NoError(t, s.PushChild(ctx, parent.ID, "child-1"))
	require.NoError(t, s.PushChild(ctx, parent.ID, "child-2"))

	got, err := s.GetMessage(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IDList{"child-1", "child-2"}, got.ChildrenIDs)
	assert.Equal(t, parent.Version+2, got.Version)

	assert.ErrorIs(t, s.PushChild(ctx, "missing", "x"), ErrNotFound)
}

func TestSetMessageFieldsUsesColumnNames(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	msg := models.NewMessage("chat-1", "user-1", models.RoleUser, "hi")
	require.NoError(t, s.InsertMessage(ctx, msg))

	require.NoError(t, s.SetMessageFields(ctx, msg.ID, map[string]any{
		"status":        models.StatusDone,
		"branch_anchor": "anchor-1",
		"cousin_right":  nil,
	}))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	require.NotNil(t, got.BranchAnchor)
	assert.Equal(t, "anchor-1", *got.BranchAnchor)
	assert.Nil(t, got.CousinRight)
}

func TestCompareAndSetLock(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	chat := models.NewChat("user-1", "test")
	require.NoError(t, s.InsertChat(ctx, chat))

	ok, err := s.CompareAndSetLock(ctx, chat.ID, false, true)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second acquisition fails: expectation no longer holds.
	ok, err = s.CompareAndSetLock(ctx, chat.ID, false, true)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSetLock(ctx, chat.ID, true, false)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.CompareAndSetLock(ctx, "missing", false, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompareAndSetLockUnderContention(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	chat := models.NewChat("user-1", "test")
	require.NoError(t, s.InsertChat(ctx, chat))

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSetLock(ctx, chat.ID, false, true)
			if err == nil && ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestTouchChatAndListOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := models.NewChat("user-1", "first")
	second := models.NewChat("user-1", "second")
	other := models.NewChat("user-2", "other")
	require.NoError(t, s.InsertChat(ctx, first))
	require.NoError(t, s.InsertChat(ctx, second))
	require.NoError(t, s.InsertChat(ctx, other))

	require.NoError(t, s.TouchChat(ctx, first.ID))

	chats, err := s.ListChats(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, first.ID, chats[0].ID, "most recently touched chat sorts first")
	assert.Equal(t, 1, chats[0].MessageCount)
}

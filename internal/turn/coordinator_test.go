package turn

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/agent"
	"github.com/ValeryJL/InsanusChat-Backend/internal/branch"
	"github.com/ValeryJL/InsanusChat-Backend/internal/hub"
	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/sandbox"
	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
	"github.com/ValeryJL/InsanusChat-Backend/internal/tools"
	apperrors "github.com/ValeryJL/InsanusChat-Backend/pkg/errors"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, decider agent.Decider) (*Coordinator, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return newCoordinatorOver(t, decider, s), s
}

func newCoordinatorOver(t *testing.T, decider agent.Decider, s store.Conversations) *Coordinator {
	t.Helper()

	log := logger.New(logger.Config{Level: "error", Output: io.Discard})
	maintainer := branch.NewMaintainer(s, log)
	history := branch.NewHistory(s)
	fanout := hub.NewHub(time.Millisecond, log)
	executor := sandbox.NewExecutor(sandbox.Config{Timeout: time.Second}, log)
	runner := agent.NewRunner(decider, tools.NewMemoryRegistry(), executor, 4, log)

	cfg := Config{HistoryLimit: 16, TurnTimeout: 5 * time.Second}
	return NewCoordinator(s, maintainer, history, fanout, runner, cfg, log)
}

// seedChat creates an unlocked chat with a root message, bypassing the
// greeting turn so tests control the store state exactly
func seedChat(t *testing.T, s *store.MemoryStore) (*models.Chat, *models.Message) {
	t.Helper()

	ctx := context.Background()
	chat := models.NewChat("user-1", "test")
	require.NoError(t, s.InsertChat(ctx, chat))

	log := logger.New(logger.Config{Level: "error", Output: io.Discard})
	root := models.NewMessage(chat.ID, "user-1", models.RoleInitializer, "hello")
	require.NoError(t, branch.NewMaintainer(s, log).Insert(ctx, root, nil))
	return chat, root
}

func waitUnlocked(t *testing.T, s *store.MemoryStore, chatID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		chat, err := s.GetChat(context.Background(), chatID)
		return err == nil && !chat.Locked
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSubmitInsertsUserMessageAndAgentReply(t *testing.T) {
	c, s := newTestCoordinator(t, agent.EchoDecider{})
	chat, root := seedChat(t, s)

	msg, err := c.SubmitUserMessage(context.Background(), chat.ID, "user-1", "what's up", &root.ID)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, models.RoleUser, msg.Role)

	waitUnlocked(t, s, chat.ID)

	// The agent's reply hangs under the user message.
	stored, err := s.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Len(t, stored.ChildrenIDs, 1)

	reply, err := s.GetMessage(context.Background(), stored.ChildrenIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.RoleAgent, reply.Role)
	assert.Equal(t, "You said: what's up", reply.Content)
	assert.Equal(t, models.StatusDone, reply.Status)
	assert.Equal(t, models.StatusDone, stored.Status)
}

func TestSubmitWhileLockedIsRejected(t *testing.T) {
	c, s := newTestCoordinator(t, agent.EchoDecider{})
	chat, root := seedChat(t, s)

	acquired, err := s.CompareAndSetLock(context.Background(), chat.ID, false, true)
	require.NoError(t, err)
	require.True(t, acquired)

	countBefore := messageCount(t, s, chat.ID)

	_, err = c.SubmitUserMessage(context.Background(), chat.ID, "user-1", "hi", &root.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeLockConflict))

	assert.Equal(t, countBefore, messageCount(t, s, chat.ID), "rejected send must not create a message")
}

// gateDecider holds the turn open until released, keeping the chat locked
// while concurrent submits race the lock
type gateDecider struct {
	release chan struct{}
}

func (d *gateDecider) Decide(ctx context.Context, history []models.Message, observations []agent.Observation, available []tools.Metadata) (agent.Decision, error) {
	<-d.release
	return agent.FinalText{Text: "done"}, nil
}

func TestConcurrentSubmitsExactlyOneWins(t *testing.T) {
	gate := &gateDecider{release: make(chan struct{})}
	c, s := newTestCoordinator(t, gate)
	chat, root := seedChat(t, s)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.SubmitUserMessage(context.Background(), chat.ID, "user-1", "race", &root.ID)
		}(i)
	}
	wg.Wait()

	var won, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case apperrors.HasCode(err, apperrors.CodeLockConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, conflicted)

	close(gate.release)
	waitUnlocked(t, s, chat.ID)
}

func TestSubmitValidation(t *testing.T) {
	c, s := newTestCoordinator(t, agent.EchoDecider{})
	chat, root := seedChat(t, s)

	_, err := c.SubmitUserMessage(context.Background(), chat.ID, "user-1", "", &root.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = c.SubmitUserMessage(context.Background(), chat.ID, "user-1", "hi", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	missing := "no-such-parent"
	_, err = c.SubmitUserMessage(context.Background(), chat.ID, "user-1", "hi", &missing)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = c.SubmitUserMessage(context.Background(), "no-such-chat", "user-1", "hi", &root.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	// None of the rejections may leave the chat locked.
	stored, err := s.GetChat(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
}

// lockInterceptStore runs a hook just before the first lock acquisition,
// widening the window between a submit's parent read and its lock
type lockInterceptStore struct {
	store.Conversations
	once       sync.Once
	beforeLock func()
}

func (s *lockInterceptStore) CompareAndSetLock(ctx context.Context, chatID string, expected, new bool) (bool, error) {
	if !expected && new {
		s.once.Do(s.beforeLock)
	}
	return s.Conversations.CompareAndSetLock(ctx, chatID, expected, new)
}

func TestSubmitForksAgainstSiblingInsertedBeforeItsLock(t *testing.T) {
	mem := store.NewMemoryStore()
	chat, root := seedChat(t, mem)

	rivalCoord := newCoordinatorOver(t, agent.EchoDecider{}, mem)

	// A whole rival turn completes between this submit's parent read and
	// its lock acquisition, giving the root a child the pre-lock snapshot
	// never saw.
	var rivalID string
	intercepted := &lockInterceptStore{Conversations: mem, beforeLock: func() {
		rivalMsg, err := rivalCoord.SubmitUserMessage(context.Background(), chat.ID, "user-1", "rival", &root.ID)
		require.NoError(t, err)
		rivalID = rivalMsg.ID
		waitUnlocked(t, mem, chat.ID)
	}}

	victimCoord := newCoordinatorOver(t, agent.EchoDecider{}, intercepted)
	msg, err := victimCoord.SubmitUserMessage(context.Background(), chat.ID, "user-1", "mine", &root.ID)
	require.NoError(t, err)
	waitUnlocked(t, mem, chat.ID)

	// The late submit became the root's second child, so it must start a
	// new sibling branch anchored at the fork.
	victim, err := mem.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	require.NotNil(t, victim.BranchAnchor)
	assert.Equal(t, root.ID, *victim.BranchAnchor)
	require.NotNil(t, victim.CousinLeft)
	assert.Equal(t, rivalID, *victim.CousinLeft)

	// The rival branch's rightmost chain points laterally at the newcomer.
	rival, err := mem.GetMessage(context.Background(), rivalID)
	require.NoError(t, err)
	require.NotNil(t, rival.CousinRight)
	assert.Equal(t, msg.ID, *rival.CousinRight)

	require.Len(t, rival.ChildrenIDs, 1)
	rivalReply, err := mem.GetMessage(context.Background(), rival.ChildrenIDs[0])
	require.NoError(t, err)
	require.NotNil(t, rivalReply.CousinRight)
	assert.Equal(t, msg.ID, *rivalReply.CousinRight)
}

func TestSubmitRejectsParentFromOtherChat(t *testing.T) {
	c, s := newTestCoordinator(t, agent.EchoDecider{})
	chat, _ := seedChat(t, s)
	_, otherRoot := seedChat(t, s)

	_, err := c.SubmitUserMessage(context.Background(), chat.ID, "user-1", "hi", &otherRoot.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

// panicDecider blows up the turn to exercise the failure path
type panicDecider struct{}

func (panicDecider) Decide(ctx context.Context, history []models.Message, observations []agent.Observation, available []tools.Metadata) (agent.Decision, error) {
	panic("decider exploded")
}

func TestTurnPanicUnlocksAndSynthesizesSystemReply(t *testing.T) {
	c, s := newTestCoordinator(t, panicDecider{})
	chat, root := seedChat(t, s)

	msg, err := c.SubmitUserMessage(context.Background(), chat.ID, "user-1", "boom", &root.ID)
	require.NoError(t, err)

	waitUnlocked(t, s, chat.ID)

	stored, err := s.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	require.Len(t, stored.ChildrenIDs, 1)

	reply, err := s.GetMessage(context.Background(), stored.ChildrenIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.RoleSystem, reply.Role)
	assert.Equal(t, UnavailableText, reply.Content)
}

func TestCreateChatSeedsInitializerAndGreeting(t *testing.T) {
	c, s := newTestCoordinator(t, agent.EchoDecider{})

	chat, err := c.CreateChat(context.Background(), "user-1", "new chat", nil, nil)
	require.NoError(t, err)

	waitUnlocked(t, s, chat.ID)

	chats, err := s.ListChats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, chats, 1)

	// Two messages by the time the greeting turn finishes: the
	// initializer root and the agent's greeting under it.
	require.Eventually(t, func() bool {
		return messageCount(t, s, chat.ID) == 2
	}, 5*time.Second, 5*time.Millisecond)
}

func messageCount(t *testing.T, s *store.MemoryStore, chatID string) int {
	t.Helper()
	chat, err := s.GetChat(context.Background(), chatID)
	require.NoError(t, err)
	return chat.MessageCount
}

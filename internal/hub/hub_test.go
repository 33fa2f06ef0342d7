package hub

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records sends and can be told to fail a number of attempts
type fakeConn struct {
	mu       sync.Mutex
	sent     [][]byte
	failures int
	closed   bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("closed")
	}
	if c.failures > 0 {
		c.failures--
		return errors.New("send failed")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) lastSent() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestHub() *Hub {
	log := logger.New(logger.Config{Level: "error", Output: io.Discard})
	return NewHub(time.Millisecond, log)
}

func TestBroadcastSendsIdenticalBytesToAllSubscribers(t *testing.T) {
	h := newTestHub()
	a, b := &fakeConn{}, &fakeConn{}
	h.Subscribe("chat-1", a)
	h.Subscribe("chat-1", b)

	msg := models.NewMessage("chat-1", "user-1", models.RoleUser, "hello")
	h.Broadcast("chat-1", NewMessageEvent(msg))

	require.Equal(t, 1, a.sentCount())
	require.Equal(t, 1, b.sentCount())
	assert.Equal(t, a.lastSent(), b.lastSent())

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(a.lastSent(), &envelope))
	assert.Equal(t, CmdUserMessage, envelope["cmd"])
	payload, ok := envelope["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello", payload["content"])
}

func TestBroadcastDoesNotCrossChats(t *testing.T) {
	h := newTestHub()
	a, b := &fakeConn{}, &fakeConn{}
	h.Subscribe("chat-1", a)
	h.Subscribe("chat-2", b)

	h.Broadcast("chat-1", Event{Cmd: CmdChatLocked, Message: map[string]any{"locked": true}})

	assert.Equal(t, 1, a.sentCount())
	assert.Equal(t, 0, b.sentCount())
}

func TestSubscribeIsIdempotent(t *testing.T) {
	h := newTestHub()
	a := &fakeConn{}
	h.Subscribe("chat-1", a)
	h.Subscribe("chat-1", a)

	h.Broadcast("chat-1", Event{Cmd: CmdPong, Message: map[string]any{}})
	assert.Equal(t, 1, a.sentCount(), "double subscription must not double delivery")
}

func TestBroadcastRetriesOnceThenSucceeds(t *testing.T) {
	h := newTestHub()
	a := &fakeConn{failures: 1}
	h.Subscribe("chat-1", a)

	h.Broadcast("chat-1", Event{Cmd: CmdPong, Message: map[string]any{}})

	assert.Equal(t, 1, a.sentCount())
	assert.False(t, a.isClosed())
}

func TestBroadcastDropsConnAfterSecondFailure(t *testing.T) {
	h := newTestHub()
	bad := &fakeConn{failures: 2}
	good := &fakeConn{}
	h.Subscribe("chat-1", bad)
	h.Subscribe("chat-1", good)

	h.Broadcast("chat-1", Event{Cmd: CmdPong, Message: map[string]any{}})

	// The failing connection is closed and removed; the healthy one
	// still got the event.
	assert.True(t, bad.isClosed())
	assert.Equal(t, 1, good.sentCount())

	h.Broadcast("chat-1", Event{Cmd: CmdPong, Message: map[string]any{}})
	assert.Equal(t, 0, bad.sentCount())
	assert.Equal(t, 2, good.sentCount())
}

func TestUnsubscribeNotifiesRemainingPeers(t *testing.T) {
	h := newTestHub()
	leaving, staying := &fakeConn{}, &fakeConn{}
	h.Subscribe("chat-1", leaving)
	h.Subscribe("chat-1", staying)

	h.Unsubscribe("chat-1", leaving)

	// Close and notification run asynchronously.
	require.Eventually(t, func() bool {
		return leaving.isClosed() && staying.sentCount() == 1
	}, time.Second, 5*time.Millisecond)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(staying.lastSent(), &envelope))
	assert.Equal(t, CmdClientDisconnected, envelope["cmd"])
}

func TestUnsubscribeUnknownConnIsNoOp(t *testing.T) {
	h := newTestHub()
	h.Unsubscribe("chat-1", &fakeConn{})
	// Nothing to assert beyond not panicking; give the goroutine no
	// chance to exist at all.
	h.Broadcast("chat-1", Event{Cmd: CmdPong, Message: map[string]any{}})
}

func TestCommandForRole(t *testing.T) {
	assert.Equal(t, CmdUserMessage, CommandForRole(models.RoleUser))
	assert.Equal(t, CmdAgentMessage, CommandForRole(models.RoleAgent))
	assert.Equal(t, CmdSystemMessage, CommandForRole(models.RoleSystem))
	assert.Equal(t, CmdInitializerMessage, CommandForRole(models.RoleInitializer))
	assert.Equal(t, CmdUnknownMessage, CommandForRole("tool"))
	assert.Equal(t, CmdUnknownMessage, CommandForRole(""))
}

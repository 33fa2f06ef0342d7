// Package hub fans chat events out to live websocket subscribers. Events are
// sanitized, wrapped in a {"cmd", "message"} envelope, serialized once and
// delivered best-effort to every subscriber of a chat.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/metrics"
	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"
)

// Envelope commands sent to clients
const (
	CmdUserMessage        = "user_message"
	CmdAgentMessage       = "agent_message"
	CmdSystemMessage      = "system_message"
	CmdInitializerMessage = "initializer_message"
	CmdUnknownMessage     = "unknown_message"

	CmdChatLocked         = "chat_locked"
	CmdChatUnlocked       = "chat_unlocked"
	CmdAck                = "ack"
	CmdClientDisconnected = "client_disconnected"
	CmdHistory            = "history"
	CmdMessage            = "message"
	CmdError              = "error"
	CmdPong               = "pong"
	CmdClosing            = "closing"
)

// Event is one enveloped broadcast: an explicit command plus its payload.
// For chat messages, use NewMessageEvent so the command is derived from the
// message role.
type Event struct {
	Cmd     string `json:"cmd"`
	Message any    `json:"message"`
}

// CommandForRole maps a message role to its envelope command
func CommandForRole(role string) string {
	switch role {
	case models.RoleUser:
		return CmdUserMessage
	case models.RoleAgent:
		return CmdAgentMessage
	case models.RoleSystem:
		return CmdSystemMessage
	case models.RoleInitializer:
		return CmdInitializerMessage
	default:
		return CmdUnknownMessage
	}
}

// NewMessageEvent envelopes a chat message under its role-derived command
func NewMessageEvent(msg *models.Message) Event {
	return Event{Cmd: CommandForRole(msg.Role), Message: msg}
}

// Hub tracks the live subscriber connections per chat.
type Hub struct {
	mu        sync.RWMutex
	chats     map[string]map[Conn]struct{}
	retryWait time.Duration
	log       *logger.Logger
}

// NewHub creates a hub. retryWait is the backoff before the single resend
// attempt a failing connection gets.
func NewHub(retryWait time.Duration, log *logger.Logger) *Hub {
	return &Hub{
		chats:     make(map[string]map[Conn]struct{}),
		retryWait: retryWait,
		log:       log,
	}
}

// Subscribe registers conn as a subscriber of chatID. Re-subscribing an
// already registered connection is a no-op.
func (h *Hub) Subscribe(chatID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.chats[chatID]
	if !ok {
		conns = make(map[Conn]struct{})
		h.chats[chatID] = conns
	}
	if _, exists := conns[conn]; exists {
		return
	}
	conns[conn] = struct{}{}
	metrics.WSConnections.Inc()
}

// Unsubscribe removes conn from chatID and schedules an asynchronous close
// plus a disconnect notice to the remaining peers. It never blocks on either.
func (h *Hub) Unsubscribe(chatID string, conn Conn) {
	if !h.remove(chatID, conn) {
		return
	}

	go func() {
		if err := conn.Close(); err != nil {
			h.log.Debug("close after unsubscribe", "chat_id", chatID, "error", err.Error())
		}
		h.Broadcast(chatID, Event{
			Cmd:     CmdClientDisconnected,
			Message: map[string]any{"chat_id": chatID},
		})
	}()
}

// remove deletes the registration and reports whether it was present
func (h *Hub) remove(chatID string, conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.chats[chatID]
	if !ok {
		return false
	}
	if _, exists := conns[conn]; !exists {
		return false
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.chats, chatID)
	}
	metrics.WSConnections.Dec()
	return true
}

// Broadcast sanitizes the event payload, serializes the envelope once, and
// sends the identical bytes to every current subscriber of chatID. Each
// connection gets one retry after a short wait; a connection failing both
// attempts is dropped and closed. Failures never affect other subscribers.
// Broadcast returns after every send attempt has finished; callers that must
// not block run it in a goroutine.
func (h *Hub) Broadcast(chatID string, event Event) {
	envelope := Event{Cmd: event.Cmd, Message: Sanitize(event.Message)}
	data, err := json.Marshal(envelope)
	if err != nil {
		// Sanitize leaves only JSON-safe values behind, so this is a bug.
		h.log.Error("broadcast envelope marshal failed", "chat_id", chatID, "cmd", event.Cmd, "error", err.Error())
		metrics.BroadcastsTotal.WithLabelValues("marshal_error").Inc()
		return
	}

	h.mu.RLock()
	conns := make([]Conn, 0, len(h.chats[chatID]))
	for conn := range h.chats[chatID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			h.sendWithRetry(chatID, c, data)
		}(conn)
	}
	wg.Wait()
	metrics.BroadcastsTotal.WithLabelValues("ok").Inc()
}

func (h *Hub) sendWithRetry(chatID string, conn Conn, data []byte) {
	if err := conn.Send(data); err == nil {
		return
	}

	time.Sleep(h.retryWait)
	if err := conn.Send(data); err == nil {
		return
	}

	h.log.Warn("dropping subscriber after failed resend", "chat_id", chatID)
	metrics.BroadcastsTotal.WithLabelValues("dropped_conn").Inc()
	if h.remove(chatID, conn) {
		_ = conn.Close()
	}
}

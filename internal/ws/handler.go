// Package ws serves the realtime chat connection: it upgrades the HTTP
// request, subscribes the client to the chat's fan-out and runs the command
// loop for sends, history fetches and pings.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ValeryJL/InsanusChat-Backend/internal/branch"
	"github.com/ValeryJL/InsanusChat-Backend/internal/hub"
	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
	"github.com/ValeryJL/InsanusChat-Backend/internal/turn"
	apperrors "github.com/ValeryJL/InsanusChat-Backend/pkg/errors"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/middleware"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// Config bounds a connection's lifecycle
type Config struct {
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	HistoryLimit   int
	MaxHistory     int
}

// Handler upgrades chat websocket connections and dispatches their commands.
type Handler struct {
	store       store.Conversations
	history     *branch.History
	coordinator *turn.Coordinator
	hub         *hub.Hub
	cfg         Config
	log         *logger.Logger
}

// NewHandler wires the websocket handler
func NewHandler(s store.Conversations, history *branch.History, coordinator *turn.Coordinator, fanout *hub.Hub, cfg Config, log *logger.Logger) *Handler {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512 * 1024
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 16
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 128
	}
	return &Handler{
		store:       s,
		history:     history,
		coordinator: coordinator,
		hub:         fanout,
		cfg:         cfg,
		log:         log,
	}
}

// clientCommand is one inbound websocket payload
type clientCommand struct {
	Cmd       string `json:"cmd"`
	Text      string `json:"text"`
	ParentID  string `json:"parent_id"`
	ID        string `json:"id"`
	Limit     int    `json:"limit"`
	Direction string `json:"direction"`
}

// Serve handles GET /ws/chats/:id. Authentication has already resolved the
// caller; here we only check chat ownership before upgrading.
func (h *Handler) Serve(c *gin.Context) {
	chatID := c.Param("id")
	userID := middleware.UserID(c)

	chat, err := h.store.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if err == store.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load chat"})
		return
	}
	if chat.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your chat"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "chat_id", chatID, "error", err.Error())
		return
	}

	client := hub.NewWSConn(conn, h.cfg.WriteTimeout)
	h.hub.Subscribe(chatID, client)
	h.log.Info("websocket connected", "chat_id", chatID, "user_id", userID)

	h.readLoop(conn, client, chatID, userID)
}

func (h *Handler) readLoop(conn *websocket.Conn, client *hub.WSConn, chatID, userID string) {
	defer h.hub.Unsubscribe(chatID, client)

	conn.SetReadLimit(h.cfg.MaxMessageSize)

	for {
		conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if isIdleTimeout(err) {
				h.log.Info("websocket idle timeout", "chat_id", chatID, "user_id", userID)
				h.sendEnvelope(client, hub.CmdError, map[string]any{"error": "idle_timeout"})
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			h.sendError(client, "invalid json payload")
			continue
		}

		if done := h.dispatch(client, chatID, userID, cmd); done {
			return
		}
	}
}

// dispatch runs one client command; it reports true when the connection
// should end.
func (h *Handler) dispatch(client *hub.WSConn, chatID, userID string, cmd clientCommand) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd.Cmd {
	case "ping":
		h.sendEnvelope(client, hub.CmdPong, map[string]any{})

	case "send", "send_message":
		var parentID *string
		if cmd.ParentID != "" {
			parentID = &cmd.ParentID
		}
		if _, err := h.coordinator.SubmitUserMessage(ctx, chatID, userID, cmd.Text, parentID); err != nil {
			h.sendError(client, apperrors.FromError(err).Message)
		}
		// Ack and message broadcasts arrive over the hub.

	case "fetch_from_top":
		if cmd.ID == "" {
			h.sendError(client, "id is required")
			return false
		}
		direction := cmd.Direction
		if direction != branch.DirectionLeft {
			direction = branch.DirectionRight
		}
		msgs, err := h.history.FromTop(ctx, cmd.ID, h.clampLimit(cmd.Limit), direction)
		if err != nil {
			h.sendError(client, historyError(err))
			return false
		}
		h.sendEnvelope(client, hub.CmdHistory, msgs)

	case "fetch_from_bottom":
		if cmd.ID == "" {
			h.sendError(client, "id is required")
			return false
		}
		msgs, err := h.history.FromBottom(ctx, cmd.ID, h.clampLimit(cmd.Limit))
		if err != nil {
			h.sendError(client, historyError(err))
			return false
		}
		h.sendEnvelope(client, hub.CmdHistory, msgs)

	case "get":
		if cmd.ID == "" {
			h.sendError(client, "id is required")
			return false
		}
		msg, err := h.store.GetMessage(ctx, cmd.ID)
		if err != nil {
			h.sendError(client, historyError(err))
			return false
		}
		h.sendEnvelope(client, hub.CmdMessage, msg)

	case "close", "disconnect":
		h.sendEnvelope(client, hub.CmdClosing, map[string]any{"reason": "client_requested"})
		return true

	default:
		h.sendError(client, "unknown cmd: "+cmd.Cmd)
	}
	return false
}

func (h *Handler) clampLimit(limit int) int {
	if limit <= 0 {
		return h.cfg.HistoryLimit
	}
	if limit > h.cfg.MaxHistory {
		return h.cfg.MaxHistory
	}
	return limit
}

// sendEnvelope delivers one enveloped payload to this client only
func (h *Handler) sendEnvelope(client *hub.WSConn, cmd string, payload any) {
	data, err := json.Marshal(hub.Event{Cmd: cmd, Message: hub.Sanitize(payload)})
	if err != nil {
		h.log.Error("envelope marshal failed", "cmd", cmd, "error", err.Error())
		return
	}
	if err := client.Send(data); err != nil {
		h.log.Debug("direct send failed", "cmd", cmd, "error", err.Error())
	}
}

func (h *Handler) sendError(client *hub.WSConn, message string) {
	h.sendEnvelope(client, hub.CmdError, map[string]any{"error": message})
}

func historyError(err error) string {
	if err == store.ErrNotFound {
		return "message not found"
	}
	return apperrors.FromError(err).Message
}

func isIdleTimeout(err error) bool {
	netErr, ok := err.(interface{ Timeout() bool })
	return ok && netErr.Timeout()
}

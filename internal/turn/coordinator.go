// Package turn sequences agent turns: it owns the per-chat processing lock
// and drives insert, broadcast, agent invocation and unlock in order,
// guaranteeing at most one in-flight turn per chat.
package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/agent"
	"github.com/ValeryJL/InsanusChat-Backend/internal/branch"
	"github.com/ValeryJL/InsanusChat-Backend/internal/hub"
	"github.com/ValeryJL/InsanusChat-Backend/internal/metrics"
	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
	apperrors "github.com/ValeryJL/InsanusChat-Backend/pkg/errors"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"
)

// UnavailableText is the synthesized reply when the agent turn fails
const UnavailableText = "agent unavailable"

// Config bounds a coordinator's turns
type Config struct {
	HistoryLimit int
	TurnTimeout  time.Duration
}

// Coordinator runs the submit flow for user messages and the asynchronous
// agent turn that follows each one.
type Coordinator struct {
	store      store.Conversations
	maintainer *branch.Maintainer
	history    *branch.History
	hub        *hub.Hub
	runner     *agent.Runner
	cfg        Config
	log        *logger.Logger
}

// NewCoordinator wires a coordinator from its collaborators
func NewCoordinator(s store.Conversations, m *branch.Maintainer, h *branch.History, fanout *hub.Hub, runner *agent.Runner, cfg Config, log *logger.Logger) *Coordinator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 16
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 2 * time.Minute
	}
	return &Coordinator{
		store:      s,
		maintainer: m,
		history:    h,
		hub:        fanout,
		runner:     runner,
		cfg:        cfg,
		log:        log,
	}
}

// SubmitUserMessage validates and inserts a user message, acquires the
// chat's turn lock, and kicks off the agent turn in the background. The
// returned message carries the id the client is acked with; the agent's
// reply arrives later over the hub.
func (c *Coordinator) SubmitUserMessage(ctx context.Context, chatID, senderID, text string, parentID *string) (*models.Message, error) {
	if text == "" {
		return nil, apperrors.NewValidationError("text is required")
	}

	chat, err := c.store.GetChat(ctx, chatID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.CodeNotFound, "chat not found")
		}
		return nil, err
	}

	// Resolve the parent before touching the lock so a bad reference
	// cannot leave the chat locked.
	var parent *models.Message
	if parentID != nil && *parentID != "" {
		parent, err = c.store.GetMessage(ctx, *parentID)
		if err != nil {
			if err == store.ErrNotFound {
				return nil, apperrors.NewNotFoundError(apperrors.CodeNotFound, "parent message not found")
			}
			return nil, err
		}
		if parent.ChatID != chat.ID {
			return nil, apperrors.NewValidationError("parent message belongs to another chat")
		}
	} else {
		return nil, apperrors.NewValidationError("parent_id is required")
	}

	acquired, err := c.store.CompareAndSetLock(ctx, chat.ID, false, true)
	if err != nil {
		return nil, err
	}
	if !acquired {
		metrics.LockConflicts.Inc()
		return nil, apperrors.NewLockConflictError("chat is locked for processing")
	}

	// The pre-lock snapshot may miss children added by a turn that finished
	// in between; re-read the parent under the lock so fork maintenance sees
	// the current sibling set.
	parent, err = c.store.GetMessage(ctx, *parentID)
	if err != nil {
		c.unlock(chat.ID)
		if err == store.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.CodeNotFound, "parent message not found")
		}
		return nil, err
	}

	go c.hub.Broadcast(chat.ID, hub.Event{
		Cmd:     hub.CmdChatLocked,
		Message: map[string]any{"locked": true},
	})

	msg := models.NewMessage(chat.ID, senderID, models.RoleUser, text)
	if err := c.maintainer.Insert(ctx, msg, parent); err != nil {
		c.unlock(chat.ID)
		return nil, err
	}
	metrics.MessagesInserted.WithLabelValues(models.RoleUser).Inc()

	go func() {
		c.hub.Broadcast(chat.ID, hub.Event{
			Cmd:     hub.CmdAck,
			Message: map[string]any{"_id": msg.ID},
		})
		c.hub.Broadcast(chat.ID, hub.NewMessageEvent(msg))
	}()

	go c.runTurn(chat, msg)

	return msg, nil
}

// CreateChat creates a chat, seeds it with the initializer root message and
// schedules the greeting turn that produces the agent's opening reply.
func (c *Coordinator) CreateChat(ctx context.Context, userID, title string, agentID *string, activeTools []string) (*models.Chat, error) {
	chat := models.NewChat(userID, title)
	chat.AgentID = agentID
	chat.ActiveTools = append(models.IDList{}, activeTools...)

	if err := c.store.InsertChat(ctx, chat); err != nil {
		return nil, err
	}

	seed := models.NewMessage(chat.ID, userID, models.RoleInitializer, "Greet the user and offer your help.")
	if err := c.maintainer.Insert(ctx, seed, nil); err != nil {
		return nil, err
	}
	metrics.MessagesInserted.WithLabelValues(models.RoleInitializer).Inc()

	// A fresh chat is unlocked, so this only loses to a concurrent create
	// racing the same id, which cannot happen.
	acquired, err := c.store.CompareAndSetLock(ctx, chat.ID, false, true)
	if err != nil || !acquired {
		c.log.Warn("greeting turn skipped, could not lock fresh chat", "chat_id", chat.ID)
		return chat, nil
	}
	go c.runTurn(chat, seed)

	return chat, nil
}

// runTurn executes one agent turn against the submitted message and always
// releases the chat lock, whatever happens in between.
func (c *Coordinator) runTurn(chat *models.Chat, userMsg *models.Message) {
	start := time.Now()
	outcome := "ok"

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TurnTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			c.log.Error("agent turn panicked", "chat_id", chat.ID, "panic", fmt.Sprintf("%v", r))
			c.failTurn(ctx, chat, userMsg)
		}
		c.unlock(chat.ID)
		metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	if err := c.store.SetMessageFields(ctx, userMsg.ID, map[string]any{"status": models.StatusProcessing}); err != nil {
		c.log.Warn("could not mark message processing", "message_id", userMsg.ID, "error", err.Error())
	}

	history, err := c.history.FromBottom(ctx, userMsg.ID, c.cfg.HistoryLimit)
	if err != nil {
		c.log.Warn("history build failed, running with bare message", "message_id", userMsg.ID, "error", err.Error())
		history = []models.Message{*userMsg}
	}

	res := c.runner.Run(ctx, history, userMsg.Content, chat.ActiveTools)
	if res.Aborted {
		outcome = "aborted"
	}

	reply := models.NewMessage(chat.ID, c.agentSender(chat), models.RoleAgent, res.Text)
	reply.Status = models.StatusDone

	if err := c.insertReply(ctx, reply, userMsg.ID); err != nil {
		outcome = "error"
		c.log.Error("agent reply insert failed", "chat_id", chat.ID, "error", err.Error())
		c.failTurn(ctx, chat, userMsg)
		return
	}
	metrics.MessagesInserted.WithLabelValues(models.RoleAgent).Inc()

	if err := c.store.SetMessageFields(ctx, userMsg.ID, map[string]any{"status": models.StatusDone}); err != nil {
		c.log.Warn("could not mark message done", "message_id", userMsg.ID, "error", err.Error())
	}

	c.hub.Broadcast(chat.ID, hub.NewMessageEvent(reply))
}

// failTurn synthesizes the degraded system reply and marks the submitted
// message failed. Best effort throughout.
func (c *Coordinator) failTurn(ctx context.Context, chat *models.Chat, userMsg *models.Message) {
	if err := c.store.SetMessageFields(ctx, userMsg.ID, map[string]any{"status": models.StatusFailed}); err != nil {
		c.log.Warn("could not mark message failed", "message_id", userMsg.ID, "error", err.Error())
	}

	system := models.NewMessage(chat.ID, "system", models.RoleSystem, UnavailableText)
	system.Status = models.StatusDone
	if err := c.insertReply(ctx, system, userMsg.ID); err != nil {
		c.log.Error("could not insert degraded system reply", "chat_id", chat.ID, "error", err.Error())
		return
	}
	metrics.MessagesInserted.WithLabelValues(models.RoleSystem).Inc()

	c.hub.Broadcast(chat.ID, hub.NewMessageEvent(system))
}

// insertReply re-reads the parent so the insertion sees its current
// children, then places the reply in the tree.
func (c *Coordinator) insertReply(ctx context.Context, reply *models.Message, parentID string) error {
	parent, err := c.store.GetMessage(ctx, parentID)
	if err != nil {
		return err
	}
	return c.maintainer.Insert(ctx, reply, parent)
}

// unlock forces the chat back to Idle and announces it. The set is
// unconditional: even if something else flipped the flag, the turn owner
// has ended and the chat must not stay locked.
func (c *Coordinator) unlock(chatID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := c.store.CompareAndSetLock(ctx, chatID, true, false); err != nil {
		c.log.Error("unlock failed, chat may be stuck locked", "chat_id", chatID, "error", err.Error())
	}

	c.hub.Broadcast(chatID, hub.Event{
		Cmd:     hub.CmdChatUnlocked,
		Message: map[string]any{"locked": false},
	})
}

func (c *Coordinator) agentSender(chat *models.Chat) string {
	if chat.AgentID != nil && *chat.AgentID != "" {
		return *chat.AgentID
	}
	return "agent"
}

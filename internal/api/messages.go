package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ValeryJL/InsanusChat-Backend/internal/branch"
	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
	apperrors "github.com/ValeryJL/InsanusChat-Backend/pkg/errors"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/middleware"
)

// MessageController handles message reads and history traversal
type MessageController struct {
	store        store.Conversations
	history      *branch.History
	defaultLimit int
	maxLimit     int
}

// NewMessageController creates a message controller with history bounds
func NewMessageController(s store.Conversations, history *branch.History, defaultLimit, maxLimit int) *MessageController {
	if defaultLimit <= 0 {
		defaultLimit = 16
	}
	if maxLimit <= 0 {
		maxLimit = 128
	}
	return &MessageController{
		store:        s,
		history:      history,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// RegisterRoutes registers message routes on an authenticated group
func (c *MessageController) RegisterRoutes(group *gin.RouterGroup) {
	messages := group.Group("/messages")
	{
		messages.GET("/:id", c.GetMessage)
		messages.GET("/:id/history", c.GetHistory)
	}
}

// GetMessage returns one message by id
func (c *MessageController) GetMessage(ctx *gin.Context) {
	msg, err := c.loadOwned(ctx)
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, msg)
}

// GetHistory walks the tree around a message. Query params: from=top|bottom
// (default bottom), limit, and direction=left|right for top walks.
func (c *MessageController) GetHistory(ctx *gin.Context) {
	msg, err := c.loadOwned(ctx)
	if err != nil {
		ctx.Error(err)
		return
	}

	limit := c.defaultLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			ctx.Error(apperrors.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > c.maxLimit {
		limit = c.maxLimit
	}

	switch ctx.DefaultQuery("from", "bottom") {
	case "bottom":
		msgs, err := c.history.FromBottom(ctx.Request.Context(), msg.ID, limit)
		if err != nil {
			ctx.Error(err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"history": msgs})
	case "top":
		direction := ctx.DefaultQuery("direction", branch.DirectionRight)
		if direction != branch.DirectionLeft && direction != branch.DirectionRight {
			ctx.Error(apperrors.NewValidationError("direction must be left or right"))
			return
		}
		msgs, err := c.history.FromTop(ctx.Request.Context(), msg.ID, limit, direction)
		if err != nil {
			ctx.Error(err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"history": msgs})
	default:
		ctx.Error(apperrors.NewValidationError("from must be top or bottom"))
	}
}

// loadOwned loads the message and checks the caller owns its chat
func (c *MessageController) loadOwned(ctx *gin.Context) (*models.Message, error) {
	msg, err := c.store.GetMessage(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.CodeNotFound, "message not found")
		}
		return nil, err
	}

	chat, err := c.store.GetChat(ctx.Request.Context(), msg.ChatID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.CodeNotFound, "chat not found")
		}
		return nil, err
	}
	if chat.UserID != middleware.UserID(ctx) {
		return nil, apperrors.NewForbiddenError("FORBIDDEN", "not your chat")
	}
	return msg, nil
}

// Package api exposes the REST surface: chat and message CRUD plus health.
// The realtime path lives in internal/ws; these endpoints serve clients that
// are not holding a websocket open.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
	"github.com/ValeryJL/InsanusChat-Backend/internal/turn"
	apperrors "github.com/ValeryJL/InsanusChat-Backend/pkg/errors"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/middleware"
)

// ChatController handles chat-related endpoints
type ChatController struct {
	store       store.Conversations
	coordinator *turn.Coordinator
}

// NewChatController creates a chat controller
func NewChatController(s store.Conversations, coordinator *turn.Coordinator) *ChatController {
	return &ChatController{store: s, coordinator: coordinator}
}

// RegisterRoutes registers the chat routes on an authenticated group
func (c *ChatController) RegisterRoutes(group *gin.RouterGroup) {
	chats := group.Group("/chats")
	{
		chats.POST("", c.CreateChat)
		chats.GET("", c.ListChats)
		chats.GET("/:id", c.GetChat)
		chats.POST("/:id/messages", c.SendMessage)
	}
}

type createChatRequest struct {
	Title       string   `json:"title"`
	AgentID     *string  `json:"agent_id"`
	ActiveTools []string `json:"active_tools"`
}

// CreateChat creates a chat, seeds it and schedules the greeting turn
func (c *ChatController) CreateChat(ctx *gin.Context) {
	var req createChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(apperrors.NewValidationError("invalid request body"))
		return
	}
	if req.Title == "" {
		req.Title = "New chat"
	}

	chat, err := c.coordinator.CreateChat(ctx.Request.Context(), middleware.UserID(ctx), req.Title, req.AgentID, req.ActiveTools)
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusCreated, chat)
}

// ListChats returns the caller's chats, most recently active first
func (c *ChatController) ListChats(ctx *gin.Context) {
	chats, err := c.store.ListChats(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChat returns one chat owned by the caller
func (c *ChatController) GetChat(ctx *gin.Context) {
	chat, err := c.store.GetChat(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if err == store.ErrNotFound {
			ctx.Error(apperrors.NewNotFoundError(apperrors.CodeNotFound, "chat not found"))
			return
		}
		ctx.Error(err)
		return
	}
	if chat.UserID != middleware.UserID(ctx) {
		ctx.Error(apperrors.NewForbiddenError("FORBIDDEN", "not your chat"))
		return
	}
	ctx.JSON(http.StatusOK, chat)
}

type sendMessageRequest struct {
	Text     string  `json:"text" binding:"required"`
	ParentID *string `json:"parent_id"`
}

// SendMessage submits a user message over REST. The agent's reply arrives
// asynchronously over the chat's websocket subscribers; the response here
// only acknowledges the insertion.
func (c *ChatController) SendMessage(ctx *gin.Context) {
	chatID := ctx.Param("id")

	chat, err := c.store.GetChat(ctx.Request.Context(), chatID)
	if err != nil {
		if err == store.ErrNotFound {
			ctx.Error(apperrors.NewNotFoundError(apperrors.CodeNotFound, "chat not found"))
			return
		}
		ctx.Error(err)
		return
	}
	userID := middleware.UserID(ctx)
	if chat.UserID != userID {
		ctx.Error(apperrors.NewForbiddenError("FORBIDDEN", "not your chat"))
		return
	}

	var req sendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(apperrors.NewValidationError("text is required"))
		return
	}

	msg, err := c.coordinator.SubmitUserMessage(ctx.Request.Context(), chatID, userID, req.Text, req.ParentID)
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"_id": msg.ID})
}

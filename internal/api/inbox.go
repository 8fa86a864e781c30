package api

import (
	"fmt"
	"net/http"

	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/internal/service"
	"pony-chat-admin/backend/internal/ws"
	"pony-chat-admin/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// InboxHandler exposes the aggregated conversation views, the composer and
// the per-session view state machine.
type InboxHandler struct {
	service *service.InboxService
	hub     *ws.Hub
	logger  *logger.Logger
}

func NewInboxHandler(service *service.InboxService, hub *ws.Hub, logger *logger.Logger) *InboxHandler {
	return &InboxHandler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// sessionID identifies the operator session holding view state. The console
// may pin an explicit session; otherwise the authenticated user is the
// session.
func sessionID(c *gin.Context) string {
	if sid := c.GetHeader("X-Session-ID"); sid != "" {
		return sid
	}
	if userID, exists := c.Get("userId"); exists {
		return fmt.Sprintf("user-%v", userID)
	}
	return c.ClientIP()
}

func platformParam(c *gin.Context) (models.Platform, bool) {
	platform := models.Platform(c.Param("platform"))
	if !platform.Valid() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown platform"})
		return "", false
	}
	return platform, true
}

// Platforms returns the landing-page list: every platform with its total
// unread badge.
func (h *InboxHandler) Platforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": h.service.Platforms()})
}

// Conversations returns the aggregated conversation list for one platform.
func (h *InboxHandler) Conversations(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	conversations := h.service.Conversations(c.Request.Context(), platform)
	state := h.service.ViewState(sessionID(c), platform)

	c.JSON(http.StatusOK, gin.H{
		"conversations": conversations,
		"view":          state,
	})
}

// Messages opens a conversation and returns its thread. Opening fires the
// mark-read side effect; the unread badge converges on the next poll.
func (h *InboxHandler) Messages(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	key := c.Param("key")

	state := h.service.Open(c.Request.Context(), sessionID(c), platform, key)
	messages := h.service.Thread(c.Request.Context(), platform, key)

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"view":     state,
	})
}

// Open transitions the session's view to a conversation without fetching the
// thread.
func (h *InboxHandler) Open(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	state := h.service.Open(c.Request.Context(), sessionID(c), platform, c.Param("key"))
	c.JSON(http.StatusOK, gin.H{"view": state})
}

// Close returns the session's view to the conversation list.
func (h *InboxHandler) Close(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	state := h.service.Close(sessionID(c), platform)
	c.JSON(http.StatusOK, gin.H{"view": state})
}

// ToggleTimestamp flips timestamp visibility for one message of the open
// conversation.
func (h *InboxHandler) ToggleTimestamp(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	expanded, state := h.service.ToggleTimestamp(sessionID(c), platform, c.Param("id"))
	c.JSON(http.StatusOK, gin.H{
		"expanded": expanded,
		"view":     state,
	})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// Send forwards an operator reply to the conversation through the relay.
// Blank text is a silent no-op, not an error.
func (h *InboxHandler) Send(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	key := c.Param("key")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	sent, err := h.service.Send(c.Request.Context(), platform, key, req.Message)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Send failed", "sent": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

type sendAnyRequest struct {
	Recipient string          `json:"recipient"`
	Message   string          `json:"message"`
	Platform  models.Platform `json:"platform"`
}

// SendAny is the platform-agnostic composer variant.
func (h *InboxHandler) SendAny(c *gin.Context) {
	var req sendAnyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if !req.Platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown platform"})
		return
	}

	sent, err := h.service.SendAny(c.Request.Context(), req.Platform, req.Recipient, req.Message)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Send failed", "sent": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

// UnreadStream upgrades to a WebSocket subscription for unread-count pushes.
func (h *InboxHandler) UnreadStream(c *gin.Context) {
	platform := models.Platform(c.Query("platform"))
	if !platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown platform"})
		return
	}

	h.hub.Serve(c.Writer, c.Request, platform)
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bhandras/bazaar/internal/chat"
	"github.com/bhandras/bazaar/internal/wire"
	"github.com/bhandras/bazaar/pkg/logger"
)

// Chat is the service behind the message and notification routes.
type Chat interface {
	Send(ctx context.Context, req chat.SendRequest) (wire.Message, error)
	Read(ctx context.Context, reader, peer string) (int64, error)
	History(ctx context.Context, user, peer string, limit int) ([]wire.Message, error)
	Notifications(ctx context.Context, user string, limit int) ([]wire.Notification, error)
	MarkNotificationRead(ctx context.Context, user, id string) error
}

// Handler serves the REST API.
type Handler struct {
	chat Chat
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc Chat) *Handler {
	return &Handler{chat: svc}
}

// SendMessageRequest is the body of POST /v1/messages.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	ListingID  string `json:"listingId"`
	Text       string `json:"text" binding:"required"`
}

// ReadRequest is the body of POST /v1/messages/read.
type ReadRequest struct {
	PeerID string `json:"peerId" binding:"required"`
}

// SendMessage handles POST /v1/messages
func (h *Handler) SendMessage(c *gin.Context) {
	userID, _ := GetUserID(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	m, err := h.chat.Send(c.Request.Context(), chat.SendRequest{
		From:      userID,
		To:        req.ReceiverID,
		ListingID: req.ListingID,
		Text:      req.Text,
	})
	if err != nil {
		respondError(c, err, "Failed to send message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": wire.MessagePayloadOf(m)})
}

// ListMessages handles GET /v1/messages?peer=
func (h *Handler) ListMessages(c *gin.Context) {
	userID, _ := GetUserID(c)

	msgs, err := h.chat.History(c.Request.Context(), userID, c.Query("peer"), queryLimit(c))
	if err != nil {
		respondError(c, err, "Failed to list messages")
		return
	}

	out := make([]wire.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wire.MessagePayloadOf(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// MarkRead handles POST /v1/messages/read
func (h *Handler) MarkRead(c *gin.Context) {
	userID, _ := GetUserID(c)

	var req ReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	n, err := h.chat.Read(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		respondError(c, err, "Failed to mark messages read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// ListNotifications handles GET /v1/notifications
func (h *Handler) ListNotifications(c *gin.Context) {
	userID, _ := GetUserID(c)

	items, err := h.chat.Notifications(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, err, "Failed to list notifications")
		return
	}

	out := make([]wire.NotificationPayload, 0, len(items))
	for _, n := range items {
		out = append(out, wire.NotificationPayloadOf(n))
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// ReadNotification handles POST /v1/notifications/:id/read
func (h *Handler) ReadNotification(c *gin.Context) {
	userID, _ := GetUserID(c)

	if err := h.chat.MarkNotificationRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err, "Failed to update notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func queryLimit(c *gin.Context) int {
	limit := 50
	if s := c.Query("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}
	return limit
}

func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		logger.Errorf("api: %s: %v", fallback, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

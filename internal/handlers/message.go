package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"message-service/internal/media"
	"message-service/internal/models"
	"message-service/internal/observability"
	"message-service/internal/repositories"
	"message-service/internal/stream"
	"message-service/internal/tasks"
	"message-service/internal/telemetry"
)

// Pusher delivers a persisted message to its recipient's live channel.
type Pusher interface {
	Dispatch(ctx context.Context, msg models.Message, sender models.UserProfile) stream.DispatchResult
}

// Enqueuer accepts detached tasks.
type Enqueuer interface {
	Enqueue(task tasks.Task) error
}

// MessageHandler manages direct message endpoints.
type MessageHandler struct {
	messages repositories.MessageRepository
	uploader media.Uploader
	pusher   Pusher
	queue    Enqueuer
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, uploader media.Uploader, pusher Pusher, queue Enqueuer, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		uploader: uploader,
		pusher:   pusher,
		queue:    queue,
		audit:    audit,
	}
}

// SendMessage validates, stores and answers with the new message, then hands
// the live push to the dispatch queue.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID := userIDFromContext(c)
	toUserID := strings.TrimSpace(c.PostForm("to_user_id"))
	if toUserID == "" {
		fail(c, http.StatusBadRequest, "to_user_id is required")
		return
	}
	text := c.PostForm("text")

	file, err := c.FormFile("image")
	if err != nil && !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		fail(c, http.StatusBadRequest, "invalid image upload")
		return
	}

	in := models.NewMessage{
		FromUserID:  userID,
		ToUserID:    toUserID,
		Text:        text,
		MessageType: models.MessageTypeText,
	}
	if file != nil {
		mediaURL, err := h.upload(c.Request.Context(), file)
		if err != nil {
			log.Printf("message media upload failed user_id=%s: %v", userID, err)
			fail(c, http.StatusBadGateway, "media upload failed")
			return
		}
		in.MessageType = models.MessageTypeImage
		in.MediaURL = mediaURL
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), in)
	if err != nil {
		log.Printf("message store failed user_id=%s: %v", userID, err)
		fail(c, http.StatusInternalServerError, "failed to store message")
		return
	}
	observability.IncMessageCreated(msg.MessageType)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})

	requestID := requestIDFromContext(c)
	h.audit.Emit(c.Request.Context(), "message.sent", "direct message sent", requestID, userID, map[string]any{
		"message_id":   msg.ID,
		"to_user_id":   msg.ToUserID,
		"message_type": msg.MessageType,
		"has_media":    msg.HasMedia(),
	})
	h.schedulePush(msg.ID)
}

func (h *MessageHandler) upload(ctx context.Context, header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return h.uploader.Upload(ctx, header.Filename, f)
}

func (h *MessageHandler) schedulePush(messageID int) {
	task := tasks.Task{
		Name: "push-dispatch",
		Run: func(ctx context.Context) error {
			msg, sender, err := h.messages.GetMessageWithSender(ctx, messageID)
			if err != nil {
				return fmt.Errorf("reload message id=%d: %w", messageID, err)
			}
			h.pusher.Dispatch(ctx, msg, sender)
			return nil
		},
	}
	if err := h.queue.Enqueue(task); err != nil {
		log.Printf("push dispatch not scheduled message_id=%d: %v", messageID, err)
	}
}

// GetChatMessages returns the whole conversation with the peer, oldest first,
// and marks the peer's messages to the caller as seen.
func (h *MessageHandler) GetChatMessages(c *gin.Context) {
	var req struct {
		ToUserID string `json:"to_user_id" form:"to_user_id"`
	}
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	peerID := strings.TrimSpace(req.ToUserID)
	if peerID == "" {
		fail(c, http.StatusBadRequest, "to_user_id is required")
		return
	}

	userID := userIDFromContext(c)
	msgs, err := h.messages.ListConversation(c.Request.Context(), userID, peerID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to load messages")
		return
	}

	if _, err := h.messages.MarkSeen(c.Request.Context(), peerID, userID); err != nil {
		fail(c, http.StatusInternalServerError, "failed to mark messages seen")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

// RecentMessages returns every message the caller sent or received, newest first.
func (h *MessageHandler) RecentMessages(c *gin.Context) {
	msgs, err := h.messages.ListRecent(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to load recent messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

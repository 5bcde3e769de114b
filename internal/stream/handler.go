package stream

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"message-service/internal/observability"
)

// Handler serves the live channel endpoints.
type Handler struct {
	registry *Registry
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSSE keeps a Server-Sent Events stream open for the user in the path.
// The path parameter is trusted as is.
func (h *Handler) HandleSSE(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "user id is required"})
		return
	}

	info := h.connInfo(c, userID, TransportSSE)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	handle := NewSSEHandle(c.Writer, info)
	if err := handle.Open(); err != nil {
		log.Printf("stream open failed user_id=%s: %v", userID, err)
		return
	}
	h.attach(c.Request.Context(), handle)

	var reason string
	select {
	case <-c.Request.Context().Done():
		reason = "client closed"
	case <-handle.Done():
		reason = "server closed"
	}
	h.detach(context.WithoutCancel(c.Request.Context()), handle, reason)
}

// HandleWebSocket serves the same channel over a websocket. Inbound frames
// are read only to notice the close.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "user id is required"})
		return
	}

	info := h.connInfo(c, userID, TransportWebSocket)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	handle := NewWSHandle(conn, info)
	ctx := context.WithoutCancel(c.Request.Context())
	h.attach(ctx, handle)

	go func() {
		reason := "client closed"
		defer func() { h.detach(ctx, handle, reason) }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					reason = err.Error()
					publishLifecycle(ctx, info, "stream_error", reason)
				}
				return
			}
		}
	}()
}

func (h *Handler) connInfo(c *gin.Context, userID, transport string) ConnInfo {
	_, span := otel.Tracer("message-service/stream").Start(c.Request.Context(), "stream.subscribe",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("stream.user_id", userID),
			attribute.String("stream.transport", transport),
		),
	)
	defer span.End()

	return ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		Transport:   transport,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
}

func (h *Handler) attach(ctx context.Context, handle Handle) {
	info := handle.Info()
	if prev := h.registry.Register(info.UserID, handle); prev != nil {
		log.Printf("stream replaced user_id=%s old_conn_id=%s new_conn_id=%s", info.UserID, prev.Info().ConnID, info.ConnID)
	}
	log.Printf("stream connected user_id=%s transport=%s conn_id=%s", info.UserID, info.Transport, info.ConnID)
	observability.IncStreamActive(info.Transport)
	publishLifecycle(ctx, info, "stream_connect", "")
}

func (h *Handler) detach(ctx context.Context, handle Handle, reason string) {
	info := handle.Info()
	h.registry.Unregister(info.UserID, handle)
	_ = handle.Close()
	log.Printf("stream disconnected user_id=%s transport=%s conn_id=%s reason=%q", info.UserID, info.Transport, info.ConnID, reason)
	observability.DecStreamActive(info.Transport)
	publishLifecycle(ctx, info, "stream_disconnect", reason)
}

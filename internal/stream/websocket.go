package stream

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"message-service/internal/models"
)

const wsWriteTimeout = 10 * time.Second

// WSHandle writes push events as websocket text frames.
type WSHandle struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	info   ConnInfo
	closed bool
}

// NewWSHandle wraps an upgraded websocket connection.
func NewWSHandle(conn *websocket.Conn, info ConnInfo) *WSHandle {
	info.Transport = TransportWebSocket
	return &WSHandle{conn: conn, info: info}
}

// Send writes the event JSON as one text frame.
func (h *WSHandle) Send(event models.PushEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode push event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	_ = h.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := h.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrHandleClosed, err)
	}
	return nil
}

// Close closes the underlying connection once.
func (h *WSHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.conn.Close()
}

// Info returns the connection info.
func (h *WSHandle) Info() ConnInfo {
	return h.info
}

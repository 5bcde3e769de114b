package stream

import (
	"errors"
	"time"

	"message-service/internal/models"
)

// ErrHandleClosed is returned when writing to a stream that already went away.
var ErrHandleClosed = errors.New("stream handle closed")

const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

// Handle is one open outbound live channel.
type Handle interface {
	Send(event models.PushEvent) error
	Close() error
	Info() ConnInfo
}

// ConnInfo describes the connection behind a handle.
type ConnInfo struct {
	ConnID      string
	UserID      string
	Transport   string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"message-service/internal/models"
)

// SSEHandle writes push events as Server-Sent Events frames.
type SSEHandle struct {
	mu     sync.Mutex
	w      io.Writer
	info   ConnInfo
	closed bool
	done   chan struct{}
}

// NewSSEHandle wraps a response writer. The writer must not be used after the
// handle is closed.
func NewSSEHandle(w io.Writer, info ConnInfo) *SSEHandle {
	info.Transport = TransportSSE
	return &SSEHandle{w: w, info: info, done: make(chan struct{})}
}

// Open writes the stream greeting. Comment frames are ignored by clients.
func (h *SSEHandle) Open() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if _, err := io.WriteString(h.w, ": connected\n\n"); err != nil {
		return err
	}
	h.flush()
	return nil
}

// Send writes one `data: <json>` frame.
func (h *SSEHandle) Send(event models.PushEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode push event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if _, err := fmt.Fprintf(h.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("%w: %v", ErrHandleClosed, err)
	}
	h.flush()
	return nil
}

// Close marks the handle closed. Safe to call more than once.
func (h *SSEHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	return nil
}

// Done is closed once the handle is closed.
func (h *SSEHandle) Done() <-chan struct{} {
	return h.done
}

// Info returns the connection info.
func (h *SSEHandle) Info() ConnInfo {
	return h.info
}

func (h *SSEHandle) flush() {
	if f, ok := h.w.(http.Flusher); ok {
		f.Flush()
	}
}

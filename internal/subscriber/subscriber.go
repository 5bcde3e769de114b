package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"

	"message-service/internal/models"
)

// DefaultRetryDelay is the EventSource reconnection delay used until the
// server sends a retry field.
const DefaultRetryDelay = 3 * time.Second

// ErrAlreadyRunning is returned by Run while another Run holds the stream.
var ErrAlreadyRunning = errors.New("subscriber already running")

// Options configures a Subscriber.
type Options struct {
	// ActivePeer returns the user id of the conversation currently on screen,
	// or "" when none is open. It is read once per event.
	ActivePeer     func() string
	OnConversation func(models.PushEvent)
	OnNotification func(models.PushEvent)
	RetryDelay     time.Duration
	HTTPClient     *http.Client
}

// Subscriber keeps one live channel open for a user session and routes each
// pushed message to the open conversation or to a notification.
type Subscriber struct {
	endpoint string
	opts     Options
	retry    atomic.Int64

	mu      sync.Mutex
	closed  bool
	running bool
	cancel  context.CancelFunc
}

// New builds a subscriber for userID against the service at baseURL.
func New(baseURL, userID string, opts Options) *Subscriber {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.ActivePeer == nil {
		opts.ActivePeer = func() string { return "" }
	}
	s := &Subscriber{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/message/" + url.PathEscape(userID),
		opts:     opts,
	}
	s.retry.Store(int64(opts.RetryDelay))
	return s
}

// Run streams until ctx is cancelled or Close is called, reconnecting after
// every disconnect with a fixed delay. Only one Run may be active at a time.
func (s *Subscriber) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	client := sse.NewClient(s.endpoint, sse.ClientMaxBufferSize(1<<20))
	client.Connection = s.opts.HTTPClient
	client.ReconnectStrategy = &fixedRetry{ctx: ctx, delay: &s.retry}
	client.ReconnectNotify = func(err error, next time.Duration) {
		log.Printf("message stream disconnected endpoint=%s retry=%s: %v", s.endpoint, next, err)
	}

	// The client returns nil when the server ends the stream cleanly, so the
	// outer loop reconnects after the same fixed delay.
	for {
		err := client.SubscribeRawWithContext(ctx, s.handle)
		if ctx.Err() != nil {
			return nil
		}
		delay := s.retryDelay()
		log.Printf("message stream ended endpoint=%s retry=%s: %v", s.endpoint, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Close stops the subscriber. No callback fires after Close returns, so
// callbacks must not call Close themselves.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Subscriber) retryDelay() time.Duration {
	return time.Duration(s.retry.Load())
}

func (s *Subscriber) handle(event *sse.Event) {
	if len(event.Retry) > 0 {
		if ms, err := strconv.Atoi(string(event.Retry)); err == nil && ms >= 0 {
			s.retry.Store(int64(time.Duration(ms) * time.Millisecond))
		}
	}
	if len(event.Data) == 0 {
		return
	}
	s.deliver(event.Data)
}

func (s *Subscriber) deliver(payload []byte) {
	var event models.PushEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("message stream bad payload endpoint=%s: %v", s.endpoint, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if event.FromUserID != "" && event.FromUserID == s.opts.ActivePeer() {
		if s.opts.OnConversation != nil {
			s.opts.OnConversation(event)
		}
		return
	}
	if s.opts.OnNotification != nil {
		s.opts.OnNotification(event)
	}
}

// fixedRetry waits the current retry delay between attempts and stops once
// the run context is done.
type fixedRetry struct {
	ctx   context.Context
	delay *atomic.Int64
}

func (f *fixedRetry) NextBackOff() time.Duration {
	if f.ctx.Err() != nil {
		return backoff.Stop
	}
	return time.Duration(f.delay.Load())
}

func (f *fixedRetry) Reset() {}

func (f *fixedRetry) Context() context.Context {
	return f.ctx
}

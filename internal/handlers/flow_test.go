package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"message-service/internal/mocks"
	"message-service/internal/models"
	"message-service/internal/stream"
)

type captureHandle struct {
	mu     sync.Mutex
	info   stream.ConnInfo
	events []models.PushEvent
}

func (h *captureHandle) Send(event models.PushEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *captureHandle) Close() error { return nil }

func (h *captureHandle) Info() stream.ConnInfo { return h.info }

func (h *captureHandle) received() []models.PushEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.PushEvent(nil), h.events...)
}

func TestSendThenPushThenHistory(t *testing.T) {
	registry := stream.NewRegistry()
	dispatcher := stream.NewDispatcher(registry)
	messages := new(mocks.MessageRepositoryMock)

	bob := &captureHandle{info: stream.ConnInfo{ConnID: "c1", UserID: "bob", Transport: stream.TransportSSE}}
	registry.Register("bob", bob)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	stored := models.Message{ID: 21, FromUserID: "ann", ToUserID: "bob", Text: "hello", MessageType: models.MessageTypeText, CreatedAt: created}
	annProfile := models.UserProfile{ID: "ann", FullName: "Ann Lee", Username: "ann"}
	messages.On("CreateMessage", mock.Anything, mock.Anything).Return(stored, nil).Once()
	messages.On("GetMessageWithSender", mock.Anything, 21).Return(stored, annProfile, nil).Once()

	handler := NewMessageHandler(messages, new(mocks.UploaderMock), dispatcher, &inlineQueue{}, nil)
	annRouter := setupMessageRouter(handler, "ann")

	req := httptest.NewRequest(http.MethodPost, "/api/message/send", strings.NewReader("to_user_id=bob&text=hello"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	annRouter.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	events := bob.received()
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Text)
	assert.Equal(t, "Ann Lee", events[0].FromUser.FullName)

	messages.On("ListConversation", mock.Anything, "bob", "ann").Return([]models.Message{stored}, nil).Once()
	messages.On("MarkSeen", mock.Anything, "ann", "bob").Return(1, nil).Once()

	bobRouter := setupMessageRouter(handler, "bob")
	req = httptest.NewRequest(http.MethodPost, "/api/message/get", strings.NewReader(`{"to_user_id":"ann"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	bobRouter.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	messages.AssertExpectations(t)
}

func TestSendToOfflineRecipientSucceeds(t *testing.T) {
	registry := stream.NewRegistry()
	messages := new(mocks.MessageRepositoryMock)
	stored := models.Message{ID: 22, FromUserID: "ann", ToUserID: "carl", Text: "hi", MessageType: models.MessageTypeText}
	messages.On("CreateMessage", mock.Anything, mock.Anything).Return(stored, nil).Once()
	messages.On("GetMessageWithSender", mock.Anything, 22).Return(stored, models.UserProfile{ID: "ann"}, nil).Once()

	handler := NewMessageHandler(messages, new(mocks.UploaderMock), stream.NewDispatcher(registry), &inlineQueue{}, nil)
	router := setupMessageRouter(handler, "ann")

	req := httptest.NewRequest(http.MethodPost, "/api/message/send", strings.NewReader("to_user_id=carl&text=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, registry.Len())
}

func TestDebugStreamsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := stream.NewRegistry()
	registry.Register("bob", &captureHandle{info: stream.ConnInfo{ConnID: "c1", UserID: "bob", Transport: stream.TransportWebSocket}})

	router := gin.New()
	RegisterDebugRoutes(router, registry, true)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/streams", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, float64(1), resp["count"])
	first := resp["streams"].([]any)[0].(map[string]any)
	assert.Equal(t, "bob", first["user_id"])
	assert.Equal(t, "ws", first["transport"])
}

func TestDebugStreamsRouteDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterDebugRoutes(router, stream.NewRegistry(), false)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/streams", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecipientDisconnectStopsPushButKeepsHistory(t *testing.T) {
	registry := stream.NewRegistry()
	messages := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(messages, new(mocks.UploaderMock), stream.NewDispatcher(registry), &inlineQueue{}, nil)
	annRouter := setupMessageRouter(handler, "ann")

	bob := &captureHandle{info: stream.ConnInfo{ConnID: "c1", UserID: "bob", Transport: stream.TransportSSE}}
	registry.Register("bob", bob)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first := models.Message{ID: 31, FromUserID: "ann", ToUserID: "bob", Text: "one", MessageType: models.MessageTypeText, CreatedAt: base}
	second := models.Message{ID: 32, FromUserID: "ann", ToUserID: "bob", Text: "two", MessageType: models.MessageTypeText, CreatedAt: base.Add(time.Second)}
	ann := models.UserProfile{ID: "ann", FullName: "Ann Lee"}

	send := func(text string) {
		req := httptest.NewRequest(http.MethodPost, "/api/message/send", strings.NewReader("to_user_id=bob&text="+text))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		annRouter.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool { return in.Text == "one" })).Return(first, nil).Once()
	messages.On("GetMessageWithSender", mock.Anything, 31).Return(first, ann, nil).Once()
	send("one")
	require.Len(t, bob.received(), 1)

	require.True(t, registry.Unregister("bob", bob))

	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool { return in.Text == "two" })).Return(second, nil).Once()
	messages.On("GetMessageWithSender", mock.Anything, 32).Return(second, ann, nil).Once()
	send("two")

	events := bob.received()
	require.Len(t, events, 1)
	assert.Equal(t, "one", events[0].Text)

	messages.On("ListConversation", mock.Anything, "bob", "ann").Return([]models.Message{first, second}, nil).Once()
	messages.On("MarkSeen", mock.Anything, "ann", "bob").Return(2, nil).Once()

	bobRouter := setupMessageRouter(handler, "bob")
	req := httptest.NewRequest(http.MethodPost, "/api/message/get", strings.NewReader(`{"to_user_id":"ann"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	bobRouter.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	history := decodeBody(t, rec)["messages"].([]any)
	require.Len(t, history, 2)
	assert.Equal(t, "one", history[0].(map[string]any)["text"])
	assert.Equal(t, "two", history[1].(map[string]any)["text"])
	messages.AssertExpectations(t)
}

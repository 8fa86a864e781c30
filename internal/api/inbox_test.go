package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pony-chat-admin/backend/internal/inbox"
	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/internal/service"
	"pony-chat-admin/backend/internal/view"
	"pony-chat-admin/backend/internal/ws"
	"pony-chat-admin/backend/pkg/cache"
	"pony-chat-admin/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdmin = "khamoo@pony.com"

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

type stubRepo struct {
	mu       sync.Mutex
	messages []models.Message
	nextID   uint
}

func newStubRepo(messages ...models.Message) *stubRepo {
	s := &stubRepo{}
	for i := range messages {
		s.Create(&messages[i])
	}
	return s
}

func (s *stubRepo) Create(message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message.ID = s.nextID
	s.messages = append(s.messages, *message)
	return nil
}

func (s *stubRepo) ListByPlatform(platform models.Platform) ([]models.Message, error) {
	return s.ListByPlatformSince(platform, "")
}

func (s *stubRepo) ListByPlatformSince(platform models.Platform, cursor string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.Platform == platform && (cursor == "" || m.CreatedAt >= cursor) {
			out = append(out, m)
		}
	}
	return out, nil
}

type stubRelay struct {
	sendErr error
}

func (s *stubRelay) Send(context.Context, models.Platform, string, string, string) error {
	return s.sendErr
}

func (s *stubRelay) SendPlatform(context.Context, models.Platform, string, string) error {
	return s.sendErr
}

type stubUnread struct {
	counts map[string]int
}

func (s *stubUnread) Counts(models.Platform) map[string]int { return s.counts }

func (s *stubUnread) TotalUnread(models.Platform) int {
	total := 0
	for _, v := range s.counts {
		total += v
	}
	return total
}

func (s *stubUnread) MarkRead(context.Context, models.Platform, string) error { return nil }

func (s *stubUnread) Poll(context.Context, models.Platform) {}

func setupInboxRouter(t *testing.T, repo *stubRepo, relay *stubRelay, unread *stubUnread) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if unread.counts == nil {
		unread.counts = map[string]int{}
	}

	log := testLogger()
	svc := service.NewInboxService(
		repo,
		inbox.NewAggregator(testAdmin),
		unread,
		relay,
		view.NewController(cache.NewCacheWithOptions(time.Hour, time.Hour, 1000)),
		cache.NewCacheWithOptions(time.Hour, time.Hour, 1000),
		time.Hour,
		testAdmin,
		log,
	)
	handler := NewInboxHandler(svc, ws.NewHub(log), log)

	engine := gin.New()
	engine.GET("/api/v1/platforms", handler.Platforms)
	platform := engine.Group("/api/v1/platforms/:platform")
	platform.GET("/conversations", handler.Conversations)
	platform.GET("/conversations/:key/messages", handler.Messages)
	platform.POST("/conversations/:key/messages", handler.Send)
	platform.POST("/conversations/:key/open", handler.Open)
	platform.POST("/conversations/:key/close", handler.Close)
	platform.POST("/conversations/:key/messages/:id/toggle-timestamp", handler.ToggleTimestamp)
	engine.POST("/api/v1/send", handler.SendAny)
	return engine
}

func storedMsg(userID, content, createdAt string) models.Message {
	return models.Message{
		Platform:       models.PlatformTelegram,
		Sender:         userID + "_sender",
		PlatformUserID: userID,
		Content:        content,
		CreatedAt:      createdAt,
	}
}

func TestPlatformsEndpoint(t *testing.T) {
	engine := setupInboxRouter(t, &stubRepo{}, &stubRelay{}, &stubUnread{counts: map[string]int{"u1": 3}})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Platforms []service.PlatformSummary `json:"platforms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Platforms, len(models.AllPlatforms))
	assert.Equal(t, models.PlatformTelegram, body.Platforms[0].Platform)
	assert.Equal(t, 3, body.Platforms[0].Unread)
}

func TestConversationsEndpointRendersUnreadBadges(t *testing.T) {
	repo := newStubRepo(
		storedMsg("u1", "hello", "2026-01-02T10:00:00Z"),
		storedMsg("u2", "hi", "2026-01-02T10:01:00Z"),
	)
	engine := setupInboxRouter(t, repo, &stubRelay{}, &stubUnread{counts: map[string]int{"u1": 3}})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/platforms/telegram/conversations", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Conversations []models.Conversation `json:"conversations"`
		View          view.State            `json:"view"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Conversations, 2)
	assert.Equal(t, 3, body.Conversations[0].Unread)
	assert.Equal(t, 0, body.Conversations[1].Unread)
	assert.Equal(t, view.ModeList, body.View.Mode)
}

func TestConversationsUnknownPlatform(t *testing.T) {
	engine := setupInboxRouter(t, &stubRepo{}, &stubRelay{}, &stubUnread{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/platforms/myspace/conversations", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMessagesEndpointOpensConversation(t *testing.T) {
	repo := newStubRepo(storedMsg("u1", "hello", "2026-01-02T10:00:00Z"))
	engine := setupInboxRouter(t, repo, &stubRelay{}, &stubUnread{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms/telegram/conversations/u1/messages", nil)
	req.Header.Set("X-Session-ID", "session-1")
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []models.Message `json:"messages"`
		View     view.State       `json:"view"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "hello", body.Messages[0].Content)
	assert.Equal(t, view.ModeOpen, body.View.Mode)
	assert.Equal(t, "u1", body.View.ActiveKey)
}

func TestSendEndpoint(t *testing.T) {
	engine := setupInboxRouter(t, &stubRepo{}, &stubRelay{}, &stubUnread{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/telegram/conversations/u1/messages",
		strings.NewReader(`{"message":"hello there"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sent":true}`, w.Body.String())
}

func TestSendEndpointBlankMessageIsNoOp(t *testing.T) {
	engine := setupInboxRouter(t, &stubRepo{}, &stubRelay{}, &stubUnread{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/telegram/conversations/u1/messages",
		strings.NewReader(`{"message":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sent":false}`, w.Body.String())
}

func TestSendEndpointRelayFailure(t *testing.T) {
	engine := setupInboxRouter(t, &stubRepo{}, &stubRelay{sendErr: errors.New("relay down")}, &stubUnread{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/telegram/conversations/u1/messages",
		strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestToggleTimestampFlow(t *testing.T) {
	engine := setupInboxRouter(t, &stubRepo{}, &stubRelay{}, &stubUnread{})

	open := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/telegram/conversations/u1/open", nil)
	open.Header.Set("X-Session-ID", "session-1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, open)
	require.Equal(t, http.StatusOK, w.Code)

	toggle := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/telegram/conversations/u1/messages/42/toggle-timestamp", nil)
	toggle.Header.Set("X-Session-ID", "session-1")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, toggle)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Expanded bool       `json:"expanded"`
		View     view.State `json:"view"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Expanded)
	assert.True(t, body.View.Expanded["42"])
}

func TestSendAnyEndpoint(t *testing.T) {
	engine := setupInboxRouter(t, &stubRepo{}, &stubRelay{}, &stubUnread{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/send",
		strings.NewReader(`{"recipient":"u1","message":"hi","platform":"viber"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sent":true}`, w.Body.String())
}

func TestSendAnyUnknownPlatform(t *testing.T) {
	engine := setupInboxRouter(t, &stubRepo{}, &stubRelay{}, &stubUnread{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/send",
		strings.NewReader(`{"recipient":"u1","message":"hi","platform":"myspace"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestUnreadCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/telegram/unread-count", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"counts":{"u1":3,"u2":1}}`))
	}))
	defer srv.Close()

	client := NewWithBaseURL(srv.URL, testLogger())
	counts, err := client.UnreadCounts(context.Background(), models.PlatformTelegram)

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"u1": 3, "u2": 1}, counts)
}

func TestUnreadCountsMissingCountsObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewWithBaseURL(srv.URL, testLogger())
	counts, err := client.UnreadCounts(context.Background(), models.PlatformViber)

	require.NoError(t, err)
	assert.NotNil(t, counts)
	assert.Empty(t, counts)
}

func TestUnreadCountsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewWithBaseURL(srv.URL, testLogger())
	_, err := client.UnreadCounts(context.Background(), models.PlatformTelegram)

	assert.Error(t, err)
}

func TestMarkRead(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/facebook/mark-read", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewWithBaseURL(srv.URL, testLogger())
	err := client.MarkRead(context.Background(), models.PlatformFacebook, "u1")

	require.NoError(t, err)
	assert.Equal(t, "u1", payload["sender"])
}

func TestSend(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tiktok/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewWithBaseURL(srv.URL, testLogger())
	err := client.Send(context.Background(), models.PlatformTiktok, "u1", "hello there", "khamoo@pony.com")

	require.NoError(t, err)
	assert.Equal(t, "u1", payload["recipient"])
	assert.Equal(t, "hello there", payload["message"])
	assert.Equal(t, "text", payload["message_type"])
	assert.Equal(t, "khamoo@pony.com", payload["adminEmail"])
}

func TestSendRelayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewWithBaseURL(srv.URL, testLogger())
	err := client.Send(context.Background(), models.PlatformTelegram, "u1", "hi", "khamoo@pony.com")

	assert.Error(t, err)
}

func TestSendPlatform(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewWithBaseURL(srv.URL, testLogger())
	err := client.SendPlatform(context.Background(), models.PlatformViber, "u1", "hi")

	require.NoError(t, err)
	assert.Equal(t, "viber", payload["platform"])
}

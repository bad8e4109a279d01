package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailmule/internal/config"
	"github.com/ignite/mailmule/internal/domain"
)

func newTestSender(server *httptest.Server) *PostmarkSender {
	return &PostmarkSender{
		baseURL:     server.URL,
		serverToken: "test-server-token",
		fromEmail:   "lists@example.com",
		fromName:    "Example Lists",
		httpClient:  &http.Client{Timeout: 5 * time.Second},
	}
}

func TestNewPostmarkSender(t *testing.T) {
	cfg := config.SenderConfig{
		FromEmail: "lists@example.com",
		Postmark: config.PostmarkConfig{
			BaseURL:        "https://api.postmarkapp.com",
			ServerToken:    "token",
			TimeoutSeconds: 30,
		},
	}

	s := NewPostmarkSender(cfg)

	assert.Equal(t, "https://api.postmarkapp.com", s.baseURL)
	assert.Equal(t, "token", s.serverToken)
	assert.Equal(t, 30*time.Second, s.httpClient.Timeout)
}

func TestPostmarkSend(t *testing.T) {
	var got postmarkEmail
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-server-token", r.Header.Get("X-Postmark-Server-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestSender(server)
	err := s.Send(context.Background(), domain.EmailAddress("jane@example.com"),
		"Welcome", "plain body", "<p>html body</p>")
	require.NoError(t, err)

	assert.Equal(t, "Example Lists <lists@example.com>", got.From)
	assert.Equal(t, "jane@example.com", got.To)
	assert.Equal(t, "Welcome", got.Subject)
	assert.Equal(t, "plain body", got.TextBody)
	assert.Equal(t, "<p>html body</p>", got.HtmlBody)
}

func TestPostmarkSendNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid 'To' address"}`))
	}))
	defer server.Close()

	s := newTestSender(server)
	err := s.Send(context.Background(), domain.EmailAddress("jane@example.com"), "s", "t", "h")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestPostmarkSendConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // closed on purpose

	s := newTestSender(server)
	err := s.Send(context.Background(), domain.EmailAddress("jane@example.com"), "s", "t", "h")
	assert.Error(t, err)
}

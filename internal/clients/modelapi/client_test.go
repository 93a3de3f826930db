package modelapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteSendsChatRequest(t *testing.T) {
	var captured chatRequest
	var auth string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hold steady"}},
			},
		})
	})

	client := New(Config{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		Model:       "gpt-4",
		Temperature: 0.7,
		MaxTokens:   256,
	}, zerolog.Nop())

	out, err := client.Complete(context.Background(), "you are a trade minister", "decide")
	require.NoError(t, err)
	assert.Equal(t, "hold steady", out)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "gpt-4", captured.Model)
	assert.Equal(t, 256, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
}

func TestCompleteOmitsEmptySystemMessage(t *testing.T) {
	var captured chatRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	})

	client := New(Config{BaseURL: srv.URL, Model: "gpt-4"}, zerolog.Nop())
	_, err := client.Complete(context.Background(), "", "decide")
	require.NoError(t, err)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestCompleteReportsHTTPErrors(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	client := New(Config{BaseURL: srv.URL, Model: "gpt-4"}, zerolog.Nop())
	_, err := client.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestCompleteReportsAPIErrorBody(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "model overloaded", "type": "server_error"},
		})
	})

	client := New(Config{BaseURL: srv.URL, Model: "gpt-4"}, zerolog.Nop())
	_, err := client.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	client := New(Config{BaseURL: srv.URL, Model: "gpt-4"}, zerolog.Nop())
	_, err := client.Complete(context.Background(), "sys", "user")
	assert.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	client := New(Config{BaseURL: "http://localhost"}, zerolog.Nop())
	assert.Equal(t, 1024, client.cfg.MaxTokens)
	assert.NotNil(t, client.client)
}

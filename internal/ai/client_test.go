package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edulabs/tutor-gateway/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSendsHistoryAndParsesUsage(t *testing.T) {
	var received completionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Velocity is speed with direction."}},
			},
			"usage": map[string]int{"total_tokens": 128},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoints: []string{server.URL},
		APIKey:    "test-key",
		Model:     "test-model",
	})
	require.NoError(t, err)
	defer client.Close()

	history := []chat.Turn{
		{Role: chat.RoleUser, Content: "What is speed?"},
		{Role: chat.RoleAssistant, Content: "Distance over time."},
	}

	completion, err := client.Complete(context.Background(), history, "And velocity?")
	require.NoError(t, err)
	assert.Equal(t, "Velocity is speed with direction.", completion.Response)
	assert.Equal(t, 128, completion.TokensUsed)

	// System prompt, two history turns, then the new message.
	require.Len(t, received.Messages, 4)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Equal(t, "What is speed?", received.Messages[1].Content)
	assert.Equal(t, "assistant", received.Messages[2].Role)
	assert.Equal(t, "And velocity?", received.Messages[3].Content)
	assert.Equal(t, "test-model", received.Model)
}

func TestTemperatureZeroIsPreserved(t *testing.T) {
	var received completionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}},
			},
			"usage": map[string]int{"total_tokens": 1},
		})
	}))
	defer server.Close()

	// Zero is deterministic sampling, not "use the default".
	client, err := NewClient(Config{Endpoints: []string{server.URL}, APIKey: "k", Temperature: 0})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Complete(context.Background(), nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, 0.0, received.Temperature)
}

func TestNegativeTemperatureFallsBackToDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client, err := NewClient(Config{Endpoints: []string{server.URL}, APIKey: "k", Temperature: -1})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 0.7, client.config.Temperature)
}

func TestCompleteUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoints: []string{server.URL}, APIKey: "k"})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Complete(context.Background(), nil, "hello")
	assert.Error(t, err)
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stockwatch/internal/client/api"
	"stockwatch/internal/client/research"
	"stockwatch/internal/domain/market"
	"stockwatch/internal/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunFeature(t *testing.T) {
	ctx := context.Background()
	state := storage.NewState(storage.NewMemoryKV())
	var out bytes.Buffer

	require.NoError(t, runFeature(ctx, state, []string{"sound", "off"}, &out))
	on, err := state.Feature(ctx, storage.FeatureSound, true)
	require.NoError(t, err)
	assert.False(t, on)

	out.Reset()
	require.NoError(t, runFeature(ctx, state, nil, &out))
	assert.Contains(t, out.String(), "sound\toff")
	assert.Contains(t, out.String(), "desktop\ton")

	assert.Error(t, runFeature(ctx, state, []string{"vibrate", "on"}, &out))
	assert.Error(t, runFeature(ctx, state, []string{"desktop", "maybe"}, &out))
	assert.Error(t, runFeature(ctx, state, []string{"desktop"}, &out))
}

func TestRunChatInteractive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req market.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(market.ChatResponse{
			Message: market.ChatMessage{Role: "assistant", Content: "seen " + strings.Repeat("*", len(req.Messages))},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	state := storage.NewState(storage.NewMemoryKV())
	assistant := research.NewAssistant(api.New(api.Config{BaseURL: srv.URL}, nil, zap.NewNop()), state, zap.NewNop())

	var out bytes.Buffer
	require.NoError(t, runChat(ctx, assistant, nil, strings.NewReader("first\nsecond\n\n"), &out))
	assert.Contains(t, out.String(), "seen *\n")
	assert.Contains(t, out.String(), "seen ***\n")

	out.Reset()
	require.NoError(t, runChat(ctx, assistant, []string{"history"}, nil, &out))
	assert.Equal(t, "user: first\nassistant: seen *\nuser: second\nassistant: seen ***\n", out.String())

	require.NoError(t, runChat(ctx, assistant, []string{"clear"}, nil, &out))
	history, err := state.ChatHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

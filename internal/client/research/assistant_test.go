package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stockwatch/internal/client/api"
	"stockwatch/internal/domain/market"
	xerrors "stockwatch/internal/pkg/errors"
	"stockwatch/internal/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chatServer answers every question with an echo and records the requests.
func chatServer(t *testing.T, status int) (*httptest.Server, *[]market.ChatRequest, *atomic.Int32) {
	t.Helper()
	var seen []market.ChatRequest
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req market.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]string{"message": "chat unavailable"})
			return
		}
		last := req.Messages[len(req.Messages)-1]
		json.NewEncoder(w).Encode(market.ChatResponse{
			Message: market.ChatMessage{Role: "assistant", Content: "re: " + last.Content},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &seen, &hits
}

func newAssistant(t *testing.T, baseURL string) (*Assistant, *storage.State) {
	t.Helper()
	client := api.New(api.Config{BaseURL: baseURL}, nil, zap.NewNop())
	state := storage.NewState(storage.NewMemoryKV())
	a := NewAssistant(client, state, zap.NewNop())
	a.now = func() time.Time { return time.UnixMilli(1_772_000_000_000) }
	return a, state
}

func TestAskReplaysHistory(t *testing.T) {
	srv, seen, _ := chatServer(t, http.StatusOK)
	a, _ := newAssistant(t, srv.URL)
	ctx := context.Background()

	reply, err := a.Ask(ctx, "  how is AAPL doing? ")
	require.NoError(t, err)
	assert.Equal(t, "re: how is AAPL doing?", reply.Content)

	_, err = a.Ask(ctx, "and MSFT?")
	require.NoError(t, err)

	require.Len(t, *seen, 2)
	second := (*seen)[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, market.ChatMessage{Role: "user", Content: "how is AAPL doing?"}, second[0])
	assert.Equal(t, "assistant", second[1].Role)
	assert.Equal(t, market.ChatMessage{Role: "user", Content: "and MSFT?"}, second[2])

	history, err := a.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, int64(1_772_000_000_000), history[3].SentAt)
}

func TestAskFailureLeavesHistoryAlone(t *testing.T) {
	srv, _, _ := chatServer(t, http.StatusBadRequest)
	a, _ := newAssistant(t, srv.URL)

	_, err := a.Ask(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, api.StatusOf(err))

	history, err := a.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	srv, _, hits := chatServer(t, http.StatusOK)
	a, _ := newAssistant(t, srv.URL)

	_, err := a.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	assert.Zero(t, hits.Load())
}

func TestHistoryIsCappedAndClearable(t *testing.T) {
	srv, _, _ := chatServer(t, http.StatusOK)
	a, _ := newAssistant(t, srv.URL)
	ctx := context.Background()

	for i := 0; i < HistoryLimit; i++ {
		_, err := a.Ask(ctx, "q")
		require.NoError(t, err)
	}
	history, err := a.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, HistoryLimit)

	require.NoError(t, a.Clear(ctx))
	history, err = a.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKVSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	kv, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, KeyAccessToken, "abc"))
	require.NoError(t, kv.Set(ctx, KeyRefreshToken, "def"))
	require.NoError(t, kv.Remove(ctx, KeyRefreshToken))

	reopened, err := OpenFile(path)
	require.NoError(t, err)

	v, err := reopened.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = reopened.Get(ctx, KeyRefreshToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStateHelpers(t *testing.T) {
	ctx := context.Background()
	st := NewState(NewMemoryKV())

	list, err := st.Watchlist(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, st.SetWatchlist(ctx, []string{"AAPL", "MSFT"}))
	list, err = st.Watchlist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, list)

	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, st.AppendChat(ctx, ChatMessage{Role: "user", Content: text, SentAt: int64(i)}, 2))
	}
	msgs, err := st.ChatHistory(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)

	on, err := st.Feature(ctx, "ai_chat", true)
	require.NoError(t, err)
	assert.True(t, on)
	require.NoError(t, st.SetFeature(ctx, "ai_chat", false))
	on, err = st.Feature(ctx, "ai_chat", true)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestGetJSONRejectsCorruptValue(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, KeyWatchlist, "{broken"))

	_, err := NewState(kv).Watchlist(ctx)
	assert.Error(t, err)
}

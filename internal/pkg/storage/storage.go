// Package storage is the local persisted key-value state of a stockwatch
// client: tokens, the watchlist, chat history and feature toggles.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Fixed key names.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyWatchlist    = "watchlist"
	KeyChatHistory  = "chat_history"
	featurePrefix   = "feature:"
)

// Local feature toggles.
const (
	FeatureSound   = "sound"
	FeatureDesktop = "desktop"
)

// KV stores string values under string keys. Get reports absence with
// ErrNotFound.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

var ErrNotFound = errors.New("storage: key not found")

// GetJSON decodes the value under key into v. Returns false when the key is absent.
func GetJSON(ctx context.Context, kv KV, key string, v any) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v JSON-encoded under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, string(b))
}

// ChatMessage is one turn of the research chat.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	SentAt  int64  `json:"sentAt"`
}

// State wraps a KV with typed accessors for the fixed keys.
type State struct {
	kv KV
}

func NewState(kv KV) *State {
	return &State{kv: kv}
}

func (s *State) Watchlist(ctx context.Context) ([]string, error) {
	var symbols []string
	if _, err := GetJSON(ctx, s.kv, KeyWatchlist, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

func (s *State) SetWatchlist(ctx context.Context, symbols []string) error {
	return SetJSON(ctx, s.kv, KeyWatchlist, symbols)
}

func (s *State) ChatHistory(ctx context.Context) ([]ChatMessage, error) {
	var msgs []ChatMessage
	if _, err := GetJSON(ctx, s.kv, KeyChatHistory, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendChat adds a message and keeps at most limit entries (0 means unbounded).
func (s *State) AppendChat(ctx context.Context, msg ChatMessage, limit int) error {
	msgs, err := s.ChatHistory(ctx)
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return SetJSON(ctx, s.kv, KeyChatHistory, msgs)
}

func (s *State) ClearChat(ctx context.Context) error {
	return s.kv.Remove(ctx, KeyChatHistory)
}

// Feature returns the toggle value, or def when never set.
func (s *State) Feature(ctx context.Context, name string, def bool) (bool, error) {
	v := def
	if _, err := GetJSON(ctx, s.kv, featurePrefix+name, &v); err != nil {
		return def, err
	}
	return v, nil
}

func (s *State) SetFeature(ctx context.Context, name string, enabled bool) error {
	return SetJSON(ctx, s.kv, featurePrefix+name, enabled)
}

// Package tokenstore keeps the current access/refresh token pair. Reads are
// served from memory; writes go through to the backing storage first.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stockwatch/internal/pkg/storage"
)

type Store struct {
	kv storage.KV

	mu      sync.RWMutex
	access  string
	refresh string
}

// Load reads any previously persisted tokens.
func Load(ctx context.Context, kv storage.KV) (*Store, error) {
	s := &Store{kv: kv}
	var err error
	if s.access, err = get(ctx, kv, storage.KeyAccessToken); err != nil {
		return nil, err
	}
	if s.refresh, err = get(ctx, kv, storage.KeyRefreshToken); err != nil {
		return nil, err
	}
	return s, nil
}

func get(ctx context.Context, kv storage.KV, key string) (string, error) {
	v, err := kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return v, nil
}

// Get returns the access token. ok is false when none is stored.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.access != ""
}

func (s *Store) RefreshToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh, s.refresh != ""
}

// Set persists both tokens, then makes them visible to readers.
func (s *Store) Set(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, storage.KeyAccessToken, access); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}
	s.access, s.refresh = access, refresh
	return nil
}

// Clear forgets both tokens. In-memory state is cleared even if the
// backing store fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = "", ""
	return errors.Join(
		s.kv.Remove(ctx, storage.KeyAccessToken),
		s.kv.Remove(ctx, storage.KeyRefreshToken),
	)
}

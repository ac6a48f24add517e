// internal/pkg/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	xerrors "stockwatch/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const resetTokenTTL = time.Hour

// Manager keeps refresh sessions, the access-token blacklist and password
// reset tokens in Redis.
type Manager struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewManager(client redis.UniversalClient, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{client: client, logger: logger}
}

// CreateSession stores a refresh session until it expires.
func (m *Manager) CreateSession(ctx context.Context, s *RefreshSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	if err := m.client.Set(ctx, sessionKey(s.UserID, s.JTI), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

// GetSession returns ErrSessionExpired when the refresh session is gone.
func (m *Manager) GetSession(ctx context.Context, userID, jti string) (*RefreshSession, error) {
	data, err := m.client.Get(ctx, sessionKey(userID, jti)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s RefreshSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// InvalidateSession removes one refresh session. Missing sessions are not an error.
func (m *Manager) InvalidateSession(ctx context.Context, userID, jti string) error {
	return m.client.Del(ctx, sessionKey(userID, jti)).Err()
}

// InvalidateAllUserSessions removes every refresh session of a user.
func (m *Manager) InvalidateAllUserSessions(ctx context.Context, userID string) (int, error) {
	removed := 0
	iter := m.client.Scan(ctx, 0, fmt.Sprintf("session:%s:*", userID), 0).Iterator()
	for iter.Next(ctx) {
		if err := m.client.Del(ctx, iter.Val()).Err(); err != nil {
			m.logger.Warn("failed to delete session", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, iter.Err()
}

// IsTokenBlacklisted checks if an access token jti was revoked.
func (m *Manager) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := m.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// BlacklistToken revokes an access token for the rest of its lifetime.
func (m *Manager) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return m.client.Set(ctx, blacklistKey(jti), "1", ttl).Err()
}

// StoreResetToken maps a password reset token to a user for one hour.
func (m *Manager) StoreResetToken(ctx context.Context, token, userID string) error {
	return m.client.Set(ctx, resetKey(token), userID, resetTokenTTL).Err()
}

// ConsumeResetToken returns the user the token was issued for and deletes it.
func (m *Manager) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	userID, err := m.client.GetDel(ctx, resetKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", xerrors.Wrap(xerrors.ErrInvalidInput, "reset token invalid or expired")
	}
	if err != nil {
		return "", fmt.Errorf("failed to read reset token: %w", err)
	}
	return userID, nil
}

func sessionKey(userID, jti string) string {
	return fmt.Sprintf("session:%s:%s", userID, jti)
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}

func resetKey(token string) string {
	return fmt.Sprintf("password_reset:%s", token)
}

package session

import (
	"context"

	"stockwatch/internal/client/api"
	"stockwatch/internal/domain/auth"
)

func (m *Manager) ChangePassword(ctx context.Context, current, next string) error {
	return m.api.Post(ctx, "/auth/change-password",
		auth.ChangePasswordRequest{CurrentPassword: current, NewPassword: next}, nil)
}

func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	return m.api.Post(ctx, "/auth/reset-password-request",
		auth.PasswordResetRequest{Email: email}, nil, api.SkipAuthRefresh())
}

func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) error {
	return m.api.Post(ctx, "/auth/reset-password",
		auth.ResetPasswordRequest{Token: token, NewPassword: newPassword}, nil, api.SkipAuthRefresh())
}

// RevokeAllSessions signs out every device, this one included.
func (m *Manager) RevokeAllSessions(ctx context.Context) error {
	if err := m.api.Post(ctx, "/auth/revoke-all-sessions", nil, nil); err != nil {
		return err
	}
	m.clear(ctx)
	return nil
}

// UpdatePreferences stores user preferences server-side and mirrors the
// result into the session.
func (m *Manager) UpdatePreferences(ctx context.Context, prefs map[string]any) (*auth.UserInfo, error) {
	var user auth.UserInfo
	if err := m.api.Patch(ctx, "/auth/preferences", auth.UpdatePreferencesRequest{Preferences: prefs}, &user); err != nil {
		return nil, err
	}
	m.state.Update(func(s Session) Session {
		u := user
		s.User = &u
		return s
	})
	return &user, nil
}

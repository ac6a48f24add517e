// internal/service/auth/admin_create.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"stockwatch/internal/domain/auth"
	xerrors "stockwatch/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// EnsureAdminExists makes sure the configured email belongs to an admin
// (called on startup). An existing account is promoted, otherwise one is
// created with the given password.
func (s *AuthService) EnsureAdminExists(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" {
		s.logger.Info("ADMIN_EMAIL not set, skipping admin seeding")
		return nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Role == auth.RoleAdmin && slices.Contains(user.Permissions, auth.PermManageUsers) {
			s.logger.Info("admin already exists, skipping creation", zap.String("email", email))
			return nil
		}
		s.logger.Info("promoting existing user to admin", zap.String("email", email))
		return s.users.UpdateRole(ctx, user.ID, auth.RoleAdmin, auth.AdminPermissions)
	case !errors.Is(err, xerrors.ErrNotFound):
		return fmt.Errorf("failed to check admin: %w", err)
	}

	if password == "" {
		return fmt.Errorf("ADMIN_PASSWORD must be set to create admin %s", email)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	admin := &auth.User{
		ID:           ulid.Make().String(),
		Email:        email,
		FirstName:    "Admin",
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		Permissions:  append([]string(nil), auth.AdminPermissions...),
		Preferences:  map[string]any{},
		Status:       auth.StatusActive,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info("admin account created", zap.String("email", email), zap.String("user_id", admin.ID))
	return nil
}

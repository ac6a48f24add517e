// internal/service/auth/auth.go
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"stockwatch/internal/domain/auth"
	xerrors "stockwatch/internal/pkg/errors"
	"stockwatch/internal/pkg/jwt"
	"stockwatch/internal/pkg/session"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	Create(ctx context.Context, u *auth.User) error
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
	FindByID(ctx context.Context, id string) (*auth.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdatePreferences(ctx context.Context, id string, prefs map[string]any) error
	UpdateRole(ctx context.Context, id, role string, permissions []string) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *session.RefreshSession) error
	GetSession(ctx context.Context, userID, jti string) (*session.RefreshSession, error)
	InvalidateSession(ctx context.Context, userID, jti string) error
	InvalidateAllUserSessions(ctx context.Context, userID string) (int, error)
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	StoreResetToken(ctx context.Context, token, userID string) error
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}

type RateLimiter interface {
	CheckLoginAttempt(ctx context.Context, ip, email string) (bool, int64, error)
	ResetLoginAttempts(ctx context.Context, ip, email string) error
	CheckPasswordResetAttempt(ctx context.Context, email string) (bool, error)
}

// SessionNotifier tells connected realtime clients their sessions ended.
type SessionNotifier interface {
	SessionRevoked(userID, reason string)
}

type AuthService struct {
	users       UserRepository
	jwtManager  *jwt.Manager
	sessions    SessionStore
	rateLimiter RateLimiter
	emailHelper *EmailHelper
	notifier    SessionNotifier
	logger      *zap.Logger
	now         func() time.Time
}

func NewAuthService(
	users UserRepository,
	jwtManager *jwt.Manager,
	sessions SessionStore,
	rateLimiter RateLimiter,
	mailer Mailer,
	notifier SessionNotifier,
	baseURL string,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       users,
		jwtManager:  jwtManager,
		sessions:    sessions,
		rateLimiter: rateLimiter,
		emailHelper: NewEmailHelper(mailer, logger, baseURL),
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// ClientMeta is where a request came from.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// AccessToken identifies the access token of the calling request.
type AccessToken struct {
	JTI       string
	ExpiresAt time.Time
}

// ========== Registration ==========

// Register creates a new user account and logs it in.
func (s *AuthService) Register(ctx context.Context, req *auth.RegisterRequest, meta ClientMeta) (*auth.AuthResponse, error) {
	email := normalizeEmail(req.Email)

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, xerrors.Wrap(xerrors.ErrConflict, "email already registered")
	case !errors.Is(err, xerrors.ErrNotFound):
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &auth.User{
		ID:           ulid.Make().String(),
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
		Role:         auth.RoleUser,
		Permissions:  append([]string(nil), auth.DefaultPermissions...),
		Preferences:  map[string]any{},
		Status:       auth.StatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("email", user.Email))
	s.emailHelper.SendWelcome(user.Email, user.FirstName)

	return s.issue(ctx, user, meta)
}

// ========== Login ==========

// Login authenticates a user with email and password.
func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest, meta ClientMeta) (*auth.AuthResponse, error) {
	email := normalizeEmail(req.Email)

	allowed, _, err := s.rateLimiter.CheckLoginAttempt(ctx, meta.IPAddress, email)
	if err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return nil, xerrors.Wrap(xerrors.ErrRateLimited, "too many login attempts, please try again in 15 minutes")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, xerrors.ErrInvalidCredential
	}
	if user.Status != auth.StatusActive {
		return nil, xerrors.Wrap(xerrors.ErrForbidden, "account is "+user.Status)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Error("failed to update last login", zap.Error(err))
	}
	if err := s.rateLimiter.ResetLoginAttempts(ctx, meta.IPAddress, email); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Error(err))
	}

	return s.issue(ctx, user, meta)
}

// issue creates a token pair and the refresh session backing it.
func (s *AuthService) issue(ctx context.Context, user *auth.User, meta ClientMeta) (*auth.AuthResponse, error) {
	pair, err := s.issuePair(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &auth.AuthResponse{
		User:         user.Info(),
		Token:        pair.Token,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *auth.User, meta ClientMeta) (*auth.TokenPair, error) {
	access, _, err := s.jwtManager.Generator.GenerateAccessToken(jwt.Subject{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: user.Permissions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refresh, refreshJTI, err := s.jwtManager.Generator.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := s.now()
	rs := &session.RefreshSession{
		JTI:       refreshJTI,
		UserID:    user.ID,
		Email:     user.Email,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.jwtManager.Generator.RefreshTTL),
	}
	if err := s.sessions.CreateSession(ctx, rs); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &auth.TokenPair{Token: access, RefreshToken: refresh}, nil
}

// ========== Refresh & logout ==========

// Refresh rotates a refresh token: the presented session is revoked and a
// new pair is issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*auth.TokenPair, error) {
	claims, err := s.jwtManager.Verifier.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrSessionExpired, err.Error())
	}

	if _, err := s.sessions.GetSession(ctx, claims.Subject, claims.ID); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrSessionExpired, "refresh session not found")
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrSessionExpired, "user not found")
	}
	if user.Status != auth.StatusActive {
		return nil, xerrors.Wrap(xerrors.ErrForbidden, "account is "+user.Status)
	}

	if err := s.sessions.InvalidateSession(ctx, claims.Subject, claims.ID); err != nil {
		return nil, fmt.Errorf("failed to revoke old session: %w", err)
	}

	return s.issuePair(ctx, user, meta)
}

// Logout revokes the refresh session (when the token is still valid) and
// blacklists the calling access token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, access AccessToken) error {
	if refreshToken != "" {
		if claims, err := s.jwtManager.Verifier.VerifyRefreshToken(refreshToken); err == nil {
			if err := s.sessions.InvalidateSession(ctx, claims.Subject, claims.ID); err != nil {
				return fmt.Errorf("failed to revoke session: %w", err)
			}
		}
	}
	return s.blacklist(ctx, access)
}

// RevokeAllSessions ends every refresh session of the user.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string, access AccessToken) error {
	n, err := s.sessions.InvalidateAllUserSessions(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	if err := s.blacklist(ctx, access); err != nil {
		return err
	}

	s.logger.Info("all sessions revoked", zap.String("user_id", userID), zap.Int("sessions", n))
	if s.notifier != nil {
		s.notifier.SessionRevoked(userID, "all sessions revoked")
	}
	return nil
}

func (s *AuthService) blacklist(ctx context.Context, access AccessToken) error {
	if access.JTI == "" {
		return nil
	}
	if err := s.sessions.BlacklistToken(ctx, access.JTI, access.ExpiresAt.Sub(s.now())); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// ========== Passwords ==========

func (s *AuthService) ChangePassword(ctx context.Context, userID string, req *auth.ChangePasswordRequest) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return xerrors.Wrap(xerrors.ErrInvalidCredential, "current password is incorrect")
	}

	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.emailHelper.SendPasswordChanged(user.Email, user.FirstName)
	return nil
}

// RequestPasswordReset answers the same whether or not the email exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	allowed, err := s.rateLimiter.CheckPasswordResetAttempt(ctx, email)
	if err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return xerrors.Wrap(xerrors.ErrRateLimited, "too many reset requests, please try again later")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return err
	}
	if err := s.sessions.StoreResetToken(ctx, token, user.ID); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	s.emailHelper.SendPasswordReset(user.Email, user.FirstName, token)
	return nil
}

// ResetPassword consumes a reset token, sets the password and ends all sessions.
func (s *AuthService) ResetPassword(ctx context.Context, req *auth.ResetPasswordRequest) error {
	userID, err := s.sessions.ConsumeResetToken(ctx, req.Token)
	if err != nil {
		return err
	}

	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if _, err := s.sessions.InvalidateAllUserSessions(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke sessions after reset", zap.String("user_id", userID), zap.Error(err))
	}
	if s.notifier != nil {
		s.notifier.SessionRevoked(userID, "password reset")
	}
	return nil
}

// ========== Profile ==========

func (s *AuthService) Me(ctx context.Context, userID string) (*auth.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := user.Info()
	return &info, nil
}

// UpdatePreferences merges keys into the stored preferences. A nil value
// removes the key.
func (s *AuthService) UpdatePreferences(ctx context.Context, userID string, prefs map[string]any) (*auth.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(user.Preferences)+len(prefs))
	maps.Copy(merged, user.Preferences)
	for k, v := range prefs {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	if err := s.users.UpdatePreferences(ctx, userID, merged); err != nil {
		return nil, err
	}
	user.Preferences = merged
	info := user.Info()
	return &info, nil
}

// ValidateToken verifies an access token and rejects blacklisted ones.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.jwtManager.Verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrUnauthorized, err.Error())
	}

	blacklisted, err := s.sessions.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, xerrors.Wrap(xerrors.ErrUnauthorized, "token has been revoked")
	}
	return claims, nil
}

// ========== Helpers ==========

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

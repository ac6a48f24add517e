// Package session owns the client's login lifecycle: login, register,
// logout, token rotation and the proactive refresh timer.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockwatch/internal/client/api"
	"stockwatch/internal/domain/auth"
	xerrors "stockwatch/internal/pkg/errors"
	"stockwatch/internal/pkg/jwt"
	"stockwatch/internal/pkg/observable"
	"stockwatch/internal/pkg/tokenstore"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// refreshLead is how long before expiry the proactive refresh fires.
const refreshLead = 60 * time.Second

// Session is the observable auth state.
type Session struct {
	AccessToken     string
	RefreshToken    string
	User            *auth.UserInfo
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

// Transport is the subset of *api.Client the manager needs.
type Transport interface {
	Post(ctx context.Context, path string, body, out any, opts ...api.RequestOption) error
	Patch(ctx context.Context, path string, body, out any, opts ...api.RequestOption) error
}

type timer interface {
	Stop() bool
}

type Manager struct {
	api    Transport
	tokens *tokenstore.Store
	state  *observable.Subject[Session]
	logger *zap.Logger

	refreshGroup singleflight.Group

	timerMu  sync.Mutex
	timer    timer
	timerGen uint64

	now       func() time.Time
	afterFunc func(time.Duration, func()) timer
}

func NewManager(transport Transport, tokens *tokenstore.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		api:    transport,
		tokens: tokens,
		state:  observable.NewSubject(Session{}),
		logger: logger.With(zap.String("component", "session")),
		now:    time.Now,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

func (m *Manager) State() *observable.Subject[Session] { return m.state }

func (m *Manager) Current() Session { return m.state.Value() }

func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	return m.authenticate(ctx, "/auth/login",
		auth.LoginRequest{Email: email, Password: password}, "Login failed")
}

func (m *Manager) Register(ctx context.Context, req auth.RegisterRequest) (Session, error) {
	return m.authenticate(ctx, "/auth/register", req, "Registration failed")
}

func (m *Manager) authenticate(ctx context.Context, path string, body any, fallback string) (Session, error) {
	m.state.Update(func(s Session) Session {
		s.IsLoading = true
		s.Error = ""
		return s
	})

	var resp auth.AuthResponse
	if err := m.api.Post(ctx, path, body, &resp, api.SkipAuthRefresh()); err != nil {
		m.fail(ctx, failureMessage(err, fallback))
		return m.state.Value(), err
	}
	if resp.Token == "" || resp.RefreshToken == "" {
		m.fail(ctx, fallback)
		return m.state.Value(), xerrors.Wrap(xerrors.ErrSessionExpired, "auth response without tokens")
	}

	if err := m.tokens.Set(ctx, resp.Token, resp.RefreshToken); err != nil {
		m.fail(ctx, fallback)
		return m.state.Value(), err
	}

	user := resp.User
	s := Session{
		AccessToken:     resp.Token,
		RefreshToken:    resp.RefreshToken,
		User:            &user,
		IsAuthenticated: true,
	}
	m.state.Set(s)
	m.scheduleRefresh(resp.Token)
	m.logger.Info("authenticated", zap.String("user_id", user.ID))
	return s, nil
}

// failureMessage prefers what the server said.
func failureMessage(err error, fallback string) string {
	if apiErr, ok := api.AsError(err); ok {
		if msg := apiErr.ServerMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}

func (m *Manager) fail(ctx context.Context, msg string) {
	m.clearLocal(ctx)
	m.state.Set(Session{Error: msg})
}

// Logout tells the server best-effort, then clears local state.
func (m *Manager) Logout(ctx context.Context) {
	if rt, ok := m.tokens.RefreshToken(); ok {
		err := m.api.Post(ctx, "/auth/logout", auth.RefreshRequest{RefreshToken: rt}, nil, api.SkipAuthRefresh())
		if err != nil {
			m.logger.Warn("server logout failed", zap.Error(err))
		}
	}
	m.clear(ctx)
}

// ForceLogout clears the session without contacting the server.
func (m *Manager) ForceLogout(ctx context.Context) {
	m.clear(ctx)
}

func (m *Manager) clear(ctx context.Context) {
	m.clearLocal(ctx)
	m.state.Set(Session{})
}

func (m *Manager) clearLocal(ctx context.Context) {
	m.stopTimer()
	if err := m.tokens.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear persisted tokens", zap.Error(err))
	}
}

// RefreshToken rotates the token pair. Concurrent callers share one
// request. On failure the session is cleared.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	v, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// RefreshAccessToken satisfies api.Authenticator.
func (m *Manager) RefreshAccessToken(ctx context.Context) (string, error) {
	return m.RefreshToken(ctx)
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	rt, ok := m.tokens.RefreshToken()
	if !ok {
		m.clear(ctx)
		return "", xerrors.ErrNotAuthenticated
	}

	var pair auth.TokenPair
	err := m.api.Post(ctx, "/auth/refresh", auth.RefreshRequest{RefreshToken: rt}, &pair, api.SkipAuthRefresh(), api.NoRetry())
	if err == nil && (pair.Token == "" || pair.RefreshToken == "") {
		err = errors.New("refresh response without tokens")
	}
	if err != nil {
		m.logger.Info("token refresh failed, clearing session", zap.Error(err))
		m.clear(ctx)
		return "", err
	}

	if err := m.tokens.Set(ctx, pair.Token, pair.RefreshToken); err != nil {
		m.clear(ctx)
		return "", err
	}

	m.state.Update(func(s Session) Session {
		s.AccessToken = pair.Token
		s.RefreshToken = pair.RefreshToken
		s.IsAuthenticated = true
		s.IsLoading = false
		s.Error = ""
		if s.User == nil {
			s.User = userFromToken(pair.Token)
		}
		return s
	})
	m.scheduleRefresh(pair.Token)
	return pair.Token, nil
}

// CheckAuth restores the session from persisted tokens. An expired or
// unreadable access token gets exactly one refresh attempt.
func (m *Manager) CheckAuth(ctx context.Context) bool {
	tok, ok := m.tokens.Get()
	if ok {
		claims, err := jwt.Decode(tok)
		if err == nil && !claims.Expired(m.now()) {
			rt, _ := m.tokens.RefreshToken()
			m.state.Update(func(s Session) Session {
				s.AccessToken = tok
				s.RefreshToken = rt
				s.IsAuthenticated = true
				if s.User == nil {
					s.User = userFromToken(tok)
				}
				return s
			})
			m.scheduleRefresh(tok)
			return true
		}
	}

	if _, hasRefresh := m.tokens.RefreshToken(); !hasRefresh {
		m.clear(ctx)
		return false
	}
	_, err := m.RefreshToken(ctx)
	return err == nil
}

func (m *Manager) IsAuthenticated() bool {
	return m.state.Value().IsAuthenticated
}

func (m *Manager) claims() *jwt.Claims {
	if !m.IsAuthenticated() {
		return nil
	}
	tok, ok := m.tokens.Get()
	if !ok {
		return nil
	}
	claims, err := jwt.Decode(tok)
	if err != nil {
		return nil
	}
	return claims
}

func (m *Manager) HasPermission(permission string) bool {
	c := m.claims()
	return c != nil && c.HasPermission(permission)
}

func (m *Manager) HasRole(role string) bool {
	c := m.claims()
	return c != nil && c.HasRole(role)
}

func userFromToken(tok string) *auth.UserInfo {
	claims, err := jwt.Decode(tok)
	if err != nil {
		return nil
	}
	return &auth.UserInfo{
		ID:          claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: claims.Permissions,
	}
}

// scheduleRefresh arms the timer 60s before the token expires, or
// immediately when that moment has passed.
func (m *Manager) scheduleRefresh(tok string) {
	claims, err := jwt.Decode(tok)
	if err != nil || claims.Expiry().IsZero() {
		m.logger.Debug("token has no readable expiry, refresh timer not armed")
		return
	}
	delay := claims.Expiry().Sub(m.now()) - refreshLead
	if delay < 0 {
		delay = 0
	}

	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerGen++
	gen := m.timerGen
	m.timer = m.afterFunc(delay, func() {
		m.timerMu.Lock()
		current := gen == m.timerGen
		m.timerMu.Unlock()
		if !current {
			return
		}
		if _, err := m.RefreshToken(context.Background()); err != nil {
			m.logger.Info("proactive refresh failed", zap.Error(err))
		}
	})
}

func (m *Manager) stopTimer() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

// Close stops the refresh timer.
func (m *Manager) Close() {
	m.stopTimer()
}

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockwatch/internal/client/api"
	"stockwatch/internal/domain/auth"
	swjwt "stockwatch/internal/pkg/jwt"
	"stockwatch/internal/pkg/storage"
	"stockwatch/internal/pkg/tokenstore"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func makeToken(t *testing.T, exp time.Time, perms ...string) string {
	t.Helper()
	claims := swjwt.Claims{
		Role:           "user",
		Permissions:    perms,
		SessionPurpose: swjwt.PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(exp.Add(-15 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	require.NoError(t, err)
	return tok
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	f.stopped = true
	return true
}

type harness struct {
	mgr     *Manager
	tokens  *tokenstore.Store
	client  *api.Client
	mu      sync.Mutex
	timers  []*fakeTimer
	refresh atomic.Int32
}

func (h *harness) lastTimer() *fakeTimer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.timers) == 0 {
		return nil
	}
	return h.timers[len(h.timers)-1]
}

func newHarness(t *testing.T, handler func(h *harness) http.Handler) *harness {
	t.Helper()
	h := &harness{}
	server := httptest.NewServer(handler(h))
	t.Cleanup(server.Close)

	tokens, err := tokenstore.Load(context.Background(), storage.NewMemoryKV())
	require.NoError(t, err)
	h.tokens = tokens
	h.client = api.New(api.Config{BaseURL: server.URL}, tokens, zap.NewNop())
	h.mgr = NewManager(h.client, tokens, zap.NewNop())
	h.client.SetAuthenticator(h.mgr)
	h.mgr.afterFunc = func(d time.Duration, fn func()) timer {
		ft := &fakeTimer{delay: d, fn: fn}
		h.mu.Lock()
		h.timers = append(h.timers, ft)
		h.mu.Unlock()
		return ft
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestLoginPopulatesSession(t *testing.T) {
	access := makeToken(t, time.Now().Add(15*time.Minute), auth.PermViewMarketData)
	h := newHarness(t, func(h *harness) http.Handler {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
			var req auth.LoginRequest
			json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "a@b.io", req.Email)
			writeJSON(w, http.StatusOK, auth.AuthResponse{
				User:         auth.UserInfo{ID: "u1", Email: "a@b.io"},
				Token:        access,
				RefreshToken: "rt-1",
			})
		})
		return mux
	})

	s, err := h.mgr.Login(context.Background(), "a@b.io", "secret123")
	require.NoError(t, err)

	tok, ok := h.tokens.Get()
	require.True(t, ok)
	assert.Equal(t, access, tok)
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "u1", s.User.ID)
	assert.True(t, h.mgr.IsAuthenticated())
	assert.True(t, h.mgr.HasPermission(auth.PermViewMarketData))
	assert.False(t, h.mgr.HasPermission(auth.PermManageUsers))
	assert.True(t, h.mgr.HasRole("user"))

	timer := h.lastTimer()
	require.NotNil(t, timer)
	assert.InDelta(t, (14 * time.Minute).Seconds(), timer.delay.Seconds(), 2)
}

func TestLoginFailureStoresServerMessage(t *testing.T) {
	h := newHarness(t, func(h *harness) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid email or password"})
		})
	})

	s, err := h.mgr.Login(context.Background(), "a@b.io", "wrong")
	require.Error(t, err)
	assert.False(t, s.IsAuthenticated)
	assert.Equal(t, "invalid email or password", s.Error)
	assert.Equal(t, int32(0), h.refresh.Load())

	_, ok := h.tokens.Get()
	assert.False(t, ok)
	assert.False(t, h.mgr.HasPermission(auth.PermViewMarketData))
}

func TestRegisterUsesFallbackWithoutServerMessage(t *testing.T) {
	h := newHarness(t, func(h *harness) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})
	})

	s, err := h.mgr.Register(context.Background(), auth.RegisterRequest{Email: "a@b.io", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, "Registration failed", s.Error)
}

func refreshServer(t *testing.T, newAccess string, fail bool) func(h *harness) http.Handler {
	return func(h *harness) http.Handler {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
			h.refresh.Add(1)
			time.Sleep(20 * time.Millisecond)
			if fail {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "refresh token revoked"})
				return
			}
			writeJSON(w, http.StatusOK, auth.TokenPair{Token: newAccess, RefreshToken: "rt-2"})
		})
		mux.HandleFunc("GET /protected", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+newAccess {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		})
		return mux
	}
}

func TestConcurrentRefreshesAreCoalesced(t *testing.T) {
	fresh := makeToken(t, time.Now().Add(15*time.Minute))
	h := newHarness(t, refreshServer(t, fresh, false))
	require.NoError(t, h.tokens.Set(context.Background(), "stale", "rt-1"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.client.Get(context.Background(), "/protected", nil, api.NoCache())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, h.refresh.Load(), int32(5))
	assert.GreaterOrEqual(t, h.refresh.Load(), int32(1))
	rt, _ := h.tokens.RefreshToken()
	assert.Equal(t, "rt-2", rt)
	assert.True(t, h.mgr.IsAuthenticated())
}

func TestSingleFlightRefresh(t *testing.T) {
	fresh := makeToken(t, time.Now().Add(15*time.Minute))
	h := newHarness(t, refreshServer(t, fresh, false))
	require.NoError(t, h.tokens.Set(context.Background(), "stale", "rt-1"))

	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			tok, err := h.mgr.RefreshToken(context.Background())
			assert.NoError(t, err)
			results[i] = tok
		}()
	}
	close(start)
	wg.Wait()

	for _, tok := range results {
		assert.Equal(t, fresh, tok)
	}
	assert.Less(t, h.refresh.Load(), int32(4))
}

func TestRefreshFailureClearsSession(t *testing.T) {
	h := newHarness(t, refreshServer(t, "unused", true))
	require.NoError(t, h.tokens.Set(context.Background(), "stale", "rt-1"))

	err := h.client.Get(context.Background(), "/protected", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	_, ok := h.tokens.Get()
	assert.False(t, ok)
	assert.False(t, h.mgr.IsAuthenticated())
	assert.Empty(t, h.mgr.Current().Error)
}

func TestRefreshIsNotRetriedOnServerError(t *testing.T) {
	h := newHarness(t, func(h *harness) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.refresh.Add(1)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "maintenance"})
		})
	})
	require.NoError(t, h.tokens.Set(context.Background(), "stale", "rt-1"))

	start := time.Now()
	_, err := h.mgr.RefreshToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, api.StatusOf(err))
	assert.Equal(t, int32(1), h.refresh.Load())
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, h.mgr.IsAuthenticated())
	_, ok := h.tokens.RefreshToken()
	assert.False(t, ok)
}

func TestCheckAuthRefreshesExpiredToken(t *testing.T) {
	fresh := makeToken(t, time.Now().Add(15*time.Minute), auth.PermManageAlerts)
	h := newHarness(t, refreshServer(t, fresh, false))
	expired := makeToken(t, time.Now().Add(-time.Minute))
	require.NoError(t, h.tokens.Set(context.Background(), expired, "rt-1"))

	assert.True(t, h.mgr.CheckAuth(context.Background()))
	assert.Equal(t, int32(1), h.refresh.Load())
	assert.True(t, h.mgr.HasPermission(auth.PermManageAlerts))
	assert.Equal(t, "u1", h.mgr.Current().User.ID)
}

func TestCheckAuthTreatsMalformedTokenAsExpired(t *testing.T) {
	h := newHarness(t, refreshServer(t, "unused", true))
	require.NoError(t, h.tokens.Set(context.Background(), "garbage", "rt-1"))

	assert.False(t, h.mgr.CheckAuth(context.Background()))
	assert.Equal(t, int32(1), h.refresh.Load())
	_, ok := h.tokens.RefreshToken()
	assert.False(t, ok)
}

func TestCheckAuthWithValidToken(t *testing.T) {
	h := newHarness(t, refreshServer(t, "unused", true))
	valid := makeToken(t, time.Now().Add(30*time.Second))
	require.NoError(t, h.tokens.Set(context.Background(), valid, "rt-1"))

	assert.True(t, h.mgr.CheckAuth(context.Background()))
	assert.Equal(t, int32(0), h.refresh.Load())

	// Less than a minute left: the timer fires immediately.
	timer := h.lastTimer()
	require.NotNil(t, timer)
	assert.Equal(t, time.Duration(0), timer.delay)
}

func TestRefreshTimerRearmsAndFailsClosed(t *testing.T) {
	fresh := makeToken(t, time.Now().Add(10*time.Minute))
	h := newHarness(t, refreshServer(t, fresh, false))
	first := makeToken(t, time.Now().Add(5*time.Minute))
	require.NoError(t, h.tokens.Set(context.Background(), first, "rt-1"))
	require.True(t, h.mgr.CheckAuth(context.Background()))

	h.lastTimer().fn()
	assert.Equal(t, int32(1), h.refresh.Load())
	tok, _ := h.tokens.Get()
	assert.Equal(t, fresh, tok)
	assert.InDelta(t, (9 * time.Minute).Seconds(), h.lastTimer().delay.Seconds(), 2)
}

func TestStaleTimerDoesNothingAfterLogout(t *testing.T) {
	h := newHarness(t, func(h *harness) http.Handler {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
			var req auth.RefreshRequest
			json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "rt-1", req.RefreshToken)
			w.WriteHeader(http.StatusNoContent)
		})
		mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
			h.refresh.Add(1)
		})
		return mux
	})
	require.NoError(t, h.tokens.Set(context.Background(), makeToken(t, time.Now().Add(5*time.Minute)), "rt-1"))
	require.True(t, h.mgr.CheckAuth(context.Background()))
	timer := h.lastTimer()

	h.mgr.Logout(context.Background())
	assert.True(t, timer.stopped)
	timer.fn()

	assert.Equal(t, int32(0), h.refresh.Load())
	assert.False(t, h.mgr.IsAuthenticated())
}

func TestRevokeAllSessionsClears(t *testing.T) {
	h := newHarness(t, func(h *harness) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/revoke-all-sessions", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})
	})
	require.NoError(t, h.tokens.Set(context.Background(), makeToken(t, time.Now().Add(5*time.Minute)), "rt-1"))
	require.True(t, h.mgr.CheckAuth(context.Background()))

	require.NoError(t, h.mgr.RevokeAllSessions(context.Background()))
	assert.False(t, h.mgr.IsAuthenticated())
	_, ok := h.tokens.Get()
	assert.False(t, ok)
}

func TestUpdatePreferences(t *testing.T) {
	h := newHarness(t, func(h *harness) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			writeJSON(w, http.StatusOK, auth.UserInfo{ID: "u1", Preferences: map[string]any{"theme": "dark"}})
		})
	})

	user, err := h.mgr.UpdatePreferences(context.Background(), map[string]any{"theme": "dark"})
	require.NoError(t, err)
	assert.Equal(t, "dark", user.Preferences["theme"])
	assert.Equal(t, "dark", h.mgr.Current().User.Preferences["theme"])
}

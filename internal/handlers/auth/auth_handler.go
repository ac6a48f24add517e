// internal/handlers/auth/auth_handler.go
package auth

import (
	"context"
	"net/http"

	"stockwatch/internal/domain/auth"
	"stockwatch/internal/middleware"
	"stockwatch/internal/pkg/response"
	authUsecase "stockwatch/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthService is the identity use case behind the handler.
type AuthService interface {
	Register(ctx context.Context, req *auth.RegisterRequest, meta authUsecase.ClientMeta) (*auth.AuthResponse, error)
	Login(ctx context.Context, req *auth.LoginRequest, meta authUsecase.ClientMeta) (*auth.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string, meta authUsecase.ClientMeta) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string, access authUsecase.AccessToken) error
	RevokeAllSessions(ctx context.Context, userID string, access authUsecase.AccessToken) error
	ChangePassword(ctx context.Context, userID string, req *auth.ChangePasswordRequest) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req *auth.ResetPasswordRequest) error
	Me(ctx context.Context, userID string) (*auth.UserInfo, error)
	UpdatePreferences(ctx context.Context, userID string, prefs map[string]any) (*auth.UserInfo, error)
}

type AuthHandler struct {
	authService AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

func clientMeta(c *gin.Context) authUsecase.ClientMeta {
	return authUsecase.ClientMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}

func accessToken(c *gin.Context) authUsecase.AccessToken {
	return authUsecase.AccessToken{
		JTI:       middleware.GetJTI(c),
		ExpiresAt: middleware.GetTokenExpiry(c),
	}
}

// ========== Registration ==========

// Register handles user registration (public endpoint)
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req, clientMeta(c))
	if err != nil {
		h.logger.Warn("registration failed",
			zap.String("email", req.Email),
			zap.Error(err),
		)
		response.FromError(c, "registration failed", err)
		return
	}

	response.JSON(c, http.StatusCreated, resp)
}

// ========== Login ==========

func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req, clientMeta(c))
	if err != nil {
		h.logger.Warn("login failed",
			zap.String("email", req.Email),
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		response.FromError(c, "login failed", err)
		return
	}

	h.logger.Info("user logged in",
		zap.String("user_id", resp.User.ID),
		zap.String("email", resp.User.Email),
	)
	response.JSON(c, http.StatusOK, resp)
}

// Refresh rotates the token pair (public endpoint)
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken, clientMeta(c))
	if err != nil {
		response.FromError(c, "token refresh failed", err)
		return
	}
	response.JSON(c, http.StatusOK, pair)
}

// ========== Logout ==========

// Logout revokes the refresh session named in the body (optional) and the
// calling access token (requires auth)
func (h *AuthHandler) Logout(c *gin.Context) {
	var req auth.RefreshRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken, accessToken(c)); err != nil {
		userID, _ := middleware.GetUserID(c)
		h.logger.Error("logout failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		response.FromError(c, "logout failed", err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "logout successful"})
}

func (h *AuthHandler) RevokeAllSessions(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	if err := h.authService.RevokeAllSessions(c.Request.Context(), userID, accessToken(c)); err != nil {
		response.FromError(c, "failed to revoke sessions", err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "all sessions revoked"})
}

// ========== Password Management ==========

// ChangePassword handles password change (requires auth)
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req auth.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), userID, &req); err != nil {
		response.FromError(c, "password change failed", err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "password changed successfully"})
}

// RequestPasswordReset always answers the same way so callers cannot probe
// which emails exist.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req auth.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.logger.Warn("password reset request failed",
			zap.String("email", req.Email),
			zap.Error(err),
		)
		response.FromError(c, "password reset request failed", err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "if the email exists, a reset link has been sent"})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req auth.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), &req); err != nil {
		response.FromError(c, "password reset failed", err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "password reset successful"})
}

// ========== Profile ==========

// Me returns the current user (requires auth)
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.Me(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.FromError(c, "failed to get profile", err)
		return
	}
	response.JSON(c, http.StatusOK, user)
}

// UpdatePreferences merges keys into the user's preferences and returns the
// updated user.
func (h *AuthHandler) UpdatePreferences(c *gin.Context) {
	var req auth.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	user, err := h.authService.UpdatePreferences(c.Request.Context(), middleware.MustGetUserID(c), req.Preferences)
	if err != nil {
		response.FromError(c, "failed to update preferences", err)
		return
	}
	response.JSON(c, http.StatusOK, user)
}

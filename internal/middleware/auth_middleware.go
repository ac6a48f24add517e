// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"stockwatch/internal/pkg/jwt"
	"stockwatch/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// Context keys set by Auth.
const (
	ctxUserID      = "user_id"
	ctxJTI         = "jti"
	ctxExpiresAt   = "token_exp"
	ctxRole        = "role"
	ctxPermissions = "permissions"
	ctxEmail       = "email"
)

// TokenValidator verifies an access token and rejects revoked ones.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Auth is the base authentication middleware that validates JWT tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c, "missing authorization token")
			return
		}

		claims, err := m.validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth sets the user context when a valid token is present and
// never aborts.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if claims, err := m.validator.ValidateToken(c.Request.Context(), token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRole allows users holding any of roles. Use after Auth.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, c.GetString(ctxRole)) {
			response.Forbidden(c, "insufficient permissions")
			return
		}
		c.Next()
	}
}

// RequirePermission allows users holding any of permissions. Admins pass
// unconditionally. Use after Auth.
func (m *AuthMiddleware) RequirePermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsAdmin(c) {
			c.Next()
			return
		}
		granted := GetPermissions(c)
		for _, p := range permissions {
			if slices.Contains(granted, p) {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions")
	}
}

// AdminOnly returns middlewares for admin-only routes (Auth + RequireRole)
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole("admin"),
	}
}

// WithPermission returns middlewares for permission-based routes (Auth + RequirePermission)
func (m *AuthMiddleware) WithPermission(permissions ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequirePermission(permissions...),
	}
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(ctxUserID, claims.Subject)
	c.Set(ctxJTI, claims.ID)
	c.Set(ctxExpiresAt, claims.Expiry())
	c.Set(ctxRole, claims.Role)
	c.Set(ctxPermissions, claims.Permissions)
	c.Set(ctxEmail, claims.Email)
}

// extractToken reads the bearer header, then the token query parameter.
func extractToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}

// internal/pkg/jwt/claims.go
package jwt

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes.
const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
)

// Claims carried by stockwatch tokens. Subject holds the user id.
type Claims struct {
	Role           string   `json:"role,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	Email          string   `json:"email,omitempty"`
	SessionPurpose string   `json:"session_purpose"`
	jwt.RegisteredClaims
}

func (c *Claims) HasRole(role string) bool {
	return c.Role == role
}

func (c *Claims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

func (c *Claims) IsAdmin() bool {
	return c.HasRole("admin")
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Expired reports whether exp is missing or not after now.
func (c *Claims) Expired(now time.Time) bool {
	exp := c.Expiry()
	return exp.IsZero() || !now.Before(exp)
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		return !required
	}
	return slices.Contains(c.Audience, audience)
}

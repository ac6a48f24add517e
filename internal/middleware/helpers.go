// internal/middleware/helpers.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(ctxUserID)
	return id, id != ""
}

// MustGetUserID gets the user ID from context or panics. Only for routes
// behind Auth.
func MustGetUserID(c *gin.Context) string {
	id, ok := GetUserID(c)
	if !ok {
		panic("user_id not found in context")
	}
	return id
}

func GetJTI(c *gin.Context) string {
	return c.GetString(ctxJTI)
}

// GetTokenExpiry returns the access token expiry, zero when unknown.
func GetTokenExpiry(c *gin.Context) time.Time {
	return c.GetTime(ctxExpiresAt)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// GetPermissions gets user permissions from context
func GetPermissions(c *gin.Context) []string {
	perms := c.GetStringSlice(ctxPermissions)
	if perms == nil {
		return []string{}
	}
	return perms
}

func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetUserID(c)
	return ok
}

func IsAdmin(c *gin.Context) bool {
	return GetRole(c) == "admin"
}

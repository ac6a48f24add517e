package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Decode reads the claims of a token without checking its signature.
// Clients use it to schedule refreshes and answer role/permission checks;
// the server still verifies every token it receives.
func Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return claims, nil
}

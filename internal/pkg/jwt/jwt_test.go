package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Generator, *Verifier) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	gen := NewGenerator(key, "stockwatch", "stockwatch-users", "k1", 15*time.Minute, 24*time.Hour)
	return gen, NewVerifier(&key.PublicKey, "stockwatch", "stockwatch-users")
}

func TestAccessTokenRoundTrip(t *testing.T) {
	gen, ver := newTestManager(t)

	tok, jti, err := gen.GenerateAccessToken(Subject{
		UserID:      "01HUSER",
		Email:       "a@b.io",
		Role:        "admin",
		Permissions: []string{"manage_alerts"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, jti)

	claims, err := ver.VerifyAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "01HUSER", claims.Subject)
	assert.Equal(t, jti, claims.ID)
	assert.True(t, claims.IsAdmin())
	assert.True(t, claims.HasPermission("manage_alerts"))
	assert.False(t, claims.HasPermission("manage_users"))

	_, err = ver.VerifyRefreshToken(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	gen, _ := newTestManager(t)
	tok, _, err := gen.GenerateRefreshToken("u1")
	require.NoError(t, err)

	other := NewVerifier(&gen.priv.PublicKey, "someone-else", "stockwatch-users")
	_, err = other.Verify(tok)
	assert.Error(t, err)
}

func TestDecodeWithoutKey(t *testing.T) {
	gen, _ := newTestManager(t)
	fixed := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	gen.now = func() time.Time { return fixed }

	tok, _, err := gen.GenerateAccessToken(Subject{UserID: "u1", Role: "user"})
	require.NoError(t, err)

	claims, err := Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(15*time.Minute).Unix(), claims.Expiry().Unix())
	assert.False(t, claims.Expired(fixed))
	assert.True(t, claims.Expired(fixed.Add(15*time.Minute)))
	assert.True(t, claims.HasRole("user"))
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode("not-a-token")
	assert.Error(t, err)

	assert.True(t, (&Claims{}).Expired(time.Now()))
}

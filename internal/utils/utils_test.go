package utils

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "s3cret"))
	assert.False(t, VerifyPassword(hash, "S3cret"))
	assert.False(t, VerifyPassword("not-a-hash", "s3cret"))
}

func TestNewAccessTokenClaims(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "ORGANIZER", 15)
	require.NoError(t, err)

	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(42), claims["sub"])
	assert.Equal(t, "ORGANIZER", claims["role"])
	assert.Equal(t, float64(tok.Exp.Unix()), claims["exp"])

	_, err = jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("other"), nil })
	assert.Error(t, err)
}

func TestHashPasswordLimits(t *testing.T) {
	_, err := HashPassword(strings.Repeat("a", MaxPasswordBytes+1), bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	// out-of-range cost falls back to the default
	hash, err := HashPassword("s3cret", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestStrongPassword(t *testing.T) {
	for pw, want := range map[string]bool{
		"Passw0rd":   true,
		"Ünïcode9x":  true,
		"Pass0rd":    false,
		"password1":  false,
		"PASSWORD1":  false,
		"Password":   false,
		"":           false,
		"Aa1Aa1Aa1!": true,
	} {
		assert.Equal(t, want, StrongPassword(pw), pw)
	}
}

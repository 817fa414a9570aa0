package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsync/internal/config"
)

func testService(secret string) *Service {
	return NewService(&config.Config{
		JWT: config.JWTConfig{Secret: []byte(secret)},
	})
}

func mint(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyToken_Valid(t *testing.T) {
	s := testService("secret")
	token := mint(t, "secret", jwt.MapClaims{
		"uid":          "alice",
		"display_name": "Alice",
		"photo_url":    "https://example.com/a.png",
		"email":        "alice@example.com",
		"exp":          time.Now().Add(time.Hour).Unix(),
	})

	identity, err := s.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UID)
	assert.Equal(t, "Alice", identity.DisplayName)
	assert.Equal(t, "https://example.com/a.png", identity.PhotoURL)
	assert.Equal(t, "alice@example.com", identity.Email)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	s := testService("secret")
	token := mint(t, "other-secret", jwt.MapClaims{
		"uid": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := s.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_Expired(t *testing.T) {
	s := testService("secret")
	token := mint(t, "secret", jwt.MapClaims{
		"uid": "alice",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	_, err := s.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_MissingUID(t *testing.T) {
	s := testService("secret")
	token := mint(t, "secret", jwt.MapClaims{
		"display_name": "Nobody",
		"exp":          time.Now().Add(time.Hour).Unix(),
	})

	_, err := s.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_Garbage(t *testing.T) {
	s := testService("secret")
	_, err := s.VerifyToken("not-a-token")
	assert.Error(t, err)
}

package util

import (
	"testing"
	"time"

	"cater/internal/config"
	"cater/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"whatsapp:+233241234567", "+233241234567"},
		{"+233 24 123-4567", "+233241234567"},
		{"(233) 24.123.4567", "+233241234567"},
		{"00233241234567", "+233241234567"},
		{"  whatsapp: +1 (415) 555-0100 ", "+14155550100"},
		{"whatsapp:", ""},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizePhone(tc.in), tc.in)
	}
}

func TestWhatsAppAddress(t *testing.T) {
	assert.Equal(t, "whatsapp:+233241234567", WhatsAppAddress("233 24 123 4567"))
	assert.Equal(t, "", WhatsAppAddress("n/a"))
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("s3cret-pass", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := &config.AuthConfig{SecretKey: "a-test-secret-that-is-long-enough-123", TokenExpiryMinutes: 5}
	user := &domain.User{Username: "ama", IsStaff: true}

	token, expires, err := GenerateToken(cfg, user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, 5*time.Second)

	claims, err := ValidateToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "ama", claims.Subject)
	assert.Equal(t, []string{"staff"}, claims.Scopes)

	_, err = ValidateToken(&config.AuthConfig{SecretKey: "another-secret"}, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	cfg := &config.AuthConfig{SecretKey: "a-test-secret-that-is-long-enough-123", TokenExpiryMinutes: -1}
	token, _, err := GenerateToken(cfg, &domain.User{Username: "kofi", IsAdmin: true})
	require.NoError(t, err)

	_, err = ValidateToken(cfg, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

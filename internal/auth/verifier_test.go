package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

var now = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func newTestVerifier(t *testing.T, opts ...Option) *Verifier {
	t.Helper()
	v, err := NewVerifier(secret, append([]Option{WithClock(func() time.Time { return now })}, opts...)...)
	require.NoError(t, err)
	return v
}

func TestVerifyAcceptsUserIDClaim(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"user_id": 42,
		"exp":     now.Add(time.Hour).Unix(),
	})

	identity, err := newTestVerifier(t).Verify(token)

	require.NoError(t, err)
	assert.Equal(t, "42", identity.UserID)
	assert.Equal(t, now.Add(time.Hour).Unix(), identity.ExpiresAt.Unix())
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "alice",
		"exp": now.Add(time.Hour).Unix(),
	})

	identity, err := newTestVerifier(t).Verify(token)

	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	valid := jwt.MapClaims{"sub": "alice", "exp": now.Add(time.Hour).Unix()}

	tests := []struct {
		name  string
		token string
		opts  []Option
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: sign(t, jwt.SigningMethodHS256, []byte("other"), valid)},
		{name: "wrong algorithm", token: sign(t, jwt.SigningMethodHS512, []byte(secret), valid)},
		{name: "expired", token: sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"sub": "alice", "exp": now.Add(-time.Minute).Unix(),
		})},
		{name: "no expiry", token: sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "alice"})},
		{name: "no subject", token: sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"exp": now.Add(time.Hour).Unix(),
		})},
		{name: "wrong issuer", opts: []Option{WithIssuer("groupsync")}, token: sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"sub": "alice", "iss": "someone-else", "exp": now.Add(time.Hour).Unix(),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestVerifier(t, tt.opts...).Verify(tt.token)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestVerifyHonoursLeeway(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "alice", "exp": now.Add(-10 * time.Second).Unix(),
	})

	_, err := newTestVerifier(t, WithLeeway(30*time.Second)).Verify(token)
	assert.NoError(t, err)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("  ")
	assert.Error(t, err)
}

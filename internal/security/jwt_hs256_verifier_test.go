package security_test

import (
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/security"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestHS256Verifier_VerifyAccessToken(t *testing.T) {
	secret := []byte("supersecret")
	v := security.NewHS256Verifier(string(secret), security.WithIssuer("auth-service"))
	inAnHour := time.Now().Add(time.Hour).Unix()

	t.Run("valid token", func(t *testing.T) {
		token := sign(t, secret, jwt.MapClaims{
			"uid": "u1", "role": "organizer", "ver": 3, "exp": inAnHour, "iss": "auth-service",
		})
		claims, err := v.VerifyAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, "organizer", claims.Role)
		assert.Equal(t, int64(3), claims.Ver)
	})

	t.Run("subject fallback", func(t *testing.T) {
		token := sign(t, secret, jwt.MapClaims{
			"sub": "u2", "exp": inAnHour, "iss": "auth-service",
		})
		claims, err := v.VerifyAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "u2", claims.UserID)
	})

	t.Run("no user id", func(t *testing.T) {
		token := sign(t, secret, jwt.MapClaims{"exp": inAnHour, "iss": "auth-service"})
		_, err := v.VerifyAccessToken(token)
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		token := sign(t, secret, jwt.MapClaims{
			"uid": "u1", "exp": time.Now().Add(-time.Minute).Unix(), "iss": "auth-service",
		})
		_, err := v.VerifyAccessToken(token)
		assert.ErrorIs(t, err, security.ErrTokenExpired)
	})

	t.Run("missing exp", func(t *testing.T) {
		token := sign(t, secret, jwt.MapClaims{"uid": "u1", "iss": "auth-service"})
		_, err := v.VerifyAccessToken(token)
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token := sign(t, secret, jwt.MapClaims{"uid": "u1", "exp": inAnHour, "iss": "someone-else"})
		_, err := v.VerifyAccessToken(token)
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})

	t.Run("wrong signature", func(t *testing.T) {
		token := sign(t, []byte("othersecret"), jwt.MapClaims{"uid": "u1", "exp": inAnHour, "iss": "auth-service"})
		_, err := v.VerifyAccessToken(token)
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := v.VerifyAccessToken("not.a.jwt")
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
			"uid": "u1", "exp": inAnHour, "iss": "auth-service",
		}).SignedString(secret)
		require.NoError(t, err)
		_, err = v.VerifyAccessToken(s)
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})
}

package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-value"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   "dispatch-ui",
		Issuer:    "fleet-gateway",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestHMACValidator_ValidToken(t *testing.T) {
	v := NewHMACValidator(testSecret, "fleet-gateway")
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())

	claims, err := v.ValidateToken(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "dispatch-ui", claims.Sub)
	assert.Equal(t, "fleet-gateway", claims.Issuer)
	assert.NotZero(t, claims.ExpiresAt)
	assert.NotZero(t, claims.IssuedAt)
}

func TestHMACValidator_AnyIssuerWhenUnset(t *testing.T) {
	v := NewHMACValidator(testSecret, "")
	c := validClaims()
	c.Issuer = "someone-else"

	_, err := v.ValidateToken(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c))

	assert.NoError(t, err)
}

func TestHMACValidator_Rejections(t *testing.T) {
	v := NewHMACValidator(testSecret, "fleet-gateway")

	t.Run("expired", func(t *testing.T) {
		c := validClaims()
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := v.ValidateToken(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c))
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("missing expiry", func(t *testing.T) {
		c := validClaims()
		c.ExpiresAt = nil
		_, err := v.ValidateToken(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.ValidateToken(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims()))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		_, err := v.ValidateToken(context.Background(), signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims()))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := validClaims()
		c.Issuer = "elsewhere"
		_, err := v.ValidateToken(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c))
		assert.ErrorIs(t, err, ErrInvalidIssuer)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.ValidateToken(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

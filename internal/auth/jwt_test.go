package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_GenerateToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour, auth.WithIssuer("identity"))

	userID := uuid.New()
	email := "ana@example.com"

	token, err := jwtService.GenerateToken(userID, email)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, id)
	assert.Equal(t, email, claims.Email)
	assert.Equal(t, "identity", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestJWTService_ValidateToken(t *testing.T) {
	userID := uuid.New()
	email := "ana@example.com"

	t.Run("rejects expired token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", time.Millisecond)

		token, err := jwtService.GenerateToken(userID, email)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		_, err = jwtService.ValidateToken(token)
		assert.Equal(t, auth.ErrExpiredToken, err)
	})

	t.Run("rejects tampered token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		token, err := jwtService.GenerateToken(userID, email)
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token + "tampered")
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects token signed with different secret", func(t *testing.T) {
		token, err := auth.NewJWTService("secret-1", time.Hour).GenerateToken(userID, email)
		require.NoError(t, err)

		_, err = auth.NewJWTService("secret-2", time.Hour).ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects wrong audience", func(t *testing.T) {
		token, err := auth.NewJWTService("s", time.Hour, auth.WithAudience("other")).GenerateToken(userID, email)
		require.NoError(t, err)

		_, err = auth.NewJWTService("s", time.Hour, auth.WithAudience("ia-marketing")).ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects non uuid subject", func(t *testing.T) {
		claims := auth.Claims{
			Email: email,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "service-account",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
		require.NoError(t, err)

		_, err = auth.NewJWTService("s", time.Hour).ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects other signing methods", func(t *testing.T) {
		claims := auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("s"))
		require.NoError(t, err)

		_, err = auth.NewJWTService("s", time.Hour).ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects malformed and empty tokens", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", time.Hour)

		_, err := jwtService.ValidateToken("not-a-valid-jwt")
		assert.Equal(t, auth.ErrInvalidToken, err)

		_, err = jwtService.ValidateToken("")
		assert.Equal(t, auth.ErrInvalidToken, err)
	})
}

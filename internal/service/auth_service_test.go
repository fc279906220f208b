package service

import (
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/model"
)

func authServiceForTest() *AuthService {
	return &AuthService{
		cfg: &config.Config{
			JWTSecret:  "test-secret",
			JWTExpiry:  time.Hour,
			BcryptCost: 4,
		},
	}
}

func signTestToken(t *testing.T, s *AuthService, userID int, role model.Role, tokenType TokenType, expiry time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "test-jti",
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		TokenType: tokenType,
		UserID:    userID,
		Role:      role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	require.NoError(t, err)
	return signed
}

func TestPasswordHashing(t *testing.T) {
	s := authServiceForTest()

	hash, err := s.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.NoError(t, s.CheckPassword(hash, "correct horse battery staple"))
	assert.ErrorIs(t, s.CheckPassword(hash, "wrong password"), ErrInvalidCredentials)
	assert.ErrorIs(t, s.CheckPassword("not a bcrypt hash", "anything"), ErrInvalidCredentials)
}

func TestValidateToken(t *testing.T) {
	s := authServiceForTest()

	t.Run("round trip preserves claims", func(t *testing.T) {
		signed := signTestToken(t, s, 42, model.RoleStudent, TokenTypeUser, time.Hour)

		claims, err := s.ValidateToken(signed)
		require.NoError(t, err)
		assert.Equal(t, 42, claims.UserID)
		assert.Equal(t, model.RoleStudent, claims.Role)
		assert.Equal(t, TokenTypeUser, claims.TokenType)
		assert.Equal(t, "test-jti", claims.ID)
	})

	t.Run("staff token type survives", func(t *testing.T) {
		signed := signTestToken(t, s, 7, model.RoleAdmin, TokenTypeStaff, time.Hour)

		claims, err := s.ValidateToken(signed)
		require.NoError(t, err)
		assert.Equal(t, TokenTypeStaff, claims.TokenType)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		signed := signTestToken(t, s, 42, model.RoleStudent, TokenTypeUser, -time.Minute)

		_, err := s.ValidateToken(signed)
		assert.Error(t, err)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		other := &AuthService{cfg: &config.Config{JWTSecret: "other-secret", JWTExpiry: time.Hour}}
		signed := signTestToken(t, other, 42, model.RoleStudent, TokenTypeUser, time.Hour)

		_, err := s.ValidateToken(signed)
		assert.Error(t, err)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := s.ValidateToken("not.a.jwt")
		assert.Error(t, err)
	})
}

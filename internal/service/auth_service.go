package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrInvalidOTP         = errors.New("invalid or expired verification code")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

const (
	otpTTL        = 15 * time.Minute
	resetTokenTTL = 30 * time.Minute
)

// TokenType distinguishes candidate vs staff tokens.
type TokenType string

const (
	TokenTypeUser  TokenType = "user"
	TokenTypeStaff TokenType = "staff"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType  `json:"token_type"`
	UserID    int        `json:"user_id"`
	Role      model.Role `json:"role"`
}

// AuthService handles authentication, JWT, and the OTP/reset flows.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateToken creates a JWT for the user and registers the session JTI in
// Redis. A later login replaces the previous session.
func (s *AuthService) GenerateToken(ctx context.Context, user *model.User) (string, error) {
	tokenType := TokenTypeUser
	if user.Role == model.RoleAdmin || user.Role == model.RoleSupervisor {
		tokenType = TokenTypeStaff
	}

	jti := uuid.New().String()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: tokenType,
		UserID:    user.ID,
		Role:      user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if err := s.rdb.Set(ctx, config.CacheKey.UserSessionKey(user.ID), jti, s.cfg.JWTExpiry).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ValidateSession checks that the token's JTI matches the active session in
// Redis, so password resets and logouts revoke outstanding tokens.
func (s *AuthService) ValidateSession(ctx context.Context, userID int, jti string) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.UserSessionKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errors.New("no active session")
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return errors.New("session invalidated")
	}
	return nil
}

// RevokeSession removes the user's session from Redis.
func (s *AuthService) RevokeSession(ctx context.Context, userID int) error {
	return s.rdb.Del(ctx, config.CacheKey.UserSessionKey(userID)).Err()
}

// IssueVerificationOTP generates and stores a 6-digit email-verification
// code. Delivery is the caller's concern; the code is returned for it.
func (s *AuthService) IssueVerificationOTP(ctx context.Context, email string) (string, error) {
	otp, err := randomDigits(6)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.VerificationOTPKey(email), otp, otpTTL).Err(); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return otp, nil
}

// RedeemVerificationOTP checks the code and consumes it on success.
func (s *AuthService) RedeemVerificationOTP(ctx context.Context, email, otp string) error {
	key := config.CacheKey.VerificationOTPKey(email)
	stored, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInvalidOTP
		}
		return fmt.Errorf("check otp: %w", err)
	}
	if stored != otp {
		return ErrInvalidOTP
	}
	return s.rdb.Del(ctx, key).Err()
}

// IssuePasswordResetToken generates and stores a reset token for the email.
func (s *AuthService) IssuePasswordResetToken(ctx context.Context, email string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := s.rdb.Set(ctx, config.CacheKey.PasswordResetKey(email), token, resetTokenTTL).Err(); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	return token, nil
}

// RedeemPasswordResetToken checks the token and consumes it on success.
func (s *AuthService) RedeemPasswordResetToken(ctx context.Context, email, token string) error {
	key := config.CacheKey.PasswordResetKey(email)
	stored, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("check reset token: %w", err)
	}
	if stored != token {
		return ErrInvalidResetToken
	}
	return s.rdb.Del(ctx, key).Err()
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}

package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key for a user's login session (JTI).
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// VerificationOTPKey returns the cache key for a pending email-verification OTP.
func (r *CacheKeyStruct) VerificationOTPKey(email string) string {
	return fmt.Sprintf("verify:%s:otp", email)
}

// PasswordResetKey returns the cache key for a pending password-reset token.
func (r *CacheKeyStruct) PasswordResetKey(email string) string {
	return fmt.Sprintf("pwreset:%s", email)
}

// TestStartKey returns the cache key for a test attempt's start time (unix seconds).
func (r *CacheKeyStruct) TestStartKey(testID string) string {
	return fmt.Sprintf("test:%s:session_start", testID)
}

// TestDurationKey returns the cache key for a test attempt's time limit (seconds).
func (r *CacheKeyStruct) TestDurationKey(testID string) string {
	return fmt.Sprintf("test:%s:duration", testID)
}

// ViolationLatchKey returns the cache key for a test attempt's one-shot
// violation latch. SETNX on this key guarantees at most one forced
// submission per attempt even across server instances.
func (r *CacheKeyStruct) ViolationLatchKey(testID string) string {
	return fmt.Sprintf("test:%s:violation_latch", testID)
}

// UserActiveTestKey returns the cache key for a user's currently active attempt.
func (r *CacheKeyStruct) UserActiveTestKey(userID int) string {
	return fmt.Sprintf("user:%d:active_test", userID)
}

// DeadlineIndexKey is the sorted-set key indexing active attempts by their
// deadline (unix seconds). The deadline worker sweeps this set.
func (r *CacheKeyStruct) DeadlineIndexKey() string {
	return "active_test_deadlines"
}

var CacheKey = NewCacheKeyStruct()

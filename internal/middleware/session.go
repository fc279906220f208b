package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/testschool/assessment-backend/internal/response"
	"github.com/testschool/assessment-backend/internal/service"
)

// CheckSingleDeviceSession validates the JWT's JTI against the active
// session in Redis. A mismatch means a newer login or a password reset
// replaced this session.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		// Only enforce for candidate tokens.
		if claims.TokenType != service.TokenTypeUser {
			c.Next()
			return
		}

		if err := authService.ValidateSession(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}

// RequireAttemptOwnership checks that the :testId attempt belongs to the
// authenticated user, so one candidate can never drive another's session.
func RequireAttemptOwnership(assessmentService *service.AssessmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		testID := c.Param("testId")
		test, err := assessmentService.Attempt(c.Request.Context(), testID)
		if err != nil {
			response.AbortFail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		if test.UserID != claims.UserID {
			response.AbortFail(c, http.StatusForbidden, response.ErrNotAttemptOwner)
			return
		}

		c.Next()
	}
}

package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrEmailTaken         ErrCode = "EMAIL_ALREADY_REGISTERED"
	ErrEmailNotVerified   ErrCode = "EMAIL_NOT_VERIFIED"
	ErrInvalidOTP         ErrCode = "INVALID_OTP"
	ErrInvalidResetToken  ErrCode = "INVALID_RESET_TOKEN"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"
	ErrNotAttemptOwner   ErrCode = "NOT_ATTEMPT_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrConflict         ErrCode = "CONFLICT"
	ErrDependencyExists ErrCode = "DEPENDENCY_EXISTS"

	// ─── Assessment-specific ───────────────────────────────────────────
	ErrInvalidStep         ErrCode = "INVALID_STEP"
	ErrNotEligible         ErrCode = "NOT_ELIGIBLE"
	ErrRetakeBlocked       ErrCode = "RETAKE_BLOCKED"
	ErrAttemptActive       ErrCode = "ATTEMPT_ALREADY_ACTIVE"
	ErrAttemptNotActive    ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrAttemptCompleted    ErrCode = "ATTEMPT_ALREADY_COMPLETED"
	ErrSubmissionInFlight  ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrAnswerOutOfBounds   ErrCode = "ANSWER_OUT_OF_BOUNDS"
	ErrQuestionMismatch    ErrCode = "QUESTION_MISMATCH"
	ErrInsufficientBank    ErrCode = "INSUFFICIENT_QUESTION_BANK"
	ErrCertificateMissing  ErrCode = "CERTIFICATE_NOT_FOUND"
	ErrCertificateRender   ErrCode = "CERTIFICATE_RENDER_FAILED"
	ErrResultsNotAvailable ErrCode = "RESULTS_NOT_AVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrEmailTaken:
		return "An account with this email already exists."
	case ErrEmailNotVerified:
		return "Please verify your email address before logging in."
	case ErrInvalidOTP:
		return "The verification code is invalid or has expired."
	case ErrInvalidResetToken:
		return "The password reset token is invalid or has expired."
	case ErrSessionInvalidated:
		return "Your session has been invalidated. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to candidate accounts."
	case ErrStaffAccessOnly:
		return "This resource is restricted to staff accounts."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."
	case ErrNotAttemptOwner:
		return "This assessment attempt belongs to another account."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrDependencyExists:
		return "The record cannot be deleted because other data depends on it."

	// ─── Assessment-specific ───────────────────────────────────────────
	case ErrInvalidStep:
		return "Assessment step must be 1, 2, or 3."
	case ErrNotEligible:
		return "You are not eligible to take this assessment step yet."
	case ErrRetakeBlocked:
		return "Your step-1 score was below the retake threshold; retakes are blocked."
	case ErrAttemptActive:
		return "You already have an active assessment attempt."
	case ErrAttemptNotActive:
		return "This assessment attempt is not active."
	case ErrAttemptCompleted:
		return "This assessment attempt has already been completed."
	case ErrSubmissionInFlight:
		return "A submission for this question is already being processed."
	case ErrAnswerOutOfBounds:
		return "The selected answer index is out of range for this question."
	case ErrQuestionMismatch:
		return "The submitted question is not the current question."
	case ErrInsufficientBank:
		return "Not enough questions are available to assemble this step."
	case ErrCertificateMissing:
		return "Certificate not found."
	case ErrCertificateRender:
		return "The certificate document could not be generated. Please try again."
	case ErrResultsNotAvailable:
		return "Results are not available for this attempt yet."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

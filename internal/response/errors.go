package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly   ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly   ErrCode = "TEACHER_ACCESS_ONLY"
	ErrNotExamOwner        ErrCode = "NOT_EXAM_OWNER"
	ErrNotSessionOwner     ErrCode = "NOT_SESSION_OWNER"
	ErrDifferentSchool     ErrCode = "DIFFERENT_SCHOOL"
	ErrNotEligible         ErrCode = "NOT_ELIGIBLE"
	ErrFeatureNotPermitted ErrCode = "FEATURE_NOT_PERMITTED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"
	ErrInvalidGrade   ErrCode = "INVALID_GRADE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrExamNotFound    ErrCode = "EXAM_NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotStarted    ErrCode = "EXAM_NOT_STARTED"
	ErrExamEnded         ErrCode = "EXAM_ENDED"
	ErrExamNotEditable   ErrCode = "EXAM_NOT_EDITABLE"
	ErrInvalidTransition ErrCode = "INVALID_STATUS_TRANSITION"
	ErrAlreadyTaken      ErrCode = "EXAM_ALREADY_TAKEN"
	ErrSessionFinal      ErrCode = "SESSION_ALREADY_FINISHED"
	ErrSessionLocked     ErrCode = "SESSION_LOCKED"
	ErrTimeUp            ErrCode = "TIME_UP"

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
		return "Invalid username or password."
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
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."
	case ErrNotExamOwner:
		return "You are not the owner of this exam."
	case ErrNotSessionOwner:
		return "This session belongs to another student."
	case ErrDifferentSchool:
		return "This exam belongs to a different school."
	case ErrNotEligible:
		return "This exam is not for your class."
	case ErrFeatureNotPermitted:
		return "Your school's subscription does not include proctored exams."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidAnswer:
		return "One or more answers do not match their question."
	case ErrInvalidGrade:
		return "Invalid grade."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrExamNotFound:
		return "Exam not found."
	case ErrSessionNotFound:
		return "Exam session not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrExamNotStarted:
		return "The teacher has not started this exam yet."
	case ErrExamEnded:
		return "This exam has ended."
	case ErrExamNotEditable:
		return "An exam can only be changed while it is scheduled."
	case ErrInvalidTransition:
		return "This status change is not allowed."
	case ErrAlreadyTaken:
		return "You have already taken this exam and cannot retake it."
	case ErrSessionFinal:
		return "This exam session is already finished."
	case ErrSessionLocked:
		return "Your session is locked. Please contact your teacher."
	case ErrTimeUp:
		return "Exam time is up."

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

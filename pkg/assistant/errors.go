package assistant

import "errors"

// Error codes returned in AssistantError.Code.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeAlreadyLinked   = "ALREADY_LINKED"
	CodeNotLinked       = "NOT_LINKED"
	CodeCRMUserNotFound = "CRM_USER_NOT_FOUND"
	CodeCRMUnavailable  = "CRM_UNAVAILABLE"
	CodeNotifyFailed    = "NOTIFY_FAILED"
	CodeNoPendingCode   = "NO_PENDING_CODE"
	CodeCodeExpired     = "CODE_EXPIRED"
	CodeCodeInvalid     = "CODE_INVALID"
	CodeTooManyAttempts = "TOO_MANY_ATTEMPTS"
	CodeInvalidTimezone = "INVALID_TIMEZONE"
	CodeInternal        = "INTERNAL_ERROR"
)

// AssistantError is a structured error from the assistant use cases.
type AssistantError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *AssistantError) Error() string {
	return e.Code + ": " + e.Message
}

// Unwrap exposes the underlying failure, if any.
func (e *AssistantError) Unwrap() error {
	return e.cause
}

// Retryable reports whether repeating the same request may succeed.
func (e *AssistantError) Retryable() bool {
	return e.Code == CodeInternal || e.Code == CodeCRMUnavailable
}

// NewAssistantError creates a new AssistantError.
func NewAssistantError(code, message string) *AssistantError {
	return &AssistantError{Code: code, Message: message}
}

func wrapError(code, message string, cause error) *AssistantError {
	return &AssistantError{Code: code, Message: message, cause: cause}
}

// ErrorCode returns the code of an AssistantError in err's chain, or
// INTERNAL_ERROR for any other non-nil error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var aErr *AssistantError
	if errors.As(err, &aErr) {
		return aErr.Code
	}
	return CodeInternal
}

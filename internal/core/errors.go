package core

import "errors"

// Error codes for domain errors. They travel to clients unchanged.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotJoined    = "not_joined"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal"

	ErrCodeUnsupportedVersion = "unsupported_version"

	// Call-related error codes. Refused call attempts are reported as
	// callFailed reasons, not as errors.
	ErrCodeCallNotFound      = "call_not_found"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeNotParticipant    = "not_participant"
)

var (
	ErrAlreadyJoined  = errors.New("connection already joined as another user")
	ErrUnknownCommand = errors.New("unknown command")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

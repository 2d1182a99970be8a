package core

import "errors"

// Error codes sent to clients in error envelopes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeAlreadyVoted = "already_voted"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeUnauthorized = "unauthorized"
)

var (
	ErrAlreadyVoted   = errors.New("already voted")
	ErrBadRequest     = errors.New("bad request")
	ErrClientClosed   = errors.New("client closed")
	ErrQueueSaturated = errors.New("outbound queue saturated")
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

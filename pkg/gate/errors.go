package gate

import (
	"errors"
	"fmt"
	"time"
)

// Machine-readable failure codes surfaced to tool callers.
const (
	CodeRateLimited  = "RATE_LIMITED"
	CodeMaxRetries   = "MAX_RETRIES"
	CodeBlockedURL   = "BLOCKED_URL"
	CodeInvalidInput = "INVALID_INPUT"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL"
)

// Sentinels for errors.Is checks.
var (
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrMaxRetries   = errors.New("retry budget exhausted")
	ErrBlockedURL   = errors.New("url blocked by policy")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
)

// Error is a typed failure carrying a machine-readable code and a numeric
// status alongside the human-readable message. Unwrap exposes both the class
// sentinel and the underlying cause, so errors.Is matches either.
type Error struct {
	Code    string
	Status  int
	Message string

	sentinel error
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.sentinel != nil {
		errs = append(errs, e.sentinel)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// RateLimited reports that key was denied admission. The wait is the
// estimated time until the next token accrues, for the caller's message.
func RateLimited(key string, wait time.Duration) *Error {
	msg := fmt.Sprintf("rate limit exceeded for %q", key)
	if wait > 0 {
		msg = fmt.Sprintf("%s, retry in ~%s", msg, wait.Round(time.Millisecond))
	}
	return &Error{
		Code:     CodeRateLimited,
		Status:   429,
		Message:  msg,
		sentinel: ErrRateLimited,
	}
}

// MaxRetries reports that op exhausted its attempt budget; cause is the last
// failure observed.
func MaxRetries(op string, attempts int, cause error) *Error {
	return &Error{
		Code:     CodeMaxRetries,
		Status:   503,
		Message:  fmt.Sprintf("%s failed after %d attempts", op, attempts),
		sentinel: ErrMaxRetries,
		cause:    cause,
	}
}

// Blocked reports that rawURL was rejected by the navigation policy.
func Blocked(rawURL, reason string) *Error {
	return &Error{
		Code:     CodeBlockedURL,
		Status:   403,
		Message:  fmt.Sprintf("url %q blocked: %s", rawURL, reason),
		sentinel: ErrBlockedURL,
	}
}

// Invalid reports a malformed or out-of-range request.
func Invalid(format string, args ...interface{}) *Error {
	return &Error{
		Code:     CodeInvalidInput,
		Status:   400,
		Message:  fmt.Sprintf(format, args...),
		sentinel: ErrInvalidInput,
	}
}

// Unavailable reports a dependency that could not serve the request.
func Unavailable(msg string, cause error) *Error {
	return &Error{
		Code:     CodeUnavailable,
		Status:   503,
		Message:  msg,
		sentinel: ErrUnavailable,
		cause:    cause,
	}
}

// AsError returns err as a typed *Error, synthesizing an INTERNAL one for
// plain errors so callers always have a code and status to report.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeInternal,
		Status:  500,
		Message: err.Error(),
		cause:   err,
	}
}

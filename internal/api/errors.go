package api

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError means the server rejected the supplied credentials. It is fatal:
// callers abort before doing any plan or execute work.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): check the API user and token", e.StatusCode)
}

// NotFoundError means the addressed resource does not exist on the server.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.What)
}

// TransientError wraps failures that are likely to succeed on retry:
// timeouts, connection resets and 5xx responses. The gateway never retries;
// retry policy belongs to callers.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient API failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// LogicError is a structured error the vendor returns inside a 200 response
// (envelope status "0"). The message is surfaced verbatim, never reinterpreted.
type LogicError struct {
	Group   string
	Action  string
	Message string
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("%s/%s failed: %s", e.Group, e.Action, e.Message)
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsNotFound reports whether err means the resource is missing.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// missingRow matches the vendor's two spellings of "no such scan".
func missingRow(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") || strings.Contains(lower, "row_not_found")
}

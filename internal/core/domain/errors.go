package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes a bridge error so the presentation layer can pick a
// degraded rendering instead of crashing.
type ErrorType string

const (
	// ErrorTypeTransient covers channel drops and timeouts. Recovered
	// automatically via reconnect or fallback polling; rendered as a
	// non-blocking status indicator.
	ErrorTypeTransient ErrorType = "transient"

	// ErrorTypeNotFound covers deleted sessions and invalid ids. Fatal for
	// that resource's channel; no retry.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeCommand covers rejected resolve/pause/resume/delete
	// requests. Recovered by re-fetching authoritative state.
	ErrorTypeCommand ErrorType = "command"

	// ErrorTypeMalformed covers undecodable payloads. Dropped at the
	// parsing boundary and never user-visible.
	ErrorTypeMalformed ErrorType = "malformed"

	// ErrorTypeTerminal covers unrecoverable channel failures such as an
	// exhausted retry budget. Unlike transient errors there is no
	// automatic recovery; the error stands until the channel is reopened
	// explicitly.
	ErrorTypeTerminal ErrorType = "terminal"
)

// BridgeError is the canonical error carried through observable error state.
type BridgeError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Resource   string    `json:"resource,omitempty"`
	StatusCode int       `json:"-"`
}

func (e *BridgeError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Resource, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode maps the error to a status code for the view server.
func (e *BridgeError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeCommand:
		return http.StatusBadGateway
	case ErrorTypeTransient, ErrorTypeTerminal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WithResource attaches the affected resource id.
func (e *BridgeError) WithResource(id string) *BridgeError {
	e.Resource = id
	return e
}

// WithStatusCode overrides the suggested HTTP status code.
func (e *BridgeError) WithStatusCode(code int) *BridgeError {
	e.StatusCode = code
	return e
}

// ErrTransient creates a transient connectivity error.
func ErrTransient(message string) *BridgeError {
	return &BridgeError{Type: ErrorTypeTransient, Message: message}
}

// ErrNotFound creates a resource-not-found error.
func ErrNotFound(message string) *BridgeError {
	return &BridgeError{Type: ErrorTypeNotFound, Message: message}
}

// ErrCommand creates a command-rejection error.
func ErrCommand(message string) *BridgeError {
	return &BridgeError{Type: ErrorTypeCommand, Message: message}
}

// ErrTerminal creates an unrecoverable channel error.
func ErrTerminal(message string) *BridgeError {
	return &BridgeError{Type: ErrorTypeTerminal, Message: message}
}

// IsNotFound reports whether err is (or wraps) a not-found bridge error.
func IsNotFound(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Type == ErrorTypeNotFound
}

// IsTransient reports whether err is (or wraps) a transient bridge error.
func IsTransient(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Type == ErrorTypeTransient
}

// IsTerminal reports whether err is (or wraps) an unrecoverable channel
// error.
func IsTerminal(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Type == ErrorTypeTerminal
}

package o3chat

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by PreconditionError.
var (
	ErrNotLoggedIn            = errors.New("username and password are required")
	ErrNoServer               = errors.New("no server address configured")
	ErrEmptyMessage           = errors.New("message is empty")
	ErrMissingChannelName     = errors.New("channel name is required")
	ErrIncompleteRegistration = errors.New("username, password and email are all required for registration")
	ErrUnsupported            = errors.New("operation not supported by this server version")
	ErrInvalidVersion         = errors.New("protocol version must be between 2 and 5")
)

// PreconditionError is returned when an operation is rejected locally,
// before anything is sent to the server.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("o3chat: %s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// TransportError covers failures to build, send or receive a request:
// TLS setup, handshake, connection and timeout errors.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("o3chat: %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means a successful response carried a payload that could
// not be decoded. Nothing from such a response is merged.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("o3chat: %s: decode: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response. Body is the server's diagnostic text,
// possibly empty.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("o3chat: http %d", e.StatusCode)
	}
	return fmt.Sprintf("o3chat: http %d: %s", e.StatusCode, e.Body)
}

// IsServerError reports whether err is a *ServerError with the given status.
func IsServerError(err error, status int) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode == status
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 0 when err did not
// come from a server response.
func StatusOf(err error) int {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode
	}
	return 0
}

func precondition(op string, err error) error {
	return &PreconditionError{Op: op, Err: err}
}

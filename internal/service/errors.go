package service

import (
	"errors"
	"log/slog"
)

// Sentinels classify a ServiceError. The HTTP layer maps each to a status.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal")
	ErrUnavailable  = errors.New("unavailable")
)

// ServiceError is what services return to handlers: a sentinel for the
// class, a stable machine code and a message safe to show the caller.
// Backend failures also carry the underlying cause, which is never shown.
type ServiceError struct {
	Err     error
	Code    string
	Message string

	cause error
}

func (e *ServiceError) Error() string { return e.Message }

// Unwrap exposes both the sentinel and the cause, so errors.Is can match
// context.Canceled behind an internal error.
func (e *ServiceError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.cause}
}

// NewError creates a ServiceError of the sentinel's class.
func NewError(sentinel error, code, message string) *ServiceError {
	return &ServiceError{Err: sentinel, Code: code, Message: message}
}

// NotFound also covers channels the caller is not a member of, so that
// their existence does not leak.
func NotFound(code, message string) *ServiceError {
	return NewError(ErrNotFound, code, message)
}

// Forbidden is for members who lack the channel permission for an action.
func Forbidden(code, message string) *ServiceError {
	return NewError(ErrForbidden, code, message)
}

func BadRequest(code, message string) *ServiceError {
	return NewError(ErrBadRequest, code, message)
}

// Conflict reports a uniqueness violation such as a registered email.
func Conflict(code, message string) *ServiceError {
	return NewError(ErrConflict, code, message)
}

func Unauthorized(code, message string) *ServiceError {
	return NewError(ErrUnauthorized, code, message)
}

func Internal(code, message string) *ServiceError {
	return NewError(ErrInternal, code, message)
}

// Unavailable is for optional backends that are not configured, like file
// storage without MinIO credentials.
func Unavailable(code, message string) *ServiceError {
	return NewError(ErrUnavailable, code, message)
}

// backendFailure logs a store or transport error and hides it from the
// caller. Failures are not retried.
func backendFailure(op string, err error) *ServiceError {
	slog.Error("backend failure", "op", op, "error", err)
	e := Internal("INTERNAL", "internal server error")
	e.cause = err
	return e
}

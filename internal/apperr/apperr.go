// Package apperr defines the error kinds shared by the booking core. Packages
// wrap these sentinels so callers can branch with errors.Is instead of
// matching message text.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed input. Retrying the same request never helps.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown doctor, date, slot or appointment.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a state conflict: slot already taken, terminal appointment.
	ErrConflict = errors.New("conflict")

	// ErrAuthorization marks a caller acting on a resource it does not own.
	ErrAuthorization = errors.New("not authorized")

	// ErrUnavailable marks a storage failure whose outcome could not be confirmed.
	ErrUnavailable = errors.New("temporarily unavailable")
)

// Kind names used on the wire.
const (
	KindValidation    = "validation"
	KindNotFound      = "not_found"
	KindConflict      = "conflict"
	KindAuthorization = "authorization"
	KindUnavailable   = "unavailable"
	KindInternal      = "internal"
)

// Validation wraps ErrValidation with a formatted detail.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with a formatted detail.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a formatted detail.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Unauthorized wraps ErrAuthorization with a formatted detail.
func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthorization, fmt.Sprintf(format, args...))
}

// IsDomain reports whether err carries one of the caller-facing kinds, as
// opposed to an unexpected storage or transport failure.
func IsDomain(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAuthorization)
}

// KindOf returns the machine-readable kind for err.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrAuthorization):
		return KindAuthorization
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Package apperr defines the error taxonomy shared by every engine
// component. Callers classify failures with errors.Is against the four
// sentinels; the HTTP layer maps them onto status codes.
package apperr

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrValidation marks malformed or empty input.
	ErrValidation = errors.New("validation failed")

	// ErrNotAuthorized marks a caller that is not a member of the
	// conversation, or not the owner of the message being mutated.
	// Where existence itself is sensitive it also stands in for
	// "not found", so non-members learn nothing.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound marks a referenced conversation or message that does
	// not exist, in contexts where existence is not sensitive.
	ErrNotFound = errors.New("not found")

	// ErrPersistence marks a storage-layer failure. Best-effort steps
	// log and swallow it; primary operations return it.
	ErrPersistence = errors.New("persistence failure")
)

func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }
func IsNotAuthorized(err error) bool { return errors.Is(err, ErrNotAuthorized) }
func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }

// Validationf wraps ErrValidation with the violated rule, which is safe to
// surface to the caller verbatim.
func Validationf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

// HTTPStatus maps an error onto the status code the API layer serves.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotAuthorized(err):
		return http.StatusForbidden
	case IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message is the user-facing text for an error: validation failures name
// the violated rule, everything else stays generic.
func Message(err error) string {
	switch {
	case IsValidation(err):
		return err.Error()
	case IsNotAuthorized(err):
		return "not allowed"
	case IsNotFound(err):
		return "not found"
	default:
		return "temporary failure, please retry"
	}
}

// Persistence wraps a storage error so callers can classify it without
// losing the underlying cause.
func Persistence(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrPersistence, "%s: %v", msg, err)
}

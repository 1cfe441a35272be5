// Package errs defines the error taxonomy shared by the marketplace
// services and the HTTP layer. Services return these sentinels (usually
// wrapped with fmt.Errorf and %w); the entitlement API maps them to
// stable status codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates an unknown plugin, user or version.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller is not entitled to the resource
	// (no purchase record, or not the resource owner).
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidScore indicates a rating score outside 1..5.
	ErrInvalidScore = errors.New("score must be between 1 and 5")

	// ErrInvalidArgument indicates malformed or missing input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthenticated indicates a missing or invalid bearer token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConflict indicates a persistence conflict that survived the
	// internal retry of an idempotent write.
	ErrConflict = errors.New("conflict")
)

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Forbiddenf wraps ErrForbidden with a formatted message.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrForbidden)...)
}

// InvalidArgumentf wraps ErrInvalidArgument with a formatted message.
func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

// HTTPStatus maps an error to its HTTP status code. Unrecognized errors
// map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidScore), errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

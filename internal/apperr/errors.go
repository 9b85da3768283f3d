package apperr

import (
	"errors"
	"fmt"
)

// Common errors shared by the geofence, association and membership layers.
// Handlers translate them to HTTP statuses; nothing below the HTTP layer
// should know about status codes.
var (
	ErrNotFound           = errors.New("not found")
	ErrCatalogUnavailable = errors.New("sector catalog unavailable")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrConflict           = errors.New("already exists")
)

// ValidationError reports malformed client input. Field is the dotted path of
// the offending value (e.g. "shape.coordinates[2].latitude") so the HTTP layer
// can surface it unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid builds a *ValidationError.
func Invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFound wraps ErrNotFound with the kind and id of the missing record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

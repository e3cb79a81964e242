package models

import (
	"errors"
	"fmt"
)

// ValidationError is a client-side input error. Handlers map it to 400 and
// the error classifier treats it as a validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError returns a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Sentinel errors for validation.
var (
	ErrMissingTitle   error = NewValidationError("title", "title is required")
	ErrInvalidPrice   error = NewValidationError("price", "price must be greater than 0")
	ErrInvalidStock   error = NewValidationError("stock", "stock must not be negative")
	ErrInvalidPages   error = NewValidationError("pages", "pages must be greater than 0")
	ErrInvalidDate    error = NewValidationError("publication_date", "publication_date must be formatted as YYYY-MM-DD")
	ErrMissingName    error = NewValidationError("name", "name is required")
	ErrInvalidAction  error = NewValidationError("action", "action must be one of CREATE, READ, UPDATE, DELETE, LOGIN, LOGOUT, EXPORT")
	ErrMissingTable   error = NewValidationError("table_name", "table_name is required")
	ErrInvalidRefKind error = NewValidationError("kind", "kind must be author, publisher or genre")
	ErrEmptyBatch     error = NewValidationError("items", "batch must contain at least one item")
)

// Sentinel errors for entity lookups.
var (
	ErrBookNotFound      = errors.New("book not found")
	ErrReferenceNotFound = errors.New("reference not found")
	ErrUserNotFound      = errors.New("user not found")
)

// ErrDuplicateKey indicates a unique constraint violation. It is classified
// as a constraint violation (HTTP 400).
var ErrDuplicateKey = errors.New("duplicate key")

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return NewValidationError(field, fmt.Sprintf("%s exceeds maximum length of %d", field, maxLen))
}

// IsNotFound reports whether err is any of the lookup sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrReferenceNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

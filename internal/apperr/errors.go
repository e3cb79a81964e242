// Package apperr classifies database and domain errors, turns them into
// user-facing errors and retries transient failures with exponential backoff.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind is the taxonomy label assigned to a classified failure.
type Kind string

// Error kinds.
const (
	KindDeadlock   Kind = "DEADLOCK"
	KindTimeout    Kind = "TIMEOUT"
	KindConstraint Kind = "CONSTRAINT_VIOLATION"
	KindConnection Kind = "CONNECTION_ERROR"
	KindValidation Kind = "VALIDATION_ERROR"
	KindBusiness   Kind = "BUSINESS_LOGIC_ERROR"
	KindUnknown    Kind = "UNKNOWN_ERROR"
)

// Machine-readable codes carried by AppError.
const (
	CodeDeadlock   = "deadlock"
	CodeTimeout    = "timeout"
	CodeConstraint = "constraint_violation"
	CodeConnection = "connection_error"
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeBusiness   = "business_rule_violation"
	CodeInternal   = "internal_error"
)

// AppError is the user-facing shape of a failure.
type AppError struct {
	Kind      Kind
	Status    int
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error { return e.Err }

// New returns a client error with the given status. It classifies as
// VALIDATION_ERROR when status is 4xx.
func New(status int, code, message string) *AppError {
	kind := KindUnknown
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		kind = KindValidation
	}

	return &AppError{Kind: kind, Status: status, Code: code, Message: message}
}

// BusinessError signals that a request was well-formed but broke a domain rule,
// such as removing more stock than is on hand.
type BusinessError struct {
	Rule    string
	Message string
}

func (e *BusinessError) Error() string { return e.Message }

// NewBusinessError returns a BusinessError for rule.
func NewBusinessError(rule, message string) *BusinessError {
	return &BusinessError{Rule: rule, Message: message}
}

package apperr

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bookvault/bookvault/internal/models"
)

// Classification is the outcome of inspecting one error.
type Classification struct {
	Kind      Kind
	Status    int
	Code      string
	Message   string
	Retryable bool
}

// AppError wraps err in the user-facing error described by c.
func (c Classification) AppError(err error) *AppError {
	return &AppError{
		Kind:      c.Kind,
		Status:    c.Status,
		Code:      c.Code,
		Message:   c.Message,
		Retryable: c.Retryable,
		Err:       err,
	}
}

// PostgreSQL SQLSTATE codes and classes consulted by Classify.
const (
	sqlStateDeadlock         = "40P01"
	sqlStateSerialization    = "40001"
	sqlStateLockNotAvailable = "55P03"
	sqlStateQueryCanceled    = "57014"
	sqlStateNotNull          = "23502"
	sqlStateForeignKey       = "23503"
	sqlStateUnique           = "23505"
	sqlStateCheck            = "23514"
	sqlClassIntegrity        = "23"
	sqlClassConnection       = "08"
)

// Classify assigns err a Kind, status and message. Checks run in priority
// order: deadlock, timeout, constraint, connection, client error, business
// rule, unknown. Message text and PostgreSQL error codes feed the same buckets.
// Retryable is the default policy (deadlock, timeout, connection); a
// RetryStrategy may narrow or widen it.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" && appErr.Kind != KindValidation {
		return Classification{
			Kind:      appErr.Kind,
			Status:    appErr.Status,
			Code:      appErr.Code,
			Message:   appErr.Message,
			Retryable: appErr.Retryable,
		}
	}

	msg := strings.ToLower(err.Error())

	var pgErr *pgconn.PgError
	sqlState := ""
	if errors.As(err, &pgErr) {
		sqlState = pgErr.Code
		msg += " " + strings.ToLower(pgErr.ConstraintName+" "+pgErr.Detail+" "+pgErr.ColumnName)
	}

	switch {
	case isDeadlock(msg, sqlState):
		return deadlock()
	case isTimeout(err, msg, sqlState):
		return timeout()
	case isConstraint(msg, sqlState):
		return constraint(msg, sqlState)
	case isConnection(err, msg, sqlState):
		return connection()
	}

	if c, ok := clientError(err); ok {
		return c
	}

	var bizErr *BusinessError
	if errors.As(err, &bizErr) {
		return Classification{
			Kind:    KindBusiness,
			Status:  http.StatusUnprocessableEntity,
			Code:    CodeBusiness,
			Message: bizErr.Message,
		}
	}

	return Classification{
		Kind:    KindUnknown,
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "An unexpected error occurred",
	}
}

func isDeadlock(msg, sqlState string) bool {
	switch sqlState {
	case sqlStateDeadlock, sqlStateSerialization, sqlStateLockNotAvailable:
		return true
	}

	return strings.Contains(msg, "deadlock") || strings.Contains(msg, "lock wait timeout")
}

func isTimeout(err error, msg, sqlState string) bool {
	if sqlState == sqlStateQueryCanceled || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}

	return strings.Contains(msg, "timeout")
}

func isConstraint(msg, sqlState string) bool {
	if strings.HasPrefix(sqlState, sqlClassIntegrity) {
		return true
	}

	for _, kw := range []string{"constraint", "unique", "foreign key", "duplicate"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}

	return false
}

func isConnection(err error, msg, sqlState string) bool {
	if strings.HasPrefix(sqlState, sqlClassConnection) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	for _, kw := range []string{"connection", "connect", "refused", "timed out"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}

	return false
}

func deadlock() Classification {
	return Classification{
		Kind:      KindDeadlock,
		Status:    http.StatusConflict,
		Code:      CodeDeadlock,
		Message:   "The operation conflicted with a concurrent transaction, please retry",
		Retryable: true,
	}
}

func timeout() Classification {
	return Classification{
		Kind:      KindTimeout,
		Status:    http.StatusRequestTimeout,
		Code:      CodeTimeout,
		Message:   "The operation took too long to complete, please retry",
		Retryable: true,
	}
}

func connection() Classification {
	return Classification{
		Kind:      KindConnection,
		Status:    http.StatusServiceUnavailable,
		Code:      CodeConnection,
		Message:   "The database is temporarily unavailable, please retry",
		Retryable: true,
	}
}

func constraint(msg, sqlState string) Classification {
	c := Classification{
		Kind:   KindConstraint,
		Status: http.StatusBadRequest,
		Code:   CodeConstraint,
	}

	isDup := sqlState == sqlStateUnique || strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")

	switch {
	case isDup && strings.Contains(msg, "isbn"):
		c.Message = "A book with this ISBN already exists"
	case isDup && strings.Contains(msg, "email"):
		c.Message = "A user with this email already exists"
	case isDup && strings.Contains(msg, "name"):
		c.Message = "A record with this name already exists"
	case isDup:
		c.Message = "A record with the same unique value already exists"
	case sqlState == sqlStateForeignKey || strings.Contains(msg, "foreign key"):
		c.Message = "The record references a missing entry or is still referenced by other records"
	case sqlState == sqlStateNotNull:
		c.Message = "A required field is missing"
	case sqlState == sqlStateCheck || strings.Contains(msg, "check constraint"):
		c.Message = "A field value is outside the allowed range"
	default:
		c.Message = "The data violates a database constraint"
	}

	return c
}

// clientError recognises errors that already describe a bad request.
func clientError(err error) (Classification, bool) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return Classification{
			Kind:    KindValidation,
			Status:  http.StatusBadRequest,
			Code:    CodeValidation,
			Message: ve.Message,
		}, true
	}

	if models.IsNotFound(err) {
		return Classification{
			Kind:    KindValidation,
			Status:  http.StatusNotFound,
			Code:    CodeNotFound,
			Message: notFoundMessage(err),
		}, true
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status >= 400 && appErr.Status < 500 {
		return Classification{
			Kind:    KindValidation,
			Status:  appErr.Status,
			Code:    appErr.Code,
			Message: appErr.Message,
		}, true
	}

	return Classification{}, false
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrBookNotFound):
		return "book not found"
	case errors.Is(err, models.ErrReferenceNotFound):
		return "reference not found"
	default:
		return "not found"
	}
}

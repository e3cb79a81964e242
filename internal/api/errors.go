package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/httputil"
	"github.com/bookvault/bookvault/internal/metrics"
	"github.com/bookvault/bookvault/internal/middleware"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = apperr.CodeNotFound
	ErrCodeInternalError   = apperr.CodeInternal
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeValidationError = apperr.CodeValidation
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondBindError renders a request binding failure as a 400.
func respondBindError(c *gin.Context, err error) {
	respondError(c, 400, ErrCodeValidationError, translateValidationError(err))
}

// failure classifies err through the executor, which logs and audits it, and
// writes the resulting status and body.
type failure struct {
	exec *apperr.Executor
	log  *logrus.Logger
}

func (f failure) respond(c *gin.Context, op apperr.OperationContext, err error) {
	op.Actor = middleware.ActorFromContext(c)

	var appErr *apperr.AppError
	if f.exec != nil {
		appErr = f.exec.HandleTransactionError(c.Request.Context(), op, err)
	} else {
		appErr = apperr.Classify(err).AppError(err)
		f.log.WithError(err).WithField("operation", op.Operation).Error("request failed")
	}

	metrics.ErrorsTotal.WithLabelValues(appErr.Code).Inc()
	httputil.RespondAppError(c, appErr)
}

// Request decoding errors for CSV uploads.
var (
	errMissingFile    = errors.New("multipart upload must contain a \"file\" field")
	errUnreadableBody = errors.New("request body could not be read")
)

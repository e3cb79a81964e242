// Package httputil provides shared HTTP response helpers.
package httputil

import (
	"github.com/gin-gonic/gin"

	"github.com/bookvault/bookvault/internal/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(c *gin.Context) string {
	if rid, exists := c.Get("request_id"); exists {
		if s, ok := rid.(string); ok {
			return s
		}
	}

	return ""
}

// RespondError writes a standardized JSON error response and aborts the request.
func RespondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: requestID(c),
	})
}

// RespondAppError writes a classified error with its status and retry hint.
func RespondAppError(c *gin.Context, err *apperr.AppError) {
	c.AbortWithStatusJSON(err.Status, ErrorBody{
		Code:      err.Code,
		Message:   err.Message,
		Retryable: err.Retryable,
		RequestID: requestID(c),
	})
}

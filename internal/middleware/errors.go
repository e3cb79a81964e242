package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/httputil"
	"github.com/bookvault/bookvault/internal/metrics"
)

// respondError delegates to the shared httputil.RespondError helper.
func respondError(c *gin.Context, code int, errCode, message string) {
	metrics.ErrorsTotal.WithLabelValues(errCode).Inc()
	httputil.RespondError(c, code, errCode, message)
}

func respondAppError(c *gin.Context, err *apperr.AppError) {
	metrics.ErrorsTotal.WithLabelValues(err.Code).Inc()
	httputil.RespondAppError(c, err)
}

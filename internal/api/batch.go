package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/middleware"
	"github.com/bookvault/bookvault/internal/models"
)

// BatchHandler serves CSV import and bulk book endpoints.
type BatchHandler struct {
	batch BatchService
	fail  failure
	log   *logrus.Logger
}

// NewBatchHandler creates a BatchHandler. exec may be nil.
func NewBatchHandler(batch BatchService, exec *apperr.Executor, log *logrus.Logger) *BatchHandler {
	return &BatchHandler{batch: batch, fail: failure{exec: exec, log: log}, log: log}
}

// batchOptionsBody is the JSON form of batch options. audit_changes defaults to true.
type batchOptionsBody struct {
	ChunkSize       int   `json:"chunk_size" binding:"gte=0"`
	ContinueOnError bool  `json:"continue_on_error"`
	AuditChanges    *bool `json:"audit_changes"`
}

func (b *batchOptionsBody) options(c *gin.Context) models.BatchOptions {
	opts := models.DefaultBatchOptions()
	opts.Actor = middleware.ActorFromContext(c)

	if b == nil {
		return opts
	}

	if b.ChunkSize > 0 {
		opts.ChunkSize = b.ChunkSize
	}
	opts.ContinueOnError = b.ContinueOnError
	if b.AuditChanges != nil {
		opts.AuditChanges = *b.AuditChanges
	}

	return opts
}

type bulkUpdateRequest struct {
	Updates []models.BookUpdate `json:"updates" binding:"required,dive"`
	Options *batchOptionsBody   `json:"options"`
}

type bulkDeleteRequest struct {
	IDs     []int64           `json:"ids" binding:"required,dive,gt=0"`
	Options *batchOptionsBody `json:"options"`
}

type operationsRequest struct {
	Operations []models.Operation `json:"operations" binding:"required,dive"`
}

func batchOp(name string) apperr.OperationContext {
	return apperr.OperationContext{Operation: name, Action: models.ActionUpdate, TableName: booksTable}
}

// respondBatch writes a batch result: 200 when the work was kept, 422 when
// the whole batch was rolled back.
func (h *BatchHandler) respondBatch(c *gin.Context, action string, result *models.BatchResult) {
	h.log.WithFields(logrus.Fields{
		"action":      action,
		"successful":  result.Successful,
		"failed":      result.Failed,
		"rolled_back": result.RolledBack,
	}).Info("batch.result")

	status := http.StatusOK
	if result.RolledBack {
		status = http.StatusUnprocessableEntity
	}

	c.JSON(status, result)
}

// Import handles POST /api/v1/books/import. The CSV is taken from a multipart
// "file" field or, otherwise, from the raw request body. Options come from
// the query string.
func (h *BatchHandler) Import(c *gin.Context) {
	csvText, err := readCSVUpload(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	opts := models.DefaultBatchOptions()
	opts.Actor = middleware.ActorFromContext(c)
	opts.ContinueOnError = queryBool(c, "continue_on_error", false)
	opts.ValidateOnly = queryBool(c, "validate_only", false)
	opts.UpdateExisting = queryBool(c, "update_existing", false)
	opts.AuditChanges = queryBool(c, "audit_changes", true)
	if n, err := strconv.Atoi(c.Query("chunk_size")); err == nil && n > 0 {
		opts.ChunkSize = n
	}

	result, err := h.batch.ImportBooksFromCSV(c.Request.Context(), csvText, opts)
	if err != nil {
		h.fail.respond(c, apperr.OperationContext{Operation: "book.import", Action: models.ActionCreate, TableName: booksTable}, err)

		return
	}

	h.respondBatch(c, "book.import", result)
}

func readCSVUpload(c *gin.Context) (string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", errMissingFile
		}

		f, err := fh.Open()
		if err != nil {
			return "", errMissingFile
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return "", errUnreadableBody
		}

		return string(data), nil
	}

	data, err := c.GetRawData()
	if err != nil {
		return "", errUnreadableBody
	}

	return string(data), nil
}

// BulkUpdate handles POST /api/v1/books/bulk-update.
func (h *BatchHandler) BulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)

		return
	}

	result, err := h.batch.BulkUpdateBooks(c.Request.Context(), req.Updates, req.Options.options(c))
	if err != nil {
		h.fail.respond(c, batchOp("book.bulk_update"), err)

		return
	}

	h.respondBatch(c, "book.bulk_update", result)
}

// BulkDelete handles POST /api/v1/books/bulk-delete.
func (h *BatchHandler) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)

		return
	}

	result, err := h.batch.BulkDeleteBooks(c.Request.Context(), req.IDs, req.Options.options(c))
	if err != nil {
		op := batchOp("book.bulk_delete")
		op.Action = models.ActionDelete
		h.fail.respond(c, op, err)

		return
	}

	h.respondBatch(c, "book.bulk_delete", result)
}

// Operations handles POST /api/v1/books/operations.
func (h *BatchHandler) Operations(c *gin.Context) {
	var req operationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)

		return
	}

	result, err := h.batch.ProcessMultipleOperations(c.Request.Context(), middleware.ActorFromContext(c), req.Operations)
	if err != nil {
		h.fail.respond(c, batchOp("book.operations"), err)

		return
	}

	c.JSON(http.StatusOK, result)
}

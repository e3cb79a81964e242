package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/middleware"
	"github.com/bookvault/bookvault/internal/models"
)

const auditTable = "audit_logs"

// AuditHandler serves audit log queries and export.
type AuditHandler struct {
	audit AuditService
	fail  failure
	log   *logrus.Logger
}

// NewAuditHandler creates an AuditHandler. exec may be nil.
func NewAuditHandler(audit AuditService, exec *apperr.Executor, log *logrus.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, fail: failure{exec: exec, log: log}, log: log}
}

func auditOp(name string, action models.AuditAction) apperr.OperationContext {
	return apperr.OperationContext{Operation: name, Action: action, TableName: auditTable}
}

// parseAuditFilters reads the audit query string. Dates are RFC3339 or
// YYYY-MM-DD; a bare end date covers the whole day.
func parseAuditFilters(c *gin.Context) (models.AuditFilters, error) {
	f := models.AuditFilters{
		TableName: c.Query("table_name"),
		IPAddress: c.Query("ip_address"),
		Page:      parseInt(c.Query("page"), 1),
		Limit:     parseInt(c.Query("limit"), 20),
	}

	if uid := parseQueryID(c, "user_id"); uid > 0 {
		f.UserID = &uid
	}

	action, err := models.ParseAuditAction(c.Query("action"))
	if err != nil {
		return f, err
	}
	f.Action = action

	if s := c.Query("start_date"); s != "" {
		t, err := models.ParseAuditDate(s, false)
		if err != nil {
			return f, models.NewValidationError("start_date", "start_date must be RFC3339 or YYYY-MM-DD")
		}
		f.StartDate = &t
	}

	if s := c.Query("end_date"); s != "" {
		t, err := models.ParseAuditDate(s, true)
		if err != nil {
			return f, models.NewValidationError("end_date", "end_date must be RFC3339 or YYYY-MM-DD")
		}
		f.EndDate = &t
	}

	return f, nil
}

// List handles GET /api/v1/audit.
func (h *AuditHandler) List(c *gin.Context) {
	f, err := parseAuditFilters(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())

		return
	}

	page, err := h.audit.FindAll(c.Request.Context(), f)
	if err != nil {
		h.fail.respond(c, auditOp("audit.list", models.ActionRead), err)

		return
	}

	c.JSON(http.StatusOK, page)
}

// Stats handles GET /api/v1/audit/stats.
func (h *AuditHandler) Stats(c *gin.Context) {
	stats, err := h.audit.Stats(c.Request.Context())
	if err != nil {
		h.fail.respond(c, auditOp("audit.stats", models.ActionRead), err)

		return
	}

	c.JSON(http.StatusOK, stats)
}

// Export handles GET /api/v1/audit/export.
func (h *AuditHandler) Export(c *gin.Context) {
	f, err := parseAuditFilters(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())

		return
	}

	data, rows, err := h.audit.ExportCSV(c.Request.Context(), f)
	if err != nil {
		h.fail.respond(c, auditOp("audit.export", models.ActionExport), err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "audit.export", "rows": rows}).Info("audit")

	c.Set(middleware.AuditDetailKey, map[string]any{"rows": rows})
	c.Header("Content-Disposition", `attachment; filename="audit_logs.csv"`)
	c.Header("X-Total-Count", strconv.Itoa(rows))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// ByUser handles GET /api/v1/audit/users/:id.
func (h *AuditHandler) ByUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	entries, err := h.audit.FindByUserID(c.Request.Context(), id)
	if err != nil {
		h.fail.respond(c, auditOp("audit.by_user", models.ActionRead), err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// ByTable handles GET /api/v1/audit/tables/:table.
func (h *AuditHandler) ByTable(c *gin.Context) {
	table := c.Param("table")
	if len(table) > 100 {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "table exceeds maximum length of 100")

		return
	}

	entries, err := h.audit.FindByTableName(c.Request.Context(), table)
	if err != nil {
		h.fail.respond(c, auditOp("audit.by_table", models.ActionRead), err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

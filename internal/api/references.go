package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/middleware"
	"github.com/bookvault/bookvault/internal/models"
)

// ReferenceHandler serves the author, publisher and genre endpoints for one kind.
type ReferenceHandler struct {
	kind models.RefKind
	refs ReferenceService
	fail failure
	log  *logrus.Logger
}

// NewReferenceHandler creates a ReferenceHandler for kind. exec may be nil.
func NewReferenceHandler(kind models.RefKind, refs ReferenceService, exec *apperr.Executor, log *logrus.Logger) *ReferenceHandler {
	return &ReferenceHandler{kind: kind, refs: refs, fail: failure{exec: exec, log: log}, log: log}
}

func (h *ReferenceHandler) op(verb string, action models.AuditAction, id int64) apperr.OperationContext {
	op := apperr.OperationContext{
		Operation: string(h.kind) + "." + verb,
		Action:    action,
		TableName: h.kind.Table(),
	}
	if id > 0 {
		op.RecordID = models.RecordID(id)
	}

	return op
}

// List handles GET /api/v1/{kind}s.
func (h *ReferenceHandler) List(c *gin.Context) {
	limit := parseInt(c.DefaultQuery("limit", "100"), 100)
	offset := parseOffset(c.DefaultQuery("offset", "0"))

	refs, err := h.refs.ListReferences(c.Request.Context(), h.kind, c.Query("search"), limit, offset)
	if err != nil {
		h.fail.respond(c, h.op("list", models.ActionRead, 0), err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"data": refs})
}

// Get handles GET /api/v1/{kind}s/:id.
func (h *ReferenceHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ref, err := h.refs.GetReference(c.Request.Context(), h.kind, id)
	if err != nil {
		h.fail.respond(c, h.op("get", models.ActionRead, id), err)

		return
	}

	c.JSON(http.StatusOK, ref)
}

// Create handles POST /api/v1/{kind}s.
func (h *ReferenceHandler) Create(c *gin.Context) {
	var req models.ReferenceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)

		return
	}

	ref, err := h.refs.CreateReference(c.Request.Context(), middleware.ActorFromContext(c), h.kind, req)
	if err != nil {
		h.fail.respond(c, h.op("create", models.ActionCreate, 0), err)

		return
	}

	c.JSON(http.StatusCreated, ref)
}

// Rename handles PUT /api/v1/{kind}s/:id.
func (h *ReferenceHandler) Rename(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.ReferenceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)

		return
	}

	ref, err := h.refs.RenameReference(c.Request.Context(), middleware.ActorFromContext(c), h.kind, id, req)
	if err != nil {
		h.fail.respond(c, h.op("rename", models.ActionUpdate, id), err)

		return
	}

	c.JSON(http.StatusOK, ref)
}

// Delete handles DELETE /api/v1/{kind}s/:id.
func (h *ReferenceHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.refs.DeleteReference(c.Request.Context(), middleware.ActorFromContext(c), h.kind, id); err != nil {
		h.fail.respond(c, h.op("delete", models.ActionDelete, id), err)

		return
	}

	c.Status(http.StatusNoContent)
}

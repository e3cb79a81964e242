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

const booksTable = "books"

// BookHandler serves book CRUD, stock and export endpoints.
type BookHandler struct {
	books BookService
	fail  failure
	log   *logrus.Logger
}

// NewBookHandler creates a BookHandler. exec may be nil, in which case
// failures are classified without being audited.
func NewBookHandler(books BookService, exec *apperr.Executor, log *logrus.Logger) *BookHandler {
	return &BookHandler{books: books, fail: failure{exec: exec, log: log}, log: log}
}

func bookOp(name string, action models.AuditAction, id int64) apperr.OperationContext {
	op := apperr.OperationContext{Operation: name, Action: action, TableName: booksTable}
	if id > 0 {
		op.RecordID = models.RecordID(id)
	}

	return op
}

// List handles GET /api/v1/books.
func (h *BookHandler) List(c *gin.Context) {
	opts := models.BookListOpts{
		Search:      c.Query("search"),
		AuthorID:    parseQueryID(c, "author_id"),
		PublisherID: parseQueryID(c, "publisher_id"),
		GenreID:     parseQueryID(c, "genre_id"),
		Limit:       parseInt(c.DefaultQuery("limit", "50"), 50),
		Offset:      parseOffset(c.DefaultQuery("offset", "0")),
	}

	books, total, err := h.books.ListBooks(c.Request.Context(), opts)
	if err != nil {
		h.fail.respond(c, bookOp("book.list", models.ActionRead, 0), err)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   books,
		"total":  total,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// Get handles GET /api/v1/books/:id.
func (h *BookHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	book, err := h.books.GetBook(c.Request.Context(), id)
	if err != nil {
		h.fail.respond(c, bookOp("book.get", models.ActionRead, id), err)

		return
	}

	c.Set(middleware.AuditDetailKey, map[string]any{"title": book.Title})
	c.JSON(http.StatusOK, book)
}

// Create handles POST /api/v1/books.
func (h *BookHandler) Create(c *gin.Context) {
	var req models.BookInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)

		return
	}

	book, err := h.books.CreateBook(c.Request.Context(), middleware.ActorFromContext(c), req)
	if err != nil {
		h.fail.respond(c, bookOp("book.create", models.ActionCreate, 0), err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "book.create", "book_id": book.ID}).Info("audit")

	c.JSON(http.StatusCreated, book)
}

// Update handles PUT /api/v1/books/:id.
func (h *BookHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.BookPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)

		return
	}

	book, err := h.books.UpdateBook(c.Request.Context(), middleware.ActorFromContext(c), id, req)
	if err != nil {
		h.fail.respond(c, bookOp("book.update", models.ActionUpdate, id), err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "book.update", "book_id": id}).Info("audit")

	c.JSON(http.StatusOK, book)
}

// Delete handles DELETE /api/v1/books/:id.
func (h *BookHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.books.DeleteBook(c.Request.Context(), middleware.ActorFromContext(c), id); err != nil {
		h.fail.respond(c, bookOp("book.delete", models.ActionDelete, id), err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "book.delete", "book_id": id}).Info("audit")

	c.Status(http.StatusNoContent)
}

// AdjustStock handles PATCH /api/v1/books/:id/stock.
func (h *BookHandler) AdjustStock(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.StockAdjustment
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)

		return
	}

	book, err := h.books.AdjustStock(c.Request.Context(), middleware.ActorFromContext(c), id, req.Delta)
	if err != nil {
		h.fail.respond(c, bookOp("book.adjust_stock", models.ActionUpdate, id), err)

		return
	}

	c.JSON(http.StatusOK, book)
}

// Export handles GET /api/v1/books/export.
func (h *BookHandler) Export(c *gin.Context) {
	data, rows, err := h.books.ExportBooksCSV(c.Request.Context())
	if err != nil {
		h.fail.respond(c, bookOp("book.export", models.ActionExport, 0), err)

		return
	}

	c.Set(middleware.AuditDetailKey, map[string]any{"rows": rows})
	c.Header("Content-Disposition", `attachment; filename="books.csv"`)
	c.Header("X-Total-Count", strconv.Itoa(rows))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// Package domain defines the canonical service interfaces shared across API
// layers (REST handlers, CLI commands). Consumers should depend on these
// interfaces rather than re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/bookvault/bookvault/internal/models"
)

// BookService defines book operations.
type BookService interface {
	ListBooks(ctx context.Context, opts models.BookListOpts) ([]models.Book, int64, error)
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	CreateBook(ctx context.Context, actor models.Actor, in models.BookInput) (*models.Book, error)
	UpdateBook(ctx context.Context, actor models.Actor, id int64, patch models.BookPatch) (*models.Book, error)
	DeleteBook(ctx context.Context, actor models.Actor, id int64) error
	AdjustStock(ctx context.Context, actor models.Actor, id int64, delta int) (*models.Book, error)
	ExportBooksCSV(ctx context.Context) ([]byte, int, error)
}

// ReferenceService defines author, publisher and genre operations.
type ReferenceService interface {
	ListReferences(ctx context.Context, kind models.RefKind, search string, limit, offset int) ([]models.Reference, error)
	GetReference(ctx context.Context, kind models.RefKind, id int64) (*models.Reference, error)
	CreateReference(ctx context.Context, actor models.Actor, kind models.RefKind, in models.ReferenceInput) (*models.Reference, error)
	RenameReference(ctx context.Context, actor models.Actor, kind models.RefKind, id int64, in models.ReferenceInput) (*models.Reference, error)
	DeleteReference(ctx context.Context, actor models.Actor, kind models.RefKind, id int64) error
}

// BatchService defines bulk import, update and delete.
type BatchService interface {
	ImportBooksFromCSV(ctx context.Context, csvText string, opts models.BatchOptions) (*models.BatchResult, error)
	BulkUpdateBooks(ctx context.Context, updates []models.BookUpdate, opts models.BatchOptions) (*models.BatchResult, error)
	BulkDeleteBooks(ctx context.Context, ids []int64, opts models.BatchOptions) (*models.BatchResult, error)
	ProcessMultipleOperations(ctx context.Context, actor models.Actor, ops []models.Operation) (*models.OperationsResult, error)
}

// AuditService defines audit log queries and export.
type AuditService interface {
	FindAll(ctx context.Context, f models.AuditFilters) (*models.AuditPage, error)
	FindByUserID(ctx context.Context, userID int64) ([]models.AuditEntry, error)
	FindByTableName(ctx context.Context, table string) ([]models.AuditEntry, error)
	Stats(ctx context.Context) (*models.AuditStats, error)
	ExportCSV(ctx context.Context, f models.AuditFilters) ([]byte, int, error)
}

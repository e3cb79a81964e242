package service

import (
	"context"

	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/models"
)

// BookStore is the data-access interface the book and batch services depend on.
// A nil Querier runs the statement on the pool.
type BookStore interface {
	Get(ctx context.Context, q dbpool.Querier, id int64) (*models.Book, error)
	GetForUpdate(ctx context.Context, q dbpool.Querier, id int64) (*models.Book, error)
	FindByISBN(ctx context.Context, q dbpool.Querier, isbn string) (*models.Book, error)
	FindByTitle(ctx context.Context, q dbpool.Querier, title string) (*models.Book, error)
	List(ctx context.Context, q dbpool.Querier, opts models.BookListOpts) ([]models.Book, int64, error)
	ListAll(ctx context.Context, q dbpool.Querier) ([]models.Book, error)
	Create(ctx context.Context, q dbpool.Querier, b *models.Book) (*models.Book, error)
	Update(ctx context.Context, q dbpool.Querier, b *models.Book) (*models.Book, error)
	SetStock(ctx context.Context, q dbpool.Querier, id int64, stock int) error
	Delete(ctx context.Context, q dbpool.Querier, id int64) error
}

// ReferenceStore is the data-access interface for authors, publishers and genres.
type ReferenceStore interface {
	Get(ctx context.Context, q dbpool.Querier, kind models.RefKind, id int64) (*models.Reference, error)
	FindByName(ctx context.Context, q dbpool.Querier, kind models.RefKind, name string) (*models.Reference, error)
	List(ctx context.Context, q dbpool.Querier, kind models.RefKind, search string, limit, offset int) ([]models.Reference, error)
	Create(ctx context.Context, q dbpool.Querier, kind models.RefKind, name string) (*models.Reference, error)
	Rename(ctx context.Context, q dbpool.Querier, kind models.RefKind, id int64, name string) (*models.Reference, error)
	Delete(ctx context.Context, q dbpool.Querier, kind models.RefKind, id int64) error
}

// AuditStore is the data-access interface AuditService depends on.
type AuditStore interface {
	Insert(ctx context.Context, q dbpool.Querier, e *models.AuditEntry) error
	Find(ctx context.Context, q dbpool.Querier, f models.AuditFilters) ([]models.AuditEntry, int64, error)
	FindByUser(ctx context.Context, q dbpool.Querier, userID int64) ([]models.AuditEntry, error)
	FindByTable(ctx context.Context, q dbpool.Querier, table string) ([]models.AuditEntry, error)
	ListForExport(ctx context.Context, q dbpool.Querier, f models.AuditFilters) ([]models.AuditEntry, error)
	Stats(ctx context.Context, q dbpool.Querier) (*models.AuditStats, error)
}

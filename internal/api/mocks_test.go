package api_test

import (
	"context"

	"github.com/bookvault/bookvault/internal/models"
)

// mockBookService implements api.BookService for testing.
type mockBookService struct {
	listFn   func(ctx context.Context, opts models.BookListOpts) ([]models.Book, int64, error)
	getFn    func(ctx context.Context, id int64) (*models.Book, error)
	createFn func(ctx context.Context, actor models.Actor, in models.BookInput) (*models.Book, error)
	updateFn func(ctx context.Context, actor models.Actor, id int64, patch models.BookPatch) (*models.Book, error)
	deleteFn func(ctx context.Context, actor models.Actor, id int64) error
	stockFn  func(ctx context.Context, actor models.Actor, id int64, delta int) (*models.Book, error)
	exportFn func(ctx context.Context) ([]byte, int, error)
}

func (m *mockBookService) ListBooks(ctx context.Context, opts models.BookListOpts) ([]models.Book, int64, error) {
	return m.listFn(ctx, opts)
}

func (m *mockBookService) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return m.getFn(ctx, id)
}

func (m *mockBookService) CreateBook(ctx context.Context, actor models.Actor, in models.BookInput) (*models.Book, error) {
	return m.createFn(ctx, actor, in)
}

func (m *mockBookService) UpdateBook(ctx context.Context, actor models.Actor, id int64, patch models.BookPatch) (*models.Book, error) {
	return m.updateFn(ctx, actor, id, patch)
}

func (m *mockBookService) DeleteBook(ctx context.Context, actor models.Actor, id int64) error {
	return m.deleteFn(ctx, actor, id)
}

func (m *mockBookService) AdjustStock(ctx context.Context, actor models.Actor, id int64, delta int) (*models.Book, error) {
	return m.stockFn(ctx, actor, id, delta)
}

func (m *mockBookService) ExportBooksCSV(ctx context.Context) ([]byte, int, error) {
	return m.exportFn(ctx)
}

// mockReferenceService implements api.ReferenceService for testing.
type mockReferenceService struct {
	listFn   func(ctx context.Context, kind models.RefKind, search string, limit, offset int) ([]models.Reference, error)
	getFn    func(ctx context.Context, kind models.RefKind, id int64) (*models.Reference, error)
	createFn func(ctx context.Context, actor models.Actor, kind models.RefKind, in models.ReferenceInput) (*models.Reference, error)
	renameFn func(ctx context.Context, actor models.Actor, kind models.RefKind, id int64, in models.ReferenceInput) (*models.Reference, error)
	deleteFn func(ctx context.Context, actor models.Actor, kind models.RefKind, id int64) error
}

func (m *mockReferenceService) ListReferences(ctx context.Context, kind models.RefKind, search string, limit, offset int) ([]models.Reference, error) {
	return m.listFn(ctx, kind, search, limit, offset)
}

func (m *mockReferenceService) GetReference(ctx context.Context, kind models.RefKind, id int64) (*models.Reference, error) {
	return m.getFn(ctx, kind, id)
}

func (m *mockReferenceService) CreateReference(ctx context.Context, actor models.Actor, kind models.RefKind, in models.ReferenceInput) (*models.Reference, error) {
	return m.createFn(ctx, actor, kind, in)
}

func (m *mockReferenceService) RenameReference(ctx context.Context, actor models.Actor, kind models.RefKind, id int64, in models.ReferenceInput) (*models.Reference, error) {
	return m.renameFn(ctx, actor, kind, id, in)
}

func (m *mockReferenceService) DeleteReference(ctx context.Context, actor models.Actor, kind models.RefKind, id int64) error {
	return m.deleteFn(ctx, actor, kind, id)
}

// mockBatchService implements api.BatchService for testing.
type mockBatchService struct {
	importFn     func(ctx context.Context, csvText string, opts models.BatchOptions) (*models.BatchResult, error)
	updateFn     func(ctx context.Context, updates []models.BookUpdate, opts models.BatchOptions) (*models.BatchResult, error)
	deleteFn     func(ctx context.Context, ids []int64, opts models.BatchOptions) (*models.BatchResult, error)
	operationsFn func(ctx context.Context, actor models.Actor, ops []models.Operation) (*models.OperationsResult, error)
}

func (m *mockBatchService) ImportBooksFromCSV(ctx context.Context, csvText string, opts models.BatchOptions) (*models.BatchResult, error) {
	return m.importFn(ctx, csvText, opts)
}

func (m *mockBatchService) BulkUpdateBooks(ctx context.Context, updates []models.BookUpdate, opts models.BatchOptions) (*models.BatchResult, error) {
	return m.updateFn(ctx, updates, opts)
}

func (m *mockBatchService) BulkDeleteBooks(ctx context.Context, ids []int64, opts models.BatchOptions) (*models.BatchResult, error) {
	return m.deleteFn(ctx, ids, opts)
}

func (m *mockBatchService) ProcessMultipleOperations(ctx context.Context, actor models.Actor, ops []models.Operation) (*models.OperationsResult, error) {
	return m.operationsFn(ctx, actor, ops)
}

// mockAuditService implements api.AuditService for testing.
type mockAuditService struct {
	findAllFn func(ctx context.Context, f models.AuditFilters) (*models.AuditPage, error)
	byUserFn  func(ctx context.Context, userID int64) ([]models.AuditEntry, error)
	byTableFn func(ctx context.Context, table string) ([]models.AuditEntry, error)
	statsFn   func(ctx context.Context) (*models.AuditStats, error)
	exportFn  func(ctx context.Context, f models.AuditFilters) ([]byte, int, error)
}

func (m *mockAuditService) FindAll(ctx context.Context, f models.AuditFilters) (*models.AuditPage, error) {
	return m.findAllFn(ctx, f)
}

func (m *mockAuditService) FindByUserID(ctx context.Context, userID int64) ([]models.AuditEntry, error) {
	return m.byUserFn(ctx, userID)
}

func (m *mockAuditService) FindByTableName(ctx context.Context, table string) ([]models.AuditEntry, error) {
	return m.byTableFn(ctx, table)
}

func (m *mockAuditService) Stats(ctx context.Context) (*models.AuditStats, error) {
	return m.statsFn(ctx)
}

func (m *mockAuditService) ExportCSV(ctx context.Context, f models.AuditFilters) ([]byte, int, error) {
	return m.exportFn(ctx, f)
}

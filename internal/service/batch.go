package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/metrics"
	"github.com/bookvault/bookvault/internal/models"
	"github.com/bookvault/bookvault/internal/txn"
)

// errBatchAborted unwinds the batch transaction when a chunk fails without
// ContinueOnError. It never reaches callers.
var errBatchAborted = errors.New("batch aborted")

// BatchService imports, updates and deletes books in bulk.
//
// Each batch runs in one transaction processed in chunks. Every row runs in
// its own savepoint so a database error on one row leaves the transaction
// usable for the next. Row failures are collected in the result rather than
// returned.
type BatchService struct {
	books     BookStore
	refs      ReferenceStore
	audit     TxAuditor
	runner    *txn.Runner
	log       *logrus.Logger
	chunkSize int
}

// NewBatchService creates a BatchService. chunkSize is the default used when
// a request does not set one.
func NewBatchService(
	books BookStore, refs ReferenceStore, audit TxAuditor, runner *txn.Runner, log *logrus.Logger, chunkSize int,
) *BatchService {
	if chunkSize <= 0 {
		chunkSize = models.DefaultChunkSize
	}

	return &BatchService{books: books, refs: refs, audit: audit, runner: runner, log: log, chunkSize: chunkSize}
}

func (s *BatchService) normalize(opts *models.BatchOptions) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = s.chunkSize
	}
}

// chunks calls fn with the bounds of each chunk of n items. Processing stops
// at the first error fn returns.
func chunks(n, size int, fn func(start, end int) error) error {
	for start := 0; start < n; start += size {
		if err := fn(start, min(start+size, n)); err != nil {
			return err
		}
	}

	return nil
}

// refCache maps kind and exact name to id.
type refCache map[models.RefKind]map[string]int64

func (c refCache) get(kind models.RefKind, name string) (int64, bool) {
	id, ok := c[kind][name]
	return id, ok
}

func (c refCache) put(kind models.RefKind, name string, id int64) {
	if c[kind] == nil {
		c[kind] = make(map[string]int64)
	}
	c[kind][name] = id
}

func (c refCache) merge(other refCache) {
	for kind, names := range other {
		for name, id := range names {
			c.put(kind, name, id)
		}
	}
}

// ImportBooksFromCSV creates or updates books from CSV text.
//
// Rows failing validation (blank title, price not above zero, bad numbers or
// dates) are reported with their 1-based data row number. Authors, publishers
// and genres are matched by exact name and created when missing. An existing
// book is found by ISBN, or by exact title when the row has no ISBN; it is
// updated only with UpdateExisting and otherwise reported as a conflict.
// Without ContinueOnError, the first chunk containing a failure rolls back
// the whole import.
func (s *BatchService) ImportBooksFromCSV(ctx context.Context, csvText string, opts models.BatchOptions) (*models.BatchResult, error) {
	s.normalize(&opts)

	rows, err := parseBookCSV(csvText)
	if err != nil {
		return nil, err
	}

	if len(rows) > models.MaxBatchItems {
		return nil, models.NewValidationError("items", fmt.Sprintf("batch exceeds maximum of %d items", models.MaxBatchItems))
	}

	result := models.NewBatchResult()

	if opts.ValidateOnly {
		s.validateRows(rows, opts, result)
		s.logResult("import.validate", result)

		return result, nil
	}

	cache := refCache{}

	err = s.runner.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return chunks(len(rows), opts.ChunkSize, func(start, end int) error {
			failedBefore := result.Failed

			for _, row := range rows[start:end] {
				if err := ctx.Err(); err != nil {
					return err
				}

				s.importRow(ctx, tx, row, opts, cache, result)
			}

			if !opts.ContinueOnError && result.Failed > failedBefore {
				return errBatchAborted
			}

			return nil
		})
	})

	switch {
	case errors.Is(err, errBatchAborted):
		result.RollBack()
	case err != nil:
		return nil, err
	}

	s.logResult("import", result)

	return result, nil
}

func (s *BatchService) validateRows(rows []csvRow, opts models.BatchOptions, result *models.BatchResult) {
	_ = chunks(len(rows), opts.ChunkSize, func(start, end int) error {
		failedBefore := result.Failed

		for _, row := range rows[start:end] {
			if _, err := row.toBookRow(); err != nil {
				result.AddError(row.Line, row.Fields, rowMessage(err))
				continue
			}

			result.AddSuccess()
		}

		if !opts.ContinueOnError && result.Failed > failedBefore {
			result.Aborted = true
			return errBatchAborted
		}

		return nil
	})
}

func (s *BatchService) importRow(
	ctx context.Context, tx pgx.Tx, row csvRow, opts models.BatchOptions, cache refCache, result *models.BatchResult,
) {
	br, err := row.toBookRow()
	if err != nil {
		s.rowFailed("import", result, row.Line, row.Fields, err)
		return
	}

	pending := refCache{}

	var (
		id      int64
		created bool
	)

	err = s.runner.RunWithSavepoint(ctx, tx, "import_row_"+strconv.Itoa(row.Line), func(ctx context.Context, tx pgx.Tx) error {
		var err error
		id, created, err = s.upsertBook(ctx, tx, br, opts, cache, pending)

		return err
	})
	if err != nil {
		s.rowFailed("import", result, row.Line, row.Fields, err)
		return
	}

	cache.merge(pending)

	if created {
		result.Created = append(result.Created, id)
	} else {
		result.Updated = append(result.Updated, id)
	}

	result.AddSuccess()
	metrics.BatchRowsTotal.WithLabelValues("import", "success").Inc()
}

// upsertBook resolves references and creates or updates one imported book.
func (s *BatchService) upsertBook(
	ctx context.Context, tx pgx.Tx, br *bookRow, opts models.BatchOptions, cache, pending refCache,
) (int64, bool, error) {
	authorID, err := s.resolveRef(ctx, tx, models.KindAuthor, br.Author, opts, cache, pending)
	if err != nil {
		return 0, false, err
	}

	publisherID, err := s.resolveRef(ctx, tx, models.KindPublisher, br.Publisher, opts, cache, pending)
	if err != nil {
		return 0, false, err
	}

	genreID, err := s.resolveRef(ctx, tx, models.KindGenre, br.Genre, opts, cache, pending)
	if err != nil {
		return 0, false, err
	}

	existing, matchedBy, err := s.findExisting(ctx, tx, &br.Input)
	if err != nil {
		return 0, false, err
	}

	next := br.Input.NewBook()
	next.AuthorID, next.PublisherID, next.GenreID = authorID, publisherID, genreID

	if existing == nil {
		b, err := s.books.Create(ctx, tx, next)
		if err != nil {
			return 0, false, err
		}

		if opts.AuditChanges {
			if err := s.audit.LogCreateTx(ctx, tx, models.AuditInput{
				Actor:       opts.Actor,
				TableName:   booksTable,
				RecordID:    models.RecordID(b.ID),
				NewValues:   models.Snapshot(b),
				Description: fmt.Sprintf("imported book %q", b.Title),
			}); err != nil {
				return 0, false, err
			}
		}

		return b.ID, true, nil
	}

	if !opts.UpdateExisting {
		return 0, false, models.NewValidationError(matchedBy,
			fmt.Sprintf("a book with this %s already exists (id %d)", matchedBy, existing.ID))
	}

	next.ID = existing.ID
	if next.ISBN == nil {
		next.ISBN = existing.ISBN
	}
	if next.AuthorID == nil {
		next.AuthorID = existing.AuthorID
	}
	if next.PublisherID == nil {
		next.PublisherID = existing.PublisherID
	}
	if next.GenreID == nil {
		next.GenreID = existing.GenreID
	}

	updated, err := s.books.Update(ctx, tx, next)
	if err != nil {
		return 0, false, err
	}

	if opts.AuditChanges {
		if err := s.audit.LogUpdateTx(ctx, tx, models.AuditInput{
			Actor:       opts.Actor,
			TableName:   booksTable,
			RecordID:    models.RecordID(updated.ID),
			OldValues:   models.Snapshot(existing),
			NewValues:   models.Snapshot(updated),
			Description: fmt.Sprintf("updated book %q from import", updated.Title),
		}); err != nil {
			return 0, false, err
		}
	}

	return updated.ID, false, nil
}

// findExisting looks a book up by ISBN when the row has one, else by title.
// It returns nil when there is no match, along with the matched field name.
func (s *BatchService) findExisting(ctx context.Context, tx pgx.Tx, in *models.BookInput) (*models.Book, string, error) {
	var (
		b     *models.Book
		err   error
		field string
	)

	if in.ISBN != nil && strings.TrimSpace(*in.ISBN) != "" {
		field = "isbn"
		b, err = s.books.FindByISBN(ctx, tx, *in.ISBN)
	} else {
		field = "title"
		b, err = s.books.FindByTitle(ctx, tx, in.Title)
	}

	if errors.Is(err, models.ErrBookNotFound) {
		return nil, field, nil
	}
	if err != nil {
		return nil, field, err
	}

	return b, field, nil
}

// resolveRef returns the id of the reference named name, creating it when
// absent. Creations are staged in pending until the row's savepoint is
// released, since a rolled-back row takes its new references with it.
func (s *BatchService) resolveRef(
	ctx context.Context, tx pgx.Tx, kind models.RefKind, name string, opts models.BatchOptions, cache, pending refCache,
) (*int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	if id, ok := cache.get(kind, name); ok {
		return &id, nil
	}
	if id, ok := pending.get(kind, name); ok {
		return &id, nil
	}

	r, err := s.refs.FindByName(ctx, tx, kind, name)
	if errors.Is(err, models.ErrReferenceNotFound) {
		r, err = s.refs.Create(ctx, tx, kind, name)
		if err == nil && opts.AuditChanges {
			err = s.audit.LogCreateTx(ctx, tx, models.AuditInput{
				Actor:       opts.Actor,
				TableName:   kind.Table(),
				RecordID:    models.RecordID(r.ID),
				NewValues:   models.Snapshot(r),
				Description: fmt.Sprintf("created %s %q during import", kind, name),
			})
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s %q: %w", kind, name, err)
	}

	pending.put(kind, name, r.ID)

	return &r.ID, nil
}

// BulkUpdateBooks applies each update in one chunked transaction. A missing
// book or an invalid patch is a row error that never rolls back the batch;
// without ContinueOnError, processing stops after the chunk in which it
// appeared and the work done so far is committed. A database error without
// ContinueOnError rolls back the whole batch.
func (s *BatchService) BulkUpdateBooks(ctx context.Context, updates []models.BookUpdate, opts models.BatchOptions) (*models.BatchResult, error) {
	if err := checkBatchSize(len(updates)); err != nil {
		return nil, err
	}

	s.normalize(&opts)

	return s.runBulk(ctx, "update", len(updates), opts, func(ctx context.Context, tx pgx.Tx, i int, result *models.BatchResult) error {
		u := updates[i]
		patch := u.BookPatch

		if err := patch.Validate(); err != nil {
			return err
		}

		var updated *models.Book

		err := s.runner.RunWithSavepoint(ctx, tx, "bulk_update_"+strconv.Itoa(i+1), func(ctx context.Context, tx pgx.Tx) error {
			var err error
			updated, err = updateBookTx(ctx, tx, s.books, s.auditor(opts), opts.Actor, u.ID, patch, "bulk update")

			return err
		})
		if err != nil {
			return err
		}

		result.Updated = append(result.Updated, updated.ID)

		return nil
	}, func(i int) map[string]string {
		return map[string]string{"id": strconv.FormatInt(updates[i].ID, 10)}
	})
}

// BulkDeleteBooks deletes each book in one chunked transaction, with the same
// failure rules as BulkUpdateBooks.
func (s *BatchService) BulkDeleteBooks(ctx context.Context, ids []int64, opts models.BatchOptions) (*models.BatchResult, error) {
	if err := checkBatchSize(len(ids)); err != nil {
		return nil, err
	}

	s.normalize(&opts)

	return s.runBulk(ctx, "delete", len(ids), opts, func(ctx context.Context, tx pgx.Tx, i int, result *models.BatchResult) error {
		id := ids[i]

		err := s.runner.RunWithSavepoint(ctx, tx, "bulk_delete_"+strconv.Itoa(i+1), func(ctx context.Context, tx pgx.Tx) error {
			return deleteBookTx(ctx, tx, s.books, s.auditor(opts), opts.Actor, id, "bulk delete")
		})
		if err != nil {
			return err
		}

		result.Deleted = append(result.Deleted, id)

		return nil
	}, func(i int) map[string]string {
		return map[string]string{"id": strconv.FormatInt(ids[i], 10)}
	})
}

// auditor returns the auditor for opts, or nil when auditing is off.
func (s *BatchService) auditor(opts models.BatchOptions) TxAuditor {
	if !opts.AuditChanges {
		return nil
	}

	return s.audit
}

type bulkItemFunc func(ctx context.Context, tx pgx.Tx, i int, result *models.BatchResult) error

// runBulk drives the chunk loop shared by bulk update and delete.
func (s *BatchService) runBulk(
	ctx context.Context, operation string, n int, opts models.BatchOptions, fn bulkItemFunc, data func(i int) map[string]string,
) (*models.BatchResult, error) {
	result := models.NewBatchResult()

	err := s.runner.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := chunks(n, opts.ChunkSize, func(start, end int) error {
			failedBefore := result.Failed

			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				err := fn(ctx, tx, i, result)
				if err == nil {
					result.AddSuccess()
					metrics.BatchRowsTotal.WithLabelValues(operation, "success").Inc()

					continue
				}

				s.rowFailed(operation, result, i+1, data(i), err)

				if !opts.ContinueOnError && !softRowError(err) {
					return errBatchAborted
				}
			}

			if !opts.ContinueOnError && result.Failed > failedBefore {
				result.Aborted = true
				return errStopAfterChunk
			}

			return nil
		})

		// Stopping after a chunk keeps what was done so far.
		if errors.Is(err, errStopAfterChunk) {
			return nil
		}

		return err
	})

	switch {
	case errors.Is(err, errBatchAborted):
		result.RollBack()
	case err != nil:
		return nil, err
	}

	s.logResult(operation, result)

	return result, nil
}

// errStopAfterChunk ends bulk processing early while keeping the work done.
var errStopAfterChunk = errors.New("stop after chunk")

// softRowError reports failures that are recorded without rolling back the batch.
func softRowError(err error) bool {
	if models.IsNotFound(err) {
		return true
	}

	var ve *models.ValidationError

	return errors.As(err, &ve)
}

func checkBatchSize(n int) error {
	if n == 0 {
		return models.ErrEmptyBatch
	}

	if n > models.MaxBatchItems {
		return models.NewValidationError("items", fmt.Sprintf("batch exceeds maximum of %d items", models.MaxBatchItems))
	}

	return nil
}

// ProcessMultipleOperations runs each operation in its own transaction,
// concurrently. Operations are independent: one failing does not affect the
// others, and there is no ordering between their commits.
func (s *BatchService) ProcessMultipleOperations(
	ctx context.Context, actor models.Actor, ops []models.Operation,
) (*models.OperationsResult, error) {
	if err := checkBatchSize(len(ops)); err != nil {
		return nil, err
	}

	fns := make([]txn.TxFunc, len(ops))
	for i := range ops {
		op := ops[i]
		fns[i] = func(ctx context.Context, tx pgx.Tx) error {
			return s.applyOperation(ctx, tx, actor, op)
		}
	}

	errs := s.runner.RunParallel(ctx, fns...)

	result := &models.OperationsResult{Total: len(ops)}

	for i, err := range errs {
		if err == nil {
			result.Successful++
			metrics.BatchRowsTotal.WithLabelValues("operation", "success").Inc()

			continue
		}

		result.Failed++
		metrics.BatchRowsTotal.WithLabelValues("operation", "failure").Inc()
		s.log.WithError(err).WithFields(logrus.Fields{
			"index": i,
			"type":  ops[i].Type,
		}).Warn("batch operation failed")
	}

	s.log.WithFields(logrus.Fields{
		"total":      result.Total,
		"successful": result.Successful,
		"failed":     result.Failed,
	}).Info("batch.operations")

	return result, nil
}

func (s *BatchService) applyOperation(ctx context.Context, tx pgx.Tx, actor models.Actor, op models.Operation) error {
	switch op.Type {
	case models.OpCreate:
		if op.Book == nil {
			return models.NewValidationError("book", "book is required for create")
		}

		in := *op.Book
		if err := in.Validate(); err != nil {
			return err
		}

		b, err := s.books.Create(ctx, tx, in.NewBook())
		if err != nil {
			return err
		}

		return s.audit.LogCreateTx(ctx, tx, models.AuditInput{
			Actor: actor, TableName: booksTable, RecordID: models.RecordID(b.ID),
			NewValues: models.Snapshot(b), Description: "batch operation create",
		})

	case models.OpUpdate:
		if op.Changes == nil {
			return models.NewValidationError("changes", "changes are required for update")
		}

		patch := *op.Changes
		if err := patch.Validate(); err != nil {
			return err
		}

		_, err := updateBookTx(ctx, tx, s.books, s.audit, actor, op.ID, patch, "batch operation update")

		return err

	case models.OpDelete:
		return deleteBookTx(ctx, tx, s.books, s.audit, actor, op.ID, "batch operation delete")
	}

	return models.NewValidationError("type", fmt.Sprintf("unknown operation type %q", op.Type))
}

func (s *BatchService) rowFailed(operation string, result *models.BatchResult, row int, data map[string]string, err error) {
	result.AddError(row, data, rowMessage(err))
	metrics.BatchRowsTotal.WithLabelValues(operation, "failure").Inc()

	s.log.WithError(err).WithFields(logrus.Fields{
		"operation": operation,
		"row":       row,
	}).Debug("batch row failed")
}

// rowMessage is the user-facing text recorded for a failed row.
func rowMessage(err error) string {
	return apperr.Classify(err).Message
}

func (s *BatchService) logResult(operation string, result *models.BatchResult) {
	s.log.WithFields(logrus.Fields{
		"operation":   operation,
		"total":       result.TotalProcessed,
		"successful":  result.Successful,
		"failed":      result.Failed,
		"rolled_back": result.RolledBack,
		"aborted":     result.Aborted,
	}).Info("batch.complete")
}

// Package service provides business logic between API handlers and data stores.
package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/models"
	"github.com/bookvault/bookvault/internal/txn"
)

const booksTable = "books"

// TxAuditor records audit entries on an open transaction. *AuditService satisfies it.
type TxAuditor interface {
	LogCreateTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) error
	LogUpdateTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) error
	LogDeleteTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) error
}

// BookService implements book CRUD. Every write and its audit entry share one
// transaction, joined from the context when the caller already opened one.
type BookService struct {
	store  BookStore
	audit  TxAuditor
	runner *txn.Runner
	exec   *apperr.Executor
	log    *logrus.Logger
}

// NewBookService creates a BookService.
func NewBookService(store BookStore, audit TxAuditor, runner *txn.Runner, exec *apperr.Executor, log *logrus.Logger) *BookService {
	return &BookService{store: store, audit: audit, runner: runner, exec: exec, log: log}
}

// ListBooks returns a page of books and the total match count.
func (s *BookService) ListBooks(ctx context.Context, opts models.BookListOpts) ([]models.Book, int64, error) {
	return s.store.List(ctx, txn.FromContext(ctx), opts)
}

// GetBook returns a single book.
func (s *BookService) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return s.store.Get(ctx, txn.FromContext(ctx), id)
}

// CreateBook validates in, inserts the book and records a CREATE entry.
func (s *BookService) CreateBook(ctx context.Context, actor models.Actor, in models.BookInput) (*models.Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var created *models.Book

	err := s.runner.Ensure(ctx, func(ctx context.Context, tx pgx.Tx) error {
		b, err := s.store.Create(ctx, tx, in.NewBook())
		if err != nil {
			return err
		}

		created = b

		return s.audit.LogCreateTx(ctx, tx, models.AuditInput{
			Actor:       actor,
			TableName:   booksTable,
			RecordID:    models.RecordID(b.ID),
			NewValues:   models.Snapshot(b),
			Description: fmt.Sprintf("created book %q", b.Title),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"book_id": created.ID}).Info("book.create")

	return created, nil
}

// UpdateBook applies patch to the book and records an UPDATE entry with the
// before and after state.
func (s *BookService) UpdateBook(ctx context.Context, actor models.Actor, id int64, patch models.BookPatch) (*models.Book, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Book

	err := s.runner.Ensure(ctx, func(ctx context.Context, tx pgx.Tx) error {
		b, err := updateBookTx(ctx, tx, s.store, s.audit, actor, id, patch, "")
		updated = b

		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteBook removes the book and records a DELETE entry with its last state.
func (s *BookService) DeleteBook(ctx context.Context, actor models.Actor, id int64) error {
	return s.runner.Ensure(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return deleteBookTx(ctx, tx, s.store, s.audit, actor, id, "")
	})
}

// AdjustStock adds delta to the stock level under SERIALIZABLE isolation.
// Serialization failures and deadlocks are retried with backoff; taking
// more stock than is on hand is a business rule violation.
func (s *BookService) AdjustStock(ctx context.Context, actor models.Actor, id int64, delta int) (*models.Book, error) {
	op := apperr.OperationContext{
		Operation: "book.adjust_stock",
		Action:    models.ActionUpdate,
		TableName: booksTable,
		RecordID:  models.RecordID(id),
		Actor:     actor,
	}

	var result *models.Book

	err := s.exec.ExecuteWithRetry(ctx, op, func(ctx context.Context) error {
		return s.runner.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
			current, err := s.store.GetForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}

			stock := current.Stock + delta
			if stock < 0 {
				return apperr.NewBusinessError("insufficient_stock",
					fmt.Sprintf("insufficient stock: %d on hand, %d requested", current.Stock, -delta))
			}

			if err := s.store.SetStock(ctx, tx, id, stock); err != nil {
				return err
			}

			if err := s.audit.LogUpdateTx(ctx, tx, models.AuditInput{
				Actor:       actor,
				TableName:   booksTable,
				RecordID:    models.RecordID(id),
				OldValues:   map[string]any{"stock": current.Stock},
				NewValues:   map[string]any{"stock": stock},
				Description: fmt.Sprintf("stock adjusted by %+d", delta),
			}); err != nil {
				return err
			}

			updated := *current
			updated.Stock = stock
			result = &updated

			return nil
		}, txn.WithIsolation(pgx.Serializable))
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExportBooksCSV renders every book as CSV in the layout ImportBooksFromCSV accepts.
func (s *BookService) ExportBooksCSV(ctx context.Context) ([]byte, int, error) {
	books, err := s.store.ListAll(ctx, txn.FromContext(ctx))
	if err != nil {
		return nil, 0, err
	}

	return renderBooksCSV(books), len(books), nil
}

// updateBookTx locks the book, applies patch and records an UPDATE entry with
// both states. A nil auditor skips the entry. An empty desc names the book.
func updateBookTx(
	ctx context.Context, tx pgx.Tx, books BookStore, audit TxAuditor,
	actor models.Actor, id int64, patch models.BookPatch, desc string,
) (*models.Book, error) {
	current, err := books.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	next := patch.Apply(*current)

	updated, err := books.Update(ctx, tx, &next)
	if err != nil {
		return nil, err
	}

	if audit == nil {
		return updated, nil
	}

	if desc == "" {
		desc = fmt.Sprintf("updated book %q", updated.Title)
	}

	err = audit.LogUpdateTx(ctx, tx, models.AuditInput{
		Actor:       actor,
		TableName:   booksTable,
		RecordID:    models.RecordID(id),
		OldValues:   models.Snapshot(current),
		NewValues:   models.Snapshot(updated),
		Description: desc,
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// deleteBookTx locks and removes the book, recording a DELETE entry with its
// last state. A nil auditor skips the entry. An empty desc names the book.
func deleteBookTx(
	ctx context.Context, tx pgx.Tx, books BookStore, audit TxAuditor, actor models.Actor, id int64, desc string,
) error {
	current, err := books.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	if err := books.Delete(ctx, tx, id); err != nil {
		return err
	}

	if audit == nil {
		return nil
	}

	if desc == "" {
		desc = fmt.Sprintf("deleted book %q", current.Title)
	}

	return audit.LogDeleteTx(ctx, tx, models.AuditInput{
		Actor:       actor,
		TableName:   booksTable,
		RecordID:    models.RecordID(id),
		OldValues:   models.Snapshot(current),
		Description: desc,
	})
}

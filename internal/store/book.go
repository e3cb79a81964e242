package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/models"
)

// BookStore handles book CRUD operations.
type BookStore struct {
	Base
}

// NewBookStore creates a new BookStore.
func NewBookStore(base Base) *BookStore {
	return &BookStore{Base: base}
}

// Get returns one book with its reference names.
func (s *BookStore) Get(ctx context.Context, q dbpool.Querier, id int64) (*models.Book, error) {
	return s.getOne(ctx, q, bookSelect+" WHERE b.id = $1", id)
}

// GetForUpdate returns one book and locks its row until the transaction ends.
// q must be a transaction.
func (s *BookStore) GetForUpdate(ctx context.Context, q dbpool.Querier, id int64) (*models.Book, error) {
	return s.getOne(ctx, q, bookSelect+" WHERE b.id = $1 FOR UPDATE OF b", id)
}

// FindByISBN returns the book with the given ISBN.
func (s *BookStore) FindByISBN(ctx context.Context, q dbpool.Querier, isbn string) (*models.Book, error) {
	return s.getOne(ctx, q, bookSelect+" WHERE b.isbn = $1", strings.TrimSpace(isbn))
}

// FindByTitle returns the oldest book with exactly the given title.
func (s *BookStore) FindByTitle(ctx context.Context, q dbpool.Querier, title string) (*models.Book, error) {
	return s.getOne(ctx, q, bookSelect+" WHERE b.title = $1 ORDER BY b.id LIMIT 1", strings.TrimSpace(title))
}

func (s *BookStore) getOne(ctx context.Context, q dbpool.Querier, query string, args ...any) (*models.Book, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	b, err := scanBook(s.querier(q).QueryRow(ctx, query, args...).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrBookNotFound
		}

		return nil, fmt.Errorf("getting book: %w", err)
	}

	return b, nil
}

// List returns a page of books matching opts and the total match count.
func (s *BookStore) List(ctx context.Context, q dbpool.Querier, opts models.BookListOpts) ([]models.Book, int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var conditions []string
	var args []any
	argIdx := 1

	if opts.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(b.title ILIKE $%d OR b.isbn ILIKE $%d)", argIdx, argIdx))
		args = append(args, likePattern(opts.Search))
		argIdx++
	}
	if opts.AuthorID > 0 {
		conditions = append(conditions, "b.author_id = $"+strconv.Itoa(argIdx))
		args = append(args, opts.AuthorID)
		argIdx++
	}
	if opts.PublisherID > 0 {
		conditions = append(conditions, "b.publisher_id = $"+strconv.Itoa(argIdx))
		args = append(args, opts.PublisherID)
		argIdx++
	}
	if opts.GenreID > 0 {
		conditions = append(conditions, "b.genre_id = $"+strconv.Itoa(argIdx))
		args = append(args, opts.GenreID)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	qr := s.querier(q)

	var total int64
	if err := qr.QueryRow(ctx, "SELECT count(*) FROM books b"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting books: %w", err)
	}

	query := fmt.Sprintf("%s%s ORDER BY b.id LIMIT $%d OFFSET $%d", bookSelect, where, argIdx, argIdx+1)
	args = append(args, clampLimit(opts.Limit), max(opts.Offset, 0))

	rows, err := qr.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	books, err := collectBooks(rows)
	if err != nil {
		return nil, 0, err
	}

	return books, total, nil
}

// ListAll returns every book ordered by id. Used by the CSV export.
func (s *BookStore) ListAll(ctx context.Context, q dbpool.Querier) ([]models.Book, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.querier(q).Query(ctx, bookSelect+" ORDER BY b.id")
	if err != nil {
		return nil, fmt.Errorf("listing all books: %w", err)
	}
	defer rows.Close()

	return collectBooks(rows)
}

// Create inserts b and returns the stored row.
func (s *BookStore) Create(ctx context.Context, q dbpool.Querier, b *models.Book) (*models.Book, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	qr := s.querier(q)

	var id int64

	err := qr.QueryRow(ctx, `INSERT INTO books
		(title, isbn, price, stock, available, publication_date, pages,
		 description, image_url, author_id, publisher_id, genre_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		b.Title, b.ISBN, b.Price, b.Stock, b.Available, dateArg(b.PublicationDate), b.Pages,
		b.Description, b.ImageURL, b.AuthorID, b.PublisherID, b.GenreID,
	).Scan(&id)
	if err != nil {
		return nil, wrapUnique(err, "inserting book")
	}

	return s.Get(ctx, qr, id)
}

// Update writes every mutable column of b and returns the stored row.
func (s *BookStore) Update(ctx context.Context, q dbpool.Querier, b *models.Book) (*models.Book, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	qr := s.querier(q)

	tag, err := qr.Exec(ctx, `UPDATE books SET
		title = $2, isbn = $3, price = $4, stock = $5, available = $6,
		publication_date = $7, pages = $8, description = $9, image_url = $10,
		author_id = $11, publisher_id = $12, genre_id = $13, updated_at = now()
		WHERE id = $1`,
		b.ID, b.Title, b.ISBN, b.Price, b.Stock, b.Available,
		dateArg(b.PublicationDate), b.Pages, b.Description, b.ImageURL,
		b.AuthorID, b.PublisherID, b.GenreID,
	)
	if err != nil {
		return nil, wrapUnique(err, "updating book")
	}

	if tag.RowsAffected() == 0 {
		return nil, models.ErrBookNotFound
	}

	return s.Get(ctx, qr, b.ID)
}

// SetStock overwrites the stock level of one book.
func (s *BookStore) SetStock(ctx context.Context, q dbpool.Querier, id int64, stock int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.querier(q).Exec(ctx,
		"UPDATE books SET stock = $2, updated_at = now() WHERE id = $1", id, stock)
	if err != nil {
		return fmt.Errorf("setting book stock: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrBookNotFound
	}

	return nil
}

// Delete removes one book.
func (s *BookStore) Delete(ctx context.Context, q dbpool.Querier, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.querier(q).Exec(ctx, "DELETE FROM books WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrBookNotFound
	}

	return nil
}

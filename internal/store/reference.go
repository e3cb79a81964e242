package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/models"
)

// ReferenceStore handles the author, publisher and genre lookup tables.
// All three share one shape, so every method takes the kind.
type ReferenceStore struct {
	Base
}

// NewReferenceStore creates a new ReferenceStore.
func NewReferenceStore(base Base) *ReferenceStore {
	return &ReferenceStore{Base: base}
}

func refTable(kind models.RefKind) string {
	return pgx.Identifier{kind.Table()}.Sanitize()
}

func scanReference(kind models.RefKind, scan func(dest ...any) error) (*models.Reference, error) {
	r := models.Reference{Kind: kind}
	if err := scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	return &r, nil
}

// Get returns one reference by id.
func (s *ReferenceStore) Get(ctx context.Context, q dbpool.Querier, kind models.RefKind, id int64) (*models.Reference, error) {
	return s.getOne(ctx, q, kind, "id = $1", id)
}

// FindByName returns the reference with exactly the given name.
func (s *ReferenceStore) FindByName(ctx context.Context, q dbpool.Querier, kind models.RefKind, name string) (*models.Reference, error) {
	return s.getOne(ctx, q, kind, "name = $1", name)
}

func (s *ReferenceStore) getOne(
	ctx context.Context, q dbpool.Querier, kind models.RefKind, where string, arg any,
) (*models.Reference, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := "SELECT id, name, created_at, updated_at FROM " + refTable(kind) + " WHERE " + where

	r, err := scanReference(kind, s.querier(q).QueryRow(ctx, query, arg).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrReferenceNotFound
		}

		return nil, fmt.Errorf("getting %s: %w", kind, err)
	}

	return r, nil
}

// List returns references ordered by name, optionally filtered by a name substring.
func (s *ReferenceStore) List(
	ctx context.Context, q dbpool.Querier, kind models.RefKind, search string, limit, offset int,
) ([]models.Reference, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := "SELECT id, name, created_at, updated_at FROM " + refTable(kind) +
		" WHERE ($1 = '' OR name ILIKE $2) ORDER BY name LIMIT $3 OFFSET $4"

	rows, err := s.querier(q).Query(ctx, query, search, likePattern(search), clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", kind.Table(), err)
	}
	defer rows.Close()

	refs := make([]models.Reference, 0, 16)

	for rows.Next() {
		r, err := scanReference(kind, rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", kind, err)
		}

		refs = append(refs, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", kind, err)
	}

	return refs, nil
}

// Create inserts a reference and returns it.
func (s *ReferenceStore) Create(ctx context.Context, q dbpool.Querier, kind models.RefKind, name string) (*models.Reference, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := "INSERT INTO " + refTable(kind) + " (name) VALUES ($1) RETURNING id, name, created_at, updated_at"

	r, err := scanReference(kind, s.querier(q).QueryRow(ctx, query, name).Scan)
	if err != nil {
		return nil, wrapUnique(err, "inserting "+string(kind))
	}

	return r, nil
}

// Rename changes the name of a reference and returns it.
func (s *ReferenceStore) Rename(ctx context.Context, q dbpool.Querier, kind models.RefKind, id int64, name string) (*models.Reference, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := "UPDATE " + refTable(kind) +
		" SET name = $2, updated_at = now() WHERE id = $1 RETURNING id, name, created_at, updated_at"

	r, err := scanReference(kind, s.querier(q).QueryRow(ctx, query, id, name).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrReferenceNotFound
		}

		return nil, wrapUnique(err, "renaming "+string(kind))
	}

	return r, nil
}

// Delete removes a reference. Deleting one still used by a book fails with a
// foreign key violation.
func (s *ReferenceStore) Delete(ctx context.Context, q dbpool.Querier, kind models.RefKind, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.querier(q).Exec(ctx, "DELETE FROM "+refTable(kind)+" WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", kind, err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrReferenceNotFound
	}

	return nil
}

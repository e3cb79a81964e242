package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/models"
	"github.com/bookvault/bookvault/internal/txn"
)

// ReferenceService manages authors, publishers and genres.
type ReferenceService struct {
	store  ReferenceStore
	audit  TxAuditor
	runner *txn.Runner
	log    *logrus.Logger
}

// NewReferenceService creates a ReferenceService.
func NewReferenceService(store ReferenceStore, audit TxAuditor, runner *txn.Runner, log *logrus.Logger) *ReferenceService {
	return &ReferenceService{store: store, audit: audit, runner: runner, log: log}
}

// ListReferences returns references of kind ordered by name.
func (s *ReferenceService) ListReferences(
	ctx context.Context, kind models.RefKind, search string, limit, offset int,
) ([]models.Reference, error) {
	return s.store.List(ctx, txn.FromContext(ctx), kind, search, limit, offset)
}

// GetReference returns one reference.
func (s *ReferenceService) GetReference(ctx context.Context, kind models.RefKind, id int64) (*models.Reference, error) {
	return s.store.Get(ctx, txn.FromContext(ctx), kind, id)
}

// CreateReference inserts a reference and records a CREATE entry.
func (s *ReferenceService) CreateReference(
	ctx context.Context, actor models.Actor, kind models.RefKind, in models.ReferenceInput,
) (*models.Reference, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var created *models.Reference

	err := s.runner.Ensure(ctx, func(ctx context.Context, tx pgx.Tx) error {
		r, err := s.store.Create(ctx, tx, kind, in.Name)
		if err != nil {
			return err
		}

		created = r

		return s.audit.LogCreateTx(ctx, tx, models.AuditInput{
			Actor:       actor,
			TableName:   kind.Table(),
			RecordID:    models.RecordID(r.ID),
			NewValues:   models.Snapshot(r),
			Description: fmt.Sprintf("created %s %q", kind, r.Name),
		})
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// RenameReference changes the name of a reference and records an UPDATE entry.
func (s *ReferenceService) RenameReference(
	ctx context.Context, actor models.Actor, kind models.RefKind, id int64, in models.ReferenceInput,
) (*models.Reference, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var renamed *models.Reference

	err := s.runner.Ensure(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.store.Get(ctx, tx, kind, id)
		if err != nil {
			return err
		}

		r, err := s.store.Rename(ctx, tx, kind, id, in.Name)
		if err != nil {
			return err
		}

		renamed = r

		return s.audit.LogUpdateTx(ctx, tx, models.AuditInput{
			Actor:       actor,
			TableName:   kind.Table(),
			RecordID:    models.RecordID(id),
			OldValues:   models.Snapshot(current),
			NewValues:   models.Snapshot(r),
			Description: fmt.Sprintf("renamed %s %q to %q", kind, current.Name, r.Name),
		})
	})
	if err != nil {
		return nil, err
	}

	return renamed, nil
}

// DeleteReference removes a reference and records a DELETE entry. References
// still used by a book cannot be deleted.
func (s *ReferenceService) DeleteReference(ctx context.Context, actor models.Actor, kind models.RefKind, id int64) error {
	return s.runner.Ensure(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.store.Get(ctx, tx, kind, id)
		if err != nil {
			return err
		}

		if err := s.store.Delete(ctx, tx, kind, id); err != nil {
			return err
		}

		return s.audit.LogDeleteTx(ctx, tx, models.AuditInput{
			Actor:       actor,
			TableName:   kind.Table(),
			RecordID:    models.RecordID(id),
			OldValues:   models.Snapshot(current),
			Description: fmt.Sprintf("deleted %s %q", kind, current.Name),
		})
	})
}

// Package store provides focused, single-concern data access stores
// for the book inventory.
//
// Each store owns one table family (books, references, users, audit log)
// and embeds shared helpers via the Base struct. Store methods take a
// dbpool.Querier so the caller decides whether a statement runs on the pool
// or inside an open transaction. Stores never begin or commit transactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/models"
)

const defaultQueryTimeout = 30 * time.Second

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// querier returns q, or the pool when q is nil.
func (b *Base) querier(q dbpool.Querier) dbpool.Querier {
	if q != nil {
		return q
	}

	return b.Pool
}

// wrapUnique marks unique violations with models.ErrDuplicateKey while keeping
// the PostgreSQL error in the chain for classification.
func wrapUnique(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w: %w", what, models.ErrDuplicateKey, err)
	}

	return fmt.Errorf("%s: %w", what, err)
}

package txn

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/bookvault/bookvault/internal/dbpool"
)

type txKey struct{}

// WithTx returns a copy of ctx carrying tx.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the transaction carried by ctx, or nil.
func FromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)

	return tx
}

// Querier returns the transaction carried by ctx, falling back to q.
func Querier(ctx context.Context, q dbpool.Querier) dbpool.Querier {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}

	return q
}

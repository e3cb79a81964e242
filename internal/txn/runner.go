// Package txn runs units of work inside PostgreSQL transactions.
//
// A unit of work receives the open transaction as an explicit argument. The
// same transaction is also carried on the context passed to the unit so that
// code further down the call chain can join it with Ensure instead of
// opening a second one.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bookvault/bookvault/internal/metrics"
)

// rollbackTimeout bounds a rollback issued after the caller's context is done.
const rollbackTimeout = 5 * time.Second

// defaultParallelism caps concurrent transactions in RunParallel.
const defaultParallelism = 8

// ErrTimeout is returned by RunWithTimeout when the deadline fires first.
var ErrTimeout = errors.New("transaction timeout")

// commitSignal is closed by Run right before it issues COMMIT.
type commitSignal struct {
	once sync.Once
	ch   chan struct{}
}

type commitSignalKey struct{}

func (s *commitSignal) fire() {
	if s != nil {
		s.once.Do(func() { close(s.ch) })
	}
}

// TxFunc is a unit of work executed inside a transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// Beginner starts transactions. *dbpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Option adjusts the options a transaction is started with.
type Option func(*pgx.TxOptions)

// WithIsolation sets the isolation level. The empty level keeps the server default.
func WithIsolation(level pgx.TxIsoLevel) Option {
	return func(o *pgx.TxOptions) { o.IsoLevel = level }
}

// ReadOnly starts the transaction in read-only access mode.
func ReadOnly() Option {
	return func(o *pgx.TxOptions) { o.AccessMode = pgx.ReadOnly }
}

// Runner executes units of work in transactions.
type Runner struct {
	db          Beginner
	log         *logrus.Logger
	tracer      trace.Tracer
	parallelism int
}

// NewRunner creates a Runner. parallelism bounds RunParallel; values <= 0 use the default.
func NewRunner(db Beginner, log *logrus.Logger, parallelism int) *Runner {
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	return &Runner{
		db:          db,
		log:         log,
		tracer:      otel.Tracer("github.com/bookvault/bookvault/internal/txn"),
		parallelism: parallelism,
	}
}

// Run begins a transaction, invokes fn and commits when fn returns nil.
// Any error or panic from fn rolls the transaction back; the error is
// returned unchanged and a panic is re-raised after the rollback. A unit
// that returns nil after ctx is done is rolled back as well.
func (r *Runner) Run(ctx context.Context, fn TxFunc, opts ...Option) (err error) {
	var txOpts pgx.TxOptions
	for _, opt := range opts {
		opt(&txOpts)
	}

	ctx, span := r.tracer.Start(ctx, "txn.run", trace.WithAttributes(
		attribute.String("db.isolation_level", isoLabel(txOpts.IsoLevel)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()

	tx, err := r.db.BeginTx(ctx, txOpts)
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues("begin_error").Inc()

		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.rollback(ctx, tx, start)
			panic(p)
		}
	}()

	signal, _ := ctx.Value(commitSignalKey{}).(*commitSignal)
	unitCtx := context.WithValue(WithTx(ctx, tx), commitSignalKey{}, (*commitSignal)(nil))

	if err := fn(unitCtx, tx); err != nil {
		r.rollback(ctx, tx, start)

		return err
	}

	if err := ctx.Err(); err != nil {
		r.rollback(ctx, tx, start)

		return fmt.Errorf("transaction abandoned: %w", err)
	}

	signal.fire()

	if err := tx.Commit(ctx); err != nil {
		metrics.TransactionsTotal.WithLabelValues("commit_error").Inc()
		metrics.TransactionDuration.Observe(time.Since(start).Seconds())

		return fmt.Errorf("committing transaction: %w", err)
	}

	metrics.TransactionsTotal.WithLabelValues("commit").Inc()
	metrics.TransactionDuration.Observe(time.Since(start).Seconds())

	return nil
}

// Ensure joins the transaction carried by ctx, or runs fn in a new one.
// Options only apply when a new transaction is started.
func (r *Runner) Ensure(ctx context.Context, fn TxFunc, opts ...Option) error {
	if tx := FromContext(ctx); tx != nil {
		return fn(ctx, tx)
	}

	return r.Run(ctx, fn, opts...)
}

// RunParallel runs every unit concurrently, each in its own transaction.
// Units commit in no particular order and a failure does not cancel the
// others. The returned slice holds one entry per unit, nil on success.
func (r *Runner) RunParallel(ctx context.Context, fns ...TxFunc) []error {
	errs := make([]error, len(fns))

	var g errgroup.Group
	g.SetLimit(r.parallelism)

	for i, fn := range fns {
		g.Go(func() error {
			errs[i] = r.Run(ctx, fn)

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers always return nil; errors are collected per unit.

	return errs
}

// RunSequential runs the units one after another, each in its own
// transaction. Unit i+1 starts only after unit i has committed. The first
// failure stops the sequence; units that already committed stay committed.
func (r *Runner) RunSequential(ctx context.Context, fns ...TxFunc) error {
	for i, fn := range fns {
		if err := r.Run(ctx, fn); err != nil {
			return fmt.Errorf("unit %d of %d: %w", i+1, len(fns), err)
		}
	}

	return nil
}

// RunWithSavepoint runs fn under a named savepoint inside tx. On failure
// only the work done since the savepoint is undone and tx stays usable.
func (r *Runner) RunWithSavepoint(ctx context.Context, tx pgx.Tx, name string, fn TxFunc) error {
	ident := pgx.Identifier{name}.Sanitize()

	if _, err := tx.Exec(ctx, "SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("creating savepoint %s: %w", name, err)
	}

	if err := fn(ctx, tx); err != nil {
		if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+ident); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back to savepoint %s: %w", name, rbErr))
		}

		if _, relErr := tx.Exec(ctx, "RELEASE SAVEPOINT "+ident); relErr != nil {
			r.log.WithError(relErr).WithField("savepoint", name).Warn("releasing savepoint after rollback")
		}

		return err
	}

	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("releasing savepoint %s: %w", name, err)
	}

	return nil
}

// RunWithTimeout races fn against timeout. When the deadline fires first it
// returns an error wrapping ErrTimeout and context.DeadlineExceeded without
// waiting for fn; the transaction is rolled back as soon as fn returns.
// A deadline that fires after COMMIT was sent waits for the commit result
// and reports it.
func (r *Runner) RunWithTimeout(ctx context.Context, timeout time.Duration, fn TxFunc, opts ...Option) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	signal := &commitSignal{ch: make(chan struct{})}
	done := make(chan error, 1)
	go func() { done <- r.Run(context.WithValue(tctx, commitSignalKey{}, signal), fn, opts...) }()

	select {
	case err := <-done:
		if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return r.timeoutError(timeout)
		}

		return err
	case <-tctx.Done():
		select {
		case <-signal.ch:
			if err := <-done; err != nil {
				if ctx.Err() != nil {
					return err
				}

				return fmt.Errorf("%w: commit outcome: %w", r.timeoutError(timeout), err)
			}

			return nil
		case err := <-done:
			// The unit may have finished in the same instant.
			if err == nil {
				return nil
			}
		default:
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		return r.timeoutError(timeout)
	}
}

func (r *Runner) timeoutError(timeout time.Duration) error {
	metrics.TransactionsTotal.WithLabelValues("timeout").Inc()
	r.log.WithField("timeout", timeout.String()).Warn("transaction timed out")

	return fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, context.DeadlineExceeded)
}

// rollback aborts tx. It detaches from ctx cancellation so a timed-out or
// cancelled request still releases its locks promptly.
func (r *Runner) rollback(ctx context.Context, tx pgx.Tx, start time.Time) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.log.WithError(err).Warn("transaction rollback failed")
	}

	metrics.TransactionsTotal.WithLabelValues("rollback").Inc()
	metrics.TransactionDuration.Observe(time.Since(start).Seconds())
}

func isoLabel(level pgx.TxIsoLevel) string {
	if level == "" {
		return "default"
	}

	return string(level)
}

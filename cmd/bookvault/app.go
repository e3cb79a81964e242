package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/config"
	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/service"
	"github.com/bookvault/bookvault/internal/store"
	"github.com/bookvault/bookvault/internal/txn"
)

// app holds the wired services shared by the serve and maintenance commands.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	pool   *dbpool.Pool
	runner *txn.Runner
	exec   *apperr.Executor
	worker *service.AuditWorker

	// isolation applies to transactional HTTP routes.
	isolation pgx.TxIsoLevel

	users *store.UserStore
	books *service.BookService
	refs  *service.ReferenceService
	batch *service.BatchService
	audit *service.AuditService
}

// newLogger builds the process logger. JSON output keeps log lines
// machine-readable for aggregation.
func newLogger(level string) (*logrus.Logger, error) {
	if flagLogLevel != "" {
		level = flagLogLevel
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(lvl)

	return log, nil
}

// retryStrategy maps configured retry settings onto the default strategy.
func retryStrategy(cfg config.Retry) apperr.RetryStrategy {
	s := apperr.DefaultRetryStrategy()
	s.MaxAttempts = cfg.MaxAttempts
	s.BaseDelay = cfg.BaseDelay
	s.MaxDelay = cfg.MaxDelay
	s.BackoffFactor = cfg.BackoffFactor

	return s
}

// newApp loads configuration, connects to PostgreSQL and wires every service.
// The caller must call close.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	isolation, err := txn.ParseIsolation(cfg.TxIsolation)
	if err != nil {
		return nil, fmt.Errorf("TX_ISOLATION: %w", err)
	}

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), dbpool.Options{
		MaxConns:         int32(cfg.DBMaxConns), //nolint:gosec // bounded by config validation.
		StatementTimeout: cfg.TxTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	base := store.Base{Pool: pool, Log: log}
	bookStore := store.NewBookStore(base)
	refStore := store.NewReferenceStore(base)

	auditSvc := service.NewAuditService(store.NewAuditStore(base), log)
	worker := service.NewAuditWorker(auditSvc, log, cfg.AuditQueueSize)
	runner := txn.NewRunner(pool, log, cfg.TxParallelism)
	exec := apperr.NewExecutor(retryStrategy(cfg.Retry), worker, log)

	return &app{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		runner: runner,
		exec:   exec,
		worker: worker,

		isolation: isolation,
		users:  store.NewUserStore(pool),
		books:  service.NewBookService(bookStore, auditSvc, runner, exec, log),
		refs:   service.NewReferenceService(refStore, auditSvc, runner, log),
		batch:  service.NewBatchService(bookStore, refStore, auditSvc, runner, log, cfg.BatchChunkSize),
		audit:  auditSvc,
	}, nil
}

func (a *app) close() {
	a.pool.Close()
}

// startAudit runs the audit worker until the returned stop function is
// called. stop waits for queued entries to be written.
func (a *app) startAudit(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)
		a.worker.Run(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}

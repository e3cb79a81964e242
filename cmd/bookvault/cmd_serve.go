package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bookvault/bookvault/internal/api"
	"github.com/bookvault/bookvault/internal/config"
	"github.com/bookvault/bookvault/internal/db"
	"github.com/bookvault/bookvault/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bookvault HTTP API",
		Long: `Start the REST API and the metrics listener. Pending schema migrations
are applied first unless --skip-migrations is set. SIGINT or SIGTERM starts a
graceful shutdown that drains in-flight requests and queued audit entries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return serve(ctx, skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on startup")

	return cmd
}

func serve(ctx context.Context, skipMigrations bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	log := a.log
	log.WithFields(logrus.Fields{
		"version":     config.Version,
		"addr":        a.cfg.Addr(),
		"tx_timeout":  a.cfg.TxTimeout.String(),
		"chunk_size":  a.cfg.BatchChunkSize,
		"max_retries": a.cfg.Retry.MaxAttempts,
	}).Info("starting bookvault")

	if !skipMigrations {
		if err := db.RunMigrations(ctx, a.pool, log, nil); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	if a.cfg.OTelEnabled {
		tp, err := telemetry.Init(ctx, a.cfg.OTelEndpoint, config.Version)
		if err != nil {
			return fmt.Errorf("initialising tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(sctx); err != nil {
				log.WithError(err).Warn("tracer shutdown failed")
			}
		}()
		log.WithField("endpoint", a.cfg.OTelEndpoint).Info("tracing enabled")
	}

	stopAudit := a.startAudit(ctx)
	defer stopAudit()

	gin.SetMode(gin.ReleaseMode)

	handler := api.NewRouter(ctx, &api.RouterDeps{
		Log:         log,
		Pool:        a.pool,
		Runner:      a.runner,
		Executor:    a.exec,
		AuditSink:   a.worker,
		AuditQueue:  a.worker,
		Users:       a.users,
		Books:       a.books,
		References:  a.refs,
		Batch:       a.batch,
		Audit:       a.audit,
		CORSOrigins: a.cfg.CORSOrigins,
		TxIsolation: a.isolation,
		Version:     config.Version,
	})
	if a.cfg.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "bookvault.http")
	}

	apiSrv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.cfg.TxTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              a.cfg.MetricsAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listen(apiSrv, log, "api") })
	g.Go(func() error { return listen(metricsSrv, log, "metrics") })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return errors.Join(apiSrv.Shutdown(sctx), metricsSrv.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown complete")

	return nil
}

// listen serves srv until it is shut down. http.ErrServerClosed is not an error.
func listen(srv *http.Server, log *logrus.Logger, name string) error {
	log.WithFields(logrus.Fields{"server": name, "addr": srv.Addr}).Info("listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}

	return nil
}

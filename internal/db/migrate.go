// Package db runs schema migrations against the bookvault database.
//
// Migration files live in internal/db/migrations/ and are embedded via //go:embed.
// The server applies pending migrations on startup; the CLI exposes the same
// runner through "bookvault migrate".
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/db/migrations"
	"github.com/bookvault/bookvault/internal/dbpool"
)

// RunMigrations applies all pending migrations from the provided filesystem.
// A nil fsys means the embedded bookvault migrations.
func RunMigrations(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger, fsys fs.FS) error {
	return RunMigrationsURL(ctx, pool.ConnString(), log, fsys)
}

// RunMigrationsURL is RunMigrations for callers that hold only a connection string.
func RunMigrationsURL(ctx context.Context, connStr string, log *logrus.Logger, fsys fs.FS) error {
	if fsys == nil {
		fsys = migrations.FS
	}

	// goose requires a *sql.DB, opened through the pgx stdlib driver.
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("opening sql.DB for migrations: %w", err)
	}
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", r.Source.Version, r.Source.Path, r.Error)
		}

		log.WithFields(logrus.Fields{
			"version":  r.Source.Version,
			"file":     r.Source.Path,
			"duration": r.Duration,
		}).Info("migration applied")
	}

	if len(results) == 0 {
		log.Debug("all migrations already applied")
	}

	return nil
}

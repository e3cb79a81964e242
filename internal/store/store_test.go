package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bookvault/bookvault/internal/db"
	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/store"
)

// testEnv holds shared test infrastructure (one container and pool for the package).
type testEnv struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

var (
	envOnce   sync.Once
	sharedEnv *testEnv
	envErr    error
)

func startEnv() (*testEnv, error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	pool, err := dbpool.NewPool(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(ctx, pool, log, nil); err != nil {
		return nil, err
	}

	return &testEnv{pool: pool, log: log}, nil
}

// getTestEnv starts Postgres once per package run and truncates every table
// before handing it to the test. Tests using it must not run in parallel.
func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	envOnce.Do(func() { sharedEnv, envErr = startEnv() })
	require.NoError(t, envErr)

	_, err := sharedEnv.pool.Exec(context.Background(),
		"TRUNCATE audit_logs, books, authors, publishers, genres, users RESTART IDENTITY")
	require.NoError(t, err)

	return sharedEnv
}

func setupTestBase(t *testing.T) store.Base {
	t.Helper()

	env := getTestEnv(t)

	return store.Base{Pool: env.pool, Log: env.log}
}

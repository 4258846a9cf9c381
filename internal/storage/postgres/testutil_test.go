package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pnf-signal-lab/internal/storage/migrations"
	"pnf-signal-lab/internal/storage/postgres"
)

// setupTestDB starts PostgreSQL, applies the embedded migrations twice
// (the second run must be a no-op) and returns a pool.
func setupTestDB(t *testing.T) (*postgres.Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("pnf"),
		tcpostgres.WithUsername("pnf"),
		tcpostgres.WithPassword("pnf"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool))
	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "re-run migrations")

	return pool, func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}

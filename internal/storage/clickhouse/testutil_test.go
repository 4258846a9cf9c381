package clickhouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	chstore "pnf-signal-lab/internal/storage/clickhouse"
	"pnf-signal-lab/internal/storage/migrations"
)

const clickhouseImage = "clickhouse/clickhouse-server:24.8-alpine"

// setupTestDB starts ClickHouse and lets the migrations create the pnf
// database. The returned connection points at it.
func setupTestDB(t *testing.T) (*chstore.Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        clickhouseImage,
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"CLICKHOUSE_SKIP_USER_SETUP": "1",
			},
			WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://default@%s:%s/pnf", host, port.Port())
	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err, "migrate clickhouse")

	// a second run finds every version recorded
	again, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err, "re-run migrations")
	again.Close()

	return conn, func() {
		conn.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate clickhouse: %v", err)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}

// SPDX-License-Identifier: Apache-2.0

package scdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scdb-go/scdb/pkg/config"
	"github.com/scdb-go/scdb/pkg/reconcile"
	"github.com/scdb-go/scdb/pkg/scdb"
)

func newTestClient(t *testing.T) *scdb.Client {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("scdb"),
		postgres.WithUsername("scdb"),
		postgres.WithPassword("scdb"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.PostgresURL = connStr

	c, err := scdb.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientUpdateThenSliceRoundTrips(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx := context.Background()

	target, err := c.Resolve(ctx, "mtcars")
	require.NoError(t, err)

	_, err = c.UpdateSnapshot(ctx, target, reconcile.Snapshot{
		Columns: []string{"car", "hp"},
		Rows:    []map[string]any{{"car": "Mazda RX4", "hp": 110}},
	}, time.Date(2020, 1, 1, 11, 0, 0, 0, time.UTC), "initial load", nil)
	require.NoError(t, err)

	rows, err := c.SliceTime(ctx, target, nil, false)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestClientLockAndUnlock(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx := context.Background()

	target, err := c.Resolve(ctx, "mtcars")
	require.NoError(t, err)

	acquired, err := c.Lock(ctx, target)
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, c.Unlock(ctx, target))
}

// SPDX-License-Identifier: Apache-2.0

package interlace_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/interlace"
)

func setupTables(t *testing.T) (db.DB, *sql.DB) {
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

	raw, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	_, err = raw.ExecContext(ctx, `
		CREATE TABLE t1 (key TEXT, obs1 TEXT, from_ts TIMESTAMP, until_ts TIMESTAMP NULL);
		CREATE TABLE t2 (key TEXT, obs2 TEXT, from_ts TIMESTAMP, until_ts TIMESTAMP NULL);
	`)
	require.NoError(t, err)

	mustExec := func(stmt string, args ...any) {
		_, err := raw.ExecContext(ctx, stmt, args...)
		require.NoError(t, err)
	}

	mustExec(`INSERT INTO t1 (key, obs1, from_ts, until_ts) VALUES ('A','1',$1,$2)`, mustParse(t, "2021-01-01T00:00:00Z"), mustParse(t, "2021-02-01T00:00:00Z"))
	mustExec(`INSERT INTO t1 (key, obs1, from_ts, until_ts) VALUES ('A','2',$1,$2)`, mustParse(t, "2021-02-01T00:00:00Z"), mustParse(t, "2021-03-01T00:00:00Z"))
	mustExec(`INSERT INTO t1 (key, obs1, from_ts, until_ts) VALUES ('B','2',$1,NULL)`, mustParse(t, "2021-01-01T00:00:00Z"))

	mustExec(`INSERT INTO t2 (key, obs2, from_ts, until_ts) VALUES ('A','a',$1,$2)`, mustParse(t, "2021-01-01T00:00:00Z"), mustParse(t, "2021-04-01T00:00:00Z"))
	mustExec(`INSERT INTO t2 (key, obs2, from_ts, until_ts) VALUES ('B','b',$1,NULL)`, mustParse(t, "2021-01-01T00:00:00Z"))

	return &db.RDB{DB: raw, Retryable: db.PostgresRetryable}, raw
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestInterlaceMergesTwoTablesOnCommonRefinement(t *testing.T) {
	t.Parallel()
	conn, _ := setupTables(t)
	ctx := context.Background()

	t1, err := ident.Parse(ctx, "t1", ident.Postgres{}, nil, "public")
	require.NoError(t, err)
	t2, err := ident.Parse(ctx, "t2", ident.Postgres{}, nil, "public")
	require.NoError(t, err)

	rows, err := interlace.Run(ctx, conn, ident.Postgres{}, interlace.Request{
		Inputs: []interlace.Input{
			{Target: t1, KeyColumn: "key", PayloadColumns: []string{"obs1"}},
			{Target: t2, KeyColumn: "key", PayloadColumns: []string{"obs2"}},
		},
	})
	require.NoError(t, err)

	boundaries := map[string]bool{}
	for _, r := range rows {
		boundaries[r.From.Format("2006-01")] = true
	}
	assert.Contains(t, boundaries, "2021-01")
	assert.Contains(t, boundaries, "2021-02")
	assert.Contains(t, boundaries, "2021-03")
}

// SPDX-License-Identifier: Apache-2.0

package lock_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scdb-go/scdb/internal/testutils"
	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/lock"
	"github.com/scdb-go/scdb/pkg/pidcheck"
)

func setupDB(t *testing.T) db.DB {
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

	conn, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &db.RDB{DB: conn, Retryable: db.PostgresRetryable}
}

func lockTableID(t *testing.T) *ident.Identifier {
	t.Helper()
	id, err := ident.Parse(context.Background(), "locks", ident.Postgres{}, nil, "public")
	require.NoError(t, err)
	return id
}

func target(t *testing.T, name string) *ident.Identifier {
	t.Helper()
	id, err := ident.Parse(context.Background(), name, ident.Postgres{}, nil, "public")
	require.NoError(t, err)
	return id
}

func TestLockAcquiresWhenFree(t *testing.T) {
	t.Parallel()
	conn := setupDB(t)
	mgr := lock.New(conn, ident.Postgres{}, lockTableID(t), pidcheck.OS{})

	ok, err := mgr.Lock(context.Background(), target(t, "mtcars"))
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestLockIsIdempotentForSameProcess(t *testing.T) {
	t.Parallel()
	conn := setupDB(t)
	mgr := lock.New(conn, ident.Postgres{}, lockTableID(t), pidcheck.OS{})

	tbl := target(t, "mtcars")
	ok1, err := mgr.Lock(context.Background(), tbl)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := mgr.Lock(context.Background(), tbl)
	assert.NoError(t, err)
	assert.True(t, ok2)
}

func TestLockBusyWhenOwnedByLiveOtherProcess(t *testing.T) {
	t.Parallel()
	conn := setupDB(t)
	mgr := lock.New(conn, ident.Postgres{}, lockTableID(t), pidcheck.Fake{AlivePids: map[int32]bool{9999: true}})

	tbl := target(t, "mtcars")
	require.NoError(t, mgr.EnsureTable(context.Background()))

	_, err := conn.ExecContext(context.Background(),
		fmt.Sprintf(`INSERT INTO %s (schema, "table", "user", pid, lock_start) VALUES ($1, $2, $3, $4, now())`,
			lockTableID(t).QualifiedName(ident.Postgres{})),
		tbl.Schema, tbl.Table, "someone-else", 9999)
	require.NoError(t, err)

	ok, err := mgr.Lock(context.Background(), tbl)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLockStaleWhenOwnerPidDead(t *testing.T) {
	t.Parallel()
	conn := setupDB(t)
	mgr := lock.New(conn, ident.Postgres{}, lockTableID(t), pidcheck.Fake{AlivePids: map[int32]bool{}})

	tbl := target(t, "mtcars")
	require.NoError(t, mgr.EnsureTable(context.Background()))

	_, err := conn.ExecContext(context.Background(),
		fmt.Sprintf(`INSERT INTO %s (schema, "table", "user", pid, lock_start) VALUES ($1, $2, $3, $4, now())`,
			lockTableID(t).QualifiedName(ident.Postgres{})),
		tbl.Schema, tbl.Table, "departed-user", 424242)
	require.NoError(t, err)

	ok, err := mgr.Lock(context.Background(), tbl)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale lock")
	assert.Contains(t, err.Error(), "departed-user")
}

func TestUnlockRemovesOwnRow(t *testing.T) {
	t.Parallel()
	conn := setupDB(t)
	mgr := lock.New(conn, ident.Postgres{}, lockTableID(t), pidcheck.OS{})

	tbl := target(t, "mtcars")
	ok, err := mgr.Lock(context.Background(), tbl)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mgr.Unlock(context.Background(), tbl, mgr.Self()))

	ok2, err := mgr.Lock(context.Background(), tbl)
	assert.NoError(t, err)
	assert.True(t, ok2)
}

// TestDuplicateLockRowViolatesPrimaryKey confirms the locks table's
// (schema, "table") primary key is what Manager.Lock's insert-then-classify
// path (errors.As against *pq.Error, SQLSTATE 23505) actually relies on: a
// second raw insert for the same target must fail as a genuine Postgres
// unique_violation, not some other constraint.
func TestDuplicateLockRowViolatesPrimaryKey(t *testing.T) {
	t.Parallel()
	conn := setupDB(t)
	mgr := lock.New(conn, ident.Postgres{}, lockTableID(t), pidcheck.OS{})
	require.NoError(t, mgr.EnsureTable(context.Background()))

	tbl := target(t, "mtcars")
	insert := fmt.Sprintf(`INSERT INTO %s (schema, "table", "user", pid, lock_start) VALUES ($1, $2, $3, $4, now())`,
		lockTableID(t).QualifiedName(ident.Postgres{}))

	_, err := conn.ExecContext(context.Background(), insert, tbl.Schema, tbl.Table, "first-owner", 111)
	require.NoError(t, err)

	_, err = conn.ExecContext(context.Background(), insert, tbl.Schema, tbl.Table, "second-owner", 222)
	require.Error(t, err)

	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr), "expected a *pq.Error, got %T: %v", err, err)
	assert.Equal(t, testutils.UniqueViolationErrorCode, pqErr.Code.Name())
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

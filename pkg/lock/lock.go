// SPDX-License-Identifier: Apache-2.0

// Package lock implements the inter-process lock protocol (C4) that
// serializes update_snapshot calls against the same historical table across
// processes, including stale-lock detection.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/pidcheck"
	"github.com/scdb-go/scdb/pkg/scdberrors"
)

// TableName is the name of the lock table within its configured schema.
const TableName = "locks"

// Manager acquires and releases named locks backed by a `locks` table, with
// stale-owner detection via a process-liveness capability.
type Manager struct {
	conn       db.DB
	backend    ident.Backend
	locksTable *ident.Identifier
	pidCheck   pidcheck.Checker
	user       string
	pid        int32
}

// New constructs a lock Manager. locksTable is the resolved identifier of
// the `locks` table (typically in the caller's configured schema).
func New(conn db.DB, backend ident.Backend, locksTable *ident.Identifier, pidCheck pidcheck.Checker) *Manager {
	user, _ := os.Hostname()
	return &Manager{
		conn:       conn,
		backend:    backend,
		locksTable: locksTable,
		pidCheck:   pidCheck,
		user:       user,
		pid:        int32(os.Getpid()),
	}
}

// EnsureTable creates the `locks` table if it doesn't already exist.
func (m *Manager) EnsureTable(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		schema TEXT NOT NULL,
		"table" TEXT NOT NULL,
		"user" TEXT NOT NULL,
		pid INTEGER NOT NULL,
		lock_start TIMESTAMP NOT NULL,
		PRIMARY KEY (schema, "table")
	)`, m.locksTable.QualifiedName(m.backend))

	_, err := m.conn.ExecContext(ctx, stmt)
	if err != nil {
		return &scdberrors.BackendError{Op: "create locks table", Err: err}
	}
	return nil
}

// Lock attempts to acquire the lock on target, returning (true, nil) on
// success, (false, nil) if another live process currently holds it, and a
// *scdberrors.StaleLockError if the current owner's pid is no longer alive
// (always fatal — requires manual cleanup).
func (m *Manager) Lock(ctx context.Context, target *ident.Identifier) (bool, error) {
	if err := m.EnsureTable(ctx); err != nil {
		return false, err
	}

	insertStmt := fmt.Sprintf(
		`INSERT INTO %s (schema, "table", "user", pid, lock_start) VALUES (%s, %s, %s, %s, %s)`,
		m.locksTable.QualifiedName(m.backend),
		m.backend.Placeholder(1), m.backend.Placeholder(2), m.backend.Placeholder(3),
		m.backend.Placeholder(4), m.backend.Placeholder(5))

	_, err := m.conn.ExecContext(ctx, insertStmt, target.Schema, target.Table, m.user, m.pid, time.Now().UTC())
	if err != nil && !isUniqueViolation(err) {
		// A genuine insert failure, not "row already present": never swallow
		// this, per the resolution of Open Question (a).
		return false, &scdberrors.BackendError{Op: "insert lock row", Err: err}
	}

	owner, err := m.ownerOf(ctx, target)
	if err != nil {
		return false, err
	}

	if owner.PID == m.pid {
		return true, nil
	}

	alive, err := m.pidCheck.Alive(ctx, owner.PID)
	if err != nil {
		return false, &scdberrors.BackendError{Op: "check lock owner liveness", Err: err}
	}
	if !alive {
		return false, &scdberrors.StaleLockError{
			Schema: target.Schema,
			Table:  target.Table,
			User:   owner.User,
			PID:    owner.PID,
		}
	}

	return false, nil
}

// Unlock removes the lock row matching (schema, table, pid). It is a silent
// no-op if the locks table doesn't exist yet.
func (m *Manager) Unlock(ctx context.Context, target *ident.Identifier, pid int32) error {
	stmt := fmt.Sprintf(
		`DELETE FROM %s WHERE schema = %s AND "table" = %s AND pid = %s`,
		m.locksTable.QualifiedName(m.backend),
		m.backend.Placeholder(1), m.backend.Placeholder(2), m.backend.Placeholder(3))

	_, err := m.conn.ExecContext(ctx, stmt, target.Schema, target.Table, pid)
	if err != nil {
		if isMissingTable(err) {
			return nil
		}
		return &scdberrors.BackendError{Op: "delete lock row", Err: err}
	}
	return nil
}

// Self returns this process's own pid, the default for Unlock.
func (m *Manager) Self() int32 { return m.pid }

type owner struct {
	User string
	PID  int32
}

func (m *Manager) ownerOf(ctx context.Context, target *ident.Identifier) (owner, error) {
	stmt := fmt.Sprintf(
		`SELECT "user", pid FROM %s WHERE schema = %s AND "table" = %s`,
		m.locksTable.QualifiedName(m.backend),
		m.backend.Placeholder(1), m.backend.Placeholder(2))

	rows, err := m.conn.QueryContext(ctx, stmt, target.Schema, target.Table)
	if err != nil {
		return owner{}, &scdberrors.BackendError{Op: "read lock owner", Err: err}
	}
	defer rows.Close()

	if !rows.Next() {
		return owner{}, fmt.Errorf("lock row for %s.%s vanished after insert", target.Schema, target.Table)
	}

	var o owner
	if err := rows.Scan(&o.User, &o.PID); err != nil {
		return owner{}, &scdberrors.BackendError{Op: "scan lock owner", Err: err}
	}
	return o, rows.Err()
}

func isUniqueViolation(err error) bool {
	pqErr := &pq.Error{}
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// DuckDB surfaces constraint violations as plain errors with
	// "constraint" in the message rather than a typed error; fall back to a
	// substring match for that backend.
	return containsFold(err.Error(), "constraint")
}

func isMissingTable(err error) bool {
	pqErr := &pq.Error{}
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	return containsFold(err.Error(), "does not exist") || containsFold(err.Error(), "no such table") ||
		containsFold(err.Error(), "catalog error")
}

func containsFold(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexFold(haystack, needle) >= 0
}

func indexFold(haystack, needle string) int {
	h, n := []rune(haystack), []rune(needle)
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			hc, nc := h[i+j], n[j]
			if hc >= 'A' && hc <= 'Z' {
				hc += 'a' - 'A'
			}
			if nc >= 'A' && nc <= 'Z' {
				nc += 'a' - 'A'
			}
			if hc != nc {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

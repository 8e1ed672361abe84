// SPDX-License-Identifier: Apache-2.0

// Package logging provides structured logging for the reconciler, lock
// manager and interlace/delta operations, modeled on the teacher's
// pkg/migrations.Logger.
package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/ident"
)

// Logger is responsible for logging all snapshot-reconciliation activity.
type Logger interface {
	LogUpdateStart(table string, t time.Time)
	LogUpdateComplete(table string, t time.Time, inserted, deactivated int)
	LogLockWait(table string)
	LogLockStale(table, user string, pid int32)

	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type consoleLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

// New returns a pterm-backed console Logger.
func New() Logger {
	return &consoleLogger{logger: pterm.DefaultLogger}
}

// NewNoop returns a Logger that discards everything.
func NewNoop() Logger {
	return &noopLogger{}
}

func (l *consoleLogger) LogUpdateStart(table string, t time.Time) {
	l.logger.Info("starting snapshot update", l.logger.Args("table", table, "timestamp", t))
}

func (l *consoleLogger) LogUpdateComplete(table string, t time.Time, inserted, deactivated int) {
	l.logger.Info("snapshot update complete", l.logger.Args(
		"table", table, "timestamp", t, "inserted", inserted, "deactivated", deactivated))
}

func (l *consoleLogger) LogLockWait(table string) {
	l.logger.Info("waiting for lock", l.logger.Args("table", table))
}

func (l *consoleLogger) LogLockStale(table, user string, pid int32) {
	l.logger.Warn("stale lock detected", l.logger.Args("table", table, "user", user, "pid", pid))
}

func (l *consoleLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args))
}

func (l *consoleLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.logger.Args(args))
}

func (noopLogger) LogUpdateStart(string, time.Time)              {}
func (noopLogger) LogUpdateComplete(string, time.Time, int, int) {}
func (noopLogger) LogLockWait(string)                            {}
func (noopLogger) LogLockStale(string, string, int32)            {}
func (noopLogger) Info(string, ...any)                           {}
func (noopLogger) Error(string, ...any)                          {}

// DBSink appends a row per log call to a configured log table, in addition
// to delegating to an underlying Logger (typically a console Logger). This
// is the log-table persistence configured by config.Config.LogTableID, for
// update_snapshot calls made unattended (cron/batch), where a human isn't
// watching the console.
type DBSink struct {
	Logger
	conn     db.DB
	backend  ident.Backend
	logTable *ident.Identifier
}

// NewDBSink wraps inner, additionally persisting each logged line as a row
// in logTable (schema: ts TIMESTAMP, level TEXT, message TEXT).
func NewDBSink(inner Logger, conn db.DB, backend ident.Backend, logTable *ident.Identifier) *DBSink {
	return &DBSink{Logger: inner, conn: conn, backend: backend, logTable: logTable}
}

// EnsureTable creates the log table if it doesn't already exist.
func (s *DBSink) EnsureTable(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMP NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	)`, s.logTable.QualifiedName(s.backend))
	_, err := s.conn.ExecContext(ctx, stmt)
	return err
}

func (s *DBSink) append(level, message string) {
	stmt := fmt.Sprintf(`INSERT INTO %s (ts, level, message) VALUES (%s, %s, %s)`,
		s.logTable.QualifiedName(s.backend), s.backend.Placeholder(1), s.backend.Placeholder(2), s.backend.Placeholder(3))
	// Best-effort: a failure to persist a log line must never abort the
	// reconciliation it's describing.
	_, _ = s.conn.ExecContext(context.Background(), stmt, time.Now().UTC(), level, message)
}

func (s *DBSink) LogUpdateStart(table string, t time.Time) {
	s.Logger.LogUpdateStart(table, t)
	s.append("info", fmt.Sprintf("starting snapshot update of %s at %s", table, t))
}

func (s *DBSink) LogUpdateComplete(table string, t time.Time, inserted, deactivated int) {
	s.Logger.LogUpdateComplete(table, t, inserted, deactivated)
	s.append("info", fmt.Sprintf("snapshot update of %s at %s complete: %d inserted, %d deactivated",
		table, t, inserted, deactivated))
}

func (s *DBSink) LogLockWait(table string) {
	s.Logger.LogLockWait(table)
	s.append("info", fmt.Sprintf("waiting for lock on %s", table))
}

func (s *DBSink) LogLockStale(table, user string, pid int32) {
	s.Logger.LogLockStale(table, user, pid)
	s.append("warn", fmt.Sprintf("stale lock on %s held by %s (pid %d)", table, user, pid))
}

func (s *DBSink) Info(msg string, args ...any) {
	s.Logger.Info(msg, args...)
	s.append("info", msg)
}

func (s *DBSink) Error(msg string, args ...any) {
	s.Logger.Error(msg, args...)
	s.append("error", msg)
}

// SPDX-License-Identifier: Apache-2.0

// Package scdberrors holds the distinct error kinds shared by the lock
// manager and reconciler, one struct per kind, modeled on the teacher's
// one-struct-per-kind style in pkg/migrations/errors.go.
package scdberrors

import "fmt"

// LockBusyError is returned when another live process currently holds the
// lock on a historical table.
type LockBusyError struct {
	Schema string
	Table  string
}

func (e *LockBusyError) Error() string {
	return fmt.Sprintf("table %q.%q is locked by another process", e.Schema, e.Table)
}

// StaleLockError is returned when the lock owner's pid is no longer alive.
// It is always fatal: the lock must be removed manually before retrying.
type StaleLockError struct {
	Schema string
	Table  string
	User   string
	PID    int32
}

func (e *StaleLockError) Error() string {
	return fmt.Sprintf(
		"stale lock on %q.%q held by user %q pid %d: owner process is no longer running, remove the lock row manually before retrying",
		e.Schema, e.Table, e.User, e.PID)
}

// SchemaMismatchError is returned when a snapshot's payload columns don't
// match the target historical table's payload columns.
type SchemaMismatchError struct {
	Table    string
	Expected []string
	Actual   []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("snapshot columns %v do not match historical table %q columns %v", e.Actual, e.Table, e.Expected)
}

// NotHistoricalError is returned when a target table exists but lacks the
// bookkeeping columns (checksum, from_ts, until_ts).
type NotHistoricalError struct {
	Table string
}

func (e *NotHistoricalError) Error() string {
	return fmt.Sprintf("table %q exists but is not a historical table", e.Table)
}

// OutOfOrderError is returned when enforce_chronological_order is set and
// the call's timestamp precedes the table's current maximum from_ts.
type OutOfOrderError struct {
	Table   string
	T       string
	MaxFrom string
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("update at %s for table %q is out of order: latest recorded from_ts is %s", e.T, e.Table, e.MaxFrom)
}

// BackendError wraps an underlying database error with the operation that
// triggered it.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

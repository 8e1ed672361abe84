// SPDX-License-Identifier: Apache-2.0

// Package reconcile implements update_snapshot (C6), the core SCD-2
// reconciliation algorithm: given a target historical table, a snapshot and
// an observation timestamp, compute and apply the minimal set of
// deactivations and insertions, then collapse redundant history.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/scdb-go/scdb/pkg/cleanup"
	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/fingerprint"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/lock"
	"github.com/scdb-go/scdb/pkg/logging"
	"github.com/scdb-go/scdb/pkg/scdberrors"
	"github.com/scdb-go/scdb/pkg/schema"
)

// Snapshot is the caller's view of a dataset at Request.At, in the table's
// declared payload-column order.
type Snapshot struct {
	Columns []string
	Rows    []map[string]any
}

// Request is the full input to UpdateSnapshot.
type Request struct {
	Target                    *ident.Identifier
	Snapshot                  Snapshot
	At                        time.Time
	EnforceChronologicalOrder bool
	Message                   string
	// Filters restricts the key set update_snapshot considers, per spec.md
	// §4.6 step 1. Nil means the whole table is in scope.
	Filters *Filters
}

// Result reports the write counts a call produced (the log counters of
// spec.md §3's Log record).
type Result struct {
	Inserted    int
	Deactivated int
	Collapsed   int
}

// Reconciler owns the collaborators UpdateSnapshot needs: a connection, a
// dialect, a lock manager, a schema inspector and a logger.
type Reconciler struct {
	conn      db.DB
	rawConn   *sql.DB
	backend   ident.Backend
	locks     *lock.Manager
	inspector schema.Inspector
	logger    logging.Logger
}

// New constructs a Reconciler. rawConn is used only for schema introspection
// (C3/C5 read the catalog through it); all writes go through conn so that
// retries and backend-specific behavior stay centralized in pkg/db.
func New(conn db.DB, rawConn *sql.DB, backend ident.Backend, locks *lock.Manager, inspector schema.Inspector, logger logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &Reconciler{conn: conn, rawConn: rawConn, backend: backend, locks: locks, inspector: inspector, logger: logger}
}

// UpdateSnapshot runs the full algorithm of spec.md §4.6.
func (r *Reconciler) UpdateSnapshot(ctx context.Context, req Request) (Result, error) {
	r.logger.LogUpdateStart(req.Target.String(), req.At)

	existingCols, err := r.inspector.Columns(ctx, r.rawConn, r.backend, req.Target)
	if err != nil {
		return Result{}, &scdberrors.BackendError{Op: "introspect target columns", Err: err}
	}

	if len(existingCols) == 0 {
		if err := r.createTable(ctx, req); err != nil {
			return Result{}, err
		}
	} else if !schema.IsHistorical(existingCols) {
		return Result{}, &scdberrors.NotHistoricalError{Table: req.Target.String()}
	} else if existing := payloadNames(existingCols); !schema.ColumnSetsEqual(existing, req.Snapshot.Columns) {
		return Result{}, &scdberrors.SchemaMismatchError{Table: req.Target.String(), Expected: existing, Actual: req.Snapshot.Columns}
	}

	ok, err := r.locks.Lock(ctx, req.Target)
	if err != nil {
		var stale *scdberrors.StaleLockError
		if errors.As(err, &stale) {
			r.logger.LogLockStale(req.Target.String(), stale.User, stale.PID)
		}
		return Result{}, err
	}
	if !ok {
		r.logger.LogLockWait(req.Target.String())
		return Result{}, &scdberrors.LockBusyError{Schema: req.Target.Schema, Table: req.Target.Table}
	}
	var scope cleanup.Stack
	scope.Push(func(ctx context.Context) error { return r.locks.Unlock(ctx, req.Target, r.locks.Self()) })
	defer func() { _ = scope.Run(ctx) }()

	if req.EnforceChronologicalOrder {
		maxFrom, err := r.maxFromTS(ctx, req.Target)
		if err != nil {
			return Result{}, err
		}
		if maxFrom != nil && req.At.Before(*maxFrom) {
			return Result{}, &scdberrors.OutOfOrderError{
				Table:   req.Target.String(),
				T:       req.At.UTC().Format(time.RFC3339Nano),
				MaxFrom: maxFrom.UTC().Format(time.RFC3339Nano),
			}
		}
	}

	// Step 1: restrict H to the key set selected by filters, then digest the
	// similarly-restricted snapshot (spec.md §4.6 step 1, §6 filter_keys).
	checksummed := make(map[string]map[string]any, len(req.Snapshot.Rows))
	snapshotChecksums := make(map[string]struct{}, len(req.Snapshot.Rows))
	for _, row := range req.Snapshot.Rows {
		if !req.Filters.matches(row) {
			continue
		}
		values := make([]any, len(req.Snapshot.Columns))
		for i, c := range req.Snapshot.Columns {
			values[i] = row[c]
		}
		sum := fingerprint.Row(values)
		checksummed[sum] = row
		snapshotChecksums[sum] = struct{}{}
	}

	nextTS, err := r.nextTimestamp(ctx, req.Target, req.At, req.Filters)
	if err != nil {
		return Result{}, err
	}

	live, err := r.liveAt(ctx, req.Target, req.At, req.Filters)
	if err != nil {
		return Result{}, err
	}
	liveChecksums := make(map[string]struct{}, len(live))
	for _, row := range live {
		liveChecksums[row.checksum] = struct{}{}
	}

	coord := &coordinator{}

	deactivated := 0
	for _, row := range live {
		if _, stillPresent := snapshotChecksums[row.checksum]; !stillPresent {
			coord.add(&deactivateAction{
				conn: r.conn, backend: r.backend, target: req.Target,
				checksum: row.checksum, fromTS: row.fromTS, untilTS: req.At,
			})
			deactivated++
		}
	}

	inserted := 0
	for sum, row := range checksummed {
		if _, alreadyLive := liveChecksums[sum]; alreadyLive {
			continue
		}
		coord.add(&insertAction{
			conn: r.conn, backend: r.backend, target: req.Target,
			columns: req.Snapshot.Columns, row: row, checksum: sum,
			fromTS: req.At, untilTS: nextTS,
		})
		inserted++
	}

	coord.add(&zeroLengthCleanupAction{conn: r.conn, backend: r.backend, target: req.Target, filters: req.Filters})

	if err := coord.run(ctx); err != nil {
		return Result{}, &scdberrors.BackendError{Op: "apply snapshot update", Err: err}
	}

	collapsed, err := r.collapseAdjacent(ctx, req.Target, req.Filters)
	if err != nil {
		return Result{}, &scdberrors.BackendError{Op: "collapse adjacent history", Err: err}
	}

	r.logger.LogUpdateComplete(req.Target.String(), req.At, inserted, deactivated)
	return Result{Inserted: inserted, Deactivated: deactivated, Collapsed: collapsed}, nil
}

func (r *Reconciler) createTable(ctx context.Context, req Request) error {
	cols := make([]schema.Column, len(req.Snapshot.Columns))
	for i, name := range req.Snapshot.Columns {
		cols[i] = schema.Column{Name: name, Type: "TEXT"}
	}
	stmt := schema.CreateTableSQL(r.backend, req.Target, schema.Table{Name: req.Target.Table, Columns: cols}, false)
	_, err := r.conn.ExecContext(ctx, stmt)
	if err != nil {
		return &scdberrors.BackendError{Op: "create historical table", Err: err}
	}
	return nil
}

func payloadNames(cols []schema.Column) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		if !schema.IsBookkeepingColumn(c.Name) {
			names = append(names, c.Name)
		}
	}
	return names
}

type liveRow struct {
	checksum string
	fromTS   time.Time
}

func (r *Reconciler) liveAt(ctx context.Context, target *ident.Identifier, t time.Time, filters *Filters) ([]liveRow, error) {
	stmt := fmt.Sprintf(
		`SELECT %s, %s FROM %s WHERE %s <= %s AND (%s IS NULL OR %s > %s)`,
		r.backend.QuoteIdentifier(schema.ColumnChecksum),
		r.backend.QuoteIdentifier(schema.ColumnFromTS),
		target.QualifiedName(r.backend),
		r.backend.QuoteIdentifier(schema.ColumnFromTS), r.backend.Placeholder(1),
		r.backend.QuoteIdentifier(schema.ColumnUntilTS),
		r.backend.QuoteIdentifier(schema.ColumnUntilTS), r.backend.Placeholder(2),
	)
	args := []any{t.UTC(), t.UTC()}
	if predicate, filterArgs := filters.predicate(r.backend, 3); predicate != "" {
		stmt += " AND " + predicate
		args = append(args, filterArgs...)
	}
	rows, err := r.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &scdberrors.BackendError{Op: "query live rows", Err: err}
	}
	defer rows.Close()

	var out []liveRow
	for rows.Next() {
		var lr liveRow
		if err := rows.Scan(&lr.checksum, &lr.fromTS); err != nil {
			return nil, &scdberrors.BackendError{Op: "scan live row", Err: err}
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}

func (r *Reconciler) maxFromTS(ctx context.Context, target *ident.Identifier) (*time.Time, error) {
	stmt := fmt.Sprintf("SELECT MAX(%s) FROM %s",
		r.backend.QuoteIdentifier(schema.ColumnFromTS), target.QualifiedName(r.backend))
	rows, err := r.conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, &scdberrors.BackendError{Op: "query max from_ts", Err: err}
	}
	defer rows.Close()

	var max sql.NullTime
	if err := db.ScanFirstValue(rows, &max); err != nil {
		return nil, &scdberrors.BackendError{Op: "scan max from_ts", Err: err}
	}
	if !max.Valid {
		return nil, nil
	}
	t := max.Time
	return &t, nil
}

// nextTimestamp computes the earliest future boundary in H after t: the
// minimum of any from_ts or until_ts strictly greater than t. nil means
// unbounded.
func (r *Reconciler) nextTimestamp(ctx context.Context, target *ident.Identifier, t time.Time, filters *Filters) (*time.Time, error) {
	// Each subquery gets its own occurrence of the filter predicate (and its
	// own slice of args) rather than sharing placeholder numbers across the
	// UNION ALL: DuckDB's "?" placeholders are positional per occurrence,
	// not numbered, so reusing one rendered predicate's args in two places
	// would under-supply arguments on that backend.
	predicate1, filterArgs1 := filters.predicate(r.backend, 3)
	filterClause1 := ""
	if predicate1 != "" {
		filterClause1 = " AND " + predicate1
	}
	predicate2, filterArgs2 := filters.predicate(r.backend, 3+len(filterArgs1))
	filterClause2 := ""
	if predicate2 != "" {
		filterClause2 = " AND " + predicate2
	}

	stmt := fmt.Sprintf(
		`SELECT MIN(b) FROM (
			SELECT %s AS b FROM %s WHERE %s > %s%s
			UNION ALL
			SELECT %s AS b FROM %s WHERE %s IS NOT NULL AND %s > %s%s
		) boundaries`,
		r.backend.QuoteIdentifier(schema.ColumnFromTS), target.QualifiedName(r.backend),
		r.backend.QuoteIdentifier(schema.ColumnFromTS), r.backend.Placeholder(1), filterClause1,
		r.backend.QuoteIdentifier(schema.ColumnUntilTS), target.QualifiedName(r.backend),
		r.backend.QuoteIdentifier(schema.ColumnUntilTS), r.backend.QuoteIdentifier(schema.ColumnUntilTS), r.backend.Placeholder(2), filterClause2,
	)
	args := []any{t.UTC(), t.UTC()}
	args = append(args, filterArgs1...)
	args = append(args, filterArgs2...)
	rows, err := r.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &scdberrors.BackendError{Op: "query next boundary", Err: err}
	}
	defer rows.Close()

	var next sql.NullTime
	if err := db.ScanFirstValue(rows, &next); err != nil {
		return nil, &scdberrors.BackendError{Op: "scan next boundary", Err: err}
	}
	if !next.Valid {
		return nil, nil
	}
	nt := next.Time
	return &nt, nil
}

// collapseAdjacent runs adjacency collapse (step 7 of §4.6) to a fixed
// point. It is always run, per the resolution of Open Question (c): under
// enforced chronology it usually finds nothing to merge (a row deactivated
// and re-added at the same instant is the exception), and it heals history
// left by a prior call made with chronology disabled.
func (r *Reconciler) collapseAdjacent(ctx context.Context, target *ident.Identifier, filters *Filters) (int, error) {
	type row struct {
		checksum string
		fromTS   time.Time
		untilTS  sql.NullTime
	}

	stmt := fmt.Sprintf("SELECT %s, %s, %s FROM %s",
		r.backend.QuoteIdentifier(schema.ColumnChecksum),
		r.backend.QuoteIdentifier(schema.ColumnFromTS),
		r.backend.QuoteIdentifier(schema.ColumnUntilTS),
		target.QualifiedName(r.backend))
	var args []any
	if predicate, filterArgs := filters.predicate(r.backend, 1); predicate != "" {
		stmt += " WHERE " + predicate
		args = filterArgs
	}
	stmt += fmt.Sprintf(" ORDER BY %s, %s",
		r.backend.QuoteIdentifier(schema.ColumnChecksum),
		r.backend.QuoteIdentifier(schema.ColumnFromTS))

	rows, err := r.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	var all []row
	for rows.Next() {
		var rr row
		if err := rows.Scan(&rr.checksum, &rr.fromTS, &rr.untilTS); err != nil {
			rows.Close()
			return 0, err
		}
		all = append(all, rr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	byChecksum := make(map[string][]row)
	for _, rr := range all {
		byChecksum[rr.checksum] = append(byChecksum[rr.checksum], rr)
	}

	coord := &coordinator{}
	collapsed := 0

	for _, group := range byChecksum {
		sort.Slice(group, func(i, j int) bool { return group[i].fromTS.Before(group[j].fromTS) })

		survivor := group[0]
		for i := 1; i < len(group); i++ {
			next := group[i]
			if !survivor.untilTS.Valid || !survivor.untilTS.Time.Equal(next.fromTS) {
				survivor = next
				continue
			}

			var newUntil *time.Time
			if next.untilTS.Valid {
				t := next.untilTS.Time
				newUntil = &t
			}
			coord.add(&collapseExtendAction{
				conn: r.conn, backend: r.backend, target: target,
				checksum: survivor.checksum, fromTS: survivor.fromTS, newUntil: newUntil,
			})
			coord.add(&collapseDeleteAction{
				conn: r.conn, backend: r.backend, target: target,
				checksum: next.checksum, fromTS: next.fromTS,
			})
			collapsed++
			survivor.untilTS = next.untilTS
		}
	}

	if err := coord.run(ctx); err != nil {
		return collapsed, err
	}
	return collapsed, nil
}

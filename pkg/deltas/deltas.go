// SPDX-License-Identifier: Apache-2.0

// Package deltas implements delta_export/delta_load (C8): encoding the row
// versions of a historical table whose from_ts falls in a window, and
// replaying one or more such deltas onto a (possibly new) target table
// through ordinary update_snapshot calls.
package deltas

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/pool"
	"github.com/scdb-go/scdb/pkg/reconcile"
	"github.com/scdb-go/scdb/pkg/schema"
)

// Version is one row version captured by an export, portable across a trust
// boundary (plain Go values, no driver-specific types).
type Version struct {
	Payload map[string]any
	FromTS  time.Time
	UntilTS *time.Time
}

// Delta is the output of Export: the payload columns it covers and the row
// versions whose from_ts fell in the requested window.
type Delta struct {
	Columns  []string
	Versions []Version
}

// Export returns a portable representation of every row of target whose
// from_ts lies in [from, until) (or [from, +inf) when until is nil).
func Export(ctx context.Context, conn db.DB, backend ident.Backend, target *ident.Identifier, columns []string, from time.Time, until *time.Time) (Delta, error) {
	cols := make([]string, 0, len(columns)+2)
	for _, c := range columns {
		cols = append(cols, backend.QuoteIdentifier(c))
	}
	cols = append(cols, backend.QuoteIdentifier(schema.ColumnFromTS), backend.QuoteIdentifier(schema.ColumnUntilTS))

	where := fmt.Sprintf("%s >= %s", backend.QuoteIdentifier(schema.ColumnFromTS), backend.Placeholder(1))
	args := []any{from.UTC()}
	if until != nil {
		where += fmt.Sprintf(" AND %s < %s", backend.QuoteIdentifier(schema.ColumnFromTS), backend.Placeholder(2))
		args = append(args, until.UTC())
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		joinComma(cols), target.QualifiedName(backend), where, backend.QuoteIdentifier(schema.ColumnFromTS))

	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return Delta{}, err
	}
	defer rows.Close()

	delta := Delta{Columns: columns}
	for rows.Next() {
		payload := make([]any, len(columns))
		var fromTS time.Time
		var untilTS *time.Time

		scanTargets := make([]any, len(columns)+2)
		for i := range payload {
			scanTargets[i] = &payload[i]
		}
		scanTargets[len(columns)] = &fromTS
		scanTargets[len(columns)+1] = &untilTS

		if err := rows.Scan(scanTargets...); err != nil {
			return Delta{}, err
		}

		row := map[string]any{}
		for i, c := range columns {
			row[c] = payload[i]
		}
		delta.Versions = append(delta.Versions, Version{Payload: row, FromTS: fromTS, UntilTS: untilTS})
	}
	return delta, rows.Err()
}

// Load replays one or more deltas onto target, in increasing from_ts order,
// as ordinary UpdateSnapshot calls — so a secondary site can receive only
// change sets across a trust boundary and end up with identical history.
//
// update_snapshot is defined over the *whole* live set at an instant, not
// one row in isolation, so each replayed call's snapshot must be every
// version live at that from_ts, not just the version(s) that happened to
// start there: a from_ts can be shared by more than one simultaneously-live
// key (e.g. an initial load of several rows), and reconstructing the live
// set for each from_ts boundary from the versions' FromTS/UntilTS is what
// keeps a sibling row that didn't change at that instant from looking
// absent and being spuriously deactivated.
func Load(ctx context.Context, reconciler *reconcile.Reconciler, target *ident.Identifier, deltas ...Delta) error {
	var columns []string
	var all []Version
	for _, d := range deltas {
		if columns == nil {
			columns = d.Columns
		}
		all = append(all, d.Versions...)
	}
	if len(all) == 0 {
		return nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].FromTS.Before(all[j].FromTS) })

	var boundaries []time.Time
	seen := map[int64]struct{}{}
	for _, v := range all {
		key := v.FromTS.UTC().UnixNano()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			boundaries = append(boundaries, v.FromTS)
		}
	}

	for _, boundary := range boundaries {
		var rows []map[string]any
		for _, v := range all {
			if v.FromTS.After(boundary) {
				continue
			}
			if v.UntilTS != nil && !v.UntilTS.After(boundary) {
				continue
			}
			rows = append(rows, v.Payload)
		}

		_, err := reconciler.UpdateSnapshot(ctx, reconcile.Request{
			Target: target,
			Snapshot: reconcile.Snapshot{
				Columns: columns,
				Rows:    rows,
			},
			At:                        boundary,
			EnforceChronologicalOrder: false,
		})
		if err != nil {
			return fmt.Errorf("replay snapshot at %s: %w", boundary, err)
		}
	}
	return nil
}

// LoadMany replays deltas onto several targets concurrently, bounded by a
// worker pool (SF-6), for administrative batch replication across more than
// one secondary site.
func LoadMany(ctx context.Context, poolSize int, loads map[string]func() error) error {
	names := make([]string, 0, len(loads))
	for name := range loads {
		names = append(names, name)
	}
	sort.Strings(names)

	p := pool.New[struct{}](poolSize)
	tasks := make([]func() (struct{}, error), len(names))
	for i, name := range names {
		fn := loads[name]
		tasks[i] = func() (struct{}, error) { return struct{}{}, fn() }
	}
	_, err := p.RunAll(ctx, tasks)
	return err
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

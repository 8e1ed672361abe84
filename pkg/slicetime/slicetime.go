// SPDX-License-Identifier: Apache-2.0

// Package slicetime implements the time-slice query (C5): reconstructing the
// snapshot of a historical table valid at a past instant, or its full
// history when no instant is given.
package slicetime

import (
	"context"
	"time"

	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/querybuilder"
	"github.com/scdb-go/scdb/pkg/schema"
)

// Row is one reconstructed row: payload values keyed by column name, plus
// the bookkeeping columns when requested.
type Row struct {
	Payload  map[string]any
	Checksum string
	FromTS   time.Time
	UntilTS  *time.Time
}

// Query builds the SQL for slice_time(target, at) via the query-builder
// abstraction (§4.9): when at is nil the full history is selected, otherwise
// only rows live at that instant (from_ts <= at < until_ts OR until_ts IS NULL).
func Query(backend ident.Backend, target *ident.Identifier, at *time.Time) *querybuilder.Select {
	sel := querybuilder.From(backend, target, "")
	if at == nil {
		return sel
	}
	literal := backend.TimestampLiteral(*at)
	sel.Where(backend.QuoteIdentifier(schema.ColumnFromTS) + " <= " + literal)
	sel.Where("(" + backend.QuoteIdentifier(schema.ColumnUntilTS) + " > " + literal +
		" OR " + backend.QuoteIdentifier(schema.ColumnUntilTS) + " IS NULL)")
	return sel
}

// SliceTime runs slice_time(target, at) and returns the matching rows. When
// includeSliceInfo is false, Checksum/FromTS/UntilTS are left zero-valued and
// only Payload is populated.
func SliceTime(ctx context.Context, conn db.DB, backend ident.Backend, target *ident.Identifier, cols []schema.Column, at *time.Time, includeSliceInfo bool) ([]Row, error) {
	payloadCols := make([]string, 0, len(cols))
	for _, c := range cols {
		if !schema.IsBookkeepingColumn(c.Name) {
			payloadCols = append(payloadCols, c.Name)
		}
	}

	projection := make([]string, 0, len(payloadCols)+3)
	for _, c := range payloadCols {
		projection = append(projection, backend.QuoteIdentifier(c))
	}
	projection = append(projection,
		backend.QuoteIdentifier(schema.ColumnChecksum),
		backend.QuoteIdentifier(schema.ColumnFromTS),
		backend.QuoteIdentifier(schema.ColumnUntilTS),
	)

	sel := Query(backend, target, at).Project(projection...)

	rows, err := conn.QueryContext(ctx, sel.SQL())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		payload := make([]any, len(payloadCols))
		var checksum string
		var fromTS time.Time
		var untilTS *time.Time

		scanTargets := make([]any, 0, len(payloadCols)+3)
		for i := range payload {
			scanTargets = append(scanTargets, &payload[i])
		}
		scanTargets = append(scanTargets, &checksum, &fromTS, &untilTS)

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}

		row := Row{Payload: map[string]any{}}
		for i, c := range payloadCols {
			row.Payload[c] = payload[i]
		}
		if includeSliceInfo {
			row.Checksum = checksum
			row.FromTS = fromTS
			row.UntilTS = untilTS
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetTable returns a query object for the live rows at slice_ts (or the full
// history when slice_ts is nil), without executing it — for callers that
// want to compose it into a larger statement rather than materialize rows.
func GetTable(backend ident.Backend, target *ident.Identifier, sliceTS *time.Time, includeSliceInfo bool, payloadColumns []string) *querybuilder.Select {
	cols := make([]string, 0, len(payloadColumns)+3)
	for _, c := range payloadColumns {
		cols = append(cols, backend.QuoteIdentifier(c))
	}
	if includeSliceInfo {
		cols = append(cols,
			backend.QuoteIdentifier(schema.ColumnChecksum),
			backend.QuoteIdentifier(schema.ColumnFromTS),
			backend.QuoteIdentifier(schema.ColumnUntilTS),
		)
	}
	return Query(backend, target, sliceTS).Project(cols...)
}

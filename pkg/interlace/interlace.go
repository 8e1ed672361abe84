// SPDX-License-Identifier: Apache-2.0

// Package interlace implements the interlace operator (C7): merging several
// bitemporal tables over a shared key into the common refinement of their
// validity axes.
package interlace

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/pool"
	"github.com/scdb-go/scdb/pkg/schema"
)

// farFuture is the +∞ sentinel an unbounded until_ts is rewritten to when
// rows are fetched, before the boundaries are sorted in Go, so behavior
// never depends on a backend's null-ordering
// default (resolves Open Question (b)).
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// Input describes one bitemporal table contributing to the merge.
type Input struct {
	Target         *ident.Identifier
	KeyColumn      string
	PayloadColumns []string
	// ColumnAliases renames a payload column in the merged output, e.g.
	// {"obs": "obs1"}, for inputs whose column names collide.
	ColumnAliases map[string]string
}

// Request is the input to Run.
type Request struct {
	Inputs []Input
	// PoolSize bounds concurrency when len(Inputs) > 2; 0 selects GOMAXPROCS.
	PoolSize int
}

// Row is one output row of the merged timeline.
type Row struct {
	Key     any
	From    time.Time
	Until   *time.Time
	Payload map[string]any
}

type sourceRow struct {
	key     any
	from    time.Time
	until   time.Time // farFuture sentinel for unbounded
	payload map[string]any
}

// Run executes the interlace algorithm of spec.md §4.7 against conn,
// fanning the per-key payload resolution for each candidate interval across
// a bounded worker pool when more than two inputs are being merged.
func Run(ctx context.Context, conn db.DB, backend ident.Backend, req Request) ([]Row, error) {
	perInput := make([][]sourceRow, len(req.Inputs))
	for i, in := range req.Inputs {
		rows, err := fetchRows(ctx, conn, backend, in)
		if err != nil {
			return nil, fmt.Errorf("fetch rows for %s: %w", in.Target.String(), err)
		}
		perInput[i] = rows
	}

	boundariesByKey := map[any][]time.Time{}
	for _, rows := range perInput {
		for _, r := range rows {
			boundariesByKey[r.key] = append(boundariesByKey[r.key], r.from, r.until)
		}
	}

	keys := make([]any, 0, len(boundariesByKey))
	for k := range boundariesByKey {
		keys = append(keys, k)
	}

	type candidate struct {
		key        any
		from, next time.Time
	}
	var candidates []candidate
	for _, k := range keys {
		bs := dedupSorted(boundariesByKey[k])
		for i := 0; i+1 < len(bs); i++ {
			candidates = append(candidates, candidate{key: k, from: bs[i], next: bs[i+1]})
		}
	}

	resolve := func(c candidate) (Row, error) {
		row := Row{Key: c.key, From: c.from, Payload: map[string]any{}}
		if !c.next.Equal(farFuture) {
			until := c.next
			row.Until = &until
		}
		for i, in := range req.Inputs {
			match := findCovering(perInput[i], c.key, c.from, c.next)
			for _, col := range in.PayloadColumns {
				outCol := col
				if alias, ok := in.ColumnAliases[col]; ok {
					outCol = alias
				}
				if match != nil {
					row.Payload[outCol] = match.payload[col]
				} else {
					row.Payload[outCol] = nil
				}
			}
		}
		return row, nil
	}

	if len(req.Inputs) > 2 {
		p := pool.New[Row](req.PoolSize)
		tasks := make([]func() (Row, error), len(candidates))
		for i, c := range candidates {
			c := c
			tasks[i] = func() (Row, error) { return resolve(c) }
		}
		rows, err := p.RunAll(ctx, tasks)
		if err != nil {
			return nil, err
		}
		sortRows(rows)
		return rows, nil
	}

	rows := make([]Row, 0, len(candidates))
	for _, c := range candidates {
		row, err := resolve(c)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	sortRows(rows)
	return rows, nil
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		ki, kj := fmt.Sprint(rows[i].Key), fmt.Sprint(rows[j].Key)
		if ki != kj {
			return ki < kj
		}
		return rows[i].From.Before(rows[j].From)
	})
}

func dedupSorted(ts []time.Time) []time.Time {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	out := ts[:0:0]
	for i, t := range ts {
		if i == 0 || !t.Equal(ts[i-1]) {
			out = append(out, t)
		}
	}
	return out
}

func findCovering(rows []sourceRow, key any, a, b time.Time) *sourceRow {
	for i := range rows {
		r := &rows[i]
		if r.key != key {
			continue
		}
		if !r.from.After(a) && !r.until.Before(b) {
			return r
		}
	}
	return nil
}

func fetchRows(ctx context.Context, conn db.DB, backend ident.Backend, in Input) ([]sourceRow, error) {
	cols := []string{backend.QuoteIdentifier(in.KeyColumn), backend.QuoteIdentifier(schema.ColumnFromTS), backend.QuoteIdentifier(schema.ColumnUntilTS)}
	for _, c := range in.PayloadColumns {
		cols = append(cols, backend.QuoteIdentifier(c))
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", joinComma(cols), in.Target.QualifiedName(backend))
	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sourceRow
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		var key any
		var from time.Time
		var until *time.Time
		scanTargets[0] = &key
		scanTargets[1] = &from
		scanTargets[2] = &until
		payload := make([]any, len(in.PayloadColumns))
		for i := range payload {
			scanTargets[3+i] = &payload[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}

		sr := sourceRow{key: key, from: from, until: farFuture, payload: map[string]any{}}
		if until != nil {
			sr.until = *until
		}
		for i, c := range in.PayloadColumns {
			sr.payload[c] = payload[i]
		}
		out = append(out, sr)
	}
	return out, rows.Err()
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

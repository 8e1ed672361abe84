// SPDX-License-Identifier: Apache-2.0

// Package schema models the table-meta capability (C3): detecting whether a
// table already has the historical bookkeeping columns, generating the DDL
// to create one that doesn't, and naming the scoped staging tables the
// reconciler uses during a call.
package schema

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Bookkeeping column names mandated by the data model (spec.md §3).
const (
	ColumnChecksum = "checksum"
	ColumnFromTS   = "from_ts"
	ColumnUntilTS  = "until_ts"
)

// Column describes one column of a table as discovered on the backend (or,
// for create_table, as declared by the caller's sample).
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Table is the payload-plus-bookkeeping column layout of a historical table,
// in the table's declared column order.
type Table struct {
	Name    string
	Columns []Column
}

// PayloadColumns returns the caller-defined columns, excluding the three
// bookkeeping columns, in declared order.
func (t Table) PayloadColumns() []Column {
	out := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if IsBookkeepingColumn(c.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// PayloadColumnNames is a convenience wrapper around PayloadColumns.
func (t Table) PayloadColumnNames() []string {
	cols := t.PayloadColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func IsBookkeepingColumn(name string) bool {
	switch name {
	case ColumnChecksum, ColumnFromTS, ColumnUntilTS:
		return true
	default:
		return false
	}
}

// IsHistorical reports whether cols already contains the three bookkeeping
// columns, with from_ts not nullable and until_ts nullable (C3
// is_historical). Column types are not checked. Column discovery itself
// is an external collaborator's concern (a connection's catalog/schema
// lookup); this function operates purely on an already-fetched column list
// so the core never embeds dialect-specific introspection SQL.
func IsHistorical(cols []Column) bool {
	var hasChecksum, hasFrom, hasUntil bool
	for _, c := range cols {
		switch c.Name {
		case ColumnChecksum:
			hasChecksum = true
		case ColumnFromTS:
			hasFrom = !c.Nullable
		case ColumnUntilTS:
			hasUntil = c.Nullable
		}
	}
	return hasChecksum && hasFrom && hasUntil
}

// stagingCounter gives unique_staging_name a per-process monotonic
// component so that repeated calls within the same process never collide,
// even if the wall-clock or PRNG repeats.
var stagingCounter uint64

// UniqueStagingName generates a name unique per process and call: a fixed
// prefix, the process id, an atomic call counter and a uuid suffix so that
// two processes racing to stage the same snapshot never collide either.
func UniqueStagingName(pid int, prefix string) string {
	n := atomic.AddUint64(&stagingCounter, 1)
	id := uuid.New()
	return fmt.Sprintf("_scdb_%s_%d_%d_%s", prefix, pid, n, strings.ReplaceAll(id.String(), "-", ""))
}

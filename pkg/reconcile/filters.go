// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"fmt"
	"strings"

	"github.com/scdb-go/scdb/pkg/ident"
)

// Filters restricts an update_snapshot call (spec.md §4.6 step 1, §6's
// filter_keys) to a subset of a historical table's rows: only rows whose
// KeyColumns tuple matches one of Rows are in scope for to_remove/to_add
// computation, adjacency collapse and the new snapshot's checksumming.
// Rows outside the key set are left untouched regardless of whether they
// appear in the incoming snapshot. A nil *Filters disables scoping
// entirely (the whole table is in scope, the prior behavior).
type Filters struct {
	KeyColumns []string
	Rows       []map[string]any
}

// predicate renders the semi-join restriction "tuple IN filters.Rows" as an
// OR-of-ANDs of placeholder-bound equalities starting at placeholder index
// startArg, so it composes into a larger WHERE clause without colliding
// with the caller's own placeholder numbering. An empty/nil Filters (or one
// with no rows) renders no predicate at all.
func (f *Filters) predicate(backend ident.Backend, startArg int) (string, []any) {
	if f == nil || len(f.Rows) == 0 {
		return "", nil
	}

	n := startArg
	parts := make([]string, 0, len(f.Rows))
	var args []any
	for _, row := range f.Rows {
		eqs := make([]string, 0, len(f.KeyColumns))
		for _, col := range f.KeyColumns {
			eqs = append(eqs, fmt.Sprintf("%s = %s", backend.QuoteIdentifier(col), backend.Placeholder(n)))
			args = append(args, row[col])
			n++
		}
		parts = append(parts, "("+strings.Join(eqs, " AND ")+")")
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// matches reports whether row's KeyColumns values equal one of f.Rows'. A
// nil Filters matches every row (no scoping).
func (f *Filters) matches(row map[string]any) bool {
	if f == nil || len(f.Rows) == 0 {
		return true
	}
	for _, candidate := range f.Rows {
		all := true
		for _, col := range f.KeyColumns {
			if fmt.Sprint(row[col]) != fmt.Sprint(candidate[col]) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// FilterKeys renders the semi-join restriction of target's rows to the key
// tuples named by filters, without executing it (spec.md §6:
// `filter_keys(table, filters?) → query`), mirroring slicetime.GetTable's
// non-executing shape. The returned SQL is parameterized rather than
// literal-embedded, since filter values are arbitrary caller-supplied data.
func FilterKeys(backend ident.Backend, target *ident.Identifier, filters *Filters) (string, []any) {
	stmt := fmt.Sprintf("SELECT * FROM %s", target.QualifiedName(backend))
	predicate, args := filters.predicate(backend, 1)
	if predicate != "" {
		stmt += " WHERE " + predicate
	}
	return stmt, args
}

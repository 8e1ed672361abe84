// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"strings"

	"github.com/scdb-go/scdb/pkg/ident"
)

// CreateTableSQL renders the DDL to create a historical table from sample's
// payload columns, extended by the three bookkeeping columns (C3
// create_table). temporary additionally marks the table as a session-local
// staging table on backends that support it.
func CreateTableSQL(backend ident.Backend, id *ident.Identifier, sample Table, temporary bool) string {
	cols := make([]string, 0, len(sample.Columns)+3)
	for _, c := range sample.PayloadColumns() {
		cols = append(cols, columnDDL(backend, c))
	}

	hasChecksum, hasFrom, hasUntil := false, false, false
	for _, c := range sample.Columns {
		switch c.Name {
		case ColumnChecksum:
			hasChecksum = true
		case ColumnFromTS:
			hasFrom = true
		case ColumnUntilTS:
			hasUntil = true
		}
	}
	if !hasChecksum {
		cols = append(cols, backend.QuoteIdentifier(ColumnChecksum)+" TEXT NOT NULL")
	}
	if !hasFrom {
		cols = append(cols, backend.QuoteIdentifier(ColumnFromTS)+" TIMESTAMP NOT NULL")
	}
	if !hasUntil {
		cols = append(cols, backend.QuoteIdentifier(ColumnUntilTS)+" TIMESTAMP NULL")
	}

	kind := "TABLE"
	if temporary {
		kind = "TEMPORARY TABLE"
	}

	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s (\n\t%s\n)",
		kind, id.QualifiedName(backend), strings.Join(cols, ",\n\t"))
}

func columnDDL(backend ident.Backend, c Column) string {
	nullability := "NOT NULL"
	if c.Nullable {
		nullability = "NULL"
	}
	return fmt.Sprintf("%s %s %s", backend.QuoteIdentifier(c.Name), c.Type, nullability)
}

// ColumnSetsEqual reports whether two payload column-name sets are equal,
// order irrelevant (used to validate a snapshot's columns against an
// existing historical table's payload columns).
func ColumnSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, n := range a {
		set[n] = struct{}{}
	}
	for _, n := range b {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

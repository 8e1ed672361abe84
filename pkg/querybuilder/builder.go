// SPDX-License-Identifier: Apache-2.0

// Package querybuilder is a small relational-algebra builder compiling to
// the active dialect's SQL, generalizing the teacher's raw-SQL-with-quoting
// idiom (pkg/migrations/dbactions.go) into composable builder values instead
// of one-off format strings.
package querybuilder

import (
	"fmt"
	"strings"

	"github.com/scdb-go/scdb/pkg/ident"
)

// Expr is a rendered SQL fragment, opaque to callers beyond composition.
type Expr string

// Select represents a single SELECT statement under construction.
type Select struct {
	backend ident.Backend
	columns []string
	from    string
	alias   string
	wheres  []string
	orderBy []string
	limit   int
	hasLim  bool
}

// From starts a Select reading from the given identifier (optionally
// aliased).
func From(backend ident.Backend, id *ident.Identifier, alias string) *Select {
	from := id.QualifiedName(backend)
	if alias != "" {
		from += " AS " + backend.QuoteIdentifier(alias)
	}
	return &Select{backend: backend, from: from, alias: alias, columns: []string{"*"}}
}

// FromRaw starts a Select over an arbitrary SQL source (subquery, CTE name,
// or already-quoted table reference).
func FromRaw(backend ident.Backend, rawFrom string) *Select {
	return &Select{backend: backend, from: rawFrom, columns: []string{"*"}}
}

// Project restricts the output to the given columns (Project/Rename combined
// via "expr AS alias" entries).
func (s *Select) Project(cols ...string) *Select {
	s.columns = cols
	return s
}

// Rename appends a single "expr AS alias" projection entry.
func (s *Select) Rename(expr, alias string) *Select {
	s.columns = append(s.columns, fmt.Sprintf("%s AS %s", expr, s.backend.QuoteIdentifier(alias)))
	return s
}

// Where ANDs an additional predicate onto the statement.
func (s *Select) Where(predicate string) *Select {
	s.wheres = append(s.wheres, predicate)
	return s
}

// OrderBy appends an ORDER BY clause fragment.
func (s *Select) OrderBy(expr string) *Select {
	s.orderBy = append(s.orderBy, expr)
	return s
}

// Limit bounds the result set.
func (s *Select) Limit(n int) *Select {
	s.limit = n
	s.hasLim = true
	return s
}

// SQL renders the statement.
func (s *Select) SQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(s.columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(s.from)
	if len(s.wheres) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(s.wheres, " AND "))
	}
	if len(s.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(s.orderBy, ", "))
	}
	if s.hasLim {
		fmt.Fprintf(&b, " LIMIT %d", s.limit)
	}
	return b.String()
}

// Union combines two SELECTs, deduplicating (SQL UNION, not UNION ALL) per
// relational-algebra set semantics.
func Union(a, b *Select) Expr {
	return Expr(fmt.Sprintf("(%s) UNION (%s)", a.SQL(), b.SQL()))
}

// Difference compiles a set-difference. Dialects without native EXCEPT
// support would use a NOT EXISTS rewrite, but both Postgres and DuckDB
// support EXCEPT directly.
func Difference(a, b *Select) Expr {
	return Expr(fmt.Sprintf("(%s) EXCEPT (%s)", a.SQL(), b.SQL()))
}

// LeftJoin renders a LEFT JOIN between two already-aliased sources with an
// arbitrary ON predicate.
func LeftJoin(leftSQL, rightSQL, onPredicate string) Expr {
	return Expr(fmt.Sprintf("(%s) LEFT JOIN (%s) ON %s", leftSQL, rightSQL, onPredicate))
}

// RowNumberOver renders a ROW_NUMBER() OVER (PARTITION BY ... ORDER BY ...)
// window expression. No package in this module calls it; interlace ranks
// its interval boundaries in Go.
func RowNumberOver(partitionBy, orderBy string) Expr {
	clause := "ROW_NUMBER() OVER ("
	if partitionBy != "" {
		clause += "PARTITION BY " + partitionBy + " "
	}
	clause += "ORDER BY " + orderBy + ")"
	return Expr(clause)
}

// Aggregate kinds supported by the builder.
const (
	AggMin   = "MIN"
	AggMax   = "MAX"
	AggCount = "COUNT"
)

// Aggregate renders `KIND(expr) AS alias`.
func Aggregate(kind, expr, alias string, backend ident.Backend) Expr {
	return Expr(fmt.Sprintf("%s(%s) AS %s", kind, expr, backend.QuoteIdentifier(alias)))
}

// SPDX-License-Identifier: Apache-2.0

// Package ident parses and renders the three-part table identifiers
// (catalog.schema.table) the core operates on, resolving the parts a caller
// omits against a backend's notion of a "current" schema.
package ident

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Backend is the dialect capability C1 depends on: identifier quoting,
// timestamp literal rendering and default-schema resolution for one
// database engine.
type Backend interface {
	// Name identifies the backend, e.g. "postgres", "duckdb", "generic".
	Name() string

	// DefaultSchema resolves the schema to use when a caller's identifier
	// omits one. conn may be nil for backends that don't need to ask the
	// server (e.g. an embedded engine with a fixed default).
	DefaultSchema(ctx context.Context, conn *sql.DB) (string, error)

	// QuoteIdentifier renders name as a backend-correct quoted identifier.
	QuoteIdentifier(name string) string

	// FoldsUnquotedLower reports whether the backend lower-cases unquoted
	// identifiers (true for Postgres and DuckDB).
	FoldsUnquotedLower() bool

	// TimestampLiteral renders t as a backend-correct SQL literal.
	TimestampLiteral(t time.Time) string

	// Placeholder renders the nth (1-based) bound-parameter marker for a
	// parameterized statement (e.g. "$1" for Postgres, "?" for DuckDB).
	Placeholder(n int) string
}

// Identifier is a parsed, resolved three-part table name.
type Identifier struct {
	Catalog string
	Schema  string
	Table   string
}

// Parse splits s (of the form "catalog.schema.table", "schema.table" or
// "table") and resolves any missing schema via defaultSchema if non-empty,
// otherwise via backend.DefaultSchema. Parts are normalized per
// backend.FoldsUnquotedLower unless the caller double-quoted that part.
func Parse(ctx context.Context, s string, backend Backend, conn *sql.DB, defaultSchema string) (*Identifier, error) {
	if strings.TrimSpace(s) == "" {
		return nil, &InvalidIdentifierError{Input: s}
	}

	parts, quoted, err := splitQualified(s)
	if err != nil {
		return nil, err
	}
	if backend.FoldsUnquotedLower() {
		for i := range parts {
			if !quoted[i] {
				parts[i] = foldUnquoted(parts[i])
			}
		}
	}

	id := &Identifier{}
	switch len(parts) {
	case 1:
		id.Table = parts[0]
	case 2:
		id.Schema = parts[0]
		id.Table = parts[1]
	case 3:
		id.Catalog = parts[0]
		id.Schema = parts[1]
		id.Table = parts[2]
	default:
		return nil, &InvalidIdentifierError{Input: s}
	}

	if id.Table == "" {
		return nil, &InvalidIdentifierError{Input: s}
	}

	if id.Schema == "" {
		if defaultSchema != "" {
			id.Schema = defaultSchema
		} else {
			schema, err := backend.DefaultSchema(ctx, conn)
			if err != nil {
				return nil, err
			}
			if schema == "" {
				return nil, &SchemaUnresolvedError{Backend: backend.Name()}
			}
			id.Schema = schema
		}
	}

	return id, nil
}

// splitQualified splits on unquoted dots, tolerating double-quoted parts
// that may themselves contain dots. It also reports which parts were quoted.
func splitQualified(s string) ([]string, []bool, error) {
	var parts []string
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case '.':
			if inQuotes {
				cur.WriteByte(c)
			} else {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, nil, &InvalidIdentifierError{Input: s}
	}
	parts = append(parts, cur.String())

	quoted := make([]bool, len(parts))
	for i, p := range parts {
		quoted[i] = len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"'
		parts[i] = unquote(p)
		if parts[i] == "" {
			return nil, nil, &InvalidIdentifierError{Input: s}
		}
	}

	return parts, quoted, nil
}

func unquote(p string) string {
	if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
		return strings.ReplaceAll(p[1:len(p)-1], `""`, `"`)
	}
	return p
}

func foldUnquoted(s string) string {
	return strings.ToLower(s)
}

// Equal reports whether two identifiers refer to the same object, comparing
// normalized (catalog, schema, table) triples.
func (id *Identifier) Equal(other *Identifier) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.Catalog == other.Catalog && id.Schema == other.Schema && id.Table == other.Table
}

// QualifiedName renders "schema"."table" (catalog is omitted; cross-catalog
// references are out of scope for the reconciler, which always operates
// within one connection's current catalog).
func (id *Identifier) QualifiedName(backend Backend) string {
	return backend.QuoteIdentifier(id.Schema) + "." + backend.QuoteIdentifier(id.Table)
}

// String renders the unqualified dotted form, for logging and error messages.
func (id *Identifier) String() string {
	if id.Schema == "" {
		return id.Table
	}
	return id.Schema + "." + id.Table
}

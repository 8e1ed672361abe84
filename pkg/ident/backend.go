// SPDX-License-Identifier: Apache-2.0

package ident

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// timestampLayout is the literal format accepted by both Postgres and
// DuckDB for a TIMESTAMP literal.
const timestampLayout = "2006-01-02 15:04:05.000000"

// Postgres is the dialect shim for a Postgres server connection.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) DefaultSchema(ctx context.Context, conn *sql.DB) (string, error) {
	if conn == nil {
		return "public", nil
	}
	var schema string
	if err := conn.QueryRowContext(ctx, "SELECT current_schema()").Scan(&schema); err != nil {
		return "", err
	}
	if schema == "" {
		return "public", nil
	}
	return schema, nil
}

func (Postgres) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (Postgres) FoldsUnquotedLower() bool { return true }

// TimestampLiteral renders t as a Postgres TIMESTAMP literal in UTC.
func (Postgres) TimestampLiteral(t time.Time) string {
	return "TIMESTAMP '" + t.UTC().Format(timestampLayout) + "'"
}

// Placeholder renders a numbered dollar placeholder, as lib/pq expects.
func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// DuckDB is the dialect shim for the embedded DuckDB engine.
type DuckDB struct{}

func (DuckDB) Name() string { return "duckdb" }

// DefaultSchema is always "main": DuckDB's default catalog ships a single
// schema of that name and there is no per-session current-schema concept
// analogous to Postgres'.
func (DuckDB) DefaultSchema(context.Context, *sql.DB) (string, error) {
	return "main", nil
}

func (DuckDB) QuoteIdentifier(name string) string {
	return quoteDouble(name)
}

func (DuckDB) FoldsUnquotedLower() bool { return true }

func (DuckDB) TimestampLiteral(t time.Time) string {
	return "TIMESTAMP '" + t.UTC().Format(timestampLayout) + "'"
}

// Placeholder renders DuckDB's positional placeholder. DuckDB's driver
// accepts plain "?" markers rather than numbered ones.
func (DuckDB) Placeholder(int) string { return "?" }

// Generic is used for a *sql.DB whose driver isn't one of the recognized
// backends and that hasn't been given an explicit default_schema. It mirrors
// the source library's behavior of falling back to a conventional name
// ("dbo") rather than failing outright.
type Generic struct{}

func (Generic) Name() string { return "generic" }

func (Generic) DefaultSchema(context.Context, *sql.DB) (string, error) {
	return "dbo", nil
}

func (Generic) QuoteIdentifier(name string) string {
	return quoteDouble(name)
}

func (Generic) FoldsUnquotedLower() bool { return false }

func (Generic) TimestampLiteral(t time.Time) string {
	return "TIMESTAMP '" + t.UTC().Format(timestampLayout) + "'"
}

// Placeholder renders the ODBC-style "?" marker most non-Postgres drivers
// accept.
func (Generic) Placeholder(int) string { return "?" }

func quoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ForDriver picks the dialect shim matching a database/sql driver name, as
// reported by the caller (the core never inspects *sql.DB internals).
func ForDriver(driverName string) Backend {
	switch driverName {
	case "postgres":
		return Postgres{}
	case "duckdb":
		return DuckDB{}
	default:
		return Generic{}
	}
}

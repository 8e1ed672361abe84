// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"context"
	"database/sql"

	"github.com/scdb-go/scdb/pkg/ident"
)

// Inspector is the schema/catalog-discovery collaborator the core consumes
// (spec.md §1's "external collaborators" boundary): given a resolved
// identifier, return its columns, or an empty, nil-error result if the
// table does not exist.
type Inspector interface {
	Columns(ctx context.Context, conn *sql.DB, backend ident.Backend, id *ident.Identifier) ([]Column, error)
}

// InformationSchemaInspector discovers columns via the standard
// information_schema.columns view, which both Postgres and DuckDB expose
// with compatible semantics.
type InformationSchemaInspector struct{}

func (InformationSchemaInspector) Columns(ctx context.Context, conn *sql.DB, backend ident.Backend, id *ident.Identifier) ([]Column, error) {
	stmt := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = ` + backend.Placeholder(1) + ` AND table_name = ` + backend.Placeholder(2) + `
		ORDER BY ordinal_position`

	rows, err := conn.QueryContext(ctx, stmt, id.Schema, id.Table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, err
		}
		cols = append(cols, Column{
			Name:     name,
			Type:     dataType,
			Nullable: nullable == "YES",
		})
	}
	return cols, rows.Err()
}

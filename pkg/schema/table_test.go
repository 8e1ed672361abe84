// SPDX-License-Identifier: Apache-2.0

package schema_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/schema"
)

func TestIsHistoricalTrue(t *testing.T) {
	t.Parallel()

	cols := []schema.Column{
		{Name: "car", Type: "TEXT"},
		{Name: "hp", Type: "INTEGER"},
		{Name: schema.ColumnChecksum, Type: "TEXT"},
		{Name: schema.ColumnFromTS, Type: "TIMESTAMP"},
		{Name: schema.ColumnUntilTS, Type: "TIMESTAMP", Nullable: true},
	}
	assert.True(t, schema.IsHistorical(cols))
}

func TestIsHistoricalFalseWhenUntilIsNotNullable(t *testing.T) {
	t.Parallel()

	cols := []schema.Column{
		{Name: schema.ColumnChecksum, Type: "TEXT"},
		{Name: schema.ColumnFromTS, Type: "TIMESTAMP"},
		{Name: schema.ColumnUntilTS, Type: "TIMESTAMP"},
	}
	assert.False(t, schema.IsHistorical(cols))
}

func TestPayloadColumnsExcludesBookkeeping(t *testing.T) {
	t.Parallel()

	table := schema.Table{Columns: []schema.Column{
		{Name: "car"},
		{Name: "hp"},
		{Name: schema.ColumnChecksum},
		{Name: schema.ColumnFromTS},
		{Name: schema.ColumnUntilTS},
	}}
	assert.Equal(t, []string{"car", "hp"}, table.PayloadColumnNames())
}

func TestUniqueStagingNameIsUniquePerCall(t *testing.T) {
	t.Parallel()

	a := schema.UniqueStagingName(123, "snap")
	b := schema.UniqueStagingName(123, "snap")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "_scdb_snap_123_"))
}

func TestColumnSetsEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, schema.ColumnSetsEqual([]string{"car", "hp"}, []string{"hp", "car"}))
	assert.False(t, schema.ColumnSetsEqual([]string{"car", "hp"}, []string{"car"}))
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	id, err := ident.Parse(context.Background(), "mtcars", ident.Postgres{}, nil, "public")
	assert.NoError(t, err)

	sample := schema.Table{Columns: []schema.Column{
		{Name: "car", Type: "TEXT"},
		{Name: "hp", Type: "INTEGER"},
	}}

	sql := schema.CreateTableSQL(ident.Postgres{}, id, sample, false)
	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "public"."mtcars"`)
	assert.Contains(t, sql, `"car" TEXT NOT NULL`)
	assert.Contains(t, sql, `"checksum" TEXT NOT NULL`)
	assert.Contains(t, sql, `"until_ts" TIMESTAMP NULL`)
}

// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/schema"
)

// action is one ordered database write the reconciler issues, modeled on the
// teacher's DBAction (pkg/migrations/dbactions.go): a stable ID, used to
// label the action's error, and an Execute step.
type action interface {
	ID() string
	Execute(ctx context.Context) error
}

// coordinator runs a list of actions once each, in the order added,
// adapted from the teacher's migrations.Coordinator to drop the
// multiple-registration dedup machinery the reconciler doesn't need — every
// action here is already constructed with a unique ID by its caller.
type coordinator struct {
	actions []action
}

func (c *coordinator) add(a action) {
	c.actions = append(c.actions, a)
}

func (c *coordinator) run(ctx context.Context) error {
	for _, a := range c.actions {
		if err := a.Execute(ctx); err != nil {
			return fmt.Errorf("action %s: %w", a.ID(), err)
		}
	}
	return nil
}

// deactivateAction closes the validity interval of one live row.
type deactivateAction struct {
	conn     db.DB
	backend  ident.Backend
	target   *ident.Identifier
	checksum string
	fromTS   time.Time
	untilTS  time.Time
}

func (a *deactivateAction) ID() string {
	return fmt.Sprintf("deactivate:%s:%s", a.checksum, a.fromTS.UTC().Format(time.RFC3339Nano))
}

func (a *deactivateAction) Execute(ctx context.Context) error {
	stmt := fmt.Sprintf(
		`UPDATE %s SET %s = %s WHERE %s = %s AND %s = %s`,
		a.target.QualifiedName(a.backend),
		a.backend.QuoteIdentifier(schema.ColumnUntilTS), a.backend.Placeholder(1),
		a.backend.QuoteIdentifier(schema.ColumnChecksum), a.backend.Placeholder(2),
		a.backend.QuoteIdentifier(schema.ColumnFromTS), a.backend.Placeholder(3),
	)
	_, err := a.conn.ExecContext(ctx, stmt, a.untilTS.UTC(), a.checksum, a.fromTS.UTC())
	return err
}

// insertAction appends one new row version.
type insertAction struct {
	conn     db.DB
	backend  ident.Backend
	target   *ident.Identifier
	columns  []string
	row      map[string]any
	checksum string
	fromTS   time.Time
	untilTS  *time.Time
}

func (a *insertAction) ID() string {
	return fmt.Sprintf("insert:%s:%s", a.checksum, a.fromTS.UTC().Format(time.RFC3339Nano))
}

func (a *insertAction) Execute(ctx context.Context) error {
	cols := make([]string, 0, len(a.columns)+3)
	placeholders := make([]string, 0, len(a.columns)+3)
	args := make([]any, 0, len(a.columns)+3)

	n := 1
	for _, c := range a.columns {
		cols = append(cols, a.backend.QuoteIdentifier(c))
		placeholders = append(placeholders, a.backend.Placeholder(n))
		args = append(args, a.row[c])
		n++
	}
	cols = append(cols, a.backend.QuoteIdentifier(schema.ColumnChecksum))
	placeholders = append(placeholders, a.backend.Placeholder(n))
	args = append(args, a.checksum)
	n++

	cols = append(cols, a.backend.QuoteIdentifier(schema.ColumnFromTS))
	placeholders = append(placeholders, a.backend.Placeholder(n))
	args = append(args, a.fromTS.UTC())
	n++

	cols = append(cols, a.backend.QuoteIdentifier(schema.ColumnUntilTS))
	placeholders = append(placeholders, a.backend.Placeholder(n))
	if a.untilTS != nil {
		args = append(args, a.untilTS.UTC())
	} else {
		args = append(args, nil)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		a.target.QualifiedName(a.backend),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "))

	_, err := a.conn.ExecContext(ctx, stmt, args...)
	return err
}

// zeroLengthCleanupAction deletes any row left with from_ts = until_ts
// (invariant I2), scoped to filters when set.
type zeroLengthCleanupAction struct {
	conn    db.DB
	backend ident.Backend
	target  *ident.Identifier
	filters *Filters
}

func (a *zeroLengthCleanupAction) ID() string { return "zero_length_cleanup" }

func (a *zeroLengthCleanupAction) Execute(ctx context.Context) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		a.target.QualifiedName(a.backend),
		a.backend.QuoteIdentifier(schema.ColumnFromTS),
		a.backend.QuoteIdentifier(schema.ColumnUntilTS))
	var args []any
	if predicate, filterArgs := a.filters.predicate(a.backend, 1); predicate != "" {
		stmt += " AND " + predicate
		args = filterArgs
	}
	_, err := a.conn.ExecContext(ctx, stmt, args...)
	return err
}

// collapseExtendAction extends an earlier row's until_ts to absorb the row
// it meets (adjacency collapse, step 7 of update_snapshot).
type collapseExtendAction struct {
	conn     db.DB
	backend  ident.Backend
	target   *ident.Identifier
	checksum string
	fromTS   time.Time
	newUntil *time.Time
}

func (a *collapseExtendAction) ID() string {
	return fmt.Sprintf("collapse_extend:%s:%s", a.checksum, a.fromTS.UTC().Format(time.RFC3339Nano))
}

func (a *collapseExtendAction) Execute(ctx context.Context) error {
	stmt := fmt.Sprintf(`UPDATE %s SET %s = %s WHERE %s = %s AND %s = %s`,
		a.target.QualifiedName(a.backend),
		a.backend.QuoteIdentifier(schema.ColumnUntilTS), a.backend.Placeholder(1),
		a.backend.QuoteIdentifier(schema.ColumnChecksum), a.backend.Placeholder(2),
		a.backend.QuoteIdentifier(schema.ColumnFromTS), a.backend.Placeholder(3),
	)
	var untilArg any
	if a.newUntil != nil {
		untilArg = a.newUntil.UTC()
	}
	_, err := a.conn.ExecContext(ctx, stmt, untilArg, a.checksum, a.fromTS.UTC())
	return err
}

// collapseDeleteAction removes the later row absorbed by a collapse.
type collapseDeleteAction struct {
	conn     db.DB
	backend  ident.Backend
	target   *ident.Identifier
	checksum string
	fromTS   time.Time
}

func (a *collapseDeleteAction) ID() string {
	return fmt.Sprintf("collapse_delete:%s:%s", a.checksum, a.fromTS.UTC().Format(time.RFC3339Nano))
}

func (a *collapseDeleteAction) Execute(ctx context.Context) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE %s = %s AND %s = %s`,
		a.target.QualifiedName(a.backend),
		a.backend.QuoteIdentifier(schema.ColumnChecksum), a.backend.Placeholder(1),
		a.backend.QuoteIdentifier(schema.ColumnFromTS), a.backend.Placeholder(2),
	)
	_, err := a.conn.ExecContext(ctx, stmt, a.checksum, a.fromTS.UTC())
	return err
}

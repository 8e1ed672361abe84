// SPDX-License-Identifier: Apache-2.0

// Package scdb is the public facade (C10) wiring the lock manager,
// reconciler, interlace operator and delta exchange around a single
// database connection, modeled on the teacher's pkg/roll.Roll.
package scdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/lib/pq"

	"github.com/scdb-go/scdb/pkg/config"
	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/deltas"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/interlace"
	"github.com/scdb-go/scdb/pkg/lock"
	"github.com/scdb-go/scdb/pkg/logging"
	"github.com/scdb-go/scdb/pkg/pidcheck"
	"github.com/scdb-go/scdb/pkg/reconcile"
	"github.com/scdb-go/scdb/pkg/schema"
	"github.com/scdb-go/scdb/pkg/slicetime"
)

// Client is the entry point an application embeds to maintain bitemporal
// history: it owns one database connection and exposes update_snapshot,
// slice_time/get_table, lock/unlock, interlace and delta export/load.
type Client struct {
	cfg     config.Config
	rawConn *sql.DB
	conn    db.DB
	backend ident.Backend
	locks   *lock.Manager
	recon   *reconcile.Reconciler
	logger  logging.Logger
}

// New opens a connection per cfg.Backend and wires up the lock manager,
// schema inspector and reconciler around it.
func New(ctx context.Context, cfg config.Config) (*Client, error) {
	backend, driver, dsn, err := resolveBackend(cfg)
	if err != nil {
		return nil, err
	}

	raw, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.Backend, err)
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping %s connection: %w", cfg.Backend, err)
	}

	retryable := db.PostgresRetryable
	if cfg.Backend != "postgres" {
		retryable = db.NeverRetryable
	}
	conn := &db.RDB{DB: raw, Retryable: retryable}

	logger := logging.New()

	lockTableID, err := ident.Parse(ctx, lock.TableName, backend, raw, cfg.DefaultSchema)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("resolve lock table identifier: %w", err)
	}
	locks := lock.New(conn, backend, lockTableID, pidcheck.OS{})
	if err := locks.EnsureTable(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ensure lock table: %w", err)
	}

	if cfg.LogTableID != "" {
		logTableID, err := ident.Parse(ctx, cfg.LogTableID, backend, raw, cfg.DefaultSchema)
		if err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("resolve log table identifier: %w", err)
		}
		sink := logging.NewDBSink(logger, conn, backend, logTableID)
		if err := sink.EnsureTable(ctx); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("ensure log table: %w", err)
		}
		logger = sink
	}

	recon := reconcile.New(conn, raw, backend, locks, schema.InformationSchemaInspector{}, logger)

	return &Client{
		cfg:     cfg,
		rawConn: raw,
		conn:    conn,
		backend: backend,
		locks:   locks,
		recon:   recon,
		logger:  logger,
	}, nil
}

func resolveBackend(cfg config.Config) (ident.Backend, string, string, error) {
	switch cfg.Backend {
	case "", "postgres":
		return ident.Postgres{}, "postgres", cfg.PostgresURL, nil
	case "duckdb":
		path := cfg.DuckDBPath
		if path == "" {
			path = ":memory:"
		}
		return ident.DuckDB{}, "duckdb", path, nil
	default:
		return nil, "", "", fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// Close releases the underlying database connection.
func (c *Client) Close() error {
	return c.rawConn.Close()
}

// Resolve parses a possibly-qualified table name against the client's
// configured default schema.
func (c *Client) Resolve(ctx context.Context, name string) (*ident.Identifier, error) {
	return ident.Parse(ctx, name, c.backend, c.rawConn, c.cfg.DefaultSchema)
}

// UpdateSnapshot reconciles target's live set at req.At against req.Snapshot
// (C6/§4.6). filters, when non-nil, restricts the key set in scope to
// filters.Rows (spec.md §4.6 step 1); pass nil to update the whole table.
func (c *Client) UpdateSnapshot(ctx context.Context, target *ident.Identifier, snapshot reconcile.Snapshot, at time.Time, message string, filters *reconcile.Filters) (reconcile.Result, error) {
	return c.recon.UpdateSnapshot(ctx, reconcile.Request{
		Target:                    target,
		Snapshot:                  snapshot,
		At:                        at,
		EnforceChronologicalOrder: c.cfg.EnforceChronologicalOrder,
		Message:                   message,
		Filters:                   filters,
	})
}

// FilterKeys returns the SQL (and its bind args) restricting target's rows
// to the key tuples named by filters, without executing it (spec.md §6:
// `filter_keys(table, filters?) → query`).
func (c *Client) FilterKeys(target *ident.Identifier, filters *reconcile.Filters) (string, []any) {
	return reconcile.FilterKeys(c.backend, target, filters)
}

// SliceTime reconstructs the rows of target live at t (or its full history
// when t is nil), optionally exposing checksum/from_ts/until_ts (C5/§4.5).
func (c *Client) SliceTime(ctx context.Context, target *ident.Identifier, t *time.Time, includeSliceInfo bool) ([]slicetime.Row, error) {
	cols, err := schema.InformationSchemaInspector{}.Columns(ctx, c.rawConn, c.backend, target)
	if err != nil {
		return nil, fmt.Errorf("introspect columns of %s: %w", target.String(), err)
	}
	return slicetime.SliceTime(ctx, c.conn, c.backend, target, cols, t, includeSliceInfo)
}

// Interlace merges several historical tables into the common refinement of
// their validity axes (C7/§4.7).
func (c *Client) Interlace(ctx context.Context, req interlace.Request) ([]interlace.Row, error) {
	if req.PoolSize == 0 {
		req.PoolSize = c.cfg.BackfillPoolSize
	}
	return interlace.Run(ctx, c.conn, c.backend, req)
}

// ExportDelta returns a portable representation of target's row versions in
// [from, until) (C8/§4.8).
func (c *Client) ExportDelta(ctx context.Context, target *ident.Identifier, columns []string, from time.Time, until *time.Time) (deltas.Delta, error) {
	return deltas.Export(ctx, c.conn, c.backend, target, columns, from, until)
}

// LoadDeltas replays one or more deltas onto target via update_snapshot.
func (c *Client) LoadDeltas(ctx context.Context, target *ident.Identifier, ds ...deltas.Delta) error {
	return deltas.Load(ctx, c.recon, target, ds...)
}

// Lock acquires the named lock directly, for callers orchestrating their own
// multi-statement critical sections outside UpdateSnapshot.
func (c *Client) Lock(ctx context.Context, target *ident.Identifier) (bool, error) {
	return c.locks.Lock(ctx, target)
}

// Unlock releases a lock previously acquired by this process.
func (c *Client) Unlock(ctx context.Context, target *ident.Identifier) error {
	return c.locks.Unlock(ctx, target, c.locks.Self())
}

// Logger exposes the configured structured logger for callers that want to
// emit their own application-level log lines through the same sink.
func (c *Client) Logger() logging.Logger {
	return c.logger
}

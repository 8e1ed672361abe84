// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/scdb-go/scdb/pkg/reconcile"
)

func updateCmd() *cobra.Command {
	var snapshotPath string
	var at string
	var message string
	var filterKeys []string
	var filterPath string

	cmd := &cobra.Command{
		Use:   "update <table>",
		Short: "Reconcile a historical table's live set against a JSON snapshot file",
		Example: "scdb update public.mtcars --snapshot snapshot.json --at 2020-01-02T12:00:00Z\n" +
			"  scdb update public.mtcars --snapshot snapshot.json --filter-key car --filter-keys filter.json",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := NewClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			target, err := c.Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			snapshot, err := readSnapshot(snapshotPath)
			if err != nil {
				return err
			}

			t := time.Now().UTC()
			if at != "" {
				t, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
			}

			filters, err := readFilters(filterKeys, filterPath)
			if err != nil {
				return err
			}

			res, err := c.UpdateSnapshot(ctx, target, snapshot, t, message, filters)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Path to a JSON file holding {\"columns\": [...], \"rows\": [...]}")
	cmd.Flags().StringVar(&at, "at", "", "Timestamp the snapshot was observed at (RFC3339); defaults to now")
	cmd.Flags().StringVar(&message, "message", "", "Free-text note recorded alongside the update")
	cmd.Flags().StringSliceVar(&filterKeys, "filter-key", nil, "Column name identifying a row's key (repeatable); restricts update_snapshot to the rows named in --filter-keys")
	cmd.Flags().StringVar(&filterPath, "filter-keys", "", "Path to a JSON file holding the key tuples in scope, as a list of {\"col\": value, ...} objects")
	cmd.MarkFlagRequired("snapshot")

	return cmd
}

// readFilters builds a reconcile.Filters from --filter-key/--filter-keys, or
// returns nil (no scoping) when neither flag was set.
func readFilters(keyColumns []string, path string) (*reconcile.Filters, error) {
	if len(keyColumns) == 0 && path == "" {
		return nil, nil
	}
	if len(keyColumns) == 0 || path == "" {
		return nil, fmt.Errorf("--filter-key and --filter-keys must be given together")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter-keys file: %w", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse filter-keys file: %w", err)
	}
	return &reconcile.Filters{KeyColumns: keyColumns, Rows: rows}, nil
}

func readSnapshot(path string) (reconcile.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return reconcile.Snapshot{}, fmt.Errorf("read snapshot file: %w", err)
	}

	var snapshot reconcile.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return reconcile.Snapshot{}, fmt.Errorf("parse snapshot file: %w", err)
	}
	return snapshot, nil
}

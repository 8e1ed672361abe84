// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scdb-go/scdb/pkg/deltas"
)

func deltaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delta",
		Short: "Export or load portable change sets for cross-site replication",
	}
	cmd.AddCommand(deltaExportCmd())
	cmd.AddCommand(deltaLoadCmd())
	return cmd
}

func deltaExportCmd() *cobra.Command {
	var columns string
	var from string
	var until string
	var out string

	cmd := &cobra.Command{
		Use:     "export <table>",
		Short:   "Export the row versions of a table whose from_ts falls in a window",
		Example: "scdb delta export public.mtcars --columns car,hp --from 2020-01-01T00:00:00Z --out delta.json",
		Args:    cobra.ExactArgs(1),
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

			fromTS, err := time.Parse(time.RFC3339, from)
			if err != nil {
				return fmt.Errorf("parse --from: %w", err)
			}

			var untilTS *time.Time
			if until != "" {
				parsed, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("parse --until: %w", err)
				}
				untilTS = &parsed
			}

			delta, err := c.ExportDelta(ctx, target, strings.Split(columns, ","), fromTS, untilTS)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(delta, "", "  ")
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Println(string(data))
				return nil
			}
			return os.WriteFile(out, data, 0o644)
		},
	}

	cmd.Flags().StringVar(&columns, "columns", "", "Comma-separated payload columns to export")
	cmd.Flags().StringVar(&from, "from", "", "Lower bound on from_ts (RFC3339, inclusive)")
	cmd.Flags().StringVar(&until, "until", "", "Upper bound on from_ts (RFC3339, exclusive); omit for open-ended")
	cmd.Flags().StringVar(&out, "out", "", "Write the delta to this file instead of stdout")
	cmd.MarkFlagRequired("columns")
	cmd.MarkFlagRequired("from")

	return cmd
}

func deltaLoadCmd() *cobra.Command {
	var deltaPaths []string

	cmd := &cobra.Command{
		Use:     "load <table>",
		Short:   "Replay one or more delta files onto a (possibly new) target table",
		Example: "scdb delta load public.mtcars_replica --delta delta.json",
		Args:    cobra.ExactArgs(1),
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

			ds := make([]deltas.Delta, 0, len(deltaPaths))
			for _, path := range deltaPaths {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read delta file %q: %w", path, err)
				}
				var d deltas.Delta
				if err := json.Unmarshal(data, &d); err != nil {
					return fmt.Errorf("parse delta file %q: %w", path, err)
				}
				ds = append(ds, d)
			}

			if err := c.LoadDeltas(ctx, target, ds...); err != nil {
				return err
			}
			fmt.Printf("loaded %d delta file(s) onto %q\n", len(ds), args[0])
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&deltaPaths, "delta", nil, "Path to a delta JSON file — repeatable")
	cmd.MarkFlagRequired("delta")

	return cmd
}

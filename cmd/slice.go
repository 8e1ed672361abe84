// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func sliceCmd() *cobra.Command {
	var at string
	var includeSliceInfo bool

	cmd := &cobra.Command{
		Use:     "slice <table>",
		Short:   "Print the rows of a historical table live at a given instant (or full history)",
		Example: "scdb slice public.mtcars --at 2020-01-02T12:00:00Z",
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

			var t *time.Time
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				t = &parsed
			}

			rows, err := c.SliceTime(ctx, target, t, includeSliceInfo)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Instant to slice at (RFC3339); omit for full history")
	cmd.Flags().BoolVar(&includeSliceInfo, "include-slice-info", false, "Include checksum/from_ts/until_ts in the output")

	return cmd
}

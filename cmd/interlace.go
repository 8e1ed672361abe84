// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scdb-go/scdb/pkg/interlace"
	"github.com/scdb-go/scdb/pkg/scdb"
)

func interlaceCmd() *cobra.Command {
	var inputs []string
	var poolSize int

	cmd := &cobra.Command{
		Use:     "interlace",
		Short:   "Merge several historical tables into the common refinement of their validity axes",
		Example: "scdb interlace --input public.t1:key:obs1 --input public.t2:key:obs2",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := NewClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if len(inputs) < 2 {
				return fmt.Errorf("interlace requires at least two --input entries")
			}

			req := interlace.Request{PoolSize: poolSize}
			for _, spec := range inputs {
				in, err := parseInterlaceInput(ctx, c, spec)
				if err != nil {
					return err
				}
				req.Inputs = append(req.Inputs, in)
			}

			rows, err := c.Interlace(ctx, req)
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

	cmd.Flags().StringArrayVar(&inputs, "input", nil, "table:key_column:payload_col1,payload_col2 — repeatable, at least twice")
	cmd.Flags().IntVar(&poolSize, "pool-size", 0, "Worker pool size for candidate-interval resolution (0 = configured default)")

	return cmd
}

// parseInterlaceInput parses a "table:key_column:payload1,payload2" spec.
func parseInterlaceInput(ctx context.Context, c *scdb.Client, spec string) (interlace.Input, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return interlace.Input{}, fmt.Errorf("invalid --input %q: expected table:key_column:payload1,payload2", spec)
	}

	target, err := c.Resolve(ctx, parts[0])
	if err != nil {
		return interlace.Input{}, fmt.Errorf("resolve %q: %w", parts[0], err)
	}

	return interlace.Input{
		Target:         target,
		KeyColumn:      parts[1],
		PayloadColumns: strings.Split(parts[2], ","),
	}, nil
}

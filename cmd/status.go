// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type statusLine struct {
	Table      string
	Historical bool
	RowCount   int
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status <table>",
		Short:   "Show how many row versions a historical table holds (fails if the table is not historical)",
		Example: "scdb status public.mtcars",
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

			rows, err := c.SliceTime(ctx, target, nil, false)
			if err != nil {
				return err
			}

			line := statusLine{
				Table:      args[0],
				Historical: true,
				RowCount:   len(rows),
			}

			out, err := json.MarshalIndent(line, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func lockCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "lock <table>",
		Short:   "Acquire the inter-process lock on a historical table",
		Example: "scdb lock public.mtcars",
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

			acquired, err := c.Lock(ctx, target)
			if err != nil {
				return err
			}
			if !acquired {
				fmt.Printf("table %q is locked by another live process\n", args[0])
				return nil
			}
			fmt.Printf("acquired lock on %q\n", args[0])
			return nil
		},
	}
}

func unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "unlock <table>",
		Short:   "Release this process's lock on a historical table",
		Example: "scdb unlock public.mtcars",
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

			if err := c.Unlock(ctx, target); err != nil {
				return err
			}
			fmt.Printf("released lock on %q\n", args[0])
			return nil
		},
	}
}

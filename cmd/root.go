// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scdb-go/scdb/cmd/flags"
	"github.com/scdb-go/scdb/pkg/scdb"
)

// Version is the scdb CLI version.
var Version = "development"

func init() {
	viper.SetEnvPrefix("SCDB")
	viper.AutomaticEnv()

	flags.Bind(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "scdb",
	Short:        "Maintain Type-2 slowly-changing-dimension bitemporal history tables",
	SilenceUsage: true,
	Version:      Version,
}

// NewClient opens a scdb.Client configured from the bound flags/environment.
func NewClient(ctx context.Context) (*scdb.Client, error) {
	return scdb.New(ctx, flags.FromFlags())
}

// Execute executes the root command.
func Execute() error {
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(sliceCmd())
	rootCmd.AddCommand(lockCmd())
	rootCmd.AddCommand(unlockCmd())
	rootCmd.AddCommand(interlaceCmd())
	rootCmd.AddCommand(deltaCmd())
	rootCmd.AddCommand(statusCmd())

	return rootCmd.Execute()
}

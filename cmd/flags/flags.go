// SPDX-License-Identifier: Apache-2.0

// Package flags binds cobra flags and SCDB_-prefixed environment variables
// into a config.Config, mirroring the teacher's cmd/flags package.
package flags

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scdb-go/scdb/pkg/config"
)

func Backend() string         { return viper.GetString("BACKEND") }
func PostgresURL() string     { return viper.GetString("POSTGRES_URL") }
func DuckDBPath() string      { return viper.GetString("DUCKDB_PATH") }
func DefaultSchema() string   { return viper.GetString("SCHEMA") }
func LockTimeoutMS() int      { return viper.GetInt("LOCK_TIMEOUT") }
func EnforceChronology() bool { return viper.GetBool("ENFORCE_CHRONOLOGICAL_ORDER") }
func LogTableID() string      { return viper.GetString("LOG_TABLE_ID") }
func BackfillPoolSize() int   { return viper.GetInt("BACKFILL_POOL_SIZE") }

// Bind registers the persistent flags shared by every subcommand and binds
// them to SCDB_-prefixed environment variables.
func Bind(cmd *cobra.Command) {
	defaults := config.DefaultConfig()

	cmd.PersistentFlags().String("backend", defaults.Backend, "Database backend: postgres or duckdb")
	cmd.PersistentFlags().String("postgres-url", defaults.PostgresURL, "Postgres connection URL")
	cmd.PersistentFlags().String("duckdb-path", "", "DuckDB database file (or :memory:)")
	cmd.PersistentFlags().String("schema", defaults.DefaultSchema, "Default schema for unqualified table names")
	cmd.PersistentFlags().Int("lock-timeout", int(defaults.LockTimeout.Milliseconds()), "Lock timeout in milliseconds (unused: lock acquisition never waits)")
	cmd.PersistentFlags().Bool("enforce-chronological-order", defaults.EnforceChronologicalOrder, "Reject update_snapshot calls out of timestamp order")
	cmd.PersistentFlags().String("log-table-id", "", "Optional table to additionally persist log lines to")
	cmd.PersistentFlags().Int("backfill-pool-size", defaults.BackfillPoolSize, "Worker pool size for interlace/delta replay")

	viper.BindPFlag("BACKEND", cmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("POSTGRES_URL", cmd.PersistentFlags().Lookup("postgres-url"))
	viper.BindPFlag("DUCKDB_PATH", cmd.PersistentFlags().Lookup("duckdb-path"))
	viper.BindPFlag("SCHEMA", cmd.PersistentFlags().Lookup("schema"))
	viper.BindPFlag("LOCK_TIMEOUT", cmd.PersistentFlags().Lookup("lock-timeout"))
	viper.BindPFlag("ENFORCE_CHRONOLOGICAL_ORDER", cmd.PersistentFlags().Lookup("enforce-chronological-order"))
	viper.BindPFlag("LOG_TABLE_ID", cmd.PersistentFlags().Lookup("log-table-id"))
	viper.BindPFlag("BACKFILL_POOL_SIZE", cmd.PersistentFlags().Lookup("backfill-pool-size"))
}

// FromFlags reads the bound flags/environment into a config.Config.
func FromFlags() config.Config {
	return config.Config{
		Backend:                   Backend(),
		PostgresURL:               PostgresURL(),
		DuckDBPath:                DuckDBPath(),
		DefaultSchema:             DefaultSchema(),
		LockTimeout:               time.Duration(LockTimeoutMS()) * time.Millisecond,
		EnforceChronologicalOrder: EnforceChronology(),
		LogTableID:                LogTableID(),
		BackfillPoolSize:          BackfillPoolSize(),
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jmcleod/drivelocker/internal/config"
	"github.com/jmcleod/drivelocker/storage/postgres"
)

var migrateDSN string

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Run PostgreSQL schema migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		command := "up"
		if len(args) == 1 {
			command = args[0]
		}
		dsn := migrateDSN
		if dsn == "" {
			dsn = os.Getenv(config.EnvDatabaseDSN)
		}
		if dsn == "" {
			return fmt.Errorf("--database-dsn or %s is required", config.EnvDatabaseDSN)
		}

		pool, err := pgxpool.New(cmd.Context(), dsn)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.Migrate(cmd.Context(), pool, command); err != nil {
			return fmt.Errorf("migrate %s: %w", command, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateDSN, "database-dsn", "", "PostgreSQL connection string (default $"+config.EnvDatabaseDSN+")")
}

// ABOUTME: CLI command for copying the whole store to another database.
// ABOUTME: Moves a local SQLite database to PostgreSQL, or back.
package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/config"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
)

var (
	migrateToDriver string
	migrateToDSN    string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy all data to another database",
	Long: `Copy every table, for every user, from the configured database to a
new one. Row ids are preserved, so references between tables stay intact.

IMPORTANT:

  - The destination must be empty (its schema is created on open)
  - The copy runs in one destination transaction: all or nothing
  - The source database is not modified

USAGE:

  gym migrate --to-driver postgres --to-dsn "postgres://localhost/gym?sslmode=disable"
  gym migrate --driver postgres --dsn "$DATABASE_URL" --to-driver sqlite --to-dsn ./gym.db

AFTER MIGRATION:

  Point the CLI and MCP server at the new database with --driver/--dsn,
  GYM_DRIVER/GYM_DSN or the config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateToDSN == "" {
			return fmt.Errorf("--to-dsn is required")
		}
		dsn := migrateToDSN
		if migrateToDriver == storage.DriverSQLite {
			dsn = config.ExpandPath(dsn)
			if dsn == cfg.GetDSN() && cfg.GetDriver() == storage.DriverSQLite {
				return fmt.Errorf("source and destination are the same database")
			}
		}

		dst, err := storage.Open(storage.Options{
			Driver:    migrateToDriver,
			DSN:       dsn,
			Logger:    logger,
			TxTimeout: cfg.TxTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to open destination: %w", err)
		}
		defer func() { _ = dst.Close() }()

		summary, err := storage.MigrateData(cmd.Context(), repo, dst)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		tables := make([]string, 0, len(summary.Rows))
		for t := range summary.Rows {
			tables = append(tables, t)
		}
		sort.Strings(tables)

		color.Green("✓ Migrated %d rows to %s", summary.Total(), migrateToDriver)
		faint := color.New(color.Faint)
		for _, t := range tables {
			fmt.Printf("  %s %d\n", padRight(t, 26), summary.Rows[t])
		}
		fmt.Println(faint.Sprint("  source left unchanged"))
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateToDriver, "to-driver", storage.DriverPostgres, "destination driver: sqlite or postgres")
	migrateCmd.Flags().StringVar(&migrateToDSN, "to-dsn", "", "destination DSN")
	rootCmd.AddCommand(migrateCmd)
}

// ABOUTME: Root Cobra command for the gym CLI.
// ABOUTME: Loads config, builds the logger and opens the store in PersistentPre/PostRunE.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/config"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/logging"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/telemetry"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/userctx"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	cfg     *config.Config
	repo    *storage.DB
	metrics *telemetry.Metrics
	logger  *slog.Logger
)

// Commands that never touch the store.
var offlineCommands = map[string]bool{
	"help":          true,
	"install-skill": true,
	"completion":    true,
}

var rootCmd = &cobra.Command{
	Use:     "gym",
	Short:   "Conversational training tracker",
	Version: version,
	Long: `Gym tracks training programs, workout sessions, sets and personal records.
It is built to be driven by an AI assistant over MCP, with a small CLI for
quick logging and inspection.

WHAT IT TRACKS:

  Programs       versioned weekly programs (days, supersets, sections)
  Sessions       workouts with exercises, sets, reps, weight and RPE
  Records        max weight, max reps, estimated 1RM, volume, reps at weight
  Body           weight, body fat, circumferences, resting heart rate

QUICK START:

  $ gym log "bench press" 8 --sets 3 --weight 80   # Log three sets of 8
  $ gym log squat 5,5,3 --weight 120               # Per-set reps
  $ gym today                                      # Today's planned day
  $ gym prs bench                                  # Personal records
  $ gym session end                                # Close the open workout

MEASUREMENTS:

  $ gym measure add weight 82.5
  $ gym measure list --type weight

MCP INTEGRATION:

  Run 'gym mcp' to start the Model Context Protocol server for use with
  Claude Desktop or other MCP-compatible AI assistants:

  {
    "mcpServers": {
      "gym": { "command": "gym", "args": ["mcp"] }
    }
  }

CONFIGURATION:

  Settings come from flags, GYM_* environment variables, a .env file and
  ~/.config/gym/config.yaml, in that order of precedence.

DATA STORAGE:

  SQLite at ~/.local/share/gym/gym.db by default. Use --driver postgres
  with --dsn for a shared PostgreSQL database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if offlineCommands[cmd.Name()] {
			return nil
		}

		var err error
		cfg, err = config.Load(config.LoadOptions{ConfigFile: cfgFile, Flags: cmd.Flags()})
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger = logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		metrics = telemetry.New()

		repo, err = storage.Open(storage.Options{
			Driver:    cfg.GetDriver(),
			DSN:       cfg.GetDSN(),
			Logger:    logger,
			TxTimeout: cfg.TxTimeout,
			Recorder:  metrics,
		})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if _, err := repo.SeedGlobalExercises(cmd.Context(), storage.DefaultCatalog); err != nil {
			return fmt.Errorf("failed to seed exercise catalog: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeRepo()
	},
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = closeRepo() }()
	return rootCmd.Execute()
}

func closeRepo() error {
	if repo == nil {
		return nil
	}
	err := repo.Close()
	repo = nil
	return err
}

// userContext scopes ctx to the configured user.
func userContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, logger)
	return userctx.WithUserID(ctx, cfg.UserID)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ~/.config/gym/config.yaml)")
	flags.String("driver", "", "storage driver: sqlite or postgres")
	flags.String("dsn", "", "database DSN (sqlite path or postgres URL)")
	flags.String("data-dir", "", "data directory for the default sqlite database")
	flags.Int64("user-id", 0, "acting user id")
	flags.String("timezone", "", "IANA timezone used to infer today's day")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
}

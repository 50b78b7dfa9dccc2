// ABOUTME: CLI command for starting the MCP server.
// ABOUTME: Runs the stdio server with the stale-session reaper and optional metrics endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/mcp"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/scheduler"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/telemetry"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

The server communicates via stdin/stdout. Logs go to stderr.

CLAUDE DESKTOP CONFIGURATION:

  {
    "mcpServers": {
      "gym": {
        "command": "gym",
        "args": ["mcp"],
        "env": { "GYM_TIMEZONE": "Europe/Madrid" }
      }
    }
  }

AVAILABLE TOOLS:

  get_context          Profile, active program, today's plan and open session
  manage_profile       Read or update the training profile
  manage_exercises     Search, resolve and edit the exercise catalog
  manage_program       Create, edit, version and activate programs
  log_exercise         Log sets for one or several exercises
  log_routine          Log today's planned day with overrides
  manage_session       Start, end, list and validate sessions
  edit_log             Edit or delete sets, recompute records
  get_today_plan       Today's program day
  get_stats            Per-exercise progress and training summary
  manage_measurements  Log and list body measurements

AVAILABLE RESOURCES:

  gym://today            Today's planned day
  gym://session/active   The open session
  gym://prs              Current personal records

BACKGROUND JOBS:

  Sessions idle longer than --session-timeout are closed every
  --reaper-interval. Set --metrics-listen to expose Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(repo, mcp.Options{
			UserID:   cfg.UserID,
			Timezone: cfg.Timezone,
			Locale:   cfg.Locale,
			Version:  version,
			Logger:   logger,
			Recorder: metrics,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(userContext(cmd))
		defer cancel()

		// Handle shutdown signals
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case <-sigChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		if cfg.SessionTimeout > 0 && cfg.ReaperInterval > 0 {
			reaper := scheduler.NewReaper(repo, cfg.SessionTimeout, cfg.ReaperInterval, logger)
			if err := reaper.Start(); err != nil {
				return err
			}
			defer reaper.Stop()
		}

		if cfg.MetricsListen != "" {
			srv, ln, err := telemetry.StartServer(cfg.MetricsListen, metrics.Handler(), logger)
			if err != nil {
				return err
			}
			logger.Info("metrics endpoint listening", "addr", ln.Addr().String())
			defer func() {
				shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				defer stop()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		return server.Serve(ctx)
	},
}

func init() {
	mcpCmd.Flags().String("metrics-listen", "", "address for the Prometheus /metrics endpoint (disabled when empty)")
	mcpCmd.Flags().Duration("session-timeout", 0, "close sessions idle longer than this (0 keeps the configured value)")
	mcpCmd.Flags().Duration("reaper-interval", 0, "how often to look for idle sessions")
	rootCmd.AddCommand(mcpCmd)
}

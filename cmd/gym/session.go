// ABOUTME: CLI commands for managing workout sessions.
// ABOUTME: Supports start, end, list, and show subcommands.
package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
)

var (
	sessionDay   int64
	sessionNotes string
	sessionLimit int
	sessionSince string
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"s"},
	Short:   "Manage workout sessions",
	Long: `Track workout sessions.

A session is one workout. At most one session is open at a time; 'gym log'
starts one automatically, and the MCP server closes sessions that stay idle
past the configured timeout.

WORKFLOW:

  1. Start from a program day:  gym session start --day 12
  2. Log sets:                   gym log "bench press" 8 --sets 3 --weight 80
  3. Finish:                     gym session end --notes "felt strong"

COMMANDS:

  start    Start a session, optionally from a program day
  end      Close the open session
  list     List recent sessions
  show     View a session with all its sets`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session",
	Long: `Start a new session. With --day, the day's exercises, supersets and
sections are copied into the session.

Examples:
  gym session start
  gym session start --day 12 --notes "deload week"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var in storage.StartSessionInput
		if sessionDay > 0 {
			day := sessionDay
			in.ProgramDayID = &day
		}
		if sessionNotes != "" {
			notes := sessionNotes
			in.Notes = &notes
		}

		sess, err := repo.StartSession(userContext(cmd), in)
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}

		color.Green("✓ Started session #%d", sess.ID)
		if len(sess.Exercises) > 0 {
			fmt.Printf("  %d planned exercises\n", len(sess.Exercises))
		}
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the open session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var notes *string
		if sessionNotes != "" {
			n := sessionNotes
			notes = &n
		}
		sess, err := repo.EndSession(userContext(cmd), notes)
		if err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}

		color.Green("✓ Ended session #%d", sess.ID)
		fmt.Printf("  %s\n", sessionLine(sess))
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		var since *time.Time
		if sessionSince != "" {
			t, err := time.Parse("2006-01-02", sessionSince)
			if err != nil {
				return fmt.Errorf("invalid date format: %s (use YYYY-MM-DD)", sessionSince)
			}
			since = &t
		}

		sessions, err := repo.ListSessions(userContext(cmd), sessionLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		faint := color.New(color.Faint)
		for i := range sessions {
			s := &sessions[i]
			status := ""
			if s.EndedAt == nil {
				status = color.GreenString(" open")
			}
			fmt.Printf("%s %s %s%s\n",
				faint.Sprint(padRight(fmt.Sprintf("#%d", s.ID), 6)),
				faint.Sprint(s.StartedAt.Local().Format("2006-01-02 15:04")),
				sessionLine(s),
				status)
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show session details",
	Long: `Show a session with its exercises and sets. Without an id, shows the
open session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := userContext(cmd)

		var sess *storage.SessionSummary
		var err error
		if len(args) == 1 {
			id, perr := strconv.ParseInt(args[0], 10, 64)
			if perr != nil {
				return fmt.Errorf("invalid id: %s", args[0])
			}
			sess, err = repo.GetSession(ctx, id)
		} else {
			sess, err = repo.ActiveSession(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		if sess == nil {
			fmt.Println("No open session.")
			return nil
		}

		fmt.Printf("Session: #%d\n", sess.ID)
		fmt.Printf("Started: %s\n", sess.StartedAt.Local().Format("2006-01-02 15:04"))
		if sess.EndedAt != nil {
			fmt.Printf("Ended: %s\n", sess.EndedAt.Local().Format("2006-01-02 15:04"))
		}
		if sess.Notes != nil {
			fmt.Printf("Notes: %s\n", *sess.Notes)
		}
		fmt.Printf("Volume: %s\n", sessionLine(sess))

		faint := color.New(color.Faint)
		for _, ex := range sess.Exercises {
			fmt.Printf("\n%s\n", color.New(color.Bold).Sprint(ex.ExerciseName))
			if len(ex.Sets) == 0 {
				fmt.Println(faint.Sprint("  no sets yet"))
			}
			for _, s := range ex.Sets {
				fmt.Printf("  %s %s %s\n",
					faint.Sprintf("#%d", s.SetNumber),
					formatSet(s),
					faint.Sprint(s.SetType))
			}
		}
		return nil
	},
}

func sessionLine(s *storage.SessionSummary) string {
	return fmt.Sprintf("%d exercises, %d sets, %s kg", s.ExerciseCount, s.SetCount, strconv.FormatFloat(s.Volume, 'f', -1, 64))
}

func init() {
	sessionStartCmd.Flags().Int64Var(&sessionDay, "day", 0, "program day id to copy into the session")
	sessionStartCmd.Flags().StringVarP(&sessionNotes, "notes", "n", "", "session notes")
	sessionEndCmd.Flags().StringVarP(&sessionNotes, "notes", "n", "", "replace the session notes")
	sessionListCmd.Flags().IntVarP(&sessionLimit, "limit", "n", 10, "max number of results")
	sessionListCmd.Flags().StringVar(&sessionSince, "since", "", "only sessions since date (YYYY-MM-DD)")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	rootCmd.AddCommand(sessionCmd)
}

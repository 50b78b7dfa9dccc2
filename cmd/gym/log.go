// ABOUTME: CLI command for logging sets of one exercise.
// ABOUTME: Parses per-set reps and weights and reports new personal records.
package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
)

var (
	logSets    int
	logWeight  float64
	logWeights string
	logRPE     float64
	logSetType string
	logNotes   string
	logAt      string
)

var logCmd = &cobra.Command{
	Use:   "log <exercise> <reps>",
	Short: "Log sets of an exercise",
	Long: `Log sets of one exercise into the open session. A session is started
when none is open.

REPS:

  A single number is repeated for every set (--sets, default 1).
  A comma-separated list gives one entry per set: 10,8,6

WEIGHT:

  --weight applies to every set; --weights gives per-set values.

EXAMPLES:

  gym log "bench press" 8 --sets 3 --weight 80
  gym log squat 5,5,3 --weights 100,110,120
  gym log "pull up" 12 --set-type warmup
  gym log deadlift 5 --weight 140 --rpe 8.5 --at "2024-01-15 18:30"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := buildLogEntry(cmd, args[0], args[1])
		if err != nil {
			return err
		}

		opts := storage.LogOptions{Locale: cfg.Locale}
		if logAt != "" {
			t, err := parseTime(logAt)
			if err != nil {
				return fmt.Errorf("invalid timestamp: %s", logAt)
			}
			opts.LoggedAt = &t
		}

		res, err := repo.LogExercise(userContext(cmd), entry, opts)
		if err != nil {
			return fmt.Errorf("failed to log %s: %w", args[0], err)
		}

		printLogResult(res)
		return nil
	},
}

func buildLogEntry(cmd *cobra.Command, exercise, reps string) (storage.LogEntry, error) {
	entry := storage.LogEntry{
		Exercise: exercise,
		Sets:     logSets,
		SetType:  logSetType,
	}

	repList, err := parseIntList(reps)
	if err != nil {
		return entry, fmt.Errorf("invalid reps: %s", reps)
	}
	if len(repList) == 1 {
		entry.Reps = repList[0]
	} else {
		entry.Reps = repList
	}

	if cmd.Flags().Changed("weight") {
		w := logWeight
		entry.Weight = &w
	}
	if logWeights != "" {
		weights, err := parseFloatList(logWeights)
		if err != nil {
			return entry, fmt.Errorf("invalid weights: %s", logWeights)
		}
		entry.Weights = weights
	}
	if cmd.Flags().Changed("rpe") {
		rpe := logRPE
		entry.RPE = &rpe
	}
	if logNotes != "" {
		notes := logNotes
		entry.Notes = &notes
	}
	return entry, nil
}

func printLogResult(res *storage.LogResult) {
	faint := color.New(color.Faint)
	label := res.Exercise
	if res.IsNew {
		label += " (new exercise)"
	}
	color.Green("✓ Logged %s", label)
	fmt.Printf("  %s\n", faint.Sprintf("session %d", res.SessionID))
	for _, s := range res.Sets {
		fmt.Printf("  #%d %s %s\n", s.SetNumber, formatSet(s), faint.Sprint(s.SetType))
	}
	for _, pr := range res.PRs {
		line := fmt.Sprintf("★ New PR: %s %s", pr.RecordType, models.FormatWeight(pr.Value))
		if pr.Previous != nil {
			line += fmt.Sprintf(" (was %s)", models.FormatWeight(*pr.Previous))
		}
		color.Yellow("  %s", line)
	}
}

func formatSet(s models.Set) string {
	reps := "-"
	if s.Reps != nil {
		reps = strconv.Itoa(*s.Reps)
	}
	if s.Weight == nil {
		return reps + " reps"
	}
	out := models.FormatWeight(*s.Weight) + "x" + reps
	if s.RPE != nil {
		out += " @" + models.FormatWeight(*s.RPE)
	}
	return out
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseFloatList(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// parseTime accepts the timestamp layouts the CLI documents, in local time
// unless an offset is given.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, f := range formats {
		if t, err := time.ParseInLocation(f, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}

func init() {
	logCmd.Flags().IntVarP(&logSets, "sets", "s", 0, "number of sets (default 1, or the number of reps given)")
	logCmd.Flags().Float64VarP(&logWeight, "weight", "w", 0, "weight for every set")
	logCmd.Flags().StringVar(&logWeights, "weights", "", "comma-separated per-set weights")
	logCmd.Flags().Float64Var(&logRPE, "rpe", 0, "rate of perceived exertion (0-10)")
	logCmd.Flags().StringVarP(&logSetType, "set-type", "t", "", "working, warmup, drop or failure")
	logCmd.Flags().StringVar(&logNotes, "notes", "", "notes for the exercise in this session")
	logCmd.Flags().StringVar(&logAt, "at", "", "timestamp (YYYY-MM-DD HH:MM)")
	rootCmd.AddCommand(logCmd)
}

// ABOUTME: CLI command showing today's planned program day.
// ABOUTME: Resolves the timezone from the flag, the profile, then the config.
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
)

var todayProgram int64

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's planned workout",
	Long: `Show the program day planned for today. The day is picked from the
weekdays assigned to each day of the active program, using your timezone:
the --timezone flag, then the profile, then the configured default.

EXAMPLES:

  gym today
  gym today --timezone America/New_York
  gym today --program 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := userContext(cmd)

		tz := ""
		if cmd.Flags().Changed("timezone") {
			tz, _ = cmd.Flags().GetString("timezone")
		}
		if tz == "" {
			profile, err := repo.GetProfile(ctx)
			if err != nil {
				return fmt.Errorf("failed to load profile: %w", err)
			}
			if profile.Timezone != nil {
				tz = *profile.Timezone
			}
		}
		if tz == "" {
			tz = cfg.Timezone
		}

		plan, err := repo.InferTodayDay(ctx, todayProgram, tz)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Println("No active program.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to infer today's day: %w", err)
		}

		printTodayPlan(plan)
		return nil
	},
}

func printTodayPlan(plan *storage.TodayPlan) {
	faint := color.New(color.Faint)
	fmt.Printf("%s %s\n",
		color.New(color.Bold).Sprintf("%s (v%d)", plan.ProgramName, plan.VersionNumber),
		faint.Sprintf("%s %s", plan.Date, plan.Timezone))

	if plan.RestDay || plan.Day == nil {
		color.Cyan("Rest day.")
		return
	}

	color.Green("%s", plan.Day.Label)
	for _, ex := range plan.Day.Exercises {
		fmt.Printf("  %s %s\n", padRight(ex.ExerciseName, 24), plannedTargets(ex))
	}
}

func plannedTargets(ex models.ProgramDayExercise) string {
	var parts []string
	switch {
	case len(ex.TargetRepsPerSet) > 0:
		reps := make([]string, len(ex.TargetRepsPerSet))
		for i, r := range ex.TargetRepsPerSet {
			reps[i] = fmt.Sprint(r)
		}
		parts = append(parts, strings.Join(reps, "/"))
	case ex.TargetSets != nil && ex.TargetReps != nil:
		parts = append(parts, fmt.Sprintf("%dx%d", *ex.TargetSets, *ex.TargetReps))
	case ex.TargetSets != nil:
		parts = append(parts, fmt.Sprintf("%d sets", *ex.TargetSets))
	}
	if ex.TargetWeight != nil {
		parts = append(parts, "@ "+models.FormatWeight(*ex.TargetWeight))
	}
	if ex.TargetRPE != nil {
		parts = append(parts, "RPE "+models.FormatWeight(*ex.TargetRPE))
	}
	return strings.Join(parts, " ")
}

func init() {
	todayCmd.Flags().Int64Var(&todayProgram, "program", 0, "program id (default: the active program)")
	rootCmd.AddCommand(todayCmd)
}

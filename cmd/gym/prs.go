// ABOUTME: CLI command for listing personal records.
// ABOUTME: Shows current records, optionally for one exercise with its timeline.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

var prsHistory bool

var prsCmd = &cobra.Command{
	Use:     "prs [exercise]",
	Aliases: []string{"records"},
	Short:   "List personal records",
	Long: `List current personal records.

RECORD TYPES:

  max_weight        heaviest working set
  estimated_1rm     best Epley estimate
  max_reps_at_<w>   most reps at a given weight

EXAMPLES:

  gym prs                       # every exercise
  gym prs "bench press"         # one exercise
  gym prs squat --history       # with the improvement timeline`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := userContext(cmd)
		exercise := ""
		if len(args) == 1 {
			exercise = args[0]
		}

		records, err := repo.ListPRs(ctx, exercise)
		if err != nil {
			return fmt.Errorf("failed to list personal records: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No personal records yet.")
			return nil
		}

		faint := color.New(color.Faint)
		current := ""
		for _, pr := range records {
			if pr.ExerciseName != current {
				current = pr.ExerciseName
				color.New(color.Bold).Println(current)
			}
			fmt.Printf("  %s %s %s\n",
				padRight(pr.RecordType, 20),
				padRight(models.FormatWeight(pr.Value), 8),
				faint.Sprint(pr.AchievedAt.Format("2006-01-02")))
		}

		if prsHistory && exercise != "" {
			history, err := repo.PRHistory(ctx, exercise, "")
			if err != nil {
				return fmt.Errorf("failed to load record history: %w", err)
			}
			fmt.Println()
			fmt.Println("History:")
			for _, h := range history {
				was := ""
				if h.PreviousValue > 0 {
					was = faint.Sprintf(" (was %s)", models.FormatWeight(h.PreviousValue))
				}
				fmt.Printf("  %s %s %s%s\n",
					faint.Sprint(h.AchievedAt.Format("2006-01-02")),
					padRight(h.RecordType, 20),
					models.FormatWeight(h.Value),
					was)
			}
		}
		return nil
	},
}

func init() {
	prsCmd.Flags().BoolVar(&prsHistory, "history", false, "show the improvement timeline (needs an exercise)")
	rootCmd.AddCommand(prsCmd)
}

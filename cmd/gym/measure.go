// ABOUTME: CLI commands for body measurements.
// ABOUTME: Supports add, list and delete subcommands.
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

var (
	measureAt    string
	measureUnit  string
	measureNotes string
	measureType  string
	measureLimit int
)

var measureCmd = &cobra.Command{
	Use:     "measure",
	Aliases: []string{"m"},
	Short:   "Manage body measurements",
	Long: `Track body measurements alongside training.

TYPES:

  weight (kg), body_fat (%), muscle_mass (kg), resting_hr (bpm)
  neck, chest, waist, hips, arm, thigh, calf (cm)

COMMANDS:

  add      Record a measurement
  list     List recent measurements
  delete   Delete a measurement by id`,
}

var measureAddCmd = &cobra.Command{
	Use:     "add <type> <value>",
	Aliases: []string{"a"},
	Short:   "Add a body measurement",
	Long: `Add a body measurement. The unit defaults to the usual one for the type.

Examples:
  gym measure add weight 82.5
  gym measure add waist 84 --at "2024-12-14 07:00"
  gym measure add weight 181 --unit lb --notes "after breakfast"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		measurementType := args[0]
		if !models.IsValidMeasurementType(measurementType) {
			return fmt.Errorf("unknown measurement type: %s\nValid types: %s", measurementType, validMeasurementTypes())
		}

		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value: %s", args[1])
		}

		m := models.NewBodyMeasurement(cfg.UserID, models.MeasurementType(measurementType), value).
			WithUnit(measureUnit)

		if measureAt != "" {
			t, err := parseTime(measureAt)
			if err != nil {
				return fmt.Errorf("invalid timestamp: %s", measureAt)
			}
			m.WithMeasuredAt(t)
		}
		if measureNotes != "" {
			m.WithNotes(measureNotes)
		}

		if err := repo.LogMeasurement(userContext(cmd), m); err != nil {
			return fmt.Errorf("failed to add measurement: %w", err)
		}

		color.Green("✓ Added %s", measurementType)
		fmt.Printf("  %s %s %s\n",
			color.New(color.Faint).Sprintf("#%d", m.ID),
			models.FormatWeight(m.Value), m.Unit)
		return nil
	},
}

var measureListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List body measurements",
	Long: `List recent body measurements, newest first.

OUTPUT FORMAT:

  Each line shows: ID  TIMESTAMP  TYPE  VALUE  UNIT  (NOTES)

EXAMPLES:

  gym measure list                    # Last 20 measurements (all types)
  gym measure list --type weight      # Only weight entries
  gym measure list -t waist -n 50     # Last 50 waist entries`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter *models.MeasurementType
		if measureType != "" {
			if !models.IsValidMeasurementType(measureType) {
				return fmt.Errorf("unknown measurement type: %s", measureType)
			}
			mt := models.MeasurementType(measureType)
			filter = &mt
		}

		measurements, err := repo.ListMeasurements(userContext(cmd), filter, measureLimit)
		if err != nil {
			return fmt.Errorf("failed to list measurements: %w", err)
		}

		if len(measurements) == 0 {
			fmt.Println("No measurements found.")
			return nil
		}

		faint := color.New(color.Faint)
		for _, m := range measurements {
			notes := ""
			if m.Notes != nil && *m.Notes != "" {
				notes = faint.Sprintf(" (%s)", truncate(*m.Notes, 30))
			}
			fmt.Printf("%s %s %s %s %s%s\n",
				faint.Sprint(padRight(fmt.Sprintf("#%d", m.ID), 6)),
				faint.Sprint(m.MeasuredAt.Local().Format("2006-01-02 15:04")),
				padRight(string(m.MeasurementType), 12),
				models.FormatWeight(m.Value),
				m.Unit,
				notes)
		}

		return nil
	},
}

var measureDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"del", "rm"},
	Short:   "Delete a body measurement",
	Long: `Delete a body measurement by the id shown in 'gym measure list'.

CAUTION:

  This permanently deletes the measurement. There is no undo.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id: %s", args[0])
		}
		if err := repo.DeleteMeasurement(userContext(cmd), id); err != nil {
			return fmt.Errorf("failed to delete measurement: %w", err)
		}
		color.Yellow("✗ Deleted measurement #%d", id)
		return nil
	},
}

func validMeasurementTypes() string {
	names := make([]string, len(models.AllMeasurementTypes))
	for i, mt := range models.AllMeasurementTypes {
		names[i] = string(mt)
	}
	return strings.Join(names, ", ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func init() {
	measureAddCmd.Flags().StringVar(&measureAt, "at", "", "timestamp (YYYY-MM-DD HH:MM)")
	measureAddCmd.Flags().StringVar(&measureUnit, "unit", "", "unit (default depends on the type)")
	measureAddCmd.Flags().StringVar(&measureNotes, "notes", "", "notes for the measurement")

	measureListCmd.Flags().StringVarP(&measureType, "type", "t", "", "filter by measurement type")
	measureListCmd.Flags().IntVarP(&measureLimit, "limit", "n", 20, "max number of results")

	measureCmd.AddCommand(measureAddCmd)
	measureCmd.AddCommand(measureListCmd)
	measureCmd.AddCommand(measureDeleteCmd)
	rootCmd.AddCommand(measureCmd)
}

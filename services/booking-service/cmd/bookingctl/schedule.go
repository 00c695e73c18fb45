package main

import (
	"github.com/spf13/cobra"

	"github.com/sto-booking/stobot/services/booking-service/internal/schedule"
)

var scheduleFile string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect working hours files",
}

var scheduleValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a schedule file and print the week it describes",
	Long: `Parses a TOML or JSON schedule file the way the service does on load and reload.
Without --file the built-in week is printed.`,
	Args: cobra.NoArgs,
	RunE: runScheduleValidate,
}

func init() {
	scheduleValidateCmd.Flags().StringVarP(&scheduleFile, "file", "f", "", "schedule file (.toml or .json)")

	scheduleCmd.AddCommand(scheduleValidateCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleValidate(cmd *cobra.Command, _ []string) error {
	week := schedule.DefaultWeek()
	if scheduleFile != "" {
		w, err := schedule.LoadFile(scheduleFile)
		if err != nil {
			return err
		}
		week = w
	}

	for i, d := range week {
		name := schedule.DayName(i)
		switch {
		case d == nil:
			cmd.Printf("%-10s closed\n", name)
		case d.Break != nil:
			cmd.Printf("%-10s %s-%s break %s-%s\n", name, d.Open.Start, d.Open.End, d.Break.Start, d.Break.End)
		default:
			cmd.Printf("%-10s %s-%s\n", name, d.Open.Start, d.Open.End)
		}
	}
	return nil
}

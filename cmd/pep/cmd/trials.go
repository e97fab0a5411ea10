package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// trialsCmd represents the trials command
var trialsCmd = &cobra.Command{
	Use:   "trials",
	Short: "Inspect recorded trials",
	Long:  `Commands for inspecting the trials recorded in the frames database.`,
}

// trialsListCmd represents the trials list command
var trialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded trials",
	Long:  `Lists all trials in the frames database, newest first.`,
	RunE:  runTrialsList,
}

func init() {
	rootCmd.AddCommand(trialsCmd)
	trialsCmd.AddCommand(trialsListCmd)
}

func runTrialsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	trials, err := st.ListTrials()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(trials, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if len(trials) == 0 {
		fmt.Println("No trials recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("TRIAL", "STARTED", "COMPLETED", "FRAMES", "CSV")

	for _, trial := range trials {
		completed := "running"
		if trial.CompletedAt != nil {
			completed = trial.CompletedAt.Format("2006-01-02 15:04:05")
		}
		csvPath := trial.CSVPath
		if csvPath == "" {
			csvPath = "-"
		}

		table.Append(
			strconv.Itoa(trial.Number),
			trial.StartedAt.Format("2006-01-02 15:04:05"),
			completed,
			strconv.Itoa(trial.FrameCount),
			csvPath,
		)
	}

	table.Render()
	return nil
}

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manned-pep/pep/pkg/export"
)

var (
	exportRaw bool
	exportOut string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <trial-number>",
	Short: "Export a trial to CSV",
	Long: `Exports a recorded trial from the frames database to CSV. By default
every frame is decoded into the controller's signal columns; --raw dumps
the frames with hex payloads instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().BoolVar(&exportRaw, "raw", false, "dump raw frames instead of decoded signals")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default a timestamped name under csv_data/)")
}

func runExport(cmd *cobra.Command, args []string) error {
	trial, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid trial number %q", args[0])
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	// Fail with a useful message before writing anything
	if _, err := st.GetTrial(trial); err != nil {
		return err
	}

	w := export.NewWriter(viper.GetString("collect.csv_dir"))

	path := exportOut
	if exportRaw {
		if path == "" {
			path = "raw_" + export.TrialFilename(trial, time.Now())
		}
		if err := w.ExportRaw(st, trial, path); err != nil {
			return err
		}
	} else if path != "" {
		if err := w.ExportTrialTo(st, trial, path); err != nil {
			return err
		}
	} else {
		if path, err = w.ExportTrial(st, trial); err != nil {
			return err
		}
	}

	fmt.Printf("Exported trial %d to %s\n", trial, path)
	return nil
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manned-pep/pep/pkg/logging"
	"github.com/manned-pep/pep/pkg/store"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pep",
	Short: "CLI for the Manned PEP telemetry rig",
	Long: `pep manages data collection on the Manned PEP test rig: launching
external collectors, gathering CAN-bus telemetry into trials, and exporting
trial data to CSV.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pep/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".pep/config.yaml"
		viper.AddConfigPath(filepath.Join(home, ".pep"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PEP")
	viper.AutomaticEnv() // read in environment variables that match

	setDefaults()

	// Missing config file is fine, the defaults match the rig's layout
	_ = viper.ReadInConfig()
}

func setDefaults() {
	viper.SetDefault("collect.workdir", "/home/pi/Manned_PEP")
	viper.SetDefault("collect.channel", "can0")
	viper.SetDefault("collect.db", "frames_data.db")
	viper.SetDefault("collect.csv_dir", "csv_data")
	viper.SetDefault("collect.log_file", filepath.Join("logs", "data_collection.log"))
	viper.SetDefault("collect.status_addr", ":9100")
	viper.SetDefault("collect.power_on_threshold", 100)
	viper.SetDefault("collect.power_off_threshold", 50)
	viper.SetDefault("collect.power_check_interval", time.Second)
	viper.SetDefault("collect.power_readings", 3)
	viper.SetDefault("collect.batch_size", 50)

	// The two launch profiles mirror the rig's original startup scripts.
	viper.SetDefault("launch.profiles.auto.workdir", "/home/pi/Manned_PEP")
	viper.SetDefault("launch.profiles.auto.program", "./auto_data_collector.py")
	viper.SetDefault("launch.profiles.auto.ensure_dirs", []string{"csv_data", "logs"})
	viper.SetDefault("launch.profiles.auto.log", "fixed")

	viper.SetDefault("launch.profiles.headless.workdir", "/home/pi/Manned_PEP_Original_Original")
	viper.SetDefault("launch.profiles.headless.program", "./headless_gather.py")
	viper.SetDefault("launch.profiles.headless.ensure_dirs", []string{"csv_data", "logs", "/data"})
	viper.SetDefault("launch.profiles.headless.log", "timestamped")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

func newLogger() *logging.Logger {
	return logging.New(logging.ParseLevel(logLevel))
}

func openStore() (*store.SQLiteStore, error) {
	dbPath := viper.GetString("collect.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open frames database %s: %w", dbPath, err)
	}
	return st, nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manned-pep/pep/internal/launcher"
)

// launchCmd represents the launch command
var launchCmd = &cobra.Command{
	Use:   "launch [profile]",
	Short: "Prepare the rig's directories and run an external collector",
	Long: `Changes into the profile's working directory, creates the output
directories if missing, and runs the profile's data-collection program with
stdout and stderr appended to the launch log. Blocks until the program
exits; its exit code is logged but not propagated.

Profiles are defined under launch.profiles in the config file. The default
profile is "auto".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLaunch,
}

func init() {
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	profile := "auto"
	if len(args) > 0 {
		profile = args[0]
	}

	key := "launch.profiles." + profile
	if !viper.IsSet(key + ".workdir") {
		return fmt.Errorf("unknown launch profile %q", profile)
	}

	cfg := launcher.Config{
		WorkDir:    viper.GetString(key + ".workdir"),
		EnsureDirs: viper.GetStringSlice(key + ".ensure_dirs"),
		Program:    viper.GetString(key + ".program"),
		LogMode:    launcher.LogMode(viper.GetString(key + ".log")),
	}

	l, err := launcher.New(cfg, newLogger())
	if err != nil {
		return err
	}
	return l.Run(cmd.Context())
}

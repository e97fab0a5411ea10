package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manned-pep/pep/pkg/api"
	"github.com/manned-pep/pep/pkg/canbus"
	"github.com/manned-pep/pep/pkg/collector"
	"github.com/manned-pep/pep/pkg/export"
	"github.com/manned-pep/pep/pkg/logging"
	"github.com/manned-pep/pep/pkg/metrics"
	"github.com/manned-pep/pep/pkg/shutdown"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the headless telemetry collector",
	Long: `Gathers CAN-bus telemetry from the motor controller into trials.
Waits for motor power, records every broadcast frame until power-off,
stores frames in the frames database, and exports each finished trial to
CSV. Runs until interrupted.`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().String("channel", "", "CAN interface to read (default can0)")
	collectCmd.Flags().String("db", "", "path to the frames database")
	collectCmd.Flags().String("status-addr", "", `status server listen address (default ":9100", empty string disables)`)
	viper.BindPFlag("collect.channel", collectCmd.Flags().Lookup("channel"))
	viper.BindPFlag("collect.db", collectCmd.Flags().Lookup("db"))
	viper.BindPFlag("collect.status_addr", collectCmd.Flags().Lookup("status-addr"))
}

func runCollect(cmd *cobra.Command, args []string) error {
	// Same preparation as the launch sequence: the collector runs out of
	// the rig's working directory with csv_data/ and logs/ alongside.
	workDir := viper.GetString("collect.workdir")
	if err := os.Chdir(workDir); err != nil {
		return fmt.Errorf("failed to change working directory to %s: %w", workDir, err)
	}
	csvDir := viper.GetString("collect.csv_dir")
	for _, dir := range []string{csvDir, "logs"} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	log, err := logging.NewFileLogger(viper.GetString("collect.log_file"), logging.ParseLevel(logLevel))
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	channel := viper.GetString("collect.channel")
	bus, err := canbus.DialSocketCAN(ctx, channel)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	mgr := shutdown.New(30 * time.Second)

	// Shutdown runs LIFO: the status server is registered last so it
	// drains before the store and log file it serves from are closed.
	mgr.Register(shutdown.CloseResource(st, "frames database"))
	mgr.Register(shutdown.CloseResource(log, "log file"))

	if addr := viper.GetString("collect.status_addr"); addr != "" {
		server := api.NewServer(st, ".", registry, log)
		httpServer := &http.Server{Addr: addr, Handler: server.Handler()}
		go func() {
			log.Info(fmt.Sprintf("Status server listening on %s", addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(fmt.Sprintf("Status server failed: %v", err))
			}
		}()
		mgr.Register(shutdown.StopHTTPServer(httpServer, "status"))
	}

	// On SIGINT/SIGTERM: cancel the trial loop and close the bus to
	// unblock any pending receive. The collector flushes and exports the
	// in-flight trial before returning, so the store stays open until
	// after Run.
	go func() {
		mgr.Wait()
		cancel()
		bus.Close()
	}()

	cfg := collector.DefaultConfig()
	cfg.PowerOnThreshold = int16(viper.GetInt("collect.power_on_threshold"))
	cfg.PowerOffThreshold = int16(viper.GetInt("collect.power_off_threshold"))
	cfg.PowerCheckInterval = viper.GetDuration("collect.power_check_interval")
	cfg.PowerReadings = viper.GetInt("collect.power_readings")
	cfg.BatchSize = viper.GetInt("collect.batch_size")

	c := collector.New(cfg, bus, st, export.NewWriter(csvDir), log, m)
	runErr := c.Run(ctx)

	bus.Close()
	mgr.Shutdown()
	return runErr
}

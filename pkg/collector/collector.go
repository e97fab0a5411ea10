// Package collector runs the headless gathering loop: wait for motor power,
// record every broadcast frame for the duration of the trial, persist in
// batches, and export the finished trial to CSV.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/manned-pep/pep/pkg/canbus"
	"github.com/manned-pep/pep/pkg/decode"
	"github.com/manned-pep/pep/pkg/export"
	"github.com/manned-pep/pep/pkg/logging"
	"github.com/manned-pep/pep/pkg/metrics"
	"github.com/manned-pep/pep/pkg/retry"
	"github.com/manned-pep/pep/pkg/store"
)

// Config holds trial detection and batching parameters.
type Config struct {
	PowerOnThreshold   int16         // DC bus voltage above which the motor counts as on
	PowerOffThreshold  int16         // DC bus voltage below which the motor counts as off
	PowerCheckInterval time.Duration // Pause between voltage readings while waiting for power
	PowerReadings      int           // Consecutive readings required to flip the power state
	BatchSize          int           // Frames per database transaction
	Retry              retry.Config  // Backoff applied between failed trial attempts
}

// DefaultConfig returns the thresholds the rig was tuned with.
func DefaultConfig() Config {
	return Config{
		PowerOnThreshold:   100,
		PowerOffThreshold:  50,
		PowerCheckInterval: 1 * time.Second,
		PowerReadings:      3,
		BatchSize:          50,
		Retry:              retry.DefaultConfig(),
	}
}

// maxLogBytes caps the collector log between trials. The Pi's SD card is
// shared with the frames database and the CSV exports.
const maxLogBytes = 10 * 1024 * 1024

// TrialStore is the slice of the store the collector needs.
type TrialStore interface {
	NextTrialNumber() (int, error)
	CreateTrial(number int, startedAt time.Time) error
	CompleteTrial(number int, completedAt time.Time, frameCount int, csvPath string) error
	InsertFrames(frames []store.FrameRecord) error
	TrialFrames(number int) ([]store.FrameRecord, error)
}

// Collector drives trials from a CAN bus into the store.
type Collector struct {
	cfg      Config
	bus      canbus.Bus
	store    TrialStore
	exporter *export.Writer
	log      *logging.Logger
	metrics  *metrics.Metrics
}

// New creates a collector.
func New(cfg Config, bus canbus.Bus, st TrialStore, exporter *export.Writer, log *logging.Logger, m *metrics.Metrics) *Collector {
	return &Collector{
		cfg:      cfg,
		bus:      bus,
		store:    st,
		exporter: exporter,
		log:      log,
		metrics:  m,
	}
}

// Run executes trials until the context is cancelled or the bus is closed.
// Errors inside a trial are logged and retried with backoff; the rig is
// unattended, so giving up is worse than waiting.
func (c *Collector) Run(ctx context.Context) error {
	stopped := false
	for !stopped {
		err := retry.Do(ctx, c.cfg.Retry, func() error {
			err := c.RunTrial(ctx)
			if err != nil && isShutdown(err) {
				stopped = true
				return nil
			}
			if err != nil {
				c.log.Error(fmt.Sprintf("Error in trial loop: %v", err))
			}
			return err
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// RunTrial waits for motor power, records one trial and exports it.
func (c *Collector) RunTrial(ctx context.Context) error {
	c.log.Info("Waiting for motor power...")
	if err := c.waitForPower(ctx); err != nil {
		return err
	}

	trial, err := c.store.NextTrialNumber()
	if err != nil {
		return err
	}
	startedAt := time.Now()
	if err := c.store.CreateTrial(trial, startedAt); err != nil {
		return err
	}
	c.metrics.TrialsStarted.Inc()
	c.log.Info(fmt.Sprintf("Starting data collection for trial %d", trial))

	frameCount, readErr := c.gather(ctx, trial)

	if err := c.store.CompleteTrial(trial, time.Now(), frameCount, ""); err != nil {
		return err
	}

	csvPath, err := c.exporter.ExportTrial(c.store, trial)
	if err != nil {
		c.metrics.ExportErrors.Inc()
		c.log.Error(fmt.Sprintf("Error exporting trial %d to CSV: %v", trial, err))
	} else {
		if err := c.store.CompleteTrial(trial, time.Now(), frameCount, csvPath); err != nil {
			return err
		}
		c.log.Info(fmt.Sprintf("Exported trial %d to %s", trial, csvPath))
	}

	c.metrics.TrialsCompleted.Inc()

	if err := c.log.RotateIfNeeded(maxLogBytes); err != nil {
		c.log.Warn(fmt.Sprintf("Log rotation failed: %v", err))
	}
	return readErr
}

// waitForPower blocks until the required number of consecutive DC bus
// voltage readings exceed the power-on threshold.
func (c *Collector) waitForPower(ctx context.Context) error {
	consecutive := 0
	for {
		frame, err := c.bus.Receive(ctx)
		if err != nil {
			return err
		}

		voltage, ok := decode.BusVoltage(frame.ID, frame.Data)
		if !ok {
			continue
		}

		c.metrics.BusVoltage.Set(float64(voltage))
		c.log.Debug(fmt.Sprintf("Current voltage: %d", voltage))

		if voltage > c.cfg.PowerOnThreshold {
			consecutive++
			if consecutive >= c.cfg.PowerReadings {
				c.metrics.PowerOn.Set(1)
				c.log.Info(fmt.Sprintf("Motor power detected! Voltage: %d", voltage))
				return nil
			}
		} else {
			consecutive = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PowerCheckInterval):
		}
	}
}

// gather records frames for one trial until power-off is detected, the
// context is cancelled, or the bus closes. Whatever was collected is
// flushed before returning so an interrupted trial still lands on disk.
func (c *Collector) gather(ctx context.Context, trial int) (int, error) {
	var batch []store.FrameRecord
	frameCount := 0
	belowThreshold := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.store.InsertFrames(batch); err != nil {
			return err
		}
		c.metrics.FramesStored.Add(float64(len(batch)))
		frameCount += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		frame, err := c.bus.Receive(ctx)
		if err != nil {
			if flushErr := flush(); flushErr != nil {
				return frameCount, flushErr
			}
			return frameCount, err
		}

		c.metrics.FramesReceived.Inc()
		batch = append(batch, store.FrameRecord{
			TrialNumber: trial,
			Timestamp:   frame.Timestamp,
			FrameID:     frame.ID,
			DLC:         frame.DLC,
			Flags:       frame.Flags,
			Data:        frame.Data,
		})

		if voltage, ok := decode.BusVoltage(frame.ID, frame.Data); ok {
			c.metrics.BusVoltage.Set(float64(voltage))
			if voltage < c.cfg.PowerOffThreshold {
				belowThreshold++
				if belowThreshold >= c.cfg.PowerReadings {
					c.metrics.PowerOn.Set(0)
					c.log.Info(fmt.Sprintf("Motor power off detected, ending trial (voltage: %d)", voltage))
					if err := flush(); err != nil {
						return frameCount, err
					}
					return frameCount, nil
				}
			} else {
				belowThreshold = 0
			}
		}

		if len(batch) >= c.cfg.BatchSize {
			if err := flush(); err != nil {
				return frameCount, err
			}
		}
	}
}

// isShutdown reports whether the error means the collector should stop
// rather than retry: context cancellation or a closed bus.
func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}

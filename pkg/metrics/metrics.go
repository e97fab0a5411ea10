// Package metrics exposes collector counters for Prometheus scraping via
// the status server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks the collector's frame and trial activity.
type Metrics struct {
	FramesReceived  prometheus.Counter
	FramesStored    prometheus.Counter
	TrialsStarted   prometheus.Counter
	TrialsCompleted prometheus.Counter
	ExportErrors    prometheus.Counter
	BusVoltage      prometheus.Gauge
	PowerOn         prometheus.Gauge
}

// New creates and registers the collector metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pep_frames_received_total",
			Help: "Total CAN frames received from the bus",
		}),
		FramesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pep_frames_stored_total",
			Help: "Total CAN frames written to the frames database",
		}),
		TrialsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pep_trials_started_total",
			Help: "Total trials started after motor power detection",
		}),
		TrialsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pep_trials_completed_total",
			Help: "Total trials completed and exported",
		}),
		ExportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pep_export_errors_total",
			Help: "Total CSV export failures",
		}),
		BusVoltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pep_dc_bus_voltage",
			Help: "Last observed DC bus voltage reading",
		}),
		PowerOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pep_motor_power_on",
			Help: "Whether the motor is currently considered powered (0 or 1)",
		}),
	}

	reg.MustRegister(
		m.FramesReceived,
		m.FramesStored,
		m.TrialsStarted,
		m.TrialsCompleted,
		m.ExportErrors,
		m.BusVoltage,
		m.PowerOn,
	)
	return m
}

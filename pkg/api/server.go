// Package api serves the collector's status endpoints: health, trial
// listing, host resources and Prometheus metrics. It exists so a headless
// Pi in the test rig can be checked without pulling the SD card.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/manned-pep/pep/pkg/logging"
	"github.com/manned-pep/pep/pkg/store"
)

// TrialLister is the slice of the store the server needs.
type TrialLister interface {
	ListTrials() ([]*store.Trial, error)
}

// Server exposes collector status over HTTP.
type Server struct {
	router    *mux.Router
	store     TrialLister
	log       *logging.Logger
	dataDir   string
	startTime time.Time
}

// NewServer creates the status server. dataDir is the directory whose disk
// usage is reported (normally the working directory holding csv_data and
// the frames database). registry backs the /metrics endpoint.
func NewServer(st TrialLister, dataDir string, registry *prometheus.Registry, log *logging.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		store:     st,
		log:       log,
		dataDir:   dataDir,
		startTime: time.Now(),
	}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/trials", s.handleTrials).Methods("GET")
	s.router.HandleFunc("/api/v1/system", s.handleSystem).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")

	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleTrials(w http.ResponseWriter, r *http.Request) {
	trials, err := s.store.ListTrials()
	if err != nil {
		s.log.Error("Failed to list trials", map[string]interface{}{"error": err.Error()})
		http.Error(w, "failed to list trials", http.StatusInternalServerError)
		return
	}
	if trials == nil {
		trials = []*store.Trial{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(trials),
		"trials": trials,
	})
}

// handleSystem reports host health: CPU load, memory and free space on the
// data directory's filesystem. Disk is the one that actually fills up
// during long collection sessions.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	system := make(map[string]interface{})

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		system["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		system["memory_total_bytes"] = vm.Total
		system["memory_used_percent"] = vm.UsedPercent
	}
	if usage, err := disk.Usage(s.dataDir); err == nil {
		system["data_dir"] = s.dataDir
		system["disk_total_bytes"] = usage.Total
		system["disk_free_bytes"] = usage.Free
		system["disk_used_percent"] = usage.UsedPercent
	}

	writeJSON(w, http.StatusOK, system)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// Package launcher prepares the collection rig's directory layout and runs
// one external data-collection program with its combined output appended to
// a log file. It is the Go rendition of the rig's old startup shell
// scripts, so the sequence is deliberately simple: chdir, make directories,
// start, wait.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/manned-pep/pep/pkg/logging"
)

// LogMode selects how the launch log file is named.
type LogMode string

const (
	// LogModeFixed appends to data_collection.log in the working directory.
	LogModeFixed LogMode = "fixed"
	// LogModeTimestamped writes logs/data_collection_<YYYYMMDD>_<HHMMSS>.log.
	LogModeTimestamped LogMode = "timestamped"
)

const (
	fixedLogName    = "data_collection.log"
	timestampedDir  = "logs"
	timestampLayout = "20060102_150405"
	timestampedStem = "data_collection"
)

// Config describes one launch profile.
type Config struct {
	// WorkDir is the absolute working directory. It must already exist;
	// the launcher never creates it.
	WorkDir string
	// EnsureDirs are created (parents included) before launch if missing.
	// Relative entries are relative to WorkDir.
	EnsureDirs []string
	// Program is the external data collector to start, with no arguments
	// and the parent's environment.
	Program string
	// LogMode selects fixed or timestamped log naming.
	LogMode LogMode
}

// Validate checks the profile for the mistakes config files actually make.
func (c Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("launch profile has no working directory")
	}
	if !filepath.IsAbs(c.WorkDir) {
		return fmt.Errorf("working directory %q is not absolute", c.WorkDir)
	}
	if c.Program == "" {
		return fmt.Errorf("launch profile has no program")
	}
	switch c.LogMode {
	case LogModeFixed, LogModeTimestamped:
	default:
		return fmt.Errorf("unknown log mode %q", c.LogMode)
	}
	return nil
}

// LogPath returns the log file path (relative to WorkDir) the launcher
// would use at the given time.
func (c Config) LogPath(now time.Time) string {
	if c.LogMode == LogModeTimestamped {
		name := fmt.Sprintf("%s_%s.log", timestampedStem, now.Format(timestampLayout))
		return filepath.Join(timestampedDir, name)
	}
	return fixedLogName
}

// Launcher runs one launch profile.
type Launcher struct {
	cfg Config
	log *logging.Logger
}

// New creates a launcher for the given profile.
func New(cfg Config, log *logging.Logger) (*Launcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Launcher{cfg: cfg, log: log}, nil
}

// Run performs the launch sequence:
//
//  1. Change into the working directory. A missing directory aborts the
//     whole sequence before any other side effect.
//  2. Idempotently create the output directories.
//  3. Start the external program with stdout and stderr appended to the
//     log file, and wait for it to exit.
//
// A failure to start the program is the launcher's failure. The program's
// own exit status is logged but deliberately not propagated; whatever it
// printed on the way down is in the log file.
func (l *Launcher) Run(ctx context.Context) error {
	if err := os.Chdir(l.cfg.WorkDir); err != nil {
		return fmt.Errorf("failed to change working directory to %s: %w", l.cfg.WorkDir, err)
	}

	for _, dir := range l.cfg.EnsureDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logPath := l.cfg.LogPath(time.Now())
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, l.cfg.Program)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.cfg.Program, err)
	}
	l.log.Info(fmt.Sprintf("Started %s (pid %d), logging to %s", l.cfg.Program, cmd.Process.Pid, logPath))

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			l.log.Warn(fmt.Sprintf("%s exited with code %d", l.cfg.Program, exitErr.ExitCode()))
			return nil
		}
		l.log.Warn(fmt.Sprintf("%s did not exit cleanly: %v", l.cfg.Program, err))
		return nil
	}

	l.log.Info(fmt.Sprintf("%s exited cleanly", l.cfg.Program))
	return nil
}

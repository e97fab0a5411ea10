package launcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/manned-pep/pep/pkg/logging"
)

// writeStub writes an executable shell script to use as the external
// data collector.
func writeStub(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "collector.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write stub collector: %v", err)
	}
	return path
}

// chdirGuard restores the test process working directory, since Run chdirs.
func chdirGuard(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func quietLogger() *logging.Logger {
	log := logging.New(logging.ERROR)
	log.SetOutput(io.Discard)
	return log
}

func newTestLauncher(t *testing.T, cfg Config) *Launcher {
	t.Helper()
	l, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l
}

func TestRunCreatesOutputDirectories(t *testing.T) {
	chdirGuard(t)
	workDir := t.TempDir()
	stub := writeStub(t, workDir, "exit 0")

	l := newTestLauncher(t, Config{
		WorkDir:    workDir,
		EnsureDirs: []string{"csv_data", "logs"},
		Program:    stub,
		LogMode:    LogModeTimestamped,
	})

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, dir := range []string{"csv_data", "logs"} {
		info, err := os.Stat(filepath.Join(workDir, dir))
		if err != nil {
			t.Errorf("Expected %s to exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("Expected %s to be a directory", dir)
		}
	}
}

func TestRunIsIdempotentOnDirectories(t *testing.T) {
	chdirGuard(t)
	workDir := t.TempDir()
	stub := writeStub(t, workDir, "exit 0")

	// Pre-existing content must survive both runs untouched.
	csvDir := filepath.Join(workDir, "csv_data")
	if err := os.Mkdir(csvDir, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	keep := filepath.Join(csvDir, "trial_1_20240101_000000.csv")
	if err := os.WriteFile(keep, []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l := newTestLauncher(t, Config{
		WorkDir:    workDir,
		EnsureDirs: []string{"csv_data", "logs"},
		Program:    stub,
		LogMode:    LogModeFixed,
	})

	for i := 0; i < 2; i++ {
		if err := l.Run(context.Background()); err != nil {
			t.Fatalf("Run %d failed: %v", i+1, err)
		}
	}

	content, err := os.ReadFile(keep)
	if err != nil {
		t.Fatalf("Pre-existing file gone: %v", err)
	}
	if string(content) != "data" {
		t.Errorf("Pre-existing file content changed: %q", content)
	}
}

func TestRunTimestampedLogName(t *testing.T) {
	chdirGuard(t)
	workDir := t.TempDir()
	stub := writeStub(t, workDir, "echo started")

	l := newTestLauncher(t, Config{
		WorkDir:    workDir,
		EnsureDirs: []string{"csv_data", "logs"},
		Program:    stub,
		LogMode:    LogModeTimestamped,
	})

	before := time.Now()
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	after := time.Now()

	entries, err := os.ReadDir(filepath.Join(workDir, "logs"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected exactly one log file, got %d", len(entries))
	}

	name := entries[0].Name()
	pattern := regexp.MustCompile(`^data_collection_(\d{8})_(\d{6})\.log$`)
	m := pattern.FindStringSubmatch(name)
	if m == nil {
		t.Fatalf("Log name %q does not match pattern", name)
	}

	stamp, err := time.ParseInLocation("20060102_150405", m[1]+"_"+m[2], time.Local)
	if err != nil {
		t.Fatalf("Failed to parse timestamp from %q: %v", name, err)
	}
	if stamp.Before(before.Add(-2*time.Second)) || stamp.After(after.Add(2*time.Second)) {
		t.Errorf("Log timestamp %v outside invocation window [%v, %v]", stamp, before, after)
	}
}

func TestRunCapturesStdoutAndStderr(t *testing.T) {
	chdirGuard(t)
	workDir := t.TempDir()
	stub := writeStub(t, workDir, "echo to-stdout\necho to-stderr >&2")

	l := newTestLauncher(t, Config{
		WorkDir:    workDir,
		EnsureDirs: []string{"csv_data", "logs"},
		Program:    stub,
		LogMode:    LogModeFixed,
	})

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(workDir, "data_collection.log"))
	if err != nil {
		t.Fatalf("Log file missing: %v", err)
	}
	if !strings.Contains(string(content), "to-stdout") {
		t.Error("Log file missing stdout output")
	}
	if !strings.Contains(string(content), "to-stderr") {
		t.Error("Log file missing stderr output")
	}
}

func TestRunAppendsToFixedLog(t *testing.T) {
	chdirGuard(t)
	workDir := t.TempDir()
	stub := writeStub(t, workDir, "echo run-line")

	l := newTestLauncher(t, Config{
		WorkDir:    workDir,
		EnsureDirs: []string{"csv_data", "logs"},
		Program:    stub,
		LogMode:    LogModeFixed,
	})

	for i := 0; i < 2; i++ {
		if err := l.Run(context.Background()); err != nil {
			t.Fatalf("Run %d failed: %v", i+1, err)
		}
	}

	content, err := os.ReadFile(filepath.Join(workDir, "data_collection.log"))
	if err != nil {
		t.Fatalf("Log file missing: %v", err)
	}
	if got := strings.Count(string(content), "run-line"); got != 2 {
		t.Errorf("Expected 2 appended lines, got %d:\n%s", got, content)
	}
}

func TestRunMissingWorkDir(t *testing.T) {
	chdirGuard(t)
	parent := t.TempDir()
	workDir := filepath.Join(parent, "does-not-exist")

	l := newTestLauncher(t, Config{
		WorkDir:    workDir,
		EnsureDirs: []string{"csv_data", "logs"},
		Program:    "/bin/true",
		LogMode:    LogModeFixed,
	})

	if err := l.Run(context.Background()); err == nil {
		t.Fatal("Expected error for missing working directory")
	}

	// Nothing may have been created anywhere.
	entries, err := os.ReadDir(parent)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no side effects, found %d entries", len(entries))
	}
}

func TestRunProgramNotFound(t *testing.T) {
	chdirGuard(t)
	workDir := t.TempDir()

	l := newTestLauncher(t, Config{
		WorkDir:    workDir,
		EnsureDirs: []string{"csv_data", "logs"},
		Program:    filepath.Join(workDir, "no-such-collector"),
		LogMode:    LogModeFixed,
	})

	if err := l.Run(context.Background()); err == nil {
		t.Fatal("Expected error when the program cannot be started")
	}
}

func TestRunIgnoresChildExitCode(t *testing.T) {
	chdirGuard(t)
	workDir := t.TempDir()
	stub := writeStub(t, workDir, "exit 3")

	l := newTestLauncher(t, Config{
		WorkDir:    workDir,
		EnsureDirs: []string{"csv_data", "logs"},
		Program:    stub,
		LogMode:    LogModeFixed,
	})

	if err := l.Run(context.Background()); err != nil {
		t.Errorf("Launcher must not fail on child exit code, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{WorkDir: "/tmp", Program: "x", LogMode: LogModeFixed}, false},
		{"no workdir", Config{Program: "x", LogMode: LogModeFixed}, true},
		{"relative workdir", Config{WorkDir: "rel", Program: "x", LogMode: LogModeFixed}, true},
		{"no program", Config{WorkDir: "/tmp", LogMode: LogModeFixed}, true},
		{"bad log mode", Config{WorkDir: "/tmp", Program: "x", LogMode: "weekly"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestLogPath(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

	fixed := Config{LogMode: LogModeFixed}
	if got := fixed.LogPath(at); got != "data_collection.log" {
		t.Errorf("Fixed log path = %q", got)
	}

	stamped := Config{LogMode: LogModeTimestamped}
	want := filepath.Join("logs", "data_collection_20240309_143005.log")
	if got := stamped.LogPath(at); got != want {
		t.Errorf("Timestamped log path = %q, want %q", got, want)
	}
}

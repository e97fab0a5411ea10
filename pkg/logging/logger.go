package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger writes leveled messages to one or more destinations. The collector
// runs headless on a Pi, so the file destination is the primary one and
// stdout mirrors it for interactive runs.
type Logger struct {
	level   Level
	output  io.Writer
	fields  map[string]interface{}
	logFile *os.File
}

// New creates a logger that writes to stdout only.
func New(level Level) *Logger {
	return &Logger{
		level:  level,
		output: os.Stdout,
		fields: make(map[string]interface{}),
	}
}

// NewFileLogger creates a logger that appends to the given file and mirrors
// to stdout. The parent directory is created if missing. The file is never
// truncated; successive runs append.
func NewFileLogger(path string, level Level) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	return &Logger{
		level:   level,
		output:  io.MultiWriter(logFile, os.Stdout),
		fields:  make(map[string]interface{}),
		logFile: logFile,
	}, nil
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	merged := make(map[string]interface{})
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(l.output, "[%s] %s: %s", timestamp, level.String(), message)
	if len(merged) > 0 {
		fmt.Fprintf(l.output, " %v", merged)
	}
	fmt.Fprintln(l.output)

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, first(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, first(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, first(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, first(fields))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(FATAL, message, first(fields))
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// WithField returns a copy of the logger with an extra context field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &Logger{
		level:   l.level,
		output:  l.output,
		fields:  newFields,
		logFile: l.logFile,
	}
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	case "FATAL", "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

// RotateIfNeeded rotates the log file if it exceeds maxSize bytes. The old
// file is renamed with a timestamp suffix and a fresh one is opened in its
// place. SD cards on the collection Pi are small; trials can run for hours.
func (l *Logger) RotateIfNeeded(maxSize int64) error {
	if l.logFile == nil {
		return nil
	}

	info, err := l.logFile.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}

	oldPath := l.logFile.Name()
	l.logFile.Close()

	backupPath := oldPath + "." + time.Now().Format("20060102-150405")
	if err := os.Rename(oldPath, backupPath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(oldPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	l.logFile = newFile
	l.output = io.MultiWriter(newFile, os.Stdout)
	l.Info(fmt.Sprintf("Log rotated: %s -> %s", oldPath, backupPath))
	return nil
}

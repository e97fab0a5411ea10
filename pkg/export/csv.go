// Package export writes trial data out of the frames database into CSV
// files for downstream analysis.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/manned-pep/pep/pkg/decode"
	"github.com/manned-pep/pep/pkg/store"
)

// FrameSource is the slice of the store the exporter needs.
type FrameSource interface {
	TrialFrames(number int) ([]store.FrameRecord, error)
}

const timestampFormat = "2006-01-02 15:04:05.000"

// Writer exports trials to CSV files under a fixed output directory.
type Writer struct {
	outputDir string
}

// NewWriter creates a CSV writer rooted at outputDir (normally csv_data/).
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// TrialFilename returns the timestamped CSV name for a trial.
func TrialFilename(trial int, now time.Time) string {
	return fmt.Sprintf("trial_%d_%s.csv", trial, now.Format("20060102_150405"))
}

// ExportTrial writes one decoded row per stored frame of the trial and
// returns the path written. Columns follow the controller's signal table;
// signals a frame does not carry are left blank.
func (w *Writer) ExportTrial(src FrameSource, trial int) (string, error) {
	path := filepath.Join(w.outputDir, TrialFilename(trial, time.Now()))
	if err := w.ExportTrialTo(src, trial, path); err != nil {
		return "", err
	}
	return path, nil
}

// ExportTrialTo writes the decoded trial to an explicit path.
func (w *Writer) ExportTrialTo(src FrameSource, trial int, path string) error {
	frames, err := src.TrialFrames(trial)
	if err != nil {
		return err
	}

	file, err := createOutput(path)
	if err != nil {
		return err
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	headers := decode.ColumnHeaders()
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, frame := range frames {
		byDesc := make(map[string]int64)
		for _, v := range decode.Frame(frame.FrameID, frame.Data) {
			byDesc[v.Signal.Description] = v.Raw
		}

		row := []string{
			strconv.Itoa(frame.TrialNumber),
			frame.Timestamp.Format(timestampFormat),
			strconv.FormatUint(uint64(frame.FrameID), 10),
			decode.PDOLabel(frame.FrameID),
			strconv.Itoa(int(frame.DLC)),
			strconv.FormatUint(uint64(frame.Flags), 10),
		}
		for _, header := range headers[6:] {
			if value, ok := byDesc[header]; ok {
				row = append(row, strconv.FormatInt(value, 10))
			} else {
				row = append(row, "")
			}
		}

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ExportRaw dumps the trial's frames without decoding: one row per frame
// with the payload hex-encoded. Useful when the signal table is suspected
// of being wrong for a controller firmware revision.
func (w *Writer) ExportRaw(src FrameSource, trial int, path string) error {
	frames, err := src.TrialFrames(trial)
	if err != nil {
		return err
	}

	file, err := createOutput(path)
	if err != nil {
		return err
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write([]string{"trial_number", "timestamp", "frame_id", "dlc", "flags", "data_hex"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, frame := range frames {
		row := []string{
			strconv.Itoa(frame.TrialNumber),
			frame.Timestamp.Format(timestampFormat),
			strconv.FormatUint(uint64(frame.FrameID), 10),
			strconv.Itoa(int(frame.DLC)),
			strconv.FormatUint(uint64(frame.Flags), 10),
			fmt.Sprintf("%x", frame.Data),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

func createOutput(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return file, nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Trial is one power-on to power-off collection run.
type Trial struct {
	Number      int        `json:"trial_number"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FrameCount  int        `json:"frame_count"`
	CSVPath     string     `json:"csv_path,omitempty"`
}

// FrameRecord is a raw CAN frame persisted for a trial.
type FrameRecord struct {
	TrialNumber int
	Timestamp   time.Time
	FrameID     uint32
	DLC         uint8
	Flags       uint32
	Data        []byte
}

// SQLiteStore persists trials and their raw frames.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the frames database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite connection string for a single busy writer:
	// - _journal_mode=WAL: readers (CSV export, status API) don't block the
	//   collector's inserts
	// - _busy_timeout=10000: wait up to 10 seconds when the database is locked
	// - _synchronous=NORMAL: balance between safety and SD-card write load
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialize writes to avoid SQLITE_BUSY during frame batches
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trials (
		trial_number INTEGER PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		frame_count INTEGER NOT NULL DEFAULT 0,
		csv_path TEXT
	);

	CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trial_number INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		frame_id INTEGER NOT NULL,
		dlc INTEGER NOT NULL,
		flags INTEGER NOT NULL DEFAULT 0,
		data BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_frames_trial ON frames(trial_number);
	`

	_, err := s.db.Exec(schema)
	return err
}

// NextTrialNumber returns one past the highest known trial number.
func (s *SQLiteStore) NextTrialNumber() (int, error) {
	var max sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(trial_number) FROM trials`).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to query trial number: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

// CreateTrial records the start of a trial.
func (s *SQLiteStore) CreateTrial(number int, startedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO trials (trial_number, started_at, frame_count)
		VALUES (?, ?, 0)
	`, number, startedAt)
	if err != nil {
		return fmt.Errorf("failed to create trial %d: %w", number, err)
	}
	return nil
}

// CompleteTrial marks the trial finished and records its totals.
func (s *SQLiteStore) CompleteTrial(number int, completedAt time.Time, frameCount int, csvPath string) error {
	res, err := s.db.Exec(`
		UPDATE trials SET completed_at = ?, frame_count = ?, csv_path = ?
		WHERE trial_number = ?
	`, completedAt, frameCount, csvPath, number)
	if err != nil {
		return fmt.Errorf("failed to complete trial %d: %w", number, err)
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("trial %d not found", number)
	}
	return nil
}

// InsertFrames writes one batch of frames inside a single transaction.
func (s *SQLiteStore) InsertFrames(frames []FrameRecord) error {
	if len(frames) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO frames (trial_number, timestamp, frame_id, dlc, flags, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range frames {
		if _, err := stmt.Exec(f.TrialNumber, f.Timestamp, f.FrameID, f.DLC, f.Flags, f.Data); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert frame: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit frame batch: %w", err)
	}
	return nil
}

// GetTrial returns a single trial.
func (s *SQLiteStore) GetTrial(number int) (*Trial, error) {
	row := s.db.QueryRow(`
		SELECT trial_number, started_at, completed_at, frame_count, csv_path
		FROM trials WHERE trial_number = ?
	`, number)

	trial, err := scanTrial(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trial %d not found", number)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trial %d: %w", number, err)
	}
	return trial, nil
}

// ListTrials returns all trials, newest first.
func (s *SQLiteStore) ListTrials() ([]*Trial, error) {
	rows, err := s.db.Query(`
		SELECT trial_number, started_at, completed_at, frame_count, csv_path
		FROM trials ORDER BY trial_number DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer rows.Close()

	var trials []*Trial
	for rows.Next() {
		trial, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		trials = append(trials, trial)
	}
	return trials, rows.Err()
}

// TrialFrames returns all frames of a trial in insertion order.
func (s *SQLiteStore) TrialFrames(number int) ([]FrameRecord, error) {
	rows, err := s.db.Query(`
		SELECT trial_number, timestamp, frame_id, dlc, flags, data
		FROM frames WHERE trial_number = ? ORDER BY id
	`, number)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames for trial %d: %w", number, err)
	}
	defer rows.Close()

	var frames []FrameRecord
	for rows.Next() {
		var f FrameRecord
		if err := rows.Scan(&f.TrialNumber, &f.Timestamp, &f.FrameID, &f.DLC, &f.Flags, &f.Data); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrial(row scanner) (*Trial, error) {
	var t Trial
	var completedAt sql.NullTime
	var csvPath sql.NullString

	if err := row.Scan(&t.Number, &t.StartedAt, &completedAt, &t.FrameCount, &csvPath); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if csvPath.Valid {
		t.CSVPath = csvPath.String
	}
	return &t, nil
}

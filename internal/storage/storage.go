package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/results"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrRunNotFound is returned by Get for an unknown run ID
var ErrRunNotFound = errors.New("run not found")

// Fixed width so that created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunSummary is one row of the run history
type RunSummary struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Reference      string    `json:"reference"`
	Hypothesis     string    `json:"hypothesis"`
	AlignedRecords int       `json:"aligned_records"`
	OverallWER     float64   `json:"overall_wer"`
	OverallCER     float64   `json:"overall_cer"`
}

// RunStore persists evaluation reports in SQLite
type RunStore struct {
	db *sql.DB
}

// Open opens (and creates if needed) the run history at path. ":memory:" or
// an empty path keeps the history in memory.
func Open(path string) (*RunStore, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists once per connection
	db.SetMaxOpenConns(1)

	s := &RunStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *RunStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			reference TEXT NOT NULL,
			hypothesis TEXT NOT NULL,
			aligned_records INTEGER NOT NULL,
			overall_wer REAL NOT NULL,
			overall_cer REAL NOT NULL,
			report TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Save stores the report, assigning it an ID if it has none, and returns the ID
func (s *RunStore) Save(ctx context.Context, report *results.Report) (string, error) {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, created_at, reference, hypothesis, aligned_records, overall_wer, overall_cer, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.CreatedAt.UTC().Format(timeLayout),
		report.Reference,
		report.Hypothesis,
		report.AlignedRecords,
		report.OverallWER,
		report.OverallCER,
		string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	return report.ID, nil
}

// Get loads the full report of one run
func (s *RunStore) Get(ctx context.Context, id string) (*results.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT report FROM runs WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	var report results.Report
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &report, nil
}

// List returns the most recent runs first. A limit below 1 returns every run.
func (s *RunStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT id, created_at, reference, hypothesis, aligned_records, overall_wer, overall_cer
		FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var run RunSummary
		var createdAt string
		if err := rows.Scan(&run.ID, &createdAt, &run.Reference, &run.Hypothesis,
			&run.AlignedRecords, &run.OverallWER, &run.OverallCER); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at of run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// Close closes the database
func (s *RunStore) Close() error {
	return s.db.Close()
}

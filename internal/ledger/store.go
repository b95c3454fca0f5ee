// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger keeps a SQLite history of batch runs and the outcome of
// every document in them, so operators can list what failed last time.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/ocr-batch/pkg/types"
)

const (
	// DefaultDir is the ledger directory created under the output directory.
	DefaultDir = ".ocr-batch"
	dbFile     = "history.db"
)

// ErrNoRuns is returned when the ledger holds no runs yet.
var ErrNoRuns = errors.New("no runs recorded")

// DefaultPath returns the ledger location for an output directory.
func DefaultPath(outputDir string) string {
	return filepath.Join(outputDir, DefaultDir, dbFile)
}

// RunMeta describes a run before its outcome is known.
type RunMeta struct {
	StartedAt time.Time
	InputDir  string
	OutputDir string
	Model     string
	TaskType  types.TaskType
}

// Run is a recorded batch run.
type Run struct {
	ID         string         `json:"id" yaml:"id"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	InputDir   string         `json:"input_dir" yaml:"input_dir"`
	OutputDir  string         `json:"output_dir" yaml:"output_dir"`
	Model      string         `json:"model" yaml:"model"`
	TaskType   types.TaskType `json:"task_type" yaml:"task_type"`
	Success    int            `json:"success" yaml:"success"`
	Failed     int            `json:"failed" yaml:"failed"`

	// Message holds the whole-batch error for runs that converted nothing.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// DocumentRecord is the outcome of one document within a run.
type DocumentRecord struct {
	RunID      string                 `json:"run_id" yaml:"run_id"`
	Path       string                 `json:"path" yaml:"path"`
	OutputPath string                 `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Status     types.ConversionStatus `json:"status" yaml:"status"`
	Error      string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Duration   time.Duration          `json:"duration" yaml:"duration"`
}

// Store manages the ledger database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			input_dir TEXT,
			output_dir TEXT,
			model TEXT,
			task_type TEXT,
			success INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			message TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			output_path TEXT,
			status TEXT NOT NULL,
			error TEXT,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_run_id ON documents(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RecordRun stores a finished run and every document result in report.
func (s *Store) RecordRun(ctx context.Context, meta RunMeta, report types.BatchReport) (Run, error) {
	run := Run{
		ID:         uuid.NewString(),
		StartedAt:  meta.StartedAt.UTC(),
		FinishedAt: meta.StartedAt.Add(report.Duration).UTC(),
		InputDir:   meta.InputDir,
		OutputDir:  meta.OutputDir,
		Model:      meta.Model,
		TaskType:   meta.TaskType,
		Success:    report.Success,
		Failed:     report.Failed,
	}
	if report.Total() == 0 {
		run.Message = strings.Join(report.Errors, "; ")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, input_dir, output_dir, model, task_type, success, failed, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Format(time.RFC3339Nano), run.FinishedAt.Format(time.RFC3339Nano),
		run.InputDir, run.OutputDir, run.Model, string(run.TaskType),
		run.Success, run.Failed, run.Message,
	)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (run_id, path, output_path, status, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range report.Results {
		_, err := stmt.ExecContext(ctx,
			run.ID, res.DocumentPath, res.OutputPath, string(res.Status),
			res.Error(), res.Duration.Milliseconds(),
		)
		if err != nil {
			return Run{}, fmt.Errorf("inserting document %s: %w", res.DocumentPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

// Runs returns up to limit runs, most recent first. A limit below 1 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, input_dir, output_dir, model, task_type, success, failed, message
		 FROM runs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run, or ErrNoRuns.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}

// Documents returns the documents of a run in processing order. A non-empty
// status filters by outcome.
func (s *Store) Documents(ctx context.Context, runID string, status types.ConversionStatus) ([]DocumentRecord, error) {
	query := `SELECT run_id, path, output_path, status, error, duration_ms FROM documents WHERE run_id = ?`
	args := []any{runID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var (
			d          DocumentRecord
			outputPath sql.NullString
			errText    sql.NullString
			status     string
			durationMS int64
		)
		if err := rows.Scan(&d.RunID, &d.Path, &outputPath, &status, &errText, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.OutputPath = outputPath.String
		d.Error = errText.String
		d.Status = types.ConversionStatus(status)
		d.Duration = time.Duration(durationMS) * time.Millisecond
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run                        Run
		started, finished          string
		inputDir, outputDir, model sql.NullString
		task, message              sql.NullString
	)
	if err := rows.Scan(&run.ID, &started, &finished, &inputDir, &outputDir, &model, &task,
		&run.Success, &run.Failed, &message); err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parsing started_at of run %s: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return Run{}, fmt.Errorf("parsing finished_at of run %s: %w", run.ID, err)
	}
	run.InputDir = inputDir.String
	run.OutputDir = outputDir.String
	run.Model = model.String
	run.TaskType = types.TaskType(task.String)
	run.Message = message.String
	return run, nil
}

package batch

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"palign/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Existing run
// databases must be deleted after a bump.
const schemaVersion = 1

var (
	// ErrSchemaMismatch indicates the database was created by a
	// different version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrNotFound reports a missing run or utterance.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition reports a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store persists runs and utterances in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run database under the work
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.WorkDir, "palign.db"))
}

// OpenPath opens the database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// CreateRun inserts a run and returns it with its row ID.
func (s *Store) CreateRun(ctx context.Context, run *Run) (*Run, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, audio_path, trans_path, model_dir, out_dir, aligner, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.AudioPath, run.TransPath, run.ModelDir, run.OutDir, run.Aligner, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	created := *run
	created.ID = id
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// GetRun returns the run with the given external run ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, audio_path, trans_path, model_dir, out_dir, aligner, created_at, updated_at
		FROM runs WHERE run_id = ?`, runID)
	var run Run
	err := row.Scan(&run.ID, &run.RunID, &run.AudioPath, &run.TransPath, &run.ModelDir, &run.OutDir, &run.Aligner, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, audio_path, trans_path, model_dir, out_dir, aligner, created_at, updated_at
		FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.RunID, &run.AudioPath, &run.TransPath, &run.ModelDir, &run.OutDir, &run.Aligner, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AddUtterances inserts the utterances for a run in one transaction.
func (s *Store) AddUtterances(ctx context.Context, runID int64, utterances []Utterance) ([]Utterance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	out := make([]Utterance, 0, len(utterances))
	for i, utt := range utterances {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO utterances (run_id, position, start_time, end_time, text, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, utt.Start, utt.End, utt.Text, string(StatusPending), now, now)
		if err != nil {
			return nil, fmt.Errorf("insert utterance %d: %w", i, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("utterance id: %w", err)
		}
		stored := utt
		stored.ID = id
		stored.RunID = runID
		stored.Position = i
		stored.Status = StatusPending
		stored.CreatedAt = now
		stored.UpdatedAt = now
		out = append(out, stored)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit utterances: %w", err)
	}
	return out, nil
}

// ListUtterances returns the utterances of a run in position order.
func (s *Store) ListUtterances(ctx context.Context, runID int64) ([]Utterance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, position, start_time, end_time, text, status, error_message, retries, created_at, updated_at
		FROM utterances WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list utterances: %w", err)
	}
	defer rows.Close()
	var utterances []Utterance
	for rows.Next() {
		var utt Utterance
		var status string
		if err := rows.Scan(&utt.ID, &utt.RunID, &utt.Position, &utt.Start, &utt.End, &utt.Text, &status, &utt.ErrorMessage, &utt.Retries, &utt.CreatedAt, &utt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		parsed, ok := ParseStatus(status)
		if !ok {
			return nil, fmt.Errorf("utterance %d has unknown status %q", utt.ID, status)
		}
		utt.Status = parsed
		utterances = append(utterances, utt)
	}
	return utterances, rows.Err()
}

// Transition moves an utterance to a new status, enforcing the state
// machine. A move to the same aligning state increments the retry
// counter.
func (s *Store) Transition(ctx context.Context, utteranceID int64, to Status) error {
	row := s.db.QueryRowContext(ctx, "SELECT status, retries FROM utterances WHERE id = ?", utteranceID)
	var rawStatus string
	var retries int
	if err := row.Scan(&rawStatus, &retries); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: utterance %d", ErrNotFound, utteranceID)
		}
		return fmt.Errorf("load utterance: %w", err)
	}
	from, ok := ParseStatus(rawStatus)
	if !ok {
		return fmt.Errorf("utterance %d has unknown status %q", utteranceID, rawStatus)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if from == StatusAligning && to == StatusAligning {
		retries++
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE utterances SET status = ?, retries = ?, updated_at = ? WHERE id = ?`,
		string(to), retries, time.Now().UTC(), utteranceID)
	if err != nil {
		return fmt.Errorf("update utterance: %w", err)
	}
	return nil
}

// MarkFailed transitions an utterance to failed with a message.
func (s *Store) MarkFailed(ctx context.Context, utteranceID int64, message string) error {
	message = strings.TrimSpace(message)
	_, err := s.db.ExecContext(ctx, `
		UPDATE utterances SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(StatusFailed), message, time.Now().UTC(), utteranceID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Summarize counts utterances per status for one run.
func (s *Store) Summarize(ctx context.Context, runID int64) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(1) FROM utterances WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize run: %w", err)
	}
	defer rows.Close()
	summary := Summary{Counts: make(map[Status]int)}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		parsed, ok := ParseStatus(status)
		if !ok {
			return Summary{}, fmt.Errorf("unknown status %q", status)
		}
		summary.Counts[parsed] = count
		summary.Total += count
	}
	return summary, rows.Err()
}

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a requested run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run status constants.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed" // reached DONE, not resumable
	RunStatusFailed    = "failed"    // aborted with an error, resumable from the last checkpoint
)

const timeLayout = time.RFC3339Nano

// Run is one pipeline execution.
//
//nolint:govet // struct alignment optimization not critical for this type.
type Run struct {
	RunID      string    `json:"run_id"`
	UserPrompt string    `json:"user_prompt"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Steps      int       `json:"steps"`
}

// CreateRun records the start of a run.
func (s *Store) CreateRun(ctx context.Context, runID, userPrompt string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, user_prompt, status, started_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, userPrompt, RunStatusRunning, now, now)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// FinishRun sets the final status of a run. A nil runErr marks it completed.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := RunStatusCompleted, ""
	if runErr != nil {
		status, msg = RunStatusFailed, runErr.Error()
	}
	return s.setRunStatus(ctx, runID, status, msg)
}

// MarkRunning flags a run as running again, for resume.
func (s *Store) MarkRunning(ctx context.Context, runID string) error {
	return s.setRunStatus(ctx, runID, RunStatusRunning, "")
}

func (s *Store) setRunStatus(ctx context.Context, runID, status, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE run_id = ?`,
		status, msg, time.Now().UTC().Format(timeLayout), runID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun returns one run with its checkpoint count.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, runSelect+` WHERE r.run_id = ? GROUP BY r.run_id`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := runSelect + ` GROUP BY r.run_id ORDER BY r.started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

const runSelect = `SELECT r.run_id, r.user_prompt, r.status, r.error, r.started_at, r.updated_at, COUNT(c.id)
	FROM runs r LEFT JOIN checkpoints c ON c.run_id = r.run_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var started, updated string
	if err := row.Scan(&run.RunID, &run.UserPrompt, &run.Status, &run.Error, &started, &updated, &run.Steps); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("run %s: bad started_at: %w", run.RunID, err)
	}
	if run.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("run %s: bad updated_at: %w", run.RunID, err)
	}
	return &run, nil
}

package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"codegen/pkg/proto"
)

// ErrNoCheckpoint is returned when a run has no checkpoint yet.
var ErrNoCheckpoint = errors.New("no checkpoint")

// Checkpoint is the pipeline state saved after one node execution.
//
//nolint:govet // struct alignment optimization not critical for this type.
type Checkpoint struct {
	ID        string
	RunID     string
	Step      int
	Node      string
	State     proto.PipelineState
	CreatedAt time.Time
}

// Checkpoint saves state after step. It satisfies graph.Checkpointer.
//
//nolint:gocritic // PipelineState passed by value to make snapshots explicit
func (s *Store) Checkpoint(ctx context.Context, runID string, step int, node string, state proto.PipelineState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s step %d: %w", runID, step, err)
	}

	now := time.Now().UTC().Format(timeLayout)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, run_id, step, node, state_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, step, node, string(stateJSON), now); err != nil {
		return fmt.Errorf("failed to save checkpoint %s step %d: %w", runID, step, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET updated_at = ? WHERE run_id = ?`, now, runID); err != nil {
		return fmt.Errorf("failed to touch run %s: %w", runID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	s.logger.Debug("Checkpoint %s step %d after %s", runID, step, node)
	return nil
}

// Latest returns the most recent checkpoint of a run.
func (s *Store) Latest(ctx context.Context, runID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, checkpointSelect+` WHERE run_id = ? ORDER BY step DESC LIMIT 1`, runID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for run %s", ErrNoCheckpoint, runID)
	}
	return cp, err
}

// History returns every checkpoint of a run in step order.
func (s *Store) History(ctx context.Context, runID string) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, checkpointSelect+` WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return out, nil
}

const checkpointSelect = `SELECT id, run_id, step, node, state_json, created_at FROM checkpoints`

func scanCheckpoint(row scanner) (*Checkpoint, error) {
	var cp Checkpoint
	var stateJSON, created string
	if err := row.Scan(&cp.ID, &cp.RunID, &cp.Step, &cp.Node, &stateJSON, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, fmt.Errorf("checkpoint %s: failed to decode state: %w", cp.ID, err)
	}
	relinkTaskPlan(&cp.State)

	var err error
	if cp.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("checkpoint %s: bad created_at: %w", cp.ID, err)
	}
	return &cp, nil
}

// relinkTaskPlan restores the shared pointers JSON flattens: the coder cursor and
// the task plan refer to one TaskPlan, whose Plan is the state's plan.
func relinkTaskPlan(state *proto.PipelineState) {
	if state.TaskPlan != nil {
		state.TaskPlan.Plan = state.Plan
		if state.CoderState != nil {
			state.CoderState.TaskPlan = state.TaskPlan
		}
	}
}

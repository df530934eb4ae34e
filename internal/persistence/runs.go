package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveRun stores the summary of an orchestration run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	timedOut := 0
	if run.TimedOut {
		timedOut = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, total_tasks, completed, failed, retries, elapsed_ms, timed_out, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			total_tasks = excluded.total_tasks,
			completed = excluded.completed,
			failed = excluded.failed,
			retries = excluded.retries,
			elapsed_ms = excluded.elapsed_ms,
			timed_out = excluded.timed_out,
			started_at = excluded.started_at
	`, run.RunID, run.TotalTasks, run.Completed, run.Failed, run.Retries,
		run.Elapsed.Milliseconds(), timedOut, run.StartedAt.UTC())

	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run summary by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	run := &RunRecord{}
	var elapsedMS int64
	var timedOut int

	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, total_tasks, completed, failed, retries, elapsed_ms, timed_out, started_at
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.TotalTasks, &run.Completed, &run.Failed, &run.Retries,
		&elapsedMS, &timedOut, &run.StartedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	run.TimedOut = timedOut != 0

	return run, nil
}

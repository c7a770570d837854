package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// StartRun inserts a run in the running state.
// Fails if a run with the same ID already exists.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("start run: id is required")
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if !run.Status.Valid() {
		return fmt.Errorf("start run: invalid status %q", run.Status)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, status, max_trials, buffer_size)
		VALUES (?, ?, ?, ?, ?)
	`,
		run.ID,
		formatTime(run.StartedAt),
		string(run.Status),
		run.MaxTrials,
		run.BufferSize,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun records the final status and totals of a run.
// Returns ErrRunNotFound if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, totals RunTotals, finishedAt time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("finish run: invalid status %q", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, trials = ?, bytes_read = ?, empty_reads = ?, read_errors = ?
		WHERE id = ?
	`,
		string(status),
		formatTime(finishedAt),
		totals.Trials,
		totals.BytesRead,
		totals.EmptyReads,
		totals.ReadErrors,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// RecordFinding stores a crashing input and reports whether it was new.
//
// The ID is derived from the input when empty. A finding whose ID already
// exists is not duplicated: its hit count is incremented and LastRunID moves
// to the current run.
//
// Note: RunID must reference an existing run (foreign key constraint).
func (s *Store) RecordFinding(ctx context.Context, f Finding) (inserted bool, err error) {
	if f.ID == "" {
		f.ID = FindingID(f.Input)
	}
	if f.Input == nil {
		f.Input = []byte{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("record finding: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO findings
		(id, run_id, last_run_id, trial, input, length, found_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		f.ID,
		f.RunID,
		f.RunID,
		f.Trial,
		f.Input,
		len(f.Input),
		formatTime(f.FoundAt),
	)
	if err != nil {
		return false, fmt.Errorf("record finding: insert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record finding: rows affected: %w", err)
	}

	if rows > 0 {
		inserted = true
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE findings SET hits = hits + 1, last_run_id = ? WHERE id = ?
		`, f.RunID, f.ID)
		if err != nil {
			return false, fmt.Errorf("record finding: bump hits: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("record finding: commit: %w", err)
	}
	return inserted, nil
}

// RecordScan stores the outcome of one scan execution.
func (s *Store) RecordScan(ctx context.Context, rec ScanRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record scan: id is required")
	}
	argv := rec.Argv
	if argv == nil {
		argv = []string{}
	}
	argvJSON, err := json.Marshal(argv)
	if err != nil {
		return fmt.Errorf("record scan: marshal argv: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans
		(id, profile, trigger_name, argv, exit_code, passed, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Profile,
		rec.Trigger,
		string(argvJSON),
		rec.ExitCode,
		rec.Passed,
		rec.Error,
		formatTime(rec.StartedAt),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

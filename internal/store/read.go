package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const runColumns = `seq, id, started_at, finished_at, status, max_trials, buffer_size,
	trials, bytes_read, empty_reads, read_errors`

// ReadRun returns the run with the given ID.
// Returns ErrRunNotFound if no such run exists.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns all runs ordered by seq ASC, id ASC.
// Returns an empty slice (not nil) if the journal has no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListFindings returns findings ordered by seq ASC, id ASC.
//
// With an empty runID every finding is returned. Otherwise only findings first
// seen in, or last hit by, that run are returned.
func (s *Store) ListFindings(ctx context.Context, runID string) ([]Finding, error) {
	query := `
		SELECT seq, id, run_id, last_run_id, trial, input, hits, found_at
		FROM findings`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ? OR last_run_id = ?`
		args = append(args, runID, runID)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	findings := []Finding{}
	for rows.Next() {
		var (
			f       Finding
			foundAt string
		)
		if err := rows.Scan(&f.Seq, &f.ID, &f.RunID, &f.LastRunID, &f.Trial, &f.Input, &f.Hits, &foundAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		if f.FoundAt, err = parseTime(foundAt); err != nil {
			return nil, fmt.Errorf("scan finding %s: found_at: %w", f.ID, err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return findings, nil
}

// ListScans returns all scan records ordered by seq ASC, id ASC.
func (s *Store) ListScans(ctx context.Context) ([]ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, profile, trigger_name, argv, exit_code, passed, error, started_at, duration_ms
		FROM scans
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	scans := []ScanRecord{}
	for rows.Next() {
		var (
			rec        ScanRecord
			argvJSON   string
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.Profile, &rec.Trigger, &argvJSON,
			&rec.ExitCode, &rec.Passed, &rec.Error, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(argvJSON), &rec.Argv); err != nil {
			return nil, fmt.Errorf("scan record %s: argv: %w", rec.ID, err)
		}
		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("scan record %s: started_at: %w", rec.ID, err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		scans = append(scans, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return scans, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		status     string
		startedAt  string
		finishedAt sql.NullString
	)
	err := row.Scan(&run.Seq, &run.ID, &startedAt, &finishedAt, &status, &run.MaxTrials, &run.BufferSize,
		&run.Totals.Trials, &run.Totals.BytesRead, &run.Totals.EmptyReads, &run.Totals.ReadErrors)
	if err != nil {
		return Run{}, err
	}

	run.Status = RunStatus(status)
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, fmt.Errorf("run %s: started_at: %w", run.ID, err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return Run{}, fmt.Errorf("run %s: finished_at: %w", run.ID, err)
		}
	}
	return run, nil
}

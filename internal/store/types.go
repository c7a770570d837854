package store

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunCrashed     RunStatus = "crashed"
	RunInterrupted RunStatus = "interrupted"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunCompleted, RunCrashed, RunInterrupted:
		return true
	}
	return false
}

// RunTotals are the trial-loop statistics persisted when a run ends.
type RunTotals struct {
	Trials     int `json:"trials"`
	BytesRead  int `json:"bytes_read"`
	EmptyReads int `json:"empty_reads"`
	ReadErrors int `json:"read_errors"`
}

// Run is one execution of the trial loop.
type Run struct {
	Seq        int64     `json:"seq"`
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Status     RunStatus `json:"status"`
	MaxTrials  int       `json:"max_trials"`
	BufferSize int       `json:"buffer_size"`
	Totals     RunTotals `json:"totals"`
}

// Finding is an input that matched the trigger sequence.
type Finding struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	LastRunID string    `json:"last_run_id"`
	Trial     int       `json:"trial"`
	Input     []byte    `json:"input"`
	Hits      int       `json:"hits"`
	FoundAt   time.Time `json:"found_at"`
}

// ScanRecord is one execution of the external static-analysis tool.
type ScanRecord struct {
	Seq       int64         `json:"seq"`
	ID        string        `json:"id"`
	Profile   string        `json:"profile"`
	Trigger   string        `json:"trigger"`
	Argv      []string      `json:"argv"`
	ExitCode  int           `json:"exit_code"`
	Passed    bool          `json:"passed"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

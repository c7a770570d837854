package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/fuzzlab/internal/target"
)

// DefaultMaxTrials is the number of trials run when Loop.MaxTrials is unset.
const DefaultMaxTrials = 1000

// Loop is the single-threaded trial loop.
//
// Every trial runs to completion (clear, read, check) before the next one
// starts. The buffer is the only mutable state and is owned by the loop.
type Loop struct {
	// Control brackets the loop. Required.
	Control Control

	// Input is the data source, typically os.Stdin. Required.
	Input io.Reader

	// Checker inspects each trial's buffer. Required.
	Checker Checker

	// MaxTrials is passed to Control.ShouldContinue. Defaults to DefaultMaxTrials.
	MaxTrials int

	// BufferSize is the buffer capacity. Defaults to target.DefaultBufferSize.
	BufferSize int

	// Observer is notified after each trial. Optional.
	Observer Observer

	// Logger receives debug diagnostics. Defaults to a discard logger.
	Logger *slog.Logger
}

// Run executes trials until the control stops the loop.
//
// The only error returned is a setup failure (missing collaborators or a
// failed Initialize); no trial has run in that case.
func (l *Loop) Run() (Stats, error) {
	if l.Control == nil {
		return Stats{}, errors.New("trial loop: control is required")
	}
	if l.Input == nil {
		return Stats{}, errors.New("trial loop: input is required")
	}
	if l.Checker == nil {
		return Stats{}, errors.New("trial loop: checker is required")
	}

	maxTrials := l.MaxTrials
	if maxTrials == 0 {
		maxTrials = DefaultMaxTrials
	}
	size := l.BufferSize
	if size <= 0 {
		size = target.DefaultBufferSize
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := l.Control.Initialize(); err != nil {
		return Stats{}, fmt.Errorf("trial loop: %w", err)
	}

	buf := make([]byte, size)
	var stats Stats

	for l.Control.ShouldContinue(maxTrials) {
		clear(buf)

		n, err := l.Input.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			stats.ReadErrors++
			logger.Debug("read failed", "trial", stats.Trials+1, "error", err)
		}
		if clamped := clampRead(n, len(buf)); clamped != n {
			logger.Debug("read count clamped", "trial", stats.Trials+1, "returned", n, "clamped", clamped)
			n = clamped
		}

		stats.Trials++
		stats.BytesRead += n
		if n == 0 {
			stats.EmptyReads++
		}

		l.Checker.Check(buf, n)

		if l.Observer != nil {
			l.Observer.ObserveTrial(newTrialEvent(stats.Trials, buf, n, target.Triggered(buf, n)))
		}
	}

	logger.Debug("trial loop finished",
		"trials", stats.Trials,
		"bytes_read", stats.BytesRead,
		"empty_reads", stats.EmptyReads,
		"read_errors", stats.ReadErrors,
	)
	return stats, nil
}

// clampRead keeps a reader's returned count within [0, capacity].
// io.Reader forbids both cases, but the checker must never see them.
func clampRead(n, capacity int) int {
	if n < 0 {
		return 0
	}
	if n > capacity {
		return capacity
	}
	return n
}

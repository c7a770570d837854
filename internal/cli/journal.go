package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/fuzzlab/internal/harness"
	"github.com/roach88/fuzzlab/internal/store"
	"github.com/roach88/fuzzlab/internal/target"
)

// runJournal mirrors one trial loop into the crash journal.
//
// The process aborter never returns, so the finding and the run's final
// status are written from inside Abort, before delegating to the real
// aborter. Totals are tracked here because Loop.Run never gets to return
// them on that path.
type runJournal struct {
	ctx    context.Context
	store  *store.Store
	runID  string
	now    func() time.Time
	logger *slog.Logger
	next   target.Aborter

	totals  store.RunTotals
	crashed bool
}

// wrapInput counts non-EOF read errors.
func (j *runJournal) wrapInput(r io.Reader) io.Reader {
	return readerFunc(func(p []byte) (int, error) {
		n, err := r.Read(p)
		if err != nil && !errors.Is(err, io.EOF) {
			j.totals.ReadErrors++
		}
		return n, err
	})
}

// wrapChecker counts the trial before handing it to chk.
func (j *runJournal) wrapChecker(chk harness.Checker) harness.Checker {
	return harness.CheckerFunc(func(buf []byte, n int) {
		j.totals.Trials++
		j.totals.BytesRead += n
		if n == 0 {
			j.totals.EmptyReads++
		}
		chk.Check(buf, n)
	})
}

// Abort journals input, then delegates to the next aborter.
func (j *runJournal) Abort(input []byte) {
	j.crashed = true
	ctx := context.WithoutCancel(j.ctx)

	inserted, err := j.store.RecordFinding(ctx, store.Finding{
		RunID:   j.runID,
		Trial:   j.totals.Trials,
		Input:   input,
		FoundAt: j.now(),
	})
	if err != nil {
		j.logger.Error("failed to record finding", "run", j.runID, "error", err)
	} else {
		j.logger.Info("finding recorded", "run", j.runID, "trial", j.totals.Trials, "new", inserted)
	}
	if err := j.store.FinishRun(ctx, j.runID, store.RunCrashed, j.totals, j.now()); err != nil {
		j.logger.Error("failed to finish run", "run", j.runID, "error", err)
	}

	j.next.Abort(input)
}

// finish records the final status once the loop has returned.
func (j *runJournal) finish(status store.RunStatus) error {
	if j.crashed {
		status = store.RunCrashed
	}
	return j.store.FinishRun(context.WithoutCancel(j.ctx), j.runID, status, j.totals, j.now())
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

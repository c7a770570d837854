package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fortio.org/safecast"
	"github.com/spf13/cobra"

	"github.com/roach88/fuzzlab/internal/harness"
	"github.com/roach88/fuzzlab/internal/store"
	"github.com/roach88/fuzzlab/internal/target"
)

// TargetOptions holds flags for the target command.
type TargetOptions struct {
	*RootOptions
	Trials     int
	BufferSize int
	Database   string
	Trace      bool

	// Input overrides stdin (for testing).
	Input io.Reader
	// Aborter overrides the process aborter (for testing).
	Aborter target.Aborter
	// IDs overrides the run ID generator (for testing). Defaults to UUIDv7Generator.
	IDs harness.IDGenerator
	// Now overrides the journal clock (for testing).
	Now func() time.Time
}

// TargetResult is the summary of a completed trial loop.
type TargetResult struct {
	RunID     string               `json:"run_id,omitempty"`
	Status    store.RunStatus      `json:"status"`
	Stats     harness.Stats        `json:"stats"`
	Triggered int                  `json:"triggered"`
	Events    []harness.TrialEvent `json:"events,omitempty"`
}

// NewTargetCommand creates the target command.
func NewTargetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TargetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "target",
		Short: "Run the fuzz target on stdin",
		Long: `Run the trial loop on standard input.

Each trial clears the buffer, reads up to --buffer bytes from stdin and checks
them. An input starting with "abc" aborts the process with SIGABRT so a
fuzzing driver records it as a crash. With --db the run and the crashing input
are written to the journal before the abort.

Exit codes:
  0 - All trials completed
  2 - Command error (bad flag values, journal errors)

Examples:
  printf abx | fuzzlab target
  fuzzlab target --trials 1 --db ./fuzzlab.db < crash-input
  fuzzlab target --trials 10 --trace --format json < /dev/null`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTarget(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Trials, "trials", harness.DefaultMaxTrials, "number of trials to run")
	cmd.Flags().IntVar(&opts.BufferSize, "buffer", target.DefaultBufferSize, "buffer capacity in bytes")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (optional)")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "include per-trial events in the output")

	return cmd
}

func runTarget(opts *TargetOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())

	trials, err := safecast.Conv[uint32](opts.Trials)
	if err != nil || trials == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidOption, "--trials must be between 1 and 4294967295", err)
	}
	size, err := safecast.Conv[uint16](opts.BufferSize)
	if err != nil || size == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidOption, "--buffer must be between 1 and 65535", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	input := opts.Input
	if input == nil {
		input = cmd.InOrStdin()
	}
	aborter := opts.Aborter
	if aborter == nil {
		aborter = target.ProcessAborter{Stderr: cmd.ErrOrStderr()}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctl := harness.NewBoundedControl(ctx)
	trace := harness.NewTrace()
	loop := &harness.Loop{
		Control:    ctl,
		Input:      input,
		MaxTrials:  int(trials),
		BufferSize: int(size),
		Observer:   trace,
		Logger:     logger,
	}
	result := TargetResult{Status: store.RunCompleted}

	var journal *runJournal
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()

		ids := opts.IDs
		if ids == nil {
			ids = harness.UUIDv7Generator{}
		}
		result.RunID = ids.Generate()
		err = st.StartRun(ctx, store.Run{
			ID:         result.RunID,
			StartedAt:  now(),
			MaxTrials:  loop.MaxTrials,
			BufferSize: loop.BufferSize,
		})
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to start run", err)
		}
		logger.Debug("run started", "run", result.RunID, "db", opts.Database)

		journal = &runJournal{ctx: ctx, store: st, runID: result.RunID, now: now, logger: logger, next: aborter}
		aborter = journal
		loop.Input = journal.wrapInput(input)
	}

	checker := harness.Checker(target.NewChecker(aborter))
	if journal != nil {
		checker = journal.wrapChecker(checker)
	}
	loop.Checker = checker

	stats, err := loop.Run()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "trial loop failed to start", err)
	}
	if ctl.Stopped() {
		result.Status = store.RunInterrupted
		logger.Info("trial loop interrupted", "trials", stats.Trials)
	}

	result.Stats = stats
	result.Triggered = len(trace.Triggered())
	if result.Triggered > 0 {
		result.Status = store.RunCrashed
	}
	if opts.Trace {
		result.Events = trace.Events()
	}

	if journal != nil {
		if err := journal.finish(result.Status); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to finish run", err)
		}
	}

	if err := outputTargetResult(formatter, result); err != nil {
		return err
	}
	// Only reachable with an aborter that returns.
	if result.Triggered > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: trigger sequence matched in %d trial(s)", ErrCodeTriggered, result.Triggered))
	}
	return nil
}

func outputTargetResult(formatter *OutputFormatter, result TargetResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, ev := range result.Events {
		mark := ""
		if ev.Triggered {
			mark = "  TRIGGERED"
		}
		fmt.Fprintf(w, "trial %d: %d byte(s) prefix=%s%s\n", ev.Trial, ev.Length, ev.Prefix, mark)
	}
	s := result.Stats
	fmt.Fprintf(w, "%s: %d trial(s), %d byte(s) read, %d empty read(s), %d read error(s)\n",
		result.Status, s.Trials, s.BytesRead, s.EmptyReads, s.ReadErrors)
	if result.RunID != "" {
		fmt.Fprintf(w, "run: %s\n", result.RunID)
	}
	return nil
}

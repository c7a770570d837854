package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// has been killed.
const waitDelay = 5 * time.Second

// Outcome is the result of one invocation.
type Outcome struct {
	Invocation Invocation
	StartedAt  time.Time
	Duration   time.Duration
	// ExitCode is -1 when the process did not exit normally.
	ExitCode int
	Passed   bool
	// Err is set when the tool could not start or was killed.
	Err error
}

// Runner executes planned invocations.
type Runner struct {
	// Parallel bounds concurrent invocations; values below 1 mean 1.
	Parallel int
	// CommandFunc builds the process; defaults to exec.CommandContext.
	CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd
	// Environ supplies the parent environment; defaults to os.Environ.
	Environ func() []string
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *slog.Logger
	Now     func() time.Time
}

// Run executes invs and returns one outcome per invocation in the same order.
// The error wraps ErrScanFailed when any outcome did not pass; outcomes are
// returned either way.
func (r *Runner) Run(ctx context.Context, invs []Invocation) ([]Outcome, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	limit := r.Parallel
	if limit < 1 {
		limit = 1
	}
	stdout := &lockedWriter{w: orDiscard(r.Stdout)}
	stderr := &lockedWriter{w: orDiscard(r.Stderr)}

	outcomes := make([]Outcome, len(invs))
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, inv := range invs {
		g.Go(func() error {
			outcomes[i] = r.runOne(ctx, inv, stdout, stderr, logger)
			if !outcomes[i].Passed {
				return ErrScanFailed
			}
			return nil
		})
	}
	// A plain Group does not cancel siblings, so every invocation runs.
	if err := g.Wait(); err == nil {
		return outcomes, nil
	}

	var failed []string
	for _, o := range outcomes {
		if !o.Passed {
			failed = append(failed, o.Invocation.Profile)
		}
	}
	return outcomes, fmt.Errorf("%w: %s", ErrScanFailed, strings.Join(failed, ", "))
}

func (r *Runner) runOne(ctx context.Context, inv Invocation, stdout, stderr io.Writer, logger *slog.Logger) Outcome {
	out := Outcome{Invocation: inv, StartedAt: r.now(), ExitCode: -1}
	log := logger.With("profile", inv.Profile, "trigger", inv.Trigger)

	if len(inv.Argv) == 0 {
		out.Err = errors.New("empty command")
		return out
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := r.command(runCtx, inv.Argv[0], inv.Argv[1:]...)
	// A nil Env makes os/exec inherit the real environment.
	cmd.Env = append(slices.Clone(cmd.Env), r.env(inv.Env)...)
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	log.Debug("starting scan", "argv", inv.Argv, "timeout", inv.Timeout)
	err := cmd.Run()
	out.Duration = r.now().Sub(out.StartedAt)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		out.ExitCode = 0
		out.Passed = true
	case ctx.Err() != nil:
		out.Err = fmt.Errorf("interrupted: %w", ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out.Err = fmt.Errorf("timed out after %s", inv.Timeout)
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		// The tool reports findings with a non-zero exit; that only fails the
		// scan when the profile asks for it.
		out.Passed = !inv.FailOnFindings
	default:
		out.Err = fmt.Errorf("start %s: %w", inv.Argv[0], err)
	}

	if out.Passed {
		log.Info("scan finished", "exit_code", out.ExitCode, "duration", out.Duration)
	} else {
		log.Warn("scan failed", "exit_code", out.ExitCode, "duration", out.Duration, "error", out.Err)
	}
	return out
}

func (r *Runner) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	if r.CommandFunc != nil {
		return r.CommandFunc(ctx, name, args...)
	}
	return exec.CommandContext(ctx, name, args...)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// env returns the child environment. With no names the whole parent
// environment is passed; otherwise only PATH and the named variables.
func (r *Runner) env(names []string) []string {
	environ := os.Environ
	if r.Environ != nil {
		environ = r.Environ
	}
	parent := environ()
	if len(names) == 0 {
		return slices.Clone(parent)
	}

	keep := map[string]bool{"PATH": true}
	for _, n := range names {
		keep[n] = true
	}
	env := []string{}
	for _, kv := range parent {
		name, _, _ := strings.Cut(kv, "=")
		if keep[name] {
			env = append(env, kv)
		}
	}
	return env
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fortio.org/safecast"
	"github.com/spf13/cobra"

	"github.com/roach88/fuzzlab/internal/harness"
	"github.com/roach88/fuzzlab/internal/policy"
	"github.com/roach88/fuzzlab/internal/store"
)

// ScanOptions holds flags for the scan commands.
type ScanOptions struct {
	*RootOptions
	Policy   string
	Trigger  string
	Baseline string
	Profile  string
	Parallel int
	Database string
	DryRun   bool

	// Runner overrides the policy runner (for testing).
	Runner *policy.Runner
	// IDs overrides the scan record ID generator (for testing).
	IDs harness.IDGenerator
}

// ScanOutcome is the reported result of one invocation.
type ScanOutcome struct {
	Profile    string   `json:"profile"`
	Argv       []string `json:"argv"`
	ExitCode   int      `json:"exit_code"`
	Passed     bool     `json:"passed"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// ScanRunResult is the reported result of scan run.
type ScanRunResult struct {
	Trigger  policy.Trigger `json:"trigger"`
	Passed   bool           `json:"passed"`
	Outcomes []ScanOutcome  `json:"outcomes"`
}

// NewScanCommand creates the scan command group.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Plan or run static-analysis scans from a policy",
		Long: `Select the profiles of a scan policy that match a CI trigger and either
print the resulting tool command lines (plan) or execute them (run).

A scheduled trigger usually selects a full scan with every rule set; a pull
request selects a diff scan against the base ref with a smaller rule set.`,
	}
	cmd.AddCommand(newScanPlanCommand(rootOpts))
	cmd.AddCommand(newScanRunCommand(rootOpts))
	return cmd
}

func addScanFlags(cmd *cobra.Command, opts *ScanOptions) {
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to the scan policy file (required)")
	_ = cmd.MarkFlagRequired("policy")
	cmd.Flags().StringVar(&opts.Trigger, "trigger", "", "CI trigger: schedule, pull_request, push or manual (required)")
	_ = cmd.MarkFlagRequired("trigger")
	cmd.Flags().StringVar(&opts.Baseline, "baseline", "", "baseline ref for diff profiles (overrides the policy)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "only use this profile")
}

func newScanPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the scans a trigger would run",
		Long: `Print the tool invocations selected by --trigger without running them.

Exit codes:
  0 - Plan printed (possibly empty)
  1 - Policy invalid
  2 - Command error

Examples:
  fuzzlab scan plan --policy scan-policy.yaml --trigger schedule
  fuzzlab scan plan --policy scan-policy.yaml --trigger pull_request --baseline origin/main`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)
			invs, err := planScans(opts, formatter)
			if err != nil {
				return err
			}
			return outputPlan(formatter, invs)
		},
	}
	addScanFlags(cmd, opts)
	return cmd
}

func newScanRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scans a trigger selects",
		Long: `Run the tool invocations selected by --trigger.

A non-zero tool exit fails the run only for profiles with fail_on_findings.
A tool that cannot start or exceeds its timeout always fails the run.

Exit codes:
  0 - All scans passed (or no profile matched)
  1 - At least one scan failed, or the policy is invalid
  2 - Command error

Examples:
  fuzzlab scan run --policy scan-policy.yaml --trigger schedule --db ./fuzzlab.db
  fuzzlab scan run --policy scan-policy.yaml --trigger pull_request --baseline "$BASE_SHA" --parallel 2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScans(opts, cmd)
		},
	}
	addScanFlags(cmd, opts)
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "maximum concurrent scans")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record scan outcomes in this SQLite journal")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the plan instead of running it")
	return cmd
}

// planScans loads the policy and plans the trigger. A trigger that matches no
// profile yields an empty plan; an unknown --profile is a command error.
func planScans(opts *ScanOptions, formatter *OutputFormatter) ([]policy.Invocation, error) {
	p, err := loadPolicy(formatter, opts.Policy)
	if err != nil {
		return nil, err
	}

	trigger, err := policy.ParseTrigger(opts.Trigger)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeInvalidOption, "invalid --trigger", err)
	}

	invs, err := policy.Plan(p, trigger, policy.PlanOptions{
		BaselineRef: opts.Baseline,
		Profile:     opts.Profile,
	})
	switch {
	case err == nil:
		return invs, nil
	case errors.Is(err, policy.ErrNoProfile) && opts.Profile == "":
		formatter.VerboseLog("No profile matches trigger %s", trigger)
		return []policy.Invocation{}, nil
	case errors.Is(err, policy.ErrNoProfile):
		return nil, formatter.Fail(ExitCommandError, ErrCodeNoProfile, err.Error(), nil)
	case policy.IsValidationError(err):
		return nil, formatter.Fail(ExitFailure, ErrCodePolicy, err.Error(), nil)
	default:
		return nil, formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to plan scans", err)
	}
}

func outputPlan(formatter *OutputFormatter, invs []policy.Invocation) error {
	if formatter.JSON() {
		return formatter.Success(invs)
	}
	if len(invs) == 0 {
		fmt.Fprintln(formatter.Writer, "No profile matches this trigger.")
		return nil
	}
	for _, inv := range invs {
		fmt.Fprintf(formatter.Writer, "# %s (%s, timeout %s)\n", inv.Profile, inv.Mode, inv.Timeout)
		fmt.Fprintln(formatter.Writer, strings.Join(inv.Argv, " "))
	}
	return nil
}

func runScans(opts *ScanOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())

	parallel, err := safecast.Conv[uint8](opts.Parallel)
	if err != nil || parallel == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidOption, "--parallel must be between 1 and 255", err)
	}

	invs, err := planScans(opts, formatter)
	if err != nil {
		return err
	}
	if opts.DryRun || len(invs) == 0 {
		return outputPlan(formatter, invs)
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = openJournal(formatter, opts.Database)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := opts.Runner
	if runner == nil {
		runner = &policy.Runner{}
	}
	runner.Parallel = int(parallel)
	runner.Logger = logger
	// Tool output must not interleave with the JSON envelope.
	var toolOut io.Writer = cmd.OutOrStdout()
	if formatter.JSON() {
		toolOut = cmd.ErrOrStderr()
	}
	runner.Stdout = toolOut
	runner.Stderr = cmd.ErrOrStderr()

	outcomes, runErr := runner.Run(ctx, invs)
	if runErr != nil && !errors.Is(runErr, policy.ErrScanFailed) {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to run scans", runErr)
	}

	if st != nil {
		if err := recordScans(ctx, st, opts.IDs, outcomes); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to record scans", err)
		}
	}

	result := ScanRunResult{Trigger: invs[0].Trigger, Passed: runErr == nil}
	for _, o := range outcomes {
		so := ScanOutcome{
			Profile:    o.Invocation.Profile,
			Argv:       o.Invocation.Argv,
			ExitCode:   o.ExitCode,
			Passed:     o.Passed,
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			so.Error = o.Err.Error()
		}
		result.Outcomes = append(result.Outcomes, so)
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		for _, o := range result.Outcomes {
			mark := "✓"
			if !o.Passed {
				mark = "✗"
			}
			line := fmt.Sprintf("%s %s: exit %d in %s", mark, o.Profile, o.ExitCode, time.Duration(o.DurationMS)*time.Millisecond)
			if o.Error != "" {
				line += " (" + o.Error + ")"
			}
			fmt.Fprintln(formatter.Writer, line)
		}
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, ErrCodeScanFailed, runErr)
	}
	return nil
}

func recordScans(ctx context.Context, st *store.Store, ids harness.IDGenerator, outcomes []policy.Outcome) error {
	if ids == nil {
		ids = harness.UUIDv7Generator{}
	}
	ctx = context.WithoutCancel(ctx)
	for _, o := range outcomes {
		rec := store.ScanRecord{
			ID:        ids.Generate(),
			Profile:   o.Invocation.Profile,
			Trigger:   string(o.Invocation.Trigger),
			Argv:      o.Invocation.Argv,
			ExitCode:  o.ExitCode,
			Passed:    o.Passed,
			StartedAt: o.StartedAt,
			Duration:  o.Duration,
		}
		if o.Err != nil {
			rec.Error = o.Err.Error()
		}
		if err := st.RecordScan(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fuzzlab/internal/store"
)

// JournalOptions holds flags for the journal listing commands.
type JournalOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled target runs",
		Long: `List every run recorded by "fuzzlab target --db", oldest first.

Examples:
  fuzzlab runs --db ./fuzzlab.db
  fuzzlab runs --db ./fuzzlab.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// NewCrashesCommand creates the crashes command.
func NewCrashesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "crashes",
		Short: "List crashing inputs from the journal",
		Long: `List deduplicated crashing inputs. Each input appears once; hits counts
how many times it was seen. With --run, only inputs first or last seen in
that run are listed.

Examples:
  fuzzlab crashes --db ./fuzzlab.db
  fuzzlab crashes --db ./fuzzlab.db --run 0190a5c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrashes(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "only list findings from this run")

	return cmd
}

func openJournal(formatter *OutputFormatter, path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open journal", err)
	}
	return st, nil
}

func runRuns(opts *JournalOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openJournal(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to list runs", err)
	}

	if formatter.JSON() {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs found in journal.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tTRIALS\tBYTES\tEMPTY\tERRORS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.Status, r.StartedAt.Format(time.RFC3339),
			r.Totals.Trials, r.Totals.BytesRead, r.Totals.EmptyReads, r.Totals.ReadErrors)
	}
	return tw.Flush()
}

func runCrashes(opts *JournalOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openJournal(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if opts.RunID != "" {
		if _, err := st.ReadRun(ctx, opts.RunID); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("run %s", opts.RunID), err)
		}
	}

	findings, err := st.ListFindings(ctx, opts.RunID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to list findings", err)
	}

	if formatter.JSON() {
		return formatter.Success(findings)
	}
	if len(findings) == 0 {
		fmt.Fprintln(formatter.Writer, "No findings.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINDING\tRUN\tTRIAL\tHITS\tLENGTH\tINPUT")
	for _, f := range findings {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			shortID(f.ID), f.RunID, f.Trial, f.Hits, len(f.Input), previewHex(f.Input, 8))
	}
	return tw.Flush()
}

// previewHex renders at most limit bytes of b as hex.
func previewHex(b []byte, limit int) string {
	if len(b) <= limit {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:limit]) + "..."
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

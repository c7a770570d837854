package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"fortio.org/safecast"
	"github.com/spf13/cobra"

	"github.com/roach88/fuzzlab/internal/harness"
	"github.com/roach88/fuzzlab/internal/target"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	BufferSize int
	Crash      bool
}

// ReplayResult is the outcome of checking one input file.
type ReplayResult struct {
	File      string `json:"file"`
	Length    int    `json:"length"`
	Prefix    string `json:"prefix,omitempty"`
	Triggered bool   `json:"triggered"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <input-file>",
		Short: "Check a saved input against the target",
		Long: `Feed the first buffer of bytes from a saved input file to the check routine,
the same way a single trial would see it.

Without --crash the check reports instead of aborting. With --crash the real
process aborter runs, reproducing the SIGABRT a fuzzing driver observed.

Exit codes:
  0 - Input does not trigger the crash
  1 - Input triggers the crash
  2 - Command error (file unreadable, bad flag values)

Examples:
  fuzzlab replay ./findings/crash-000
  fuzzlab replay --crash ./findings/crash-000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.BufferSize, "buffer", target.DefaultBufferSize, "buffer capacity in bytes")
	cmd.Flags().BoolVar(&opts.Crash, "crash", false, "abort the process when the input triggers")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	size, err := safecast.Conv[uint16](opts.BufferSize)
	if err != nil || size == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidOption, "--buffer must be between 1 and 65535", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to open input", err)
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to read input", err)
	}
	formatter.VerboseLog("Read %d byte(s) from %s", n, path)

	result := ReplayResult{
		File:      path,
		Length:    n,
		Triggered: target.Triggered(buf, n),
	}
	if k := min(n, harness.InspectWindow); k > 0 {
		result.Prefix = hex.EncodeToString(buf[:k])
	}

	if opts.Crash && result.Triggered {
		target.NewChecker(target.ProcessAborter{Stderr: cmd.ErrOrStderr()}).Check(buf, n)
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if result.Triggered {
		fmt.Fprintf(formatter.Writer, "✗ %s triggers the crash (%d byte(s), prefix %s)\n", path, n, result.Prefix)
	} else {
		fmt.Fprintf(formatter.Writer, "✓ %s does not trigger (%d byte(s))\n", path, n)
	}

	if result.Triggered {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s triggers the crash", ErrCodeTriggered, path))
	}
	return nil
}

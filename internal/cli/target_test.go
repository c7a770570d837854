package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fuzzlab/internal/harness"
	"github.com/roach88/fuzzlab/internal/store"
	"github.com/roach88/fuzzlab/internal/target"
	"github.com/roach88/fuzzlab/internal/testutil"
)

func executeTarget(t *testing.T, opts *TargetOptions) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	if opts.RootOptions == nil {
		opts.RootOptions = &RootOptions{Format: "text"}
	}
	if opts.Trials == 0 {
		opts.Trials = harness.DefaultMaxTrials
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = target.DefaultBufferSize
	}
	err := runTarget(opts, cmd)
	return buf.String(), err
}

func TestTarget_NearMissCompletes(t *testing.T) {
	rec := &target.RecordingAborter{}
	out, err := executeTarget(t, &TargetOptions{
		Trials:  1,
		Input:   strings.NewReader("abx"),
		Aborter: rec,
	})
	require.NoError(t, err)
	assert.Zero(t, rec.Count())
	assert.Contains(t, out, "completed: 1 trial(s), 3 byte(s) read")
}

func TestTarget_EmptyStreamRunsAllTrials(t *testing.T) {
	rec := &target.RecordingAborter{}
	out, err := executeTarget(t, &TargetOptions{
		Input:   strings.NewReader(""),
		Aborter: rec,
	})
	require.NoError(t, err)
	assert.Zero(t, rec.Count())
	assert.Contains(t, out, "completed: 1000 trial(s), 0 byte(s) read, 1000 empty read(s)")
}

func TestTarget_TriggerWithReturningAborter(t *testing.T) {
	rec := &target.RecordingAborter{}
	_, err := executeTarget(t, &TargetOptions{
		Trials:  1,
		Input:   strings.NewReader("abc"),
		Aborter: rec,
	})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, 1, rec.Count())
}

func TestTarget_JSONTrace(t *testing.T) {
	out, err := executeTarget(t, &TargetOptions{
		RootOptions: &RootOptions{Format: "json"},
		Trials:      3,
		Trace:       true,
		Input:       testutil.NewScriptedReader("ab", "x"),
		Aborter:     &target.RecordingAborter{},
	})
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   TargetResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, store.RunCompleted, resp.Data.Status)
	assert.Equal(t, harness.Stats{Trials: 3, BytesRead: 3, EmptyReads: 1}, resp.Data.Stats)
	require.Len(t, resp.Data.Events, 3)
	assert.Equal(t, "6162", resp.Data.Events[0].Prefix)
}

func TestTarget_InvalidFlags(t *testing.T) {
	tests := []struct {
		name   string
		trials int
		buffer int
	}{
		{"negative trials", -1, 100},
		{"zero buffer", 1, -5},
		{"buffer too large", 1, 1 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeTarget(t, &TargetOptions{
				Trials:     tt.trials,
				BufferSize: tt.buffer,
				Input:      strings.NewReader(""),
			})
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestTarget_JournalsCompletedRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	clock := testutil.NewDeterministicClock()

	out, err := executeTarget(t, &TargetOptions{
		Trials:   2,
		Database: dbPath,
		Input:    strings.NewReader("zz"),
		Aborter:  &target.RecordingAborter{},
		IDs:      harness.NewFixedGenerator("run-1"),
		Now:      clock.Now,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "run: run-1")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, store.RunTotals{Trials: 2, BytesRead: 2, EmptyReads: 1}, run.Totals)
	assert.Equal(t, 2, run.MaxTrials)
	assert.True(t, run.StartedAt.Before(run.FinishedAt))
}

func TestTarget_JournalsFindingBeforeAbort(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	reader := testutil.NewScriptedReaderSteps(
		testutil.ReadStep{Err: errors.New("EIO")},
		testutil.ReadStep{Data: []byte("abcdef")},
	)

	var journaled []store.Finding
	var st *store.Store
	aborter := target.AborterFunc(func(input []byte) {
		// The journal has already been written when the real aborter runs.
		findings, err := st.ListFindings(context.Background(), "run-1")
		require.NoError(t, err)
		journaled = findings
	})

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	_, err = executeTarget(t, &TargetOptions{
		Trials:   2,
		Database: dbPath,
		Input:    reader,
		Aborter:  aborter,
		IDs:      harness.NewFixedGenerator("run-1"),
	})
	require.Error(t, err)

	require.Len(t, journaled, 1)
	assert.Equal(t, []byte("abcdef"), journaled[0].Input)
	assert.Equal(t, 2, journaled[0].Trial)

	run, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.RunCrashed, run.Status)
	assert.Equal(t, store.RunTotals{Trials: 2, BytesRead: 6, EmptyReads: 1, ReadErrors: 1}, run.Totals)
}

func TestTarget_CancelledContextFailsSetup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	opts := &TargetOptions{
		RootOptions: &RootOptions{Format: "text"},
		Trials:      10,
		BufferSize:  10,
		Input:       strings.NewReader(""),
	}
	err := runTarget(opts, cmd)
	require.Error(t, err, "Initialize fails on a cancelled context")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

const targetChildEnv = "FUZZLAB_CLI_TARGET_CHILD"

// TestTargetHelperProcess runs the real root command in a child process.
func TestTargetHelperProcess(t *testing.T) {
	if os.Getenv(targetChildEnv) != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	cmd := NewRootCommand()
	cmd.SetArgs(args[1:])
	os.Exit(GetExitCode(cmd.Execute()))
}

func runTargetChild(t *testing.T, stdin string, args ...string) (*exec.Cmd, error) {
	t.Helper()
	cs := append([]string{"-test.run=^TestTargetHelperProcess$", "--"}, args...)
	cmd := exec.Command(os.Args[0], cs...)
	cmd.Env = append(os.Environ(), targetChildEnv+"=1")
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd, cmd.Run()
}

func TestTarget_ProcessAbortsAndJournals(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	_, err := runTargetChild(t, "abc", "target", "--trials", "1", "--db", dbPath)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	if runtime.GOOS == "linux" {
		status, ok := exitErr.Sys().(syscall.WaitStatus)
		require.True(t, ok)
		assert.True(t, status.Signaled())
		assert.Equal(t, syscall.SIGABRT, status.Signal())
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunCrashed, runs[0].Status)

	findings, err := st.ListFindings(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, []byte("abc"), findings[0].Input)
}

func TestTarget_ProcessExitsZeroOnEmptyStream(t *testing.T) {
	_, err := runTargetChild(t, "", "target")
	assert.NoError(t, err)
}

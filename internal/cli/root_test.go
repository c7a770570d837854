package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "fuzzlab", cmd.Use)
	assert.Contains(t, cmd.Long, "policy file")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"target"},
		{"replay"},
		{"runs"},
		{"crashes"},
		{"policy", "validate"},
		{"scan", "plan"},
		{"scan", "run"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestTargetCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	targetCmd, _, err := cmd.Find([]string{"target"})
	require.NoError(t, err)

	assert.Equal(t, "1000", targetCmd.Flags().Lookup("trials").DefValue)
	assert.Equal(t, "100", targetCmd.Flags().Lookup("buffer").DefValue)
	assert.Equal(t, "", targetCmd.Flags().Lookup("db").DefValue)
	assert.NotNil(t, targetCmd.Flags().Lookup("trace"))
}

func TestScanRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"scan", "run"})
	require.NoError(t, err)

	for _, name := range []string{"policy", "trigger", "baseline", "profile", "db", "dry-run"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "flag --%s", name)
	}
	assert.Equal(t, "1", runCmd.Flags().Lookup("parallel").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	errBuf := &bytes.Buffer{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"--format", "xml", "runs", "--db", ":memory:"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, errBuf.String(), "invalid format")
}

func TestNewLogger_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	newLogger(false, buf).Debug("hidden")
	assert.Empty(t, buf.String())

	newLogger(true, buf).Debug("shown", "k", "v")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "k=v")
}

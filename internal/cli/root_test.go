package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/pcregion"
)

const sampleLog = "../../testdata/dump/opcode.log"

// newDump copies the sample trace into a fresh dump directory.
func newDump(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(sampleLog)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pcregion.LogFile), data, 0o644))
	return dir
}

// execute runs the root command and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pcregion", cmd.Name())

	sub, _, err := cmd.Find([]string{"hist"})
	require.NoError(t, err)
	assert.Equal(t, "hist", sub.Name())
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	for name, def := range map[string]string{
		"format": "text",
		"config": "",
		"marker": "Next PC:",
		"cache":  "reuse",
	} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, def, flag.DefValue, name)
	}
}

func TestScanFlags(t *testing.T) {
	cmd := NewRootCommand()

	for name, def := range map[string]string{
		"gap":        "10",
		"flush-last": "false",
		"annotate":   "false",
	} {
		flag := cmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, def, flag.DefValue, name)
	}
}

func TestInvalidFormat(t *testing.T) {
	stdout, _, err := execute(t, "--format", "xml", newDump(t))
	require.Error(t, err)
	assert.Equal(t, ExitUsage, GetExitCode(err))
	assert.Empty(t, stdout)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitUsage, GetExitCode(NewExitError(ExitUsage, "bad")))

	wrapped := WrapExitError(ExitFailure, "scanning histogram", pcregion.ErrHistogramExhausted)
	assert.ErrorIs(t, wrapped, pcregion.ErrHistogramExhausted)
	assert.Equal(t, "scanning histogram: "+pcregion.ErrHistogramExhausted.Error(), wrapped.Error())
}

package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/pcregion"
)

func TestScanGolden(t *testing.T) {
	tests := []struct {
		name     string
		flags    []string
		maxCount []string
	}{
		{name: "scan_default"},
		{name: "scan_max2", maxCount: []string{"2"}},
		{name: "scan_flush_last", flags: []string{"--flush-last"}, maxCount: []string{"1"}},
		{name: "scan_max3_flush_last", flags: []string{"--flush-last"}, maxCount: []string{"3"}},
		{name: "scan_annotate", flags: []string{"--annotate"}},
	}

	g := goldie.New(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(append(tt.flags, newDump(t)), tt.maxCount...)
			stdout, _, err := execute(t, args...)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(stdout))
		})
	}
}

func TestScanDirectoryNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	stdout, _, err := execute(t, missing)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, pcregion.ErrDirectoryNotFound)
	assert.Empty(t, stdout)
}

func TestScanDirectoryCheckedBeforeMaxCount(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	stdout, _, err := execute(t, missing, "x")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, pcregion.ErrDirectoryNotFound)
	assert.Empty(t, stdout)
}

func TestScanNegativeMaxCount(t *testing.T) {
	// Every record after the first exceeds -1, so nothing is printed.
	stdout, _, err := execute(t, newDump(t), "-1")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestScanExhausted(t *testing.T) {
	stdout, _, err := execute(t, newDump(t), "3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, pcregion.ErrHistogramExhausted)

	// Starts found before the histogram ran out are still printed.
	assert.Equal(t, "00FC0000\n00FC0100\n00FC0200\n", stdout)
}

func TestScanEmptyLog(t *testing.T) {
	stdout, _, err := execute(t, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, pcregion.ErrEmptyHistogram)
	assert.Empty(t, stdout)
}

func TestScanReusesCache(t *testing.T) {
	dir := newDump(t)
	histPath := filepath.Join(dir, pcregion.HistFile)

	first, _, err := execute(t, dir)
	require.NoError(t, err)
	before, err := os.Stat(histPath)
	require.NoError(t, err)

	second, _, err := execute(t, dir)
	require.NoError(t, err)
	after, err := os.Stat(histPath)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestScanUsageErrors(t *testing.T) {
	dir := newDump(t)
	tests := []struct {
		name string
		args []string
	}{
		{name: "NoArgs", args: nil},
		{name: "TooManyArgs", args: []string{dir, "1", "2"}},
		{name: "MaxCountNotInteger", args: []string{dir, "one"}},
		{name: "UnknownFlag", args: []string{"--bogus", dir}},
		{name: "UnknownCachePolicy", args: []string{"--cache", "never", dir}},
		{name: "FlagAfterDumpDir", args: []string{dir, "--annotate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitUsage, GetExitCode(err))
			assert.Empty(t, stdout)
		})
	}
}

func TestScanJSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", newDump(t))
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   ScanResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.MaxCount)
	assert.Equal(t, uint64(10), resp.Data.Gap)
	assert.True(t, resp.Data.Cache.Rebuilt)

	require.Len(t, resp.Data.Regions, 2)
	assert.Equal(t, RegionOutput{
		Start: "00FC0000",
		End:   "00FC0008",
		Size:  3,
		Step:  &pcregion.Step{PC: 0xfc0000, Opcodes: "46fc 2700", Disassembly: "MOVE.W #$2700,SR"},
	}, resp.Data.Regions[0])
	assert.Equal(t, "00FC0100", resp.Data.Regions[1].Start)
	assert.Equal(t, "00FC0102", resp.Data.Regions[1].End)
}

func TestScanConfig(t *testing.T) {
	dir := newDump(t)
	cfgPath := filepath.Join(t.TempDir(), "pcregion.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("max_count: 2\ncache: rebuild\n"), 0o644))

	stdout, _, err := execute(t, "--config", cfgPath, dir)
	require.NoError(t, err)
	assert.Equal(t, "00FC0000\n00FC0100\n00FC0200\n", stdout)

	// The positional max_count wins over the file.
	stdout, _, err = execute(t, "--config", cfgPath, dir, "1")
	require.NoError(t, err)
	assert.Equal(t, "00FC0000\n00FC0100\n", stdout)

	// So does an explicit flag.
	stdout, _, err = execute(t, "--config", cfgPath, "--gap", "0x300", dir)
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestScanConfigInvalid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "pcregion.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("max_cnt: 2\n"), 0o644))

	_, _, err := execute(t, "--config", cfgPath, newDump(t))
	require.Error(t, err)
	assert.Equal(t, ExitUsage, GetExitCode(err))
}

func TestScanVerboseLogsToStderr(t *testing.T) {
	stdout, stderr, err := execute(t, "-v", newDump(t))
	require.NoError(t, err)
	assert.Equal(t, "00FC0000\n00FC0100\n", stdout)
	assert.Contains(t, stderr, "histogram built")
	assert.Contains(t, stderr, "max count exceeded")
}

package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxgio92/pcregion"
)

// RegionOutput is one region in JSON output.
type RegionOutput struct {
	Start string         `json:"start"`
	End   string         `json:"end"`
	Size  int            `json:"size"`
	Step  *pcregion.Step `json:"step,omitempty"`
}

// ScanResult is the JSON payload of a scan.
type ScanResult struct {
	MaxCount  int                  `json:"max_count"`
	Gap       uint64               `json:"gap"`
	FlushLast bool                 `json:"flush_last"`
	Cache     pcregion.CacheResult `json:"cache"`
	Regions   []RegionOutput       `json:"regions"`
}

func runScan(cmd *cobra.Command, opts *RootOptions, flags *ScanFlags, args []string) error {
	// A missing dump directory wins over any usage error.
	if err := checkDumpDir(args[0]); err != nil {
		return err
	}
	s, err := resolveSettings(cmd, opts, flags, args)
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	s.scan.Logger = log
	s.cache.Logger = log

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	res, err := ensureCache(cmd, args[0], s.cache)
	if err != nil {
		return err
	}

	f, err := os.Open(res.HistPath)
	if err != nil {
		return WrapExitError(ExitFailure, "opening histogram", err)
	}
	defer f.Close()

	log.Debug("scanning histogram", "path", res.HistPath, "max_count", s.scan.MaxCount, "gap", s.scan.Gap)
	scanner := pcregion.NewScanner(pcregion.NewHistogramReader(f), s.scan)

	// Plain text is printed while scanning, so starts found before a
	// failure still reach stdout.
	if !formatter.JSON() && !s.annotate {
		for region, err := range scanner.Regions() {
			if err != nil {
				return scanError(err)
			}
			if err := formatter.Line("%s", region); err != nil {
				return err
			}
		}
		return nil
	}

	var regions []pcregion.Region
	var scanErr error
	for region, err := range scanner.Regions() {
		if err != nil {
			scanErr = err
			break
		}
		regions = append(regions, region)
	}
	if scanErr != nil && formatter.JSON() {
		return scanError(scanErr)
	}

	steps, err := annotate(cmd, res.LogPath, s.cache.Marker, regions)
	if err != nil {
		return err
	}

	if formatter.JSON() {
		return formatter.Success(ScanResult{
			MaxCount:  s.scan.MaxCount,
			Gap:       s.scan.Gap,
			FlushLast: s.scan.FlushLast,
			Cache:     res,
			Regions:   regionOutputs(regions, steps),
		})
	}

	for _, region := range regions {
		step, ok := steps[region.Start]
		if !ok || step.Disassembly == "" {
			err = formatter.Line("%s", region)
		} else {
			err = formatter.Line("%s  %s", region, step.Disassembly)
		}
		if err != nil {
			return err
		}
	}
	if scanErr != nil {
		return scanError(scanErr)
	}
	return nil
}

func checkDumpDir(dir string) error {
	if err := pcregion.CheckDumpDir(dir); err != nil {
		return WrapExitError(ExitFailure, "invalid dump directory", err)
	}
	return nil
}

func ensureCache(cmd *cobra.Command, dir string, opts pcregion.CacheOptions) (pcregion.CacheResult, error) {
	res, err := pcregion.EnsureHistogram(cmd.Context(), dir, opts)
	if errors.Is(err, pcregion.ErrDirectoryNotFound) {
		return res, WrapExitError(ExitFailure, "invalid dump directory", err)
	}
	if err != nil {
		return res, WrapExitError(ExitFailure, "building histogram", err)
	}
	return res, nil
}

func annotate(cmd *cobra.Command, logPath, marker string, regions []pcregion.Region) (map[uint64]pcregion.Step, error) {
	f, err := os.Open(logPath)
	if errors.Is(err, os.ErrNotExist) {
		return map[uint64]pcregion.Step{}, nil
	}
	if err != nil {
		return nil, WrapExitError(ExitFailure, "opening opcode log", err)
	}
	defer f.Close()

	steps, err := pcregion.Annotate(cmd.Context(), f, marker, regions)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "annotating regions", err)
	}
	return steps, nil
}

func scanError(err error) error {
	return WrapExitError(ExitFailure, "scanning histogram", err)
}

func regionOutputs(regions []pcregion.Region, steps map[uint64]pcregion.Step) []RegionOutput {
	out := make([]RegionOutput, 0, len(regions))
	for _, r := range regions {
		ro := RegionOutput{
			Start: pcregion.FormatPC(r.Start),
			End:   pcregion.FormatPC(r.End),
			Size:  r.Size,
		}
		if step, ok := steps[r.Start]; ok {
			ro.Step = &step
		}
		out = append(out, ro)
	}
	return out
}

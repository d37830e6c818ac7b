package cli

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/maxgio92/pcregion"
)

// RootOptions holds flags shared by all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Marker     string
	Cache      string
}

// ScanFlags holds flags of the scan (root) command.
type ScanFlags struct {
	Gap       uint64
	FlushLast bool
	Annotate  bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the pcregion command. Run on its own it scans a
// dump directory; the hist subcommand only builds the cache.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	scan := &ScanFlags{}

	cmd := &cobra.Command{
		Use:   "pcregion <dump_dir> [max_count]",
		Short: "Recover starting PCs from an emulator opcode log",
		Long: `Recover candidate starting program counters from an emulator opcode log.

The PC of every instruction logged before a "Next PC:" line in
<dump_dir>/opcode.log is counted into <dump_dir>/hist, which is reused on
later runs. The histogram is then read from the least executed PC upwards.
Whenever a PC lies more than --gap above the previous one, the start of
the region before it is printed. Reading stops at the first PC executed
more than max_count times (default 1).

Flags go before <dump_dir>, so a negative max_count is read as a number.

Examples:
  pcregion ./dump
  pcregion ./dump 3
  pcregion ./dump -1
  pcregion --annotate --cache validate ./dump
  pcregion --format json ./dump`,
		Args:          argsRange(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, scan, args)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitUsage, "invalid flags", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log diagnostics to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML file with default settings")
	cmd.PersistentFlags().StringVar(&opts.Marker, "marker", pcregion.DefaultMarker, "text of the line following each instruction")
	cmd.PersistentFlags().StringVar(&opts.Cache, "cache", string(pcregion.CacheReuse), "hist cache policy (reuse|validate|rebuild)")

	cmd.Flags().Uint64Var(&scan.Gap, "gap", pcregion.DefaultGap, "largest PC step within one region")
	cmd.Flags().BoolVar(&scan.FlushLast, "flush-last", false, "also print the region open when the scan stops")
	cmd.Flags().BoolVar(&scan.Annotate, "annotate", false, "print the logged instruction at each start")
	cmd.Flags().SetInterspersed(false)

	cmd.AddCommand(NewHistCommand(opts))

	return cmd
}

func argsRange(lo, hi int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(lo, hi)(cmd, args); err != nil {
			return WrapExitError(ExitUsage, "invalid arguments", err)
		}
		return nil
	}
}

// settings is the effective configuration of one run.
type settings struct {
	scan     pcregion.ScanOptions
	cache    pcregion.CacheOptions
	annotate bool
}

// resolveSettings merges defaults, the config file, flags and the
// positional max_count, in increasing precedence.
func resolveSettings(cmd *cobra.Command, opts *RootOptions, scan *ScanFlags, args []string) (settings, error) {
	s := settings{
		scan:  pcregion.DefaultScanOptions(),
		cache: pcregion.CacheOptions{Marker: pcregion.DefaultMarker, Policy: pcregion.CacheReuse},
	}
	cacheName := ""

	if opts.ConfigPath != "" {
		cfg, err := LoadConfig(opts.ConfigPath)
		if err != nil {
			return s, WrapExitError(ExitUsage, "invalid config", err)
		}
		if cfg.MaxCount != nil {
			s.scan.MaxCount = *cfg.MaxCount
		}
		if cfg.Gap != nil {
			s.scan.Gap = *cfg.Gap
		}
		if cfg.FlushLast != nil {
			s.scan.FlushLast = *cfg.FlushLast
		}
		if cfg.Marker != "" {
			s.cache.Marker = cfg.Marker
		}
		cacheName = cfg.Cache
	}

	flags := cmd.Flags()
	if flags.Changed("marker") {
		s.cache.Marker = opts.Marker
	}
	if flags.Changed("cache") {
		cacheName = opts.Cache
	}
	if scan != nil {
		if flags.Changed("gap") {
			s.scan.Gap = scan.Gap
		}
		if flags.Changed("flush-last") {
			s.scan.FlushLast = scan.FlushLast
		}
		s.annotate = scan.Annotate
	}

	policy, err := pcregion.ParseCachePolicy(cacheName)
	if err != nil {
		return s, WrapExitError(ExitUsage, "invalid cache policy", err)
	}
	s.cache.Policy = policy

	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return s, NewExitError(ExitUsage, fmt.Sprintf("invalid max_count %q: must be an integer", args[1]))
		}
		s.scan.MaxCount = n
	}
	return s, nil
}

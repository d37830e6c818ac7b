package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/maxgio92/pcregion"
)

// HistSummary is the result of the hist command.
type HistSummary struct {
	Path     string `json:"path"`
	Rebuilt  bool   `json:"rebuilt"`
	Reason   string `json:"reason"`
	Distinct int    `json:"distinct"`
	Samples  int    `json:"samples"`
	// Hottest is the count of the most executed PC.
	Hottest int `json:"hottest"`
}

// String renders the summary for text output.
func (h HistSummary) String() string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%s: %d distinct PCs from %d samples, hottest executed %d times (%s)",
		h.Path, h.Distinct, h.Samples, h.Hottest, h.Reason)
}

// NewHistCommand creates the hist command.
func NewHistCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hist <dump_dir>",
		Short: "Build the PC histogram of a dump without scanning it",
		Long: `Build <dump_dir>/pcs and <dump_dir>/hist from <dump_dir>/opcode.log
and print a summary. An existing hist is kept unless --cache says otherwise.`,
		Args:          argsRange(1, 1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHist(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runHist(cmd *cobra.Command, opts *RootOptions, dir string) error {
	if err := checkDumpDir(dir); err != nil {
		return err
	}
	s, err := resolveSettings(cmd, opts, nil, nil)
	if err != nil {
		return err
	}
	s.cache.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)

	res, err := ensureCache(cmd, dir, s.cache)
	if err != nil {
		return err
	}

	f, err := os.Open(res.HistPath)
	if err != nil {
		return WrapExitError(ExitFailure, "opening histogram", err)
	}
	defer f.Close()

	recs, err := pcregion.ReadHistogram(f)
	if err != nil {
		return WrapExitError(ExitFailure, "reading histogram", err)
	}

	summary := HistSummary{
		Path:     res.HistPath,
		Rebuilt:  res.Rebuilt,
		Reason:   res.Reason,
		Distinct: len(recs),
	}
	for _, rec := range recs {
		summary.Samples += rec.Count
		summary.Hottest = max(summary.Hottest, rec.Count)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(summary)
}

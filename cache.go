package pcregion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// File names inside a dump directory.
const (
	LogFile  = "opcode.log"
	PCsFile  = "pcs"
	HistFile = "hist"
)

// ErrDirectoryNotFound is returned when the dump directory does not exist
// or is not a directory.
var ErrDirectoryNotFound = errors.New("directory not found")

var discardLogger = slog.New(slog.DiscardHandler)

// CachePolicy decides when an existing histogram is regenerated.
type CachePolicy string

// Supported cache policies.
const (
	// CacheReuse never regenerates an existing hist file.
	CacheReuse CachePolicy = "reuse"
	// CacheValidate regenerates hist when opcode.log was modified after it.
	CacheValidate CachePolicy = "validate"
	// CacheRebuild always regenerates pcs and hist.
	CacheRebuild CachePolicy = "rebuild"
)

// CachePolicies lists the accepted policy names.
var CachePolicies = []CachePolicy{CacheReuse, CacheValidate, CacheRebuild}

// ParseCachePolicy maps a policy name to a CachePolicy. The empty string
// selects CacheReuse.
func ParseCachePolicy(s string) (CachePolicy, error) {
	if s == "" {
		return CacheReuse, nil
	}
	for _, p := range CachePolicies {
		if string(p) == strings.ToLower(s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown cache policy %q: must be one of %v", s, CachePolicies)
}

// CacheOptions controls EnsureHistogram.
type CacheOptions struct {
	Policy CachePolicy
	// Marker is passed to ExtractPCs.
	Marker string
	Logger *slog.Logger
}

// CacheResult describes the cache of a dump directory after EnsureHistogram.
type CacheResult struct {
	LogPath  string `json:"log_path"`
	PCsPath  string `json:"pcs_path"`
	HistPath string `json:"hist_path"`
	Rebuilt  bool   `json:"rebuilt"`
	// Reason says why the cache was or was not rebuilt.
	Reason string `json:"reason"`
	// Stats and Distinct are only set when the cache was rebuilt.
	Stats    ExtractStats `json:"stats"`
	Distinct int          `json:"distinct"`
}

// CheckDumpDir returns an error wrapping ErrDirectoryNotFound unless dir is
// an existing directory.
func CheckDumpDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}
	return nil
}

// EnsureHistogram makes sure dir holds a hist file, deriving pcs and hist
// from opcode.log when the policy requires it. A missing opcode.log is not
// an error: it produces empty cache files.
//
// Both files are written to a temporary file and renamed into place.
func EnsureHistogram(ctx context.Context, dir string, opts CacheOptions) (CacheResult, error) {
	log := opts.Logger
	if log == nil {
		log = discardLogger
	}

	if err := CheckDumpDir(dir); err != nil {
		return CacheResult{}, err
	}

	res := CacheResult{
		LogPath:  filepath.Join(dir, LogFile),
		PCsPath:  filepath.Join(dir, PCsFile),
		HistPath: filepath.Join(dir, HistFile),
	}

	rebuild, reason, err := needsRebuild(res, opts.Policy)
	if err != nil {
		return res, err
	}
	res.Reason = reason
	if !rebuild {
		log.Debug("reusing histogram", "path", res.HistPath, "reason", reason)
		return res, nil
	}
	log.Debug("building histogram", "dir", dir, "reason", reason)

	if err := buildPCs(ctx, &res, opts.Marker, log); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := buildHist(&res); err != nil {
		return res, err
	}
	res.Rebuilt = true

	log.Info("histogram built",
		"path", res.HistPath,
		"lines", res.Stats.Lines,
		"pcs", res.Stats.PCs,
		"distinct", res.Distinct)
	return res, nil
}

func needsRebuild(res CacheResult, policy CachePolicy) (bool, string, error) {
	hi, err := os.Stat(res.HistPath)
	if errors.Is(err, fs.ErrNotExist) {
		return true, "hist missing", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to stat histogram: %w", err)
	}

	switch policy {
	case CacheRebuild:
		return true, "rebuild requested", nil
	case CacheValidate:
		li, err := os.Stat(res.LogPath)
		if err != nil {
			return false, "opcode.log unavailable", nil
		}
		if li.ModTime().After(hi.ModTime()) {
			return true, "opcode.log newer than hist", nil
		}
		return false, "hist up to date", nil
	case CacheReuse, "":
		return false, "hist exists", nil
	default:
		return false, "", fmt.Errorf("unknown cache policy %q", policy)
	}
}

func buildPCs(ctx context.Context, res *CacheResult, marker string, log *slog.Logger) error {
	var src io.Reader
	f, err := os.Open(res.LogPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("opcode log missing, histogram will be empty", "path", res.LogPath)
		src = strings.NewReader("")
	case err != nil:
		return fmt.Errorf("failed to open opcode log: %w", err)
	default:
		defer f.Close()
		src = f
	}

	return writeFileAtomic(res.PCsPath, func(w io.Writer) error {
		stats, err := ExtractPCs(ctx, src, w, marker)
		res.Stats = stats
		return err
	})
}

func buildHist(res *CacheResult) error {
	f, err := os.Open(res.PCsPath)
	if err != nil {
		return fmt.Errorf("failed to open pcs: %w", err)
	}
	defer f.Close()

	recs, err := BuildHistogram(f)
	if err != nil {
		return err
	}
	res.Distinct = len(recs)

	return writeFileAtomic(res.HistPath, func(w io.Writer) error {
		return WriteHistogram(w, recs)
	})
}

// writeFileAtomic writes path through a temporary file in the same
// directory and renames it into place once write succeeds.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install %s: %w", filepath.Base(path), err)
	}
	return nil
}

package pcregion

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
)

// Scan defaults.
const (
	DefaultMaxCount = 1
	DefaultGap      = 10
)

var (
	// ErrEmptyHistogram is returned when the histogram has no records.
	ErrEmptyHistogram = errors.New("histogram is empty")
	// ErrHistogramExhausted is returned when the records run out before
	// one exceeds the maximum count.
	ErrHistogramExhausted = errors.New("histogram exhausted before max count was exceeded")
	// ErrInvalidPC is returned when the scan reaches a record whose PC is
	// not hexadecimal.
	ErrInvalidPC = errors.New("invalid pc")
)

// ScanOptions controls a gap scan. Zero values are used as given, so
// start from DefaultScanOptions.
type ScanOptions struct {
	// MaxCount stops the scan at the first record logged more often.
	MaxCount int
	// Gap is the largest PC increase still treated as the same region.
	Gap uint64
	// FlushLast also emits the region still open when the scan stops.
	FlushLast bool
	Logger    *slog.Logger
}

// DefaultScanOptions returns MaxCount 1, Gap 10 and no final flush.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{MaxCount: DefaultMaxCount, Gap: DefaultGap}
}

// Scanner walks a histogram in count order and splits it into regions.
// A Scanner consumes its source and can be ranged over once.
type Scanner struct {
	src  RecordSource
	opts ScanOptions
	log  *slog.Logger
}

// NewScanner returns a scanner reading records from src.
func NewScanner(src RecordSource, opts ScanOptions) *Scanner {
	log := opts.Logger
	if log == nil {
		log = discardLogger
	}
	return &Scanner{src: src, opts: opts, log: log}
}

// Regions yields a region each time a PC lies more than Gap above the PC
// before it. The region yielded is the one that gap closes.
//
// The scan ends without error at the first record whose count exceeds
// MaxCount. Running out of records first yields ErrHistogramExhausted.
// The region open at that point is dropped unless FlushLast is set; with
// FlushLast, exhaustion is not an error.
func (s *Scanner) Regions() iter.Seq2[Region, error] {
	return func(yield func(Region, error) bool) {
		first, err := s.src.Next()
		if errors.Is(err, io.EOF) {
			yield(Region{}, ErrEmptyHistogram)
			return
		}
		if err != nil {
			yield(Region{}, err)
			return
		}
		if !first.Valid {
			yield(Region{}, invalidPC(first))
			return
		}

		cur := Region{Start: first.PC, End: first.PC, Size: 1}
		for {
			rec, err := s.src.Next()
			if errors.Is(err, io.EOF) {
				s.log.Debug("histogram exhausted", "pending", FormatPC(cur.Start))
				if s.opts.FlushLast {
					yield(cur, nil)
					return
				}
				yield(Region{}, ErrHistogramExhausted)
				return
			}
			if err != nil {
				yield(Region{}, err)
				return
			}

			if rec.Count > s.opts.MaxCount {
				s.log.Debug("max count exceeded", "count", rec.Count, "max", s.opts.MaxCount, "pending", FormatPC(cur.Start))
				if s.opts.FlushLast {
					yield(cur, nil)
				}
				return
			}
			if !rec.Valid {
				yield(Region{}, invalidPC(rec))
				return
			}

			if rec.PC > cur.End && rec.PC-cur.End > s.opts.Gap {
				s.log.Debug("region", "start", FormatPC(cur.Start), "end", FormatPC(cur.End), "size", cur.Size)
				if !yield(cur, nil) {
					return
				}
				cur = Region{Start: rec.PC}
			}
			cur.End = rec.PC
			cur.Size++
		}
	}
}

func invalidPC(rec Record) error {
	return fmt.Errorf("%w %q (count %d)", ErrInvalidPC, rec.Token, rec.Count)
}

// ScanRegions scans recs and collects the regions. On error the regions
// found before it are returned as well.
func ScanRegions(recs []Record, opts ScanOptions) ([]Region, error) {
	var regions []Region
	for r, err := range NewScanner(NewSliceSource(recs), opts).Regions() {
		if err != nil {
			return regions, err
		}
		regions = append(regions, r)
	}
	return regions, nil
}

package pcregion

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// ParseError reports a histogram line that could not be decoded.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("histogram line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// BuildHistogram counts the first whitespace-delimited field of every
// line of r and returns one record per distinct value, sorted ascending by
// count. Records with the same count are ordered by their token.
func BuildHistogram(r io.Reader) ([]Record, error) {
	counts := make(map[string]int)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		counts[fields[0]]++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pc lines: %w", err)
	}

	recs := make([]Record, 0, len(counts))
	for tok, n := range counts {
		recs = append(recs, newRecord(n, tok))
	}
	slices.SortFunc(recs, func(a, b Record) int {
		if c := cmp.Compare(a.Count, b.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Token, b.Token)
	})
	return recs, nil
}

func newRecord(count int, tok string) Record {
	pc, err := strconv.ParseUint(tok, 16, 64)
	return Record{Count: count, PC: pc, Token: tok, Valid: err == nil}
}

// WriteHistogram writes recs in the layout of `uniq -c`: the count
// right-aligned to seven columns, a space, then the PC token.
func WriteHistogram(w io.Writer, recs []Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range recs {
		tok := rec.Token
		if tok == "" {
			tok = strconv.FormatUint(rec.PC, 16)
		}
		if _, err := fmt.Fprintf(bw, "%7d %s\n", rec.Count, tok); err != nil {
			return fmt.Errorf("failed to write histogram: %w", err)
		}
	}
	return bw.Flush()
}

// RecordSource yields histogram records in order. Next returns io.EOF once
// no records remain.
type RecordSource interface {
	Next() (Record, error)
}

// HistogramReader decodes `<count> <pc-hex> ...` lines one at a time.
// Blank lines are skipped. A PC that is not hexadecimal is returned with
// Valid set to false; a bad count is a *ParseError.
type HistogramReader struct {
	sc   *bufio.Scanner
	line int
}

// NewHistogramReader returns a reader over the histogram text in r.
func NewHistogramReader(r io.Reader) *HistogramReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &HistogramReader{sc: sc}
}

// Next returns the next record.
func (h *HistogramReader) Next() (Record, error) {
	for h.sc.Scan() {
		h.line++
		text := h.sc.Text()
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return Record{}, &ParseError{Line: h.line, Text: text, Err: errors.New("missing pc field")}
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil {
			return Record{}, &ParseError{Line: h.line, Text: text, Err: err}
		}
		return newRecord(count, fields[1]), nil
	}
	if err := h.sc.Err(); err != nil {
		return Record{}, fmt.Errorf("failed to read histogram: %w", err)
	}
	return Record{}, io.EOF
}

// ReadHistogram decodes every record of r.
func ReadHistogram(r io.Reader) ([]Record, error) {
	return collect(NewHistogramReader(r))
}

func collect(src RecordSource) ([]Record, error) {
	var recs []Record
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

// SliceSource serves records from memory.
type SliceSource struct {
	recs []Record
}

// NewSliceSource returns a RecordSource over recs.
func NewSliceSource(recs []Record) *SliceSource {
	return &SliceSource{recs: recs}
}

// Next returns the next record.
func (s *SliceSource) Next() (Record, error) {
	if len(s.recs) == 0 {
		return Record{}, io.EOF
	}
	rec := s.recs[0]
	s.recs = s.recs[1:]
	return rec, nil
}

package pcregion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultMarker is the text fs-uae prints on the line following every
// executed instruction.
const DefaultMarker = "Next PC:"

// separator is the line grep-like tools print between context groups.
const separator = "--"

const (
	maxLineSize   = 1 << 20
	ctxCheckLines = 1 << 16
)

// ExtractStats summarizes one pass over an opcode log.
type ExtractStats struct {
	Lines   int `json:"lines"`
	Markers int `json:"markers"`
	PCs     int `json:"pcs"`
}

// ExtractPCs copies to w the line immediately preceding every line of r
// that contains marker. Marker lines, "--" separator lines and blank lines
// are never copied, so two consecutive markers yield a single line.
// An empty marker selects DefaultMarker.
func ExtractPCs(ctx context.Context, r io.Reader, w io.Writer, marker string) (ExtractStats, error) {
	bw := bufio.NewWriter(w)
	var werr error
	stats, err := eachStepLine(ctx, r, marker, func(line string) bool {
		if _, werr = bw.WriteString(line + "\n"); werr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return stats, err
	}
	if werr != nil {
		return stats, fmt.Errorf("failed to write pc line: %w", werr)
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("failed to write pc lines: %w", err)
	}
	return stats, nil
}

// eachStepLine calls fn with every line kept by ExtractPCs until fn
// returns false.
func eachStepLine(ctx context.Context, r io.Reader, marker string, fn func(string) bool) (ExtractStats, error) {
	var stats ExtractStats
	if marker == "" {
		marker = DefaultMarker
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var prev string
	havePrev := false
	for sc.Scan() {
		line := sc.Text()
		stats.Lines++
		if stats.Lines%ctxCheckLines == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		if strings.Contains(line, marker) {
			stats.Markers++
			if havePrev && keepLine(prev, marker) {
				stats.PCs++
				if !fn(prev) {
					return stats, nil
				}
			}
		}
		prev = line
		havePrev = true
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("failed to read opcode log: %w", err)
	}
	return stats, nil
}

func keepLine(line, marker string) bool {
	if strings.Contains(line, marker) || line == separator {
		return false
	}
	return strings.TrimSpace(line) != ""
}

// ParseStepLine splits an fs-uae instruction line of the form
//
//	<pc:08x> <opcode words, right-aligned to 24> <disassembly>
//
// into its parts. It reports false when the line does not start with an
// 8-digit hexadecimal PC.
func ParseStepLine(line string) (Step, bool) {
	if len(line) < 8 || (len(line) > 8 && line[8] != ' ') {
		return Step{}, false
	}
	pc, err := strconv.ParseUint(line[:8], 16, 64)
	if err != nil {
		return Step{}, false
	}

	step := Step{PC: pc}
	if len(line) > 9 {
		end := min(len(line), 33)
		step.Opcodes = strings.TrimSpace(line[9:end])
	}
	if len(line) > 34 {
		step.Disassembly = strings.TrimSpace(line[34:])
	}
	return step, true
}

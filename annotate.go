package pcregion

import (
	"context"
	"io"
)

// Annotate reads an opcode log and returns, for each region start, the
// first logged instruction at that PC. Starts that never appear in the log
// are absent from the result.
func Annotate(ctx context.Context, r io.Reader, marker string, regions []Region) (map[uint64]Step, error) {
	want := make(map[uint64]bool, len(regions))
	for _, reg := range regions {
		want[reg.Start] = true
	}
	found := make(map[uint64]Step, len(want))
	if len(want) == 0 {
		return found, nil
	}

	_, err := eachStepLine(ctx, r, marker, func(line string) bool {
		step, ok := ParseStepLine(line)
		if !ok || !want[step.PC] {
			return true
		}
		if _, dup := found[step.PC]; !dup {
			found[step.PC] = step
		}
		return len(found) < len(want)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

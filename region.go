package pcregion

import "fmt"

// Record is one histogram entry: how often a PC was logged.
type Record struct {
	Count int    `json:"count"`
	PC    uint64 `json:"pc"`
	// Token is the PC exactly as it appeared in the log.
	Token string `json:"token"`
	// Valid is false when Token is not a hexadecimal number.
	Valid bool `json:"valid"`
}

// Region is a run of histogram PCs where consecutive values are at most
// the scan gap apart.
type Region struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Size  int    `json:"size"`
}

func (r Region) String() string {
	return FormatPC(r.Start)
}

// Step is one executed instruction as printed by the emulator trace.
type Step struct {
	PC          uint64 `json:"pc"`
	Opcodes     string `json:"opcodes,omitempty"`
	Disassembly string `json:"disassembly,omitempty"`
}

// FormatPC formats a PC as zero-padded 8-digit uppercase hex.
func FormatPC(pc uint64) string {
	return fmt.Sprintf("%08X", pc)
}

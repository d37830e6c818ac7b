// Package pcregion recovers candidate starting program counters from an
// emulator opcode trace, such as the CPU log fs-uae writes while tracing.
//
// # Histogram
//
// Every instruction in the trace is followed by a "Next PC:" line. The line
// before that marker starts with the PC of the instruction just executed.
// [ExtractPCs] collects those lines and [BuildHistogram] counts how often
// each PC was executed, sorted by ascending count.
//
// [EnsureHistogram] caches both steps in the dump directory as the files
// "pcs" and "hist". An existing hist is reused as is unless a different
// [CachePolicy] is selected.
//
// # Gap Scan
//
// Code that ran rarely is listed first in the histogram. [Scanner] walks it
// in that order and starts a new region whenever a PC lies more than the
// gap (10 by default) above the one before it. Each region closed this way
// yields its start address. The scan stops at the first record whose count
// exceeds the maximum count (1 by default).
//
// The region still open when the scan stops is not reported unless
// [ScanOptions.FlushLast] is set.
//
// # Annotation
//
// [Annotate] looks the region starts up in the trace again and returns the
// instruction the emulator disassembled at each of them.
package pcregion

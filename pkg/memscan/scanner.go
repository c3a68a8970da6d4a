// Package memscan discovers "free" runs in a captured RAM image: maximal
// ranges where every byte holds the same value, the raw material the block
// allocator carves restore-program storage out of.
package memscan

import "github.com/samber/lo"

// ScanStart/ScanEnd bound the region the scanner walks: page 0 and page 1
// are excluded because they are restored through the dedicated Preserve
// mechanism, and the top 16 bytes hold the hardware vectors, restored
// verbatim from a literal rather than claimed as a free run.
const (
	ScanStart = 0x0200
	ScanEnd   = 0xFFF0 // exclusive; $FFF0..$FFFF are the vector bytes

	// MinRunLength is the smallest run the scanner reports. Shorter runs
	// aren't useful allocation targets and would only add bookkeeping.
	MinRunLength = 32
)

// FreeRun is a maximal span of identical bytes within [ScanStart, ScanEnd).
type FreeRun struct {
	Start  uint16
	Length int
	Value  byte
}

// End returns the exclusive end address of the run.
func (f FreeRun) End() uint16 { return f.Start + uint16(f.Length) }

// Scan walks mem[ScanStart:ScanEnd] and returns every maximal run of
// identical bytes at least MinRunLength long, ascending by start address.
// It is a pure function of mem: scanning the same image twice yields the
// same result, and it never mutates its argument.
func Scan(mem *[0x10000]byte) []FreeRun {
	var runs []FreeRun

	start := ScanStart
	for start < ScanEnd {
		value := mem[start]
		end := start + 1
		for end < ScanEnd && mem[end] == value {
			end++
		}
		if length := end - start; length >= MinRunLength {
			runs = append(runs, FreeRun{Start: uint16(start), Length: length, Value: value})
		}
		start = end
	}

	return runs
}

// TotalFree sums the bytes available across a run set. The allocator does
// not call it; it keeps its own count over its trimmed slots.
func TotalFree(runs []FreeRun) int {
	return lo.SumBy(runs, func(r FreeRun) int { return r.Length })
}

// ZeroValued filters runs down to those holding the all-zero byte value.
// The allocator does not call it and places blocks in runs of any value.
func ZeroValued(runs []FreeRun) []FreeRun {
	return lo.Filter(runs, func(r FreeRun, _ int) bool { return r.Value == 0x00 })
}

// ZeroFillManualRanges returns a copy of mem with each [start, end) manual
// range overwritten with zero, the pre-allocation transformation the driver
// applies to its *scanning* copy of RAM when the user supplies manual-free
// ranges after an AllocationFailed retry. The caller's original mem is left
// untouched: the scanner may see zeroed manual ranges, but the compressor
// must still see the snapshot's real bytes there.
func ZeroFillManualRanges(mem *[0x10000]byte, ranges [][2]uint16) *[0x10000]byte {
	out := *mem
	for _, r := range ranges {
		for addr := int(r[0]); addr < int(r[1]); addr++ {
			out[addr] = 0
		}
	}
	return &out
}

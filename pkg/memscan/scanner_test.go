package memscan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// noisyRAM fills memory with a cycling byte so no accidental run of
// identical bytes survives anywhere; tests then carve the runs they want.
func noisyRAM() [0x10000]byte {
	var mem [0x10000]byte
	for i := range mem {
		mem[i] = byte(i)
	}
	return mem
}

func TestScanFindsRunsAboveThreshold(t *testing.T) {
	mem := noisyRAM()
	for i := 0x0300; i < 0x0300+40; i++ {
		mem[i] = 0x00
	}
	for i := 0x0500; i < 0x0500+20; i++ {
		mem[i] = 0xFF // below MinRunLength, should not appear
	}
	for i := 0xC000; i < 0xC000+512; i++ {
		mem[i] = 0x00
	}
	mem[0xC200] = 0x55 // byte(0xC200) is 0x00 too; keep the run exactly 512

	runs := Scan(&mem)
	require.Len(t, runs, 2)
	require.Equal(t, uint16(0x0300), runs[0].Start)
	require.Equal(t, 40, runs[0].Length)
	require.Equal(t, uint16(0xC000), runs[1].Start)
	require.Equal(t, 512, runs[1].Length)
}

func TestScanReportsRunValue(t *testing.T) {
	mem := noisyRAM()
	for i := 0x4000; i < 0x4000+64; i++ {
		mem[i] = 0xAA
	}

	runs := Scan(&mem)
	require.Len(t, runs, 1)
	require.Equal(t, byte(0xAA), runs[0].Value)
}

func TestScanExcludesPage0And1AndVectors(t *testing.T) {
	var mem [0x10000]byte

	runs := Scan(&mem)
	require.Len(t, runs, 1)
	require.Equal(t, uint16(ScanStart), runs[0].Start)
	require.Equal(t, ScanEnd-ScanStart, runs[0].Length)
}

func TestScanIsPureAndOrdered(t *testing.T) {
	mem := noisyRAM()
	for i := 0x0300; i < 0x0400; i++ {
		mem[i] = 0x00
	}
	for i := 0x1000; i < 0x1100; i++ {
		mem[i] = 0x00
	}

	before := mem
	runs1 := Scan(&mem)
	runs2 := Scan(&mem)
	require.Equal(t, runs1, runs2)
	require.Equal(t, before, mem)

	require.Len(t, runs1, 2)
	for i := 1; i < len(runs1); i++ {
		require.Less(t, runs1[i-1].Start, runs1[i].Start)
	}
}

func TestZeroFillManualRangesDoesNotMutateOriginal(t *testing.T) {
	var mem [0x10000]byte
	mem[0xC000] = 0x42

	zeroed := ZeroFillManualRanges(&mem, [][2]uint16{{0xC000, 0xD000}})
	require.Equal(t, byte(0x42), mem[0xC000], "original must be untouched")
	require.Equal(t, byte(0x00), zeroed[0xC000])
}

func TestZeroValuedFiltersNonZeroRuns(t *testing.T) {
	runs := []FreeRun{
		{Start: 0x0300, Length: 40, Value: 0x00},
		{Start: 0x0400, Length: 40, Value: 0xFF},
	}
	z := ZeroValued(runs)
	require.Len(t, z, 1)
	require.Equal(t, uint16(0x0300), z[0].Start)
}

func TestTotalFreeSumsRunLengths(t *testing.T) {
	runs := []FreeRun{
		{Start: 0x0300, Length: 40},
		{Start: 0x0400, Length: 60},
	}
	require.Equal(t, 100, TotalFree(runs))
}

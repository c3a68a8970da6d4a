package restore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tommyo123/vsfconv/pkg/sim6502"
	"github.com/tommyo123/vsfconv/pkg/vsf"
)

// attachIOWindow models the C64's $D000-$DFFF register window on the
// simulator: accesses land in a separate register file whenever the
// processor port maps I/O in, and fall through to RAM under the $34
// all-RAM mapping — the same "write value last written" register-file
// semantics the snapshot preserves. ROM shadows are not modeled; the
// allocator keeps everything the restore reads under default banking out
// of the ROM windows (see blockalloc), so flat RAM reads are faithful
// everywhere else.
func attachIOWindow(cpu *sim6502.CPU) *[0x1000]byte {
	io := &[0x1000]byte{}
	mapped := func() bool { return cpu.ReadMemory(0x0001)&0x07 >= 5 }
	cpu.SetHooks(
		func(addr uint16) (byte, bool) {
			if addr&0xF000 == 0xD000 && mapped() {
				return io[addr&0x0FFF], true
			}
			return 0, false
		},
		func(addr uint16, value byte) bool {
			if addr&0xF000 == 0xD000 && mapped() {
				io[addr&0x0FFF] = value
				return true
			}
			return false
		},
	)
	return io
}

// populatedState builds a machine state with enough distinctive content to
// make byte-for-byte verification meaningful: vector tables and zero-page
// variables in otherwise empty RAM, stack remnants, and fully distinct
// chip register files.
func populatedState(sp byte) *vsf.MachineState {
	s := &vsf.MachineState{}
	s.CPU = vsf.CPURegisters{
		A: 0x11, X: 0x22, Y: 0x33,
		SP: sp, P: 0x20, PC: 0xE5CD,
		PortData: 0x37, PortDDR: 0x2F,
	}

	copy(s.Mem[0x0300:], []byte{0x8B, 0xE3, 0x83, 0xA4, 0x7C, 0xA5, 0x1A, 0xA7, 0xE4, 0xA7, 0x86, 0xAE})
	s.Mem[0x0314], s.Mem[0x0315] = 0x31, 0xEA
	s.Mem[0x0073] = 0xE6 // CHRGET fragment
	s.Mem[0x00A0] = 0x12 // jiffy clock
	s.Mem[0x00FA] = 0x77 // inside the late-restored zero-page tail
	s.Mem[0x01F8] = 0x46 // live stack content above the stack pointer
	s.Mem[0x8000] = 0xA5
	s.Mem[0xFFFA], s.Mem[0xFFFB] = 0x43, 0xFE
	s.Mem[0xFFFC], s.Mem[0xFFFD] = 0xE2, 0xFC
	s.Mem[0xFFFE], s.Mem[0xFFFF] = 0x48, 0xFF

	for i := range s.VIC {
		s.VIC[i] = byte(0x10 + i)
	}
	for i := range s.SID {
		s.SID[i] = byte(0x40 + i)
	}
	for i := range s.Color {
		s.Color[i] = byte(i) & 0x0F
	}

	s.CIA1 = vsf.CIARegisters{
		Regs: [16]byte{
			0x7F, 0xFF, 0xFF, 0x00,
			0, 0, 0, 0, // live counters, restarted from the latches instead
			0x01, 0x02, 0x03, 0x04,
			0x55, 0x00, 0x01, 0x08,
		},
		TimerALatch: 0x4025,
		TimerBLatch: 0x1234,
		ICRMask:     0x01,
	}
	s.CIA2 = vsf.CIARegisters{
		Regs: [16]byte{
			0x03, 0xFF, 0x3F, 0x00,
			0, 0, 0, 0,
			0x09, 0x08, 0x07, 0x06,
			0xAA, 0x00, 0x00, 0x00,
		},
		TimerALatch: 0xFFFF,
		TimerBLatch: 0x00FF,
		ICRMask:     0x00,
	}
	return s
}

// restoreOnSim builds the restore program for state, loads the Loader into
// an otherwise zeroed simulated machine the way a fresh LOAD/SYS would,
// and executes the full Loader -> Block 9 -> Block 10 -> final chain up to
// and including the terminal RTI.
func restoreOnSim(t *testing.T, state *vsf.MachineState) (*Stages, *sim6502.CPU, *[0x1000]byte) {
	t.Helper()

	stages, err := BuildStages(state, nil)
	require.NoError(t, err)

	cpu := sim6502.New()
	io := attachIOWindow(cpu)

	cpu.LoadAt(stages.Loader.Origin, stages.Loader.Bytes)
	cpu.WriteMemory(0x0000, 0x2F)
	cpu.WriteMemory(0x0001, 0x37)
	cpu.PC = stages.Loader.Origin
	cpu.SP = 0xF6
	cpu.P = sim6502.FlagU | sim6502.FlagI

	require.NoError(t, cpu.RunUntilRTI(20_000_000))
	return stages, cpu, io
}

// assertRestored checks, at the first post-RTI fetch, that the simulated
// machine matches the snapshot: every register, every RAM byte outside the
// three ranges that cannot equal it (the Loader's reserved footprint, the
// final stage's page-1 code, and the consumed RTI frame at and below the
// stack pointer — free stack space by definition), and every chip
// register the restore wrote.
func assertRestored(t *testing.T, state *vsf.MachineState, stages *Stages, cpu *sim6502.CPU, io *[0x1000]byte) {
	t.Helper()

	require.Equal(t, state.CPU.PC, cpu.PC, "PC at first post-RTI fetch")
	require.Equal(t, state.CPU.A, cpu.A, "A")
	require.Equal(t, state.CPU.X, cpu.X, "X")
	require.Equal(t, state.CPU.Y, cpu.Y, "Y")
	require.Equal(t, state.CPU.SP, cpu.SP, "SP")
	require.Equal(t, state.CPU.P, cpu.P, "P")

	expected := state.Mem
	expected[0x0000] = state.CPU.PortDDR
	expected[0x0001] = state.CPU.PortData

	sp := state.CPU.SP
	frame := map[uint16]bool{
		0x0100 + uint16(sp):         true,
		0x0100 + uint16(byte(sp-1)): true,
		0x0100 + uint16(byte(sp-2)): true,
	}
	finalStart := stages.Final.Origin
	finalEnd := finalStart + uint16(len(stages.Final.Bytes))

	for addr := 0; addr < 0x10000; addr++ {
		a := uint16(addr)
		if a >= stages.Loader.Origin && a < stages.FootprintEnd {
			continue
		}
		if a >= finalStart && a < finalEnd {
			continue
		}
		if frame[a] {
			continue
		}
		if got := cpu.ReadMemory(a); got != expected[addr] {
			t.Fatalf("RAM mismatch at $%04X: got $%02X, want $%02X", addr, got, expected[addr])
		}
	}

	for i, want := range state.VIC {
		require.Equalf(t, want, io[i], "VIC register $D0%02X", i)
	}
	for i, want := range state.SID {
		require.Equalf(t, want, io[0x400+i], "SID register $D4%02X", i)
	}
	for i, want := range state.Color {
		require.Equalf(t, want, io[0x800+i]&0x0F, "color RAM nibble at offset $%03X", i)
	}
	assertCIARestored(t, io, 0xC00, state.CIA1, "CIA1")
	assertCIARestored(t, io, 0xD00, state.CIA2, "CIA2")
}

func assertCIARestored(t *testing.T, io *[0x1000]byte, base int, c vsf.CIARegisters, name string) {
	t.Helper()
	for _, off := range []int{0x00, 0x01, 0x02, 0x03, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0E, 0x0F} {
		require.Equalf(t, c.Regs[off], io[base+off], "%s register +$%02X", name, off)
	}
	require.Equalf(t, byte(c.TimerALatch), io[base+0x04], "%s timer A low", name)
	require.Equalf(t, byte(c.TimerALatch>>8), io[base+0x05], "%s timer A high", name)
	require.Equalf(t, byte(c.TimerBLatch), io[base+0x06], "%s timer B low", name)
	require.Equalf(t, byte(c.TimerBLatch>>8), io[base+0x07], "%s timer B high", name)
	// The ICR is written through the acknowledge-then-set-mask sequence,
	// so the last value on the bus is the mask with the set bit forced.
	require.Equalf(t, c.ICRMask|0x80, io[base+0x0D], "%s ICR mask", name)
}

func TestRestoreChainReconstitutesSnapshot(t *testing.T) {
	state := populatedState(0xF3)
	stages, cpu, io := restoreOnSim(t, state)
	require.False(t, stages.StackRisk)
	assertRestored(t, state, stages, cpu, io)
}

func TestRestoreChainHighStackFallback(t *testing.T) {
	// SP=$04 forces the final stage to the top of page 1; the conversion
	// must flag the risk and still restore everything byte-exactly.
	state := populatedState(0x04)
	stages, cpu, io := restoreOnSim(t, state)
	require.True(t, stages.StackRisk)
	assertRestored(t, state, stages, cpu, io)
}

func TestRestoreChainAllZeroSnapshot(t *testing.T) {
	// Degenerate but legal: nothing in RAM at all. The erasure chain must
	// leave a byte-exact all-zero image behind itself.
	state := &vsf.MachineState{}
	state.CPU = vsf.CPURegisters{SP: 0xF3, P: 0x20, PC: 0xE5CD, PortData: 0x37, PortDDR: 0x2F}
	stages, cpu, io := restoreOnSim(t, state)
	assertRestored(t, state, stages, cpu, io)
}

// Package vsf parses a captured C64SC emulator snapshot (format 2.0) into a
// typed MachineState, the single input the rest of the conversion pipeline
// works from.
package vsf

// MachineState is the fully populated record of everything a conversion
// needs to reconstitute on real hardware: RAM, color RAM, the CPU record,
// and the three chip register files.
type MachineState struct {
	Mem   [0x10000]byte // full 64 KiB address space, as the snapshot saw it
	Color [0x400]byte   // low nibble of each byte is significant

	CPU CPURegisters

	VIC  [47]byte // $D000-$D02E
	SID  [29]byte // $D400-$D41C
	CIA1 CIARegisters
	CIA2 CIARegisters
}

// CPURegisters is the 6502 register file plus the two processor-port bytes
// that live at zero-page $00/$01 but are carried separately because they
// gate the I/O vs. RAM view of the upper address space.
type CPURegisters struct {
	A, X, Y  byte
	SP       byte
	P        byte
	PC       uint16
	PortData byte // value written to $01
	PortDDR  byte // value written to $00
}

// CIARegisters is one CIA's 16-byte register file, plus the latched values
// that the snapshot records separately from the live, free-running
// counters. The latches are treated as authoritative: timers are
// (re)started from the Control Register A/B writes in the final restore
// stage rather than from a live countdown value.
type CIARegisters struct {
	Regs [16]byte

	TimerALatch uint16
	TimerBLatch uint16

	// ICRMask is the interrupt-mask-enable shadow: which of the five ICR
	// sources are currently unmasked. The live ICR register itself is
	// read-and-clear on real hardware, so only the mask survives into the
	// snapshot meaningfully.
	ICRMask byte
}

package restore

import (
	"github.com/tommyo123/vsfconv/pkg/asm6502"
	"github.com/tommyo123/vsfconv/pkg/vsf"
)

// FinalConfig carries everything the final restore stage needs to know at
// assembly time. Every value here is a compile-time literal by the time
// codegen reaches this stage — nothing about the final stage depends on a
// runtime computation, which is what lets it rebuild the 6502 stack frame
// with plain absolute stores instead of real PHA/PHP pushes.
type FinalConfig struct {
	State *vsf.MachineState

	// Block10Fill is the region Block 10 occupied and the single byte
	// value to zero-fill it back to (the uniform value RamScanner found
	// there originally).
	Block10Start uint16
	Block10Len   int
	Block10Fill  byte

	// ZeroPageTail is the snapshot's true $00F8..=$00FF contents. Block 10
	// already restored it once (see block10.go), but erasing Block 10's own
	// footprint here reuses that same scratch range (see zeropage.go), so it
	// must be written back again before RTI.
	ZeroPageTail [zpTailLen]byte
}

// BuildFinal emits the final restore stage at origin. It is the last stage
// to run and the only one that never jumps anywhere else: it ends in RTI,
// handing control to whatever PC/P/registers the snapshot captured.
func BuildFinal(origin uint16, cfg FinalConfig) *asm6502.Program {
	p := asm6502.NewProgram(origin)
	s := cfg.State

	// Erase Block 10's own footprint back to the uniform byte the scanner
	// found there; Block 10 already did the same for Block 9's footprint
	// before jumping here (see block10.go), so this is the last piece of
	// restore-machinery residue left anywhere in RAM.
	emitZeroFillRange(p, cfg.Block10Start, cfg.Block10Len, cfg.Block10Fill, "finalEraseB10")

	// The erase loop above reuses the $00F8..=$00FF scratch (zpDstLo/Hi,
	// zpCntLo/Hi) Block 10 had already restored, so put the real tail back
	// one last time now that nothing will touch it as scratch again.
	for i, b := range cfg.ZeroPageTail {
		p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(b)))
		p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(uint16(0xF8+i)))
	}

	// Processor port direction/data before anything else touches I/O
	// registers that the port's bank-switch state controls the meaning of.
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(s.CPU.PortDDR)))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(0x00))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(s.CPU.PortData)))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(0x01))

	// VIC-II interrupt enable ($D01A) and raster/control state that gates
	// whether a pending IRQ fires the instant RTI re-enables interrupts.
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(s.VIC[0x1A])))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(0xD01A))

	// CIA1/CIA2 interrupt masks are re-asserted here (the Loader already
	// set them once, see loader.go) so they reflect the snapshot exactly
	// even if bootstrapping latched a spurious flag in between; Control
	// Register A/B follow immediately after, restored last among the I/O
	// state so timers start counting again only once every other chip
	// register they might latch against is in place.
	emitAckAndSetICRMask(p, 0xDC0D, s.CIA1.ICRMask)
	emitAckAndSetICRMask(p, 0xDD0D, s.CIA2.ICRMask)
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(s.CIA1.Regs[0x0E])))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(0xDC0E))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(s.CIA1.Regs[0x0F])))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(0xDC0F))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(s.CIA2.Regs[0x0E])))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(0xDD0E))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(s.CIA2.Regs[0x0F])))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(0xDD0F))

	// Construct the RTI stack frame with plain absolute stores rather than
	// real pushes. SP is a codegen-time literal, so P/PCL/PCH land at
	// exactly the addresses a real PHP/JSR sequence would have left them,
	// without the final stage ever pushing anything itself. RTI pulls in
	// the order P, PCL, PCH with S incrementing from sp-3, so PCH must sit
	// highest (at sp) and P lowest (at sp-2). S is an 8-bit register, so
	// sp-1/sp-2/sp-3 wrap modulo 256 rather than underflow below page 1.
	sp := int(s.CPU.SP)
	pchAddr := uint16(0x0100) + uint16(byte(sp))
	pclAddr := uint16(0x0100) + uint16(byte(sp-1))
	pAddr := uint16(0x0100) + uint16(byte(sp-2))

	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(s.CPU.P)))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(pAddr))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(s.CPU.PC))))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(pclAddr))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(s.CPU.PC>>8))))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(pchAddr))

	// Real S must land on the snapshot's SP only after RTI's three pulls
	// each bump it once: set S to SP-3 now so the pulls walk it back up
	// to SP exactly.
	p.Emit("LDX", asm6502.Immediate, asm6502.Imm(uint16(byte(sp-3))))
	p.Emit("TXS", asm6502.Implied, asm6502.Operand{})

	// X and Y can be loaded any time before RTI; A must be loaded last
	// since every I/O write above used it as scratch.
	p.Emit("LDX", asm6502.Immediate, asm6502.Imm(uint16(s.CPU.X)))
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(uint16(s.CPU.Y)))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(s.CPU.A)))

	p.Implied("RTI")

	return p
}

// emitZeroFillRange writes value to every byte in [start, start+length),
// looping with a 16-bit countdown the same way package restore's other
// stages do (see block9.go, block10.go).
func emitZeroFillRange(p *asm6502.Program, start uint16, length int, value byte, tag string) {
	if length <= 0 {
		return
	}
	loop := tag + "_loop"
	done := tag + "_done"

	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(length))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(length>>8))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(start))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpDstLo))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(start>>8))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpDstHi))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(value)))

	p.Label(loop)
	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(tag+"_body"))
	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Emit("BEQ", asm6502.Relative, asm6502.Sym(done))
	p.Label(tag + "_body")
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("STA", asm6502.IndirectY, asm6502.Imm(zpDstLo))
	emitInc16(p, zpDstLo, zpDstHi, tag+"_dstInc")

	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(tag+"_decLoOnly"))
	p.Emit("DEC", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Label(tag + "_decLoOnly")
	p.Emit("DEC", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym(loop))
	p.Label(done)
}

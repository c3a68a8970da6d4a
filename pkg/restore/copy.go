package restore

import "github.com/tommyo123/vsfconv/pkg/asm6502"

// emitCopyRangeFromOperands appends a 16-bit-counted copy loop from a
// source cursor initialized by srcLo/srcHi to dstStart, length bytes long.
// The source initialization operands can be plain literals (a known
// numeric address, e.g. a preserve block's scattered FreeRun location) or
// label byte-selectors (LoByte/HiByte of an embedded literal blob) — the
// copy loop body is identical either way, only the two initial LDA
// operands differ. tag must be unique at the call site.
func emitCopyRangeFromOperands(p *asm6502.Program, srcLo, srcHi asm6502.Operand, dstStart uint16, length int, tag string) {
	if length <= 0 {
		return
	}
	loop := tag + "_loop"
	body := tag + "_body"
	done := tag + "_done"

	p.Emit("LDA", asm6502.Immediate, srcLo)
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpSrcLo))
	p.Emit("LDA", asm6502.Immediate, srcHi)
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpSrcHi))

	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(length))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(length>>8))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntHi))

	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(dstStart))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpDstLo))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(dstStart>>8))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpDstHi))

	p.Label(loop)
	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(body))
	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Emit("BEQ", asm6502.Relative, asm6502.Sym(done))
	p.Label(body)
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.IndirectY, asm6502.Imm(zpDstLo))
	emitInc16(p, zpSrcLo, zpSrcHi, tag+"_srcInc")
	emitInc16(p, zpDstLo, zpDstHi, tag+"_dstInc")

	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(tag+"_decLoOnly"))
	p.Emit("DEC", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Label(tag + "_decLoOnly")
	p.Emit("DEC", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym(loop))
	p.Label(done)
}

// emitCopyRange copies length bytes from a known numeric source address
// (e.g. a preserve block's scattered FreeRun location) to dstStart.
func emitCopyRange(p *asm6502.Program, srcStart, dstStart uint16, length int, tag string) {
	emitCopyRangeFromOperands(p,
		asm6502.Imm(uint16(byte(srcStart))),
		asm6502.Imm(uint16(byte(srcStart>>8))),
		dstStart, length, tag)
}

// emitCopyRangeFromLabel copies length bytes from an embedded literal blob
// under srcLabel to dstStart.
func emitCopyRangeFromLabel(p *asm6502.Program, srcLabel string, dstStart uint16, length int, tag string) {
	emitCopyRangeFromOperands(p, asm6502.LoByte(srcLabel), asm6502.HiByte(srcLabel), dstStart, length, tag)
}

package restore

import (
	"fmt"

	"github.com/tommyo123/vsfconv/pkg/asm6502"
)

// Decompressor scratch byte that does not need to live in zero page: the
// raw token byte, read once for the literal length and again for the match
// length. It lives in ordinary RAM inside the Loader's own code instead of
// competing for the zero-page tail's eight bytes (see zeropage.go); the
// offset width needs no scratch at all, since it is fixed at Go build time.
// ensureDecompSupport emits the label that reserves it, once per Program.
const tokenScratchLabel = "decompTokenScratch"

// emitInc16 bumps a 16-bit zero-page pair by one, the idiomatic carry-aware
// way: INC the low byte, skip the high-byte INC unless it just wrapped to
// zero. label must be unique at the call site.
func emitInc16(p *asm6502.Program, lo, hi byte, label string) {
	p.Emit("INC", asm6502.ZeroPage, asm6502.Imm(uint16(lo)))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(label))
	p.Emit("INC", asm6502.ZeroPage, asm6502.Imm(uint16(hi)))
	p.Label(label)
}

// emitAdd16Imm adds an 8-bit immediate to a 16-bit zero-page pair in place.
func emitAdd16Imm(p *asm6502.Program, lo, hi byte, imm byte) {
	p.Emit("CLC", asm6502.Implied, asm6502.Operand{})
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(uint16(lo)))
	p.Emit("ADC", asm6502.Immediate, asm6502.Imm(uint16(imm)))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(uint16(lo)))
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(uint16(hi)))
	p.Emit("ADC", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(uint16(hi)))
}

// ensureDecompSupport emits the shared readExtended subroutine and the
// token scratch byte, if a prior emitDecompressBlock call on the same
// Program has not already done so. Every decompress call site JSRs into
// the same readExtended body instead of carrying its own copy, the way a
// hand-written loader would share one helper across several unpacking
// passes.
func ensureDecompSupport(p *asm6502.Program) {
	for _, n := range p.Nodes {
		if n.Label == "readExtended" {
			return
		}
	}

	// This helper block is emitted inline at the position of the first
	// emitDecompressBlock call, which may be in the middle of the caller's
	// straight-line code; jump over it so normal flow never falls into the
	// subroutine body except through the JSRs that call it.
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym("decompSupportEnd"))

	// readExtended: accumulate an LZ4-style extension-byte chain into
	// zpCnt (16-bit), advancing the source cursor by one byte per
	// iteration. Continues while the byte read is 255.
	p.Label("readExtended")
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	emitInc16(p, zpSrcLo, zpSrcHi, "readExtended_srcInc")
	p.Emit("TAX", asm6502.Implied, asm6502.Operand{})
	p.Emit("CLC", asm6502.Implied, asm6502.Operand{})
	p.Emit("ADC", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BCC", asm6502.Relative, asm6502.Sym("readExtended_noCarry"))
	p.Emit("INC", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Label("readExtended_noCarry")
	p.Emit("CPX", asm6502.Immediate, asm6502.Imm(255))
	p.Emit("BEQ", asm6502.Relative, asm6502.Sym("readExtended"))
	p.Implied("RTS")

	p.Label(tokenScratchLabel)
	p.Byte(0)
	p.Label("decompSupportEnd")
}

// emitCompareDstDone appends a 16-bit compare of the running destination
// cursor against the compile-time-known end address, branching to
// doneLabel once the cursor has reached or passed it and branching to
// notDoneLabel otherwise. It emits notDoneLabel (and a private _viaDone
// label) right after the check, but never doneLabel itself, so the same
// doneLabel can be the target of more than one check (this routine runs it
// after both the literal copy and the match copy of every token).
func emitCompareDstDone(p *asm6502.Program, dstEnd uint16, doneLabel, notDoneLabel string) {
	viaDone := notDoneLabel + "_viaDone"

	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpDstHi))
	p.Emit("CMP", asm6502.Immediate, asm6502.Imm(uint16(byte(dstEnd>>8))))
	p.Emit("BCC", asm6502.Relative, asm6502.Sym(notDoneLabel))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(viaDone))
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpDstLo))
	p.Emit("CMP", asm6502.Immediate, asm6502.Imm(uint16(byte(dstEnd))))
	p.Emit("BCC", asm6502.Relative, asm6502.Sym(notDoneLabel))
	p.Label(viaDone)
	// doneLabel may be far away (the end of a long token loop), outside
	// relative branch range, so the actual jump there is unconditional.
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym(doneLabel))
	p.Label(notDoneLabel)
}

// emitCountedCopy appends a loop copying the 16-bit count currently held in
// zpCntLo/zpCntHi from the zero-page indirect pointer srcPtrLo to dstPtrLo,
// one byte at a time, decrementing the count to zero. It is used for both
// the literal-run copy (srcPtrLo == zpSrcLo) and the match copy
// (srcPtrLo == zpMatLo); the two call sites only differ in which pointer
// also advances alongside zpDst.
func emitCountedCopy(p *asm6502.Program, suffix string, srcPtrLo, srcPtrHi byte) {
	loop := "copyLoop_" + suffix
	body := "copyBody_" + suffix
	done := "copyDone_" + suffix

	p.Label(loop)
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(body))
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Emit("BEQ", asm6502.Relative, asm6502.Sym(done))
	p.Label(body)
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(uint16(srcPtrLo)))
	p.Emit("STA", asm6502.IndirectY, asm6502.Imm(zpDstLo))
	emitInc16(p, srcPtrLo, srcPtrHi, "copySrcInc_"+suffix)
	emitInc16(p, zpDstLo, zpDstHi, "copyDstInc_"+suffix)

	// 16-bit decrement of zpCnt.
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym("copyDecLoOnly_"+suffix))
	p.Emit("DEC", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Label("copyDecLoOnly_" + suffix)
	p.Emit("DEC", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym(loop))
	p.Label(done)
}

// emitDecompressBlock appends one full inlined decompression pass to p: it
// reads tokens (the LZSA1-style stream from package lzsa with its 5-byte
// header already stripped by the caller) embedded under tokensLabel, and
// writes decompLen decompressed bytes starting at dstStart. offsetWidth is
// the width byte package lzsa chose for this stream (0 = one-byte
// back-references, 1 = two-byte) — known at Go build time, so the 6502
// side never has to branch on it at runtime.
//
// suffix must be unique per call site; every call also shares the single
// readExtended subroutine and token scratch byte this Program carries (see
// ensureDecompSupport), so the six calls in the same Loader program cost one
// copy of that shared machinery, not six.
func emitDecompressBlock(p *asm6502.Program, suffix, tokensLabel string, offsetWidth byte, dstStart uint16, decompLen int) {
	emitDecompressBlockFromOperands(p, suffix, asm6502.LoByte(tokensLabel), asm6502.HiByte(tokensLabel), offsetWidth, dstStart, decompLen)
}

// emitDecompressBlockFromAddr is emitDecompressBlock for a token stream
// that has already been copied to a known runtime address (see
// loader.go's emitRegionDecompress) rather than one still sitting
// at its inline label.
func emitDecompressBlockFromAddr(p *asm6502.Program, suffix string, srcAddr uint16, offsetWidth byte, dstStart uint16, decompLen int) {
	emitDecompressBlockFromOperands(p, suffix,
		asm6502.Imm(uint16(byte(srcAddr))), asm6502.Imm(uint16(byte(srcAddr>>8))),
		offsetWidth, dstStart, decompLen)
}

func emitDecompressBlockFromOperands(p *asm6502.Program, suffix string, srcLo, srcHi asm6502.Operand, offsetWidth byte, dstStart uint16, decompLen int) {
	ensureDecompSupport(p)
	dstEnd := dstStart + uint16(decompLen)
	lbl := func(name string) string { return fmt.Sprintf("%s_%s", name, suffix) }

	p.Emit("LDA", asm6502.Immediate, srcLo)
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpSrcLo))
	p.Emit("LDA", asm6502.Immediate, srcHi)
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpSrcHi))

	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(dstStart))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpDstLo))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(dstStart>>8))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpDstHi))

	p.Label(lbl("tokenLoop"))

	// Read the token byte, stash it, advance the source cursor.
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.Absolute, asm6502.Sym(tokenScratchLabel))
	emitInc16(p, zpSrcLo, zpSrcHi, lbl("tokenSrcInc"))

	// ll = token >> 6 into zpCnt (16-bit, high byte zeroed).
	p.Emit("LDA", asm6502.Absolute, asm6502.Sym(tokenScratchLabel))
	for i := 0; i < 6; i++ {
		p.Emit("LSR", asm6502.Accumulator, asm6502.Operand{})
	}
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntHi))

	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("CMP", asm6502.Immediate, asm6502.Imm(3))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(lbl("litDirect")))
	p.Emit("JSR", asm6502.Absolute, asm6502.Sym("readExtended"))
	p.Label(lbl("litDirect"))

	emitCountedCopy(p, lbl("lit"), zpSrcLo, zpSrcHi)

	emitCompareDstDone(p, dstEnd, lbl("allDone"), lbl("continueMatch"))

	// mm = token & 0x3F into zpCnt, then +minMatch(2), with extension if
	// mm saturated at 63.
	p.Emit("LDA", asm6502.Absolute, asm6502.Sym(tokenScratchLabel))
	p.Emit("AND", asm6502.Immediate, asm6502.Imm(0x3F))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntHi))

	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("CMP", asm6502.Immediate, asm6502.Imm(63))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(lbl("mmDirect")))
	p.Emit("JSR", asm6502.Absolute, asm6502.Sym("readExtended"))
	p.Label(lbl("mmDirect"))

	p.Emit("CLC", asm6502.Implied, asm6502.Operand{})
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("ADC", asm6502.Immediate, asm6502.Imm(2))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BCC", asm6502.Relative, asm6502.Sym(lbl("mmNoCarry")))
	p.Emit("INC", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Label(lbl("mmNoCarry"))

	// Read the offset (value - 1) into zpMat, then turn it into a true
	// offset and finally into a match source pointer: matSrc = dst - offset.
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpMatLo))
	if offsetWidth == 0 {
		p.Emit("LDA", asm6502.Immediate, asm6502.Imm(0))
		p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpMatHi))
		emitInc16(p, zpSrcLo, zpSrcHi, lbl("offSrcInc"))
	} else {
		p.Emit("LDY", asm6502.Immediate, asm6502.Imm(1))
		p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
		p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpMatHi))
		emitAdd16Imm(p, zpSrcLo, zpSrcHi, 2)
	}
	emitInc16(p, zpMatLo, zpMatHi, lbl("offPlusOne"))

	p.Emit("SEC", asm6502.Implied, asm6502.Operand{})
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpDstLo))
	p.Emit("SBC", asm6502.ZeroPage, asm6502.Imm(zpMatLo))
	p.Implied("PHA")
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpDstHi))
	p.Emit("SBC", asm6502.ZeroPage, asm6502.Imm(zpMatHi))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpMatHi))
	p.Implied("PLA")
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpMatLo))

	emitCountedCopy(p, lbl("mat"), zpMatLo, zpMatHi)

	emitCompareDstDone(p, dstEnd, lbl("allDone"), lbl("loopBack"))
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym(lbl("tokenLoop")))

	p.Label(lbl("allDone"))
}

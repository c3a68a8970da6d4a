package restore

import "github.com/tommyo123/vsfconv/pkg/asm6502"

// Block10Config is everything BuildBlock10 needs.
type Block10Config struct {
	Block9Start uint16
	Block9Len   int
	Block9Fill  byte

	// ZeroPageTail is the snapshot's true $00F8..=$00FF contents. The
	// decompressor used that range as scratch all the way through the
	// Loader and Block 9 (see zeropage.go), so it can only be restored to
	// its real value once both are done running.
	ZeroPageTail [zpTailLen]byte

	FinalOrigin uint16
}

// BuildBlock10 emits Block 10: erase Block 9's own footprint, put the real
// zero-page tail back, then hand off to the final stage.
func BuildBlock10(origin uint16, cfg Block10Config) *asm6502.Program {
	p := asm6502.NewProgram(origin)

	emitZeroFillRange(p, cfg.Block9Start, cfg.Block9Len, cfg.Block9Fill, "b10eraseB9")

	for i, b := range cfg.ZeroPageTail {
		p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(b)))
		p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(uint16(0xF8+i)))
	}

	p.Emit("JMP", asm6502.Absolute, asm6502.Imm(cfg.FinalOrigin))

	return p
}

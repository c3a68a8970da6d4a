package restore

import (
	"fmt"

	"github.com/tommyo123/vsfconv/pkg/asm6502"
	"github.com/tommyo123/vsfconv/pkg/blockalloc"
)

// PreserveSource is one of the eight scattered locations the Loader stage
// populated with a slice of the snapshot's original $0100..=$01FF bytes
// from a literal it carries, after its main-RAM passes (see loader.go). Block 9
// copies it into its page-1 target, then zero-fills the scratch location
// back to the uniform value RamScanner found there.
type PreserveSource struct {
	Block     blockalloc.Block // where the literal bytes currently live
	FillValue byte             // the run's original uniform byte
}

// Block9Config is everything BuildBlock9 needs, all of it resolved by the
// allocator and the parsed snapshot before codegen reaches this stage.
type Block9Config struct {
	Preserve [8]PreserveSource

	VectorBytes [16]byte // snapshot's $FFF0..=$FFFF
	VectorStart uint16

	FinalTarget uint16
	FinalBytes  []byte

	Block10Origin uint16
	Block10Bytes  []byte
}

// BuildBlock9 emits Block 9. The whole chain from here to the synthetic
// RTI in the final stage runs via JMP, never JSR/RTS across stage
// boundaries — no stage after this point ever has a meaningful return
// address on the hardware stack, which is what makes it safe for this
// stage to freely overwrite all of page 1 including whatever the live
// system's own stack pointer currently happens to point at.
func BuildBlock9(origin uint16, cfg Block9Config) *asm6502.Program {
	p := asm6502.NewProgram(origin)

	for i, src := range cfg.Preserve {
		target := uint16(0x0100 + i*32)
		tag := fmt.Sprintf("b9preserve%d", i)
		emitCopyRange(p, src.Block.Start, target, src.Block.Length, tag)
		emitZeroFillRange(p, src.Block.Start, src.Block.Length, src.FillValue, tag+"_erase")
	}

	// The final stage's own code occupies a sub-window of page 1 that the
	// preserve copy above just overwrote with the snapshot's original
	// bytes; punch the final stage's bytes back in now, as the very last
	// thing this stage does to page 1. The literal blob is carried inline,
	// jumped over so it is never executed as code.
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym("b9afterFinalLiteral"))
	p.Label("b9finalStageLiteral")
	p.Byte(cfg.FinalBytes...)
	p.Label("b9afterFinalLiteral")
	emitCopyRangeFromLabel(p, "b9finalStageLiteral", cfg.FinalTarget, len(cfg.FinalBytes), "b9finalPlace")

	p.Emit("JMP", asm6502.Absolute, asm6502.Sym("b9afterVectorLiteral"))
	p.Label("b9vectorLiteral")
	p.Byte(cfg.VectorBytes[:]...)
	p.Label("b9afterVectorLiteral")
	emitCopyRangeFromLabel(p, "b9vectorLiteral", cfg.VectorStart, len(cfg.VectorBytes), "b9vectorCopy")

	// Block 10 never rides along in the PRG/CRT image at its own target
	// address — like the final stage above, it only exists as this carried
	// blob until this copy lands it where its own JMP chain expects it.
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym("b9afterBlock10Literal"))
	p.Label("b9block10Literal")
	p.Byte(cfg.Block10Bytes...)
	p.Label("b9afterBlock10Literal")
	emitCopyRangeFromLabel(p, "b9block10Literal", cfg.Block10Origin, len(cfg.Block10Bytes), "b9block10Place")

	p.Emit("JMP", asm6502.Absolute, asm6502.Imm(cfg.Block10Origin))

	return p
}

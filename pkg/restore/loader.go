package restore

import "github.com/tommyo123/vsfconv/pkg/asm6502"

// CompressedPayload is one LZSA1 stream (header already stripped) carried
// inline in the Loader's own PRG footprint.
//
// The four small regions (color, VIC, SID, zero page) are copied to
// RegionAddr — a blockalloc-placed FreeRun scratch address — and
// decompressed from there. Their outputs land in chip registers and zero
// page, never in the RAM holding the scratch, and the scratch dirt itself
// sits inside the main-RAM restore range, so the later main passes
// overwrite it with the snapshot's bytes.
//
// The two main-RAM payloads decompress straight from their inline blobs
// instead (RegionAddr unused): their outputs sweep nearly all of RAM, so
// any scratch copy would risk being clobbered mid-decompression or left
// dirty in the restored image — whereas the Loader's own footprint is
// excluded from every restore target and keeps the tokens intact for the
// whole run.
type CompressedPayload struct {
	Label       string
	Tokens      []byte
	OffsetWidth byte
	DstStart    uint16
	DecompLen   int
	RegionAddr  uint16
}

// PreserveBlob is one of the eight scattered slices of the snapshot's
// original $0100..=$01FF bytes, carried as a literal inside the Loader (so
// the Loader's own stack use cannot disturb it) and poked out to its
// allocated scratch address after the main-RAM passes.
type PreserveBlob struct {
	Bytes  []byte
	Target uint16
}

// CIAEarlyImage is the subset of one CIA's state the Loader writes up
// front. Timer low/high bytes come from the latched values rather than
// Regs (the live countdown is not what a restore should reproduce); CRA,
// CRB, and the raw ICR register are excluded entirely — Control Register
// A/B are deferred to the final stage so timers do not start early, and
// ICR is written through an acknowledge-then-set-mask sequence instead of
// a plain store.
type CIAEarlyImage struct {
	Regs        [16]byte
	TimerALatch uint16
	TimerBLatch uint16
	ICRMask     byte
	Base        uint16 // $DC00 or $DD00
}

// LoaderConfig is everything BuildLoader needs. mainLow/mainHigh are the
// main-RAM payload split around the Loader's own resident footprint (see
// the CompressedPayload doc comment): the Loader cannot decompress
// through the memory it is currently executing from, so that one address
// range is simply excluded from the restore target, the same accepted
// bootstrap-footprint limitation the token scratch bytes carry.
type LoaderConfig struct {
	Color    CompressedPayload
	VIC      CompressedPayload
	SID      CompressedPayload
	ZeroPage CompressedPayload
	MainLow  CompressedPayload
	MainHigh CompressedPayload

	CIA1 CIAEarlyImage
	CIA2 CIAEarlyImage

	Preserve [8]PreserveBlob

	Block9Bytes  []byte
	Block9Target uint16
}

// BuildLoader emits stage L: the only stage that runs from its original
// PRG load address rather than a scratch/page-1 location, and the only
// stage whose own code is never restored to snapshot-exact state (see
// zeropage.go and decompressor.go). It decompresses color RAM, VIC, SID,
// and zero page under the default $37 banking (ROM out of the way is not
// needed yet, I/O must stay visible), writes the early CIA images, then
// switches to RAM-only banking before the two main-RAM payloads, scatters
// the eight preserve blobs to their allocated addresses, copies Block 9
// into place, and jumps there.
func BuildLoader(origin uint16, cfg LoaderConfig) *asm6502.Program {
	p := asm6502.NewProgram(origin)

	p.Implied("SEI")
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(0x37))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(0x01))

	emitRegionDecompress(p, "color", cfg.Color)
	emitRegionDecompress(p, "vic", cfg.VIC)
	emitRegionDecompress(p, "sid", cfg.SID)

	emitCIAEarlyWrite(p, cfg.CIA1)
	emitCIAEarlyWrite(p, cfg.CIA2)

	emitRegionDecompress(p, "zp", cfg.ZeroPage)

	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(0x34))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(0x01))

	emitInlineDecompress(p, "mainLow", cfg.MainLow)
	emitInlineDecompress(p, "mainHigh", cfg.MainHigh)

	for i, blob := range cfg.Preserve {
		label := preserveBlobLabel(i)
		emitLiteralBlob(p, label, blob.Bytes)
		emitCopyRangeFromLabel(p, label, blob.Target, len(blob.Bytes), preserveBlobLabel(i)+"_copy")
	}

	emitLiteralBlob(p, "loaderBlock9Blob", cfg.Block9Bytes)
	emitCopyRangeFromLabel(p, "loaderBlock9Blob", cfg.Block9Target, len(cfg.Block9Bytes), "loaderBlock9Copy")

	p.Emit("JMP", asm6502.Absolute, asm6502.Imm(cfg.Block9Target))

	return p
}

// emitRegionDecompress embeds payload's tokens inline, copies them to its
// allocated scratch address, and decompresses from there (see the
// CompressedPayload doc comment for when the scratch copy is safe).
func emitRegionDecompress(p *asm6502.Program, suffix string, payload CompressedPayload) {
	emitLiteralBlob(p, payload.Label, payload.Tokens)
	emitCopyRangeFromLabel(p, payload.Label, payload.RegionAddr, len(payload.Tokens), suffix+"_regionCopy")
	emitDecompressBlockFromAddr(p, suffix, payload.RegionAddr, payload.OffsetWidth, payload.DstStart, payload.DecompLen)
}

// emitInlineDecompress decompresses straight from the inline blob, for the
// main-RAM payloads whose restore range covers every plausible scratch
// address (see the CompressedPayload doc comment).
func emitInlineDecompress(p *asm6502.Program, suffix string, payload CompressedPayload) {
	emitLiteralBlob(p, payload.Label, payload.Tokens)
	emitDecompressBlock(p, suffix, payload.Label, payload.OffsetWidth, payload.DstStart, payload.DecompLen)
}

func preserveBlobLabel(i int) string {
	const letters = "01234567"
	return "loaderPreserve" + string(letters[i])
}

// cia register offsets this stage writes directly, skipping the timer
// bytes (rebuilt from the latches below), ICR (ack/set instead), and
// CRA/CRB (deferred to the final stage).
var ciaDirectOffsets = []byte{0x00, 0x01, 0x02, 0x03, 0x08, 0x09, 0x0A, 0x0B, 0x0C}

// emitCIAEarlyWrite writes one CIA's non-timing register image: PRA/PRB/
// DDRA/DDRB and the four TOD bytes and SDR directly from the snapshot,
// TA/TB from the latched 16-bit values (not the live countdown), and the
// interrupt mask through an acknowledge (read $xD clears pending flags)
// followed by a set-mask write (bit 7 high selects "set these bits").
func emitCIAEarlyWrite(p *asm6502.Program, img CIAEarlyImage) {
	for _, off := range ciaDirectOffsets {
		p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(img.Regs[off])))
		p.Emit("STA", asm6502.Absolute, asm6502.Imm(img.Base+uint16(off)))
	}

	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(img.TimerALatch))))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(img.Base+0x04))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(img.TimerALatch>>8))))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(img.Base+0x05))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(img.TimerBLatch))))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(img.Base+0x06))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(img.TimerBLatch>>8))))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(img.Base+0x07))

	emitAckAndSetICRMask(p, img.Base+0x0D, img.ICRMask)
}

// emitAckAndSetICRMask reads the CIA's ICR (acknowledging/clearing any
// pending interrupt flags latched during bank switching) and then writes
// the mask back with bit 7 forced high, the real CIA convention for "set
// these mask bits" rather than "replace the whole register".
func emitAckAndSetICRMask(p *asm6502.Program, icrAddr uint16, mask byte) {
	p.Emit("LDA", asm6502.Absolute, asm6502.Imm(icrAddr))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(mask|0x80)))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(icrAddr))
}

// emitLiteralBlob appends a labeled raw-byte blob, jumped over so straight-
// line execution never falls into it as code.
func emitLiteralBlob(p *asm6502.Program, label string, data []byte) {
	if len(data) == 0 {
		return
	}
	skip := label + "_skip"
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym(skip))
	p.Label(label)
	p.Byte(data...)
	p.Label(skip)
}

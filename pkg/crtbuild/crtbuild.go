// Package crtbuild packages a restore.Stages result into a C64 cartridge
// (.crt) image: Magic Desk (ROML-only, minimum-complexity boot) or
// EasyFlash (ROML+ROMH, with a LOAD-hook serving embedded files). CRT
// multi-byte header fields are big-endian; this is the one place in the
// pipeline that departs from the PRG side's little-endian convention.
package crtbuild

import (
	"encoding/binary"
	"errors"

	"github.com/tommyo123/vsfconv/pkg/asm6502"
	"github.com/tommyo123/vsfconv/pkg/restore"
	"github.com/tommyo123/vsfconv/pkg/vserr"
)

const (
	bankSize = 0x2000 // 8 KiB per CHIP bank, both hardware types

	hwTypeMagicDesk = 0x13
	hwTypeEasyFlash = 0x20

	chipTypeROM   = 0
	chipTypeFlash = 2

	minMagicDeskBanks = 8
	maxMagicDeskBanks = 64
)

// bankSelect is the Magic Desk/EasyFlash bank-select register: writing a
// bank number there pages that bank's ROML into $8000..=$9FFF. Writing
// 0x80 additionally unmaps the cartridge entirely on Magic Desk hardware.
const (
	bankSelect       = 0xDE00
	bankDisableBit   = 0x80
	easyflashControl = 0xDE02
	efGame16K        = 0x00 // GAME low: ROML+ROMH both mapped, BASIC ROM hidden
	efGame8K         = 0x01 // GAME high: ROML only, BASIC ROM visible at $A000
)

// trampolineLow, trampolineHigh are the two candidate page-1 addresses
// for the boot trampoline's disable-and-jump stub, chosen by the
// snapshot's stack pointer the same way RestoreCodegen chooses the final
// stage's placement.
const (
	trampolineLow         = 0x0100
	trampolineHigh        = 0x0334
	trampolineSPThreshold = 0x10
)

// basicWarmStart is the KERNAL's BASIC warm-start continuation address:
// whatever remains of cold-start init before READY. prints.
const basicWarmStart = 0xA474

// codeOffset is where cartridge code starts inside bank 0, right after
// the two autostart vectors and the CBM80 signature.
const codeOffset = 0x0004 + 5

// zero-page scratch shared by every routine this package assembles. None
// of it needs to survive a routine's own return in the boot-trampoline
// case (everything there is about to be overwritten by the restore
// payload); the EasyFlash LOAD-hook reuses the same bytes only while
// servicing one LOAD call, the same way the C64's own KERNAL treats $22
// upward as transient LOAD/SAVE scratch.
const (
	zpSrcLo = 0xFB
	zpSrcHi = 0xFC
	zpDstLo = 0xFD
	zpDstHi = 0xFE
	zpCntLo = 0x02
	zpCntHi = 0x03
	zpTmp0  = 0x04
	zpTmp1  = 0x05
	zpTmp2  = 0x06
	zpTmp3  = 0x07
)

// KERNAL SETNAM leaves the requested filename's length and pointer here.
const (
	knFileNameLen = 0xB7
	knFileNamePtr = 0xBB
)

// IncludeFile is one file embedded into an EasyFlash image's LOAD-hook
// directory, supplying the --include-dir flag's payload. Bytes must
// already carry the two-byte load-address header every C64 PRG does.
type IncludeFile struct {
	Name  string
	Bytes []byte
}

// Options selects cartridge subtype and cosmetic fields.
type Options struct {
	MagicDesk  bool // force Magic Desk even when Includes is non-empty
	Name       string
	Includes   []IncludeFile
	SnapshotSP byte
}

// Build packages stages into a complete CRT byte stream.
func Build(stages *restore.Stages, opts Options) ([]byte, error) {
	if opts.MagicDesk || len(opts.Includes) == 0 {
		return buildMagicDesk(stages, opts)
	}
	return buildEasyFlash(stages, opts)
}

func trampolineTarget(sp byte) uint16 {
	if sp >= trampolineSPThreshold {
		return trampolineLow
	}
	return trampolineHigh
}

func writeHeader(hwType byte, exrom, game byte, name string) []byte {
	h := make([]byte, 0x40)
	copy(h, []byte("C64 CARTRIDGE   "))
	binary.BigEndian.PutUint32(h[0x10:], 0x40)   // header length
	binary.BigEndian.PutUint16(h[0x14:], 0x0100) // version 1.00
	binary.BigEndian.PutUint16(h[0x16:], uint16(hwType))
	h[0x18] = exrom
	h[0x19] = game
	nameBytes := make([]byte, 32)
	copy(nameBytes, []byte(name))
	copy(h[0x20:], nameBytes)
	return h
}

func chipRecord(bank int, loadAddr uint16, chipType byte, data []byte) []byte {
	rec := make([]byte, 0, 16+len(data))
	rec = append(rec, []byte("CHIP")...)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(16+len(data)))
	rec = append(rec, lenBuf...)
	typeBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(typeBuf, uint16(chipType))
	rec = append(rec, typeBuf...)
	bankBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(bankBuf, uint16(bank))
	rec = append(rec, bankBuf...)
	addrBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(addrBuf, loadAddr)
	rec = append(rec, addrBuf...)
	sizeBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(sizeBuf, uint16(len(data)))
	rec = append(rec, sizeBuf...)
	rec = append(rec, data...)
	return rec
}

// cbm80Signature is the five-byte pattern the KERNAL looks for at $8004
// to auto-start a cartridge.
var cbm80Signature = []byte{0xC3, 0xC2, 0xCD, 0x38, 0x30}

// writeAutostartVectors fills bank 0's cold/warm-start vectors ($8000/01,
// $8002/03) and the CBM80 signature that makes the KERNAL honor them.
func writeAutostartVectors(bank []byte, entry uint16) {
	bank[0] = byte(entry)
	bank[1] = byte(entry >> 8)
	bank[2] = byte(entry)
	bank[3] = byte(entry >> 8)
	copy(bank[0x0004:], cbm80Signature)
}

// buildMagicDesk emits ROML-only banks. Bank 0 carries the autostart
// vectors, the CBM80 signature, and a boot trampoline that copies the
// restore payload (the Loader's assembled bytes) from ROM into RAM,
// switching in subsequent banks at $DE00 as needed, before jumping to it.
func buildMagicDesk(stages *restore.Stages, opts Options) ([]byte, error) {
	payload := stages.Loader.Bytes
	trampoline, n0, banks, err := assembleTrampoline(opts, len(payload))
	if err != nil {
		return nil, err
	}
	if banks < minMagicDeskBanks {
		banks = minMagicDeskBanks
	}
	if banks > maxMagicDeskBanks {
		banks = maxMagicDeskBanks
	}

	bank0 := make([]byte, bankSize)
	writeAutostartVectors(bank0, 0x8000+codeOffset)
	copy(bank0[codeOffset:], trampoline)
	copy(bank0[codeOffset+len(trampoline):], payload[:n0])

	out := writeHeader(hwTypeMagicDesk, 0, 1, opts.Name)
	out = append(out, chipRecord(0, 0x8000, chipTypeROM, bank0)...)

	offset := n0
	for bank := 1; bank < banks; bank++ {
		data := make([]byte, bankSize)
		end := offset + bankSize
		if end > len(payload) {
			end = len(payload)
		}
		if offset < len(payload) {
			copy(data, payload[offset:end])
		}
		out = append(out, chipRecord(bank, 0x8000, chipTypeROM, data)...)
		offset += bankSize
	}

	return out, nil
}

// buildEasyFlash emits ROML+ROMH per bank. Bank 0's ROML carries the
// autostart vectors and a hook-install routine (rather than an immediate
// auto-restore): it patches the KERNAL LOAD/SAVE vectors so the user can
// LOAD any embedded file, including a "RESTORE" entry that is the
// restore payload itself wrapped as an ordinary relocating PRG, then
// falls through to BASIC's warm start. The dispatcher the hook vector
// points at stays in ROML; ROMH carries the name-match/copy routine it
// calls, the directory, and the file bytes.
func buildEasyFlash(stages *restore.Stages, opts Options) ([]byte, error) {
	restoreEntry := IncludeFile{Name: "RESTORE", Bytes: restorePRG(stages)}
	includes := append([]IncludeFile{restoreEntry}, opts.Includes...)

	hook, err := assembleLoadHook(len(includes))
	if err != nil {
		return nil, err
	}
	install, err := assembleHookInstall()
	if err != nil {
		return nil, err
	}

	headerLen := len(includes) * directoryEntrySize
	fileBase := 0xA000 + len(hook) + headerLen
	directory, fileData, err := buildDirectory(includes, uint16(fileBase))
	if err != nil {
		return nil, err
	}

	romhUsed := len(hook) + len(directory) + len(fileData)
	if romhUsed > bankSize {
		return nil, &vserr.CompressionOverflow{Region: "easyflash-romh", Size: romhUsed, Limit: bankSize}
	}

	bank0ROML := make([]byte, bankSize)
	writeAutostartVectors(bank0ROML, 0x8000+codeOffset)
	copy(bank0ROML[codeOffset:], install)

	bank0ROMH := make([]byte, bankSize)
	copy(bank0ROMH, hook)
	copy(bank0ROMH[len(hook):], directory)
	copy(bank0ROMH[len(hook)+len(directory):], fileData)

	out := writeHeader(hwTypeEasyFlash, 0, 1, opts.Name)
	out = append(out, chipRecord(0, 0x8000, chipTypeFlash, bank0ROML)...)
	out = append(out, chipRecord(0, 0xA000, chipTypeFlash, bank0ROMH)...)

	return out, nil
}

// restorePRG wraps the assembled Loader as a plain PRG blob (two-byte
// little-endian load address, then the code) so the EasyFlash LOAD-hook
// can serve it exactly like any other embedded file.
func restorePRG(stages *restore.Stages) []byte {
	out := make([]byte, 2, 2+len(stages.Loader.Bytes))
	out[0] = byte(stages.Loader.Origin)
	out[1] = byte(stages.Loader.Origin >> 8)
	return append(out, stages.Loader.Bytes...)
}

const directoryEntrySize = 16 + 2 + 2 // name + absolute address + length

// buildDirectory lays out the EasyFlash LOAD-hook directory: one
// 16-byte-PETSCII-name/address/length entry per include file (address
// is the file's absolute ROMH location, so the hook never has to add a
// relative offset at runtime), followed by the concatenated file bytes.
func buildDirectory(includes []IncludeFile, base uint16) (directory, data []byte, err error) {
	directory = make([]byte, 0, len(includes)*directoryEntrySize)
	data = make([]byte, 0)

	addr := base
	for _, f := range includes {
		if len(f.Bytes) == 0 {
			return nil, nil, &vserr.IoError{Op: "embed " + f.Name, Err: errEmptyInclude}
		}
		name := make([]byte, 16)
		copy(name, []byte(f.Name))
		entry := make([]byte, 0, directoryEntrySize)
		entry = append(entry, name...)
		addrBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(addrBuf, addr)
		entry = append(entry, addrBuf...)
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(f.Bytes)))
		entry = append(entry, lenBuf...)
		directory = append(directory, entry...)

		data = append(data, f.Bytes...)
		addr += uint16(len(f.Bytes))
	}

	return directory, data, nil
}

var errEmptyInclude = errors.New("empty file")

// --- boot trampoline (Magic Desk) ---

// assembleTrampoline builds the bank-0 routine that copies the restore
// payload out of ROM into RAM and jumps to it. Its own length only
// depends on program structure, never on the operand values substituted
// in (see asm6502.Assembler and pkg/restore/codegen.go's identical
// two-pass technique), so a first pass with a placeholder payload
// address is enough to learn the real one without a sizing fixpoint.
func assembleTrampoline(opts Options, payloadLen int) (code []byte, n0, banks int, err error) {
	asm := asm6502.NewAssembler()
	origin := uint16(0x8000 + codeOffset)
	target := trampolineTarget(opts.SnapshotSP)

	probe, err := asm.Assemble(trampolineProgram(origin, 0, 1, target))
	if err != nil {
		return nil, 0, 0, err
	}
	tlen := len(probe.Bytes)

	n0 = bankSize - (codeOffset + tlen)
	if n0 > payloadLen {
		n0 = payloadLen
	}
	banks = 1
	if remaining := payloadLen - n0; remaining > 0 {
		banks += (remaining + bankSize - 1) / bankSize
	}
	payloadAddr := origin + uint16(tlen)

	res, err := asm.Assemble(trampolineProgram(origin, payloadAddr, banks, target))
	if err != nil {
		return nil, 0, 0, err
	}
	return res.Bytes, n0, banks, nil
}

// trampolineProgram builds the shared, bank-count-independent copy loop:
// copy bank 0's tail into the Loader's RAM origin, then for each further
// bank, page it in at $DE00 and copy a full bank's worth, then relocate
// a tiny disable-and-jump stub into RAM (since the cartridge can't keep
// being fetched from the instant it unmaps itself) and jump there.
func trampolineProgram(origin, payloadAddr uint16, banks int, target uint16) *asm6502.Program {
	p := asm6502.NewProgram(origin)

	p.Implied("SEI")

	emitSetPtr(p, zpSrcLo, zpSrcHi, asm6502.Imm(uint16(byte(payloadAddr))), asm6502.Imm(uint16(byte(payloadAddr>>8))))
	loaderOrigin := uint16(restore.LoaderOrigin)
	emitSetPtr(p, zpDstLo, zpDstHi, asm6502.Imm(uint16(byte(loaderOrigin))), asm6502.Imm(uint16(byte(loaderOrigin>>8))))
	// The bank-0 tail length is whatever's left in the bank after this
	// routine's own code; payloadAddr already marks where that tail
	// starts, so its length is simply bankSize - (payloadAddr-0x8000).
	n0 := bankSize - int(int(payloadAddr)-0x8000)
	emitSetCount(p, uint16(n0))
	p.Emit("JSR", asm6502.Absolute, asm6502.Sym("cb_copy_chunk"))

	// Always emit this loop, even when the payload fits in bank 0 alone
	// (banks == 1): CMP against banks is then immediately true on the
	// first iteration, so it falls straight through having copied
	// nothing. Branching this block out of the program entirely when
	// banks == 1 would make pass 1's placeholder-banks probe a different
	// length than pass 2's real-banks assembly, breaking the size
	// invariant the two-pass technique depends on.
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(1))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpTmp0))
	p.Label("cb_bank_loop")
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpTmp0))
	p.Emit("CMP", asm6502.Immediate, asm6502.Imm(uint16(banks)))
	p.Emit("BEQ", asm6502.Relative, asm6502.Sym("cb_banks_done"))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(bankSelect))
	emitSetPtr(p, zpSrcLo, zpSrcHi, asm6502.Imm(0x00), asm6502.Imm(0x80))
	emitSetCount(p, bankSize)
	p.Emit("JSR", asm6502.Absolute, asm6502.Sym("cb_copy_chunk"))
	p.Emit("INC", asm6502.ZeroPage, asm6502.Imm(zpTmp0))
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym("cb_bank_loop"))
	p.Label("cb_banks_done")

	emitSetPtr(p, zpSrcLo, zpSrcHi, asm6502.LoByte("cb_disable_stub"), asm6502.HiByte("cb_disable_stub"))
	emitSetPtr(p, zpDstLo, zpDstHi, asm6502.Imm(uint16(byte(target))), asm6502.Imm(uint16(byte(target>>8))))
	emitSetCount(p, disableStubLen)
	p.Emit("JSR", asm6502.Absolute, asm6502.Sym("cb_copy_chunk"))
	p.Emit("JMP", asm6502.Absolute, asm6502.Imm(target))

	emitCopyChunkSub(p, "cb_copy_chunk")

	p.Label("cb_disable_stub")
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(bankDisableBit))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(bankSelect))
	p.Emit("JMP", asm6502.Absolute, asm6502.Imm(restore.LoaderOrigin))

	return p
}

const disableStubLen = 8 // LDA#+STA abs+JMP abs, fixed regardless of target/origin

func emitSetPtr(p *asm6502.Program, lo, hi byte, loVal, hiVal asm6502.Operand) {
	p.Emit("LDA", asm6502.Immediate, loVal)
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(uint16(lo)))
	p.Emit("LDA", asm6502.Immediate, hiVal)
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(uint16(hi)))
}

func emitSetCount(p *asm6502.Program, n uint16) {
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(n))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(uint16(byte(n>>8))))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
}

// emitInc16 is the carry-aware 16-bit increment idiom package restore
// uses throughout its own copy loops (see pkg/restore/decompressor.go).
func emitInc16(p *asm6502.Program, lo, hi byte, label string) {
	p.Emit("INC", asm6502.ZeroPage, asm6502.Imm(uint16(lo)))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(label))
	p.Emit("INC", asm6502.ZeroPage, asm6502.Imm(uint16(hi)))
	p.Label(label)
}

// emitCopyChunkSub appends a JSR/RTS subroutine copying zpCntLo/Hi bytes
// from (zpSrcLo) to (zpDstLo), the same 16-bit zero-page-pointer idiom
// package restore's copy.go uses inline, here factored out since it is
// called from several distinct points in the trampoline.
func emitCopyChunkSub(p *asm6502.Program, label string) {
	loop := label + "_loop"
	body := label + "_body"
	done := label + "_done"

	p.Label(label)
	p.Label(loop)
	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(body))
	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Emit("BEQ", asm6502.Relative, asm6502.Sym(done))
	p.Label(body)
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.IndirectY, asm6502.Imm(zpDstLo))
	emitInc16(p, zpSrcLo, zpSrcHi, label+"_srcInc")
	emitInc16(p, zpDstLo, zpDstHi, label+"_dstInc")
	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym(label+"_decLoOnly"))
	p.Emit("DEC", asm6502.ZeroPage, asm6502.Imm(zpCntHi))
	p.Label(label + "_decLoOnly")
	p.Emit("DEC", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym(loop))
	p.Label(done)
	p.Implied("RTS")
}

// --- EasyFlash LOAD-hook ---

// assembleHookInstall builds the tiny ROML routine the CBM80 autostart
// reaches: it saves the KERNAL's own LOAD vector, points LOAD at the
// ROML dispatcher and SAVE at a no-op, then falls through to BASIC's
// warm start so the user gets a normal READY. prompt with the hook
// active. The dispatcher itself lives here in ROML rather than ROMH:
// ROML is always mapped, but ROMH shares its address window with BASIC
// ROM and is only switched in for the moment ef_serve (see
// assembleLoadHook) needs it, so the KERNAL LOAD vector must never point
// directly into ROMH.
func assembleHookInstall() ([]byte, error) {
	p := asm6502.NewProgram(0x8000 + codeOffset)

	p.Emit("LDA", asm6502.Absolute, asm6502.Imm(0x0330))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpTmp0))
	p.Emit("LDA", asm6502.Absolute, asm6502.Imm(0x0331))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpTmp1))

	p.Emit("LDA", asm6502.Immediate, asm6502.LoByte("ef_dispatch"))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(0x0330))
	p.Emit("LDA", asm6502.Immediate, asm6502.HiByte("ef_dispatch"))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(0x0331))

	p.Emit("LDA", asm6502.Immediate, asm6502.LoByte("ef_save_noop"))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(0x0332))
	p.Emit("LDA", asm6502.Immediate, asm6502.HiByte("ef_save_noop"))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(0x0333))

	p.Emit("JMP", asm6502.Absolute, asm6502.Imm(basicWarmStart))

	// Reached on every later LOAD call (the vector above now points
	// here permanently): page ROMH in just long enough for ef_serve to
	// compare the requested name and copy a match, then page it back
	// out before chaining through or returning to BASIC.
	p.Label("ef_dispatch")
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(efGame16K))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(easyflashControl))
	p.Emit("JSR", asm6502.Absolute, asm6502.Imm(0xA000))
	// LDA/STA never touch carry, so ef_serve's success/failure flag
	// survives the control-register restore below untouched.
	p.Emit("LDA", asm6502.Immediate, asm6502.Imm(efGame8K))
	p.Emit("STA", asm6502.Absolute, asm6502.Imm(easyflashControl))
	p.Emit("BCC", asm6502.Relative, asm6502.Sym("ef_dispatch_done"))
	p.Emit("JMP", asm6502.Indirect, asm6502.Imm(uint16(zpTmp0)))
	p.Label("ef_dispatch_done")
	p.Implied("RTS")

	p.Label("ef_save_noop")
	p.Emit("CLC", asm6502.Implied, asm6502.Operand{})
	p.Implied("RTS")

	asm := asm6502.NewAssembler()
	res, err := asm.Assemble(p)
	if err != nil {
		return nil, err
	}
	return res.Bytes, nil
}

// assembleLoadHook builds the ROMH-resident filename-matching/
// byte-serving routine, reached only via assembleHookInstall's
// ef_dispatch (which pages this window in first): on a directory match
// it copies the file to the address in its own two-byte PRG header,
// returns the end address in X/Y with carry clear; otherwise it returns
// with carry set so ef_dispatch can chain through to the KERNAL's own
// original LOAD vector.
//
// This hook always uses the relocating-load address embedded in the
// served file (the common LOAD"name",8 case); it does not honor a
// caller-supplied non-relocating secondary address.
func assembleLoadHook(numEntries int) ([]byte, error) {
	p := asm6502.NewProgram(0xA000)

	p.Label("ef_serve")
	emitSetPtr(p, zpSrcLo, zpSrcHi, asm6502.LoByte("ef_directory"), asm6502.HiByte("ef_directory"))
	p.Emit("LDX", asm6502.Immediate, asm6502.Imm(0))

	p.Label("ef_entry_loop")
	p.Emit("CPX", asm6502.Immediate, asm6502.Imm(uint16(numEntries)))
	p.Emit("BEQ", asm6502.Relative, asm6502.Sym("ef_notfound"))
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(0))

	p.Label("ef_compare_loop")
	p.Emit("CPY", asm6502.ZeroPage, asm6502.Imm(knFileNameLen))
	p.Emit("BEQ", asm6502.Relative, asm6502.Sym("ef_check_pad"))
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("CMP", asm6502.IndirectY, asm6502.Imm(knFileNamePtr))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym("ef_next_entry"))
	p.Emit("INY", asm6502.Implied, asm6502.Operand{})
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym("ef_compare_loop"))

	p.Label("ef_check_pad")
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("BNE", asm6502.Relative, asm6502.Sym("ef_next_entry"))
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym("ef_found"))

	p.Label("ef_next_entry")
	p.Emit("CLC", asm6502.Implied, asm6502.Operand{})
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpSrcLo))
	p.Emit("ADC", asm6502.Immediate, asm6502.Imm(directoryEntrySize))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpSrcLo))
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpSrcHi))
	p.Emit("ADC", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpSrcHi))
	p.Emit("INX", asm6502.Implied, asm6502.Operand{})
	p.Emit("JMP", asm6502.Absolute, asm6502.Sym("ef_entry_loop"))

	p.Label("ef_found")
	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(16))
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpTmp2)) // file addr hi (big-endian entry)
	p.Emit("INY", asm6502.Implied, asm6502.Operand{})
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpTmp3)) // file addr lo
	p.Emit("INY", asm6502.Implied, asm6502.Operand{})
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpTmp0)) // length hi
	p.Emit("INY", asm6502.Implied, asm6502.Operand{})
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpTmp1)) // length lo

	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpTmp3))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpSrcLo))
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpTmp2))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpSrcHi))

	p.Emit("LDY", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpDstLo))
	p.Emit("INY", asm6502.Implied, asm6502.Operand{})
	p.Emit("LDA", asm6502.IndirectY, asm6502.Imm(zpSrcLo))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpDstHi))
	emitInc16(p, zpSrcLo, zpSrcHi, "ef_found_srcInc1")
	emitInc16(p, zpSrcLo, zpSrcHi, "ef_found_srcInc2")

	p.Emit("SEC", asm6502.Implied, asm6502.Operand{})
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpTmp1))
	p.Emit("SBC", asm6502.Immediate, asm6502.Imm(2))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntLo))
	p.Emit("LDA", asm6502.ZeroPage, asm6502.Imm(zpTmp0))
	p.Emit("SBC", asm6502.Immediate, asm6502.Imm(0))
	p.Emit("STA", asm6502.ZeroPage, asm6502.Imm(zpCntHi))

	p.Emit("JSR", asm6502.Absolute, asm6502.Sym("ef_copy_chunk"))

	p.Emit("LDX", asm6502.ZeroPage, asm6502.Imm(zpDstLo))
	p.Emit("LDY", asm6502.ZeroPage, asm6502.Imm(zpDstHi))
	p.Emit("CLC", asm6502.Implied, asm6502.Operand{})
	p.Implied("RTS")

	p.Label("ef_notfound")
	p.Emit("SEC", asm6502.Implied, asm6502.Operand{})
	p.Implied("RTS")

	emitCopyChunkSub(p, "ef_copy_chunk")

	p.Label("ef_directory")

	asm := asm6502.NewAssembler()
	res, err := asm.Assemble(p)
	if err != nil {
		return nil, err
	}
	return res.Bytes, nil
}

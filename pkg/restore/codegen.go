// Package restore implements RestoreCodegen: the 6502 erasure-chain
// restore program (Loader, Block 9, Block 10, and the final stage) that
// reconstitutes a parsed snapshot's exact machine state on boot.
package restore

import (
	"github.com/tommyo123/vsfconv/pkg/asm6502"
	"github.com/tommyo123/vsfconv/pkg/blockalloc"
	"github.com/tommyo123/vsfconv/pkg/lzsa"
	"github.com/tommyo123/vsfconv/pkg/memscan"
	"github.com/tommyo123/vsfconv/pkg/vserr"
	"github.com/tommyo123/vsfconv/pkg/vsf"
)

// LoaderOrigin is the Loader's fixed code entry point: the BASIC stub
// PrgBuilder writes at $0801 executes "SYS 2061", i.e. $080D.
const LoaderOrigin = 0x080D

// maxFootprintIterations bounds the fixpoint that grows the excluded
// Loader-footprint range until it is large enough to actually contain the
// assembled Loader. Each iteration's size change is driven only by minor
// compression-boundary effects at the main-RAM split point, so this
// converges in one or two passes in practice.
const maxFootprintIterations = 6

const (
	colorDst, colorLen = 0xD800, 0x0400
	vicDst, vicLen     = 0xD000, 47
	sidDst, sidLen     = 0xD400, 29
	zpDst, zpLen       = 0x0002, 0x00F8 - 0x0002
	mainScanEnd        = memscan.ScanEnd
)

// BuildStages runs the full RestoreCodegen pipeline for one parsed
// snapshot: compresses the six LZSA1 payloads (color, VIC, SID, zero page,
// and main RAM below and above the Loader footprint), assembles Final/Block9/
// Block10 once to learn their sizes (instruction sizes never depend on the
// literal operand values substituted in, only on program structure — see
// asm6502.Assembler), asks blockalloc.Allocate to place everything, then
// re-assembles each stage for real. The Loader's own resident footprint is
// grown and the whole allocation re-run until the assembled Loader
// actually fits inside the footprint excluded from scanning.
//
// manualFree lists additional ranges the caller wants treated as free,
// supplied after an earlier AllocationFailed and zero-filled only in the
// scanner's own working copy of RAM — never in the copy the LZSA1
// compressor reads from, which must still see the snapshot's original
// bytes there.
func BuildStages(state *vsf.MachineState, manualFree [][2]uint16) (*Stages, error) {
	colorTokens, colorWidth, err := compressRegion(state.Color[:])
	if err != nil {
		return nil, err
	}
	vicTokens, vicWidth, err := compressRegion(state.VIC[:])
	if err != nil {
		return nil, err
	}
	sidTokens, sidWidth, err := compressRegion(state.SID[:])
	if err != nil {
		return nil, err
	}
	zpTokens, zpWidth, err := compressRegion(state.Mem[zpDst : zpDst+zpLen])
	if err != nil {
		return nil, err
	}

	asm := asm6502.NewAssembler()

	// Every probe below must keep each emit helper on the same side of its
	// own length<=0 guard that the real assembly will land on: only operand
	// values, never instruction structure, may differ between the sizing
	// pass and the placement pass. Placeholder lengths are therefore 1 (or
	// the fixed 32-byte preserve size), never 0.
	finalSize, err := assembleSize(asm, BuildFinal(0, FinalConfig{
		State:        state,
		Block10Len:   1,
		ZeroPageTail: zpTailBytes(state),
	}))
	if err != nil {
		return nil, err
	}

	block10SizeProbe, err := assembleSize(asm, BuildBlock10(0, Block10Config{
		Block9Len:    1,
		ZeroPageTail: zpTailBytes(state),
	}))
	if err != nil {
		return nil, err
	}

	var probePreserve [8]PreserveSource
	for i := range probePreserve {
		probePreserve[i] = PreserveSource{Block: blockalloc.Block{Length: 32}}
	}
	block9Size, err := assembleSize(asm, BuildBlock9(0, Block9Config{
		Preserve:     probePreserve,
		VectorBytes:  vectorBytes(state),
		VectorStart:  0xFFF0,
		FinalBytes:   make([]byte, finalSize),
		Block10Bytes: make([]byte, block10SizeProbe),
	}))
	if err != nil {
		return nil, err
	}

	block10Size, err := assembleSize(asm, BuildBlock10(0, Block10Config{
		Block9Len:    block9Size,
		ZeroPageTail: zpTailBytes(state),
	}))
	if err != nil {
		return nil, err
	}

	footprintLen := 0
	for iter := 0; iter < maxFootprintIterations; iter++ {
		footprintEnd := LoaderOrigin + uint16(footprintLen)

		mainLowTokens, mainLowWidth, err := compressRegion(state.Mem[0x0200:LoaderOrigin])
		if err != nil {
			return nil, err
		}
		mainHighTokens, mainHighWidth, err := compressRegion(state.Mem[footprintEnd:mainScanEnd])
		if err != nil {
			return nil, err
		}

		scanMem := state.Mem
		if len(manualFree) > 0 {
			scanMem = *memscan.ZeroFillManualRanges(&scanMem, manualFree)
		}
		runs := excludeRange(memscan.Scan(&scanMem), LoaderOrigin, footprintEnd)

		// The main-RAM payloads are absent from the region request on
		// purpose: they decompress straight from their inline blobs inside
		// the Loader footprint (see loader.go), so only the four small
		// regions need scratch blocks.
		plan, err := blockalloc.Allocate(runs, blockalloc.Request{
			Block9Size:  block9Size,
			Block10Size: block10Size,
			FinalSize:   finalSize,
			SnapshotSP:  state.CPU.SP,
			Regions: map[string]int{
				"color": len(colorTokens),
				"vic":   len(vicTokens),
				"sid":   len(sidTokens),
				"zp":    len(zpTokens),
			},
		})
		if err != nil {
			return nil, err
		}

		finalProg := BuildFinal(plan.Final.Target, FinalConfig{
			State:        state,
			Block10Start: plan.Block10.Start,
			Block10Len:   plan.Block10.Length,
			Block10Fill:  state.Mem[plan.Block10.Start],
			ZeroPageTail: zpTailBytes(state),
		})
		finalRes, err := asm.Assemble(finalProg)
		if err != nil {
			return nil, err
		}
		if len(finalRes.Bytes) != finalSize {
			return nil, &vserr.AsmError{Reason: "final stage size drifted between sizing and placement passes"}
		}

		var preserve [8]PreserveSource
		for i, blk := range plan.Preserve {
			preserve[i] = PreserveSource{Block: blk, FillValue: state.Mem[blk.Start]}
		}

		block10Prog := BuildBlock10(plan.Block10.Start, Block10Config{
			Block9Start:  plan.Block9.Start,
			Block9Len:    plan.Block9.Length,
			Block9Fill:   state.Mem[plan.Block9.Start],
			ZeroPageTail: zpTailBytes(state),
			FinalOrigin:  plan.Final.Target,
		})
		block10Res, err := asm.Assemble(block10Prog)
		if err != nil {
			return nil, err
		}
		if len(block10Res.Bytes) != block10Size {
			return nil, &vserr.AsmError{Reason: "block 10 size drifted between sizing and placement passes"}
		}

		block9Prog := BuildBlock9(plan.Block9.Start, Block9Config{
			Preserve:      preserve,
			VectorBytes:   vectorBytes(state),
			VectorStart:   0xFFF0,
			FinalTarget:   plan.Final.Target,
			FinalBytes:    finalRes.Bytes,
			Block10Origin: plan.Block10.Start,
			Block10Bytes:  block10Res.Bytes,
		})
		block9Res, err := asm.Assemble(block9Prog)
		if err != nil {
			return nil, err
		}
		if len(block9Res.Bytes) != block9Size {
			return nil, &vserr.AsmError{Reason: "block 9 size drifted between sizing and placement passes"}
		}

		var preserveBlobs [8]PreserveBlob
		for i, blk := range plan.Preserve {
			preserveBlobs[i] = PreserveBlob{
				Bytes:  append([]byte(nil), state.Mem[0x0100+i*32:0x0100+(i+1)*32]...),
				Target: blk.Start,
			}
		}

		loaderCfg := LoaderConfig{
			Color:    payload("colorTokens", colorTokens, colorWidth, colorDst, colorLen, plan.Regions["color"].Start),
			VIC:      payload("vicTokens", vicTokens, vicWidth, vicDst, vicLen, plan.Regions["vic"].Start),
			SID:      payload("sidTokens", sidTokens, sidWidth, sidDst, sidLen, plan.Regions["sid"].Start),
			ZeroPage: payload("zpTokens", zpTokens, zpWidth, zpDst, zpLen, plan.Regions["zp"].Start),
			MainLow:  payload("mainLowTokens", mainLowTokens, mainLowWidth, 0x0200, int(LoaderOrigin)-0x0200, 0),
			MainHigh: payload("mainHighTokens", mainHighTokens, mainHighWidth, footprintEnd, mainScanEnd-int(footprintEnd), 0),

			CIA1: ciaEarlyImage(state.CIA1, 0xDC00),
			CIA2: ciaEarlyImage(state.CIA2, 0xDD00),

			Preserve: preserveBlobs,

			Block9Bytes:  block9Res.Bytes,
			Block9Target: plan.Block9.Start,
		}

		loaderProg := BuildLoader(LoaderOrigin, loaderCfg)
		loaderRes, err := asm.Assemble(loaderProg)
		if err != nil {
			return nil, err
		}

		if len(loaderRes.Bytes) <= footprintLen {
			return &Stages{
				Loader:       AssembledStage{Origin: LoaderOrigin, Bytes: loaderRes.Bytes},
				Block9:       AssembledStage{Origin: plan.Block9.Start, Bytes: block9Res.Bytes},
				Block10:      AssembledStage{Origin: plan.Block10.Start, Bytes: block10Res.Bytes},
				Final:        AssembledStage{Origin: plan.Final.Target, Bytes: finalRes.Bytes},
				LoaderOrigin: LoaderOrigin,
				FootprintEnd: footprintEnd,
				StackRisk:    plan.Final.StackRisk,
			}, nil
		}

		footprintLen = len(loaderRes.Bytes)
	}

	return nil, &vserr.AsmError{Reason: "loader footprint did not converge within the iteration bound"}
}

func assembleSize(asm *asm6502.Assembler, prog *asm6502.Program) (int, error) {
	res, err := asm.Assemble(prog)
	if err != nil {
		return 0, err
	}
	return len(res.Bytes), nil
}

// compressRegion runs lzsa.Compress and splits its 5-byte header
// (4-byte length, 1-byte offset width) from the token stream package
// restore's decompressor emitters expect.
func compressRegion(data []byte) (tokens []byte, width byte, err error) {
	out, err := lzsa.Compress(data)
	if err != nil {
		return nil, 0, err
	}
	return out[5:], out[4], nil
}

func payload(label string, tokens []byte, width byte, dst uint16, decompLen int, regionAddr uint16) CompressedPayload {
	return CompressedPayload{
		Label:       label,
		Tokens:      tokens,
		OffsetWidth: width,
		DstStart:    dst,
		DecompLen:   decompLen,
		RegionAddr:  regionAddr,
	}
}

func vectorBytes(state *vsf.MachineState) [16]byte {
	var v [16]byte
	copy(v[:], state.Mem[0xFFF0:0x10000])
	return v
}

func zpTailBytes(state *vsf.MachineState) [zpTailLen]byte {
	var v [zpTailLen]byte
	copy(v[:], state.Mem[0x00F8:0x0100])
	return v
}

func ciaEarlyImage(c vsf.CIARegisters, base uint16) CIAEarlyImage {
	return CIAEarlyImage{
		Regs:        c.Regs,
		TimerALatch: c.TimerALatch,
		TimerBLatch: c.TimerBLatch,
		ICRMask:     c.ICRMask,
		Base:        base,
	}
}

// excludeRange clips the Loader's own resident footprint out of a scanned
// FreeRun set — it may never be carved into a block, since it holds the
// Loader's own currently-executing code (see loader.go) — splitting any
// run that straddles it and dropping/trimming the rest.
func excludeRange(runs []memscan.FreeRun, lo, hi uint16) []memscan.FreeRun {
	out := make([]memscan.FreeRun, 0, len(runs))
	for _, r := range runs {
		rEnd := r.End()
		if rEnd <= lo || r.Start >= hi {
			out = append(out, r)
			continue
		}
		if r.Start < lo {
			if length := int(lo) - int(r.Start); length >= memscan.MinRunLength {
				out = append(out, memscan.FreeRun{Start: r.Start, Length: length, Value: r.Value})
			}
		}
		if rEnd > hi {
			if length := int(rEnd) - int(hi); length >= memscan.MinRunLength {
				out = append(out, memscan.FreeRun{Start: hi, Length: length, Value: r.Value})
			}
		}
	}
	return out
}

// Package blockalloc carves discovered FreeRuns into sized, address-
// constrained allocation blocks: the eight page-1 preserve blocks, the two
// restore-stage bodies (Block 9, Block 10), the final page-1 placement, and
// one block per compressed region.
package blockalloc

import (
	"strings"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	"github.com/tommyo123/vsfconv/pkg/memscan"
	"github.com/tommyo123/vsfconv/pkg/vserr"
)

// Purpose tags a Block with what it will hold.
type Purpose int

const (
	PurposePreserve Purpose = iota
	PurposeBlock9
	PurposeBlock10
	PurposeCompressedRegion
)

// Block is a claim on a FreeRun sub-range.
type Block struct {
	Purpose Purpose
	Region  string // set only for PurposeCompressedRegion
	Start   uint16
	Length  int
}

func (b Block) End() uint16 { return b.Start + uint16(b.Length) }

// preserveBlockCount and preserveBlockSize divide $0100..=$01FF (256 bytes)
// into eight equal pieces, matching stage B9's "copy the eight Preserve
// blocks back into $0100..=$01FF" in source order.
const (
	preserveBlockCount = 8
	preserveBlockSize  = 0x100 / preserveBlockCount

	page1Start = 0x0100
	page1End   = 0x0200

	// finalStageMargin is the safety gap kept below the snapshot's stack
	// pointer when choosing the final stage's page-1 window.
	finalStageMargin = 8
)

// FinalPlacement is where the page-1 final restore stage will live.
type FinalPlacement struct {
	Target    uint16
	Length    int
	StackRisk bool
}

// Request describes everything the allocator needs to know before it can
// place Block 9, Block 10, the final stage, and the compressed regions.
// Block/final sizes are known from a first assembler pass (see package
// restore); region sizes are the LZSA1-compressed lengths.
type Request struct {
	Block9Size  int
	Block10Size int
	FinalSize   int
	SnapshotSP  byte
	Regions     map[string]int // region id -> compressed size
}

// Plan is the fully resolved allocation.
type Plan struct {
	Preserve [preserveBlockCount]Block
	Block9   Block
	Block10  Block
	Final    FinalPlacement
	Regions  map[string]Block
}

// slot is a mutable view of one remaining FreeRun as blocks are carved out
// of it; allocator state is just a list of these, shrinking over the
// allocation pass.
type slot struct {
	start  uint16
	length int
}

// Allocate runs a four-stage placement strategy: preserve
// blocks first, then Block 9/10 in distinct runs, then final-stage page-1
// placement, then compressed regions largest first. It returns
// AllocationFailed{region} naming the specific region that could not be
// placed, so the driver can ask for manual-free ranges and retry.
func Allocate(runs []memscan.FreeRun, req Request) (*Plan, error) {
	slots := toSlots(runs)
	plan := &Plan{Regions: make(map[string]Block)}

	for i := 0; i < preserveBlockCount; i++ {
		b, err := carveSmallestSufficient(&slots, preserveBlockSize, PurposePreserve, "")
		if err != nil {
			return nil, &vserr.AllocationFailed{Region: "PreserveStack", Needed: preserveBlockSize, Free: totalSlots(slots)}
		}
		plan.Preserve[i] = b
	}

	b9, usedIdx, err := carveFromDistinctSlot(&slots, req.Block9Size, PurposeBlock9, -1)
	if err != nil {
		return nil, &vserr.AllocationFailed{Region: "Block9", Needed: req.Block9Size, Free: totalSlots(slots)}
	}
	plan.Block9 = b9

	b10, _, err := carveFromDistinctSlot(&slots, req.Block10Size, PurposeBlock10, usedIdx)
	if err != nil {
		return nil, &vserr.AllocationFailed{Region: "Block10", Needed: req.Block10Size, Free: totalSlots(slots)}
	}
	plan.Block10 = b10

	plan.Final = placeFinalStage(req.SnapshotSP, req.FinalSize)

	// Compressed-region scratch is written and read back while the default
	// banking still maps BASIC ROM, the I/O window, and KERNAL ROM over
	// RAM, so region blocks must stay out of those windows. The preserve
	// blocks and Block 9/10 have no such constraint: everything that
	// touches them runs under the RAM-only mapping.
	slots = excludeBankedWindows(slots)

	// Largest first; ties broken by id so placement never depends on map
	// iteration order.
	regionOrder := make([]string, 0, len(req.Regions))
	for id := range req.Regions {
		regionOrder = append(regionOrder, id)
	}
	slices.SortFunc(regionOrder, func(a, b string) int {
		if d := req.Regions[b] - req.Regions[a]; d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})

	for _, id := range regionOrder {
		size := req.Regions[id]
		b, err := carveSmallestSufficient(&slots, size, PurposeCompressedRegion, id)
		if err != nil {
			return nil, &vserr.AllocationFailed{Region: "CompressedRegion:" + id, Needed: size, Free: totalSlots(slots)}
		}
		plan.Regions[id] = b
	}

	return plan, nil
}

// bankedWindows are the address ranges that do not read back as RAM under
// the $37 processor-port mapping the Loader decompresses the small regions
// under: BASIC ROM at $A000-$BFFF, then I/O plus KERNAL ROM from $D000 up.
var bankedWindows = [][2]int{{0xA000, 0xC000}, {0xD000, 0x10000}}

// excludeBankedWindows trims and splits slots so none of the returned
// capacity overlaps a banked window.
func excludeBankedWindows(slots []slot) []slot {
	out := make([]slot, 0, len(slots)+len(bankedWindows))
	for _, s := range slots {
		pieces := []slot{s}
		for _, w := range bankedWindows {
			var next []slot
			for _, p := range pieces {
				start, end := int(p.start), int(p.start)+p.length
				if end <= w[0] || start >= w[1] {
					next = append(next, p)
					continue
				}
				if start < w[0] {
					next = append(next, slot{start: p.start, length: w[0] - start})
				}
				if end > w[1] {
					next = append(next, slot{start: uint16(w[1]), length: end - w[1]})
				}
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	return out
}

func toSlots(runs []memscan.FreeRun) []slot {
	slots := make([]slot, len(runs))
	for i, r := range runs {
		slots[i] = slot{start: r.Start, length: r.Length}
	}
	return slots
}

func totalSlots(slots []slot) int {
	return lo.SumBy(slots, func(s slot) int { return s.length })
}

// carveSmallestSufficient picks the smallest slot that can still satisfy
// size, takes size bytes from its start, and shrinks (or removes) that
// slot. This keeps large runs intact for later, larger requests — exactly
// the fragmentation-avoidance the preserve blocks and compressed regions
// both rely on.
func carveSmallestSufficient(slots *[]slot, size int, purpose Purpose, region string) (Block, error) {
	best := -1
	for i, s := range *slots {
		if s.length < size {
			continue
		}
		if best == -1 || s.length < (*slots)[best].length {
			best = i
		}
	}
	if best == -1 {
		return Block{}, &vserr.AllocationFailed{Region: region, Needed: size}
	}

	s := (*slots)[best]
	block := Block{Purpose: purpose, Region: region, Start: s.start, Length: size}

	remaining := slot{start: s.start + uint16(size), length: s.length - size}
	if remaining.length == 0 {
		*slots = append((*slots)[:best], (*slots)[best+1:]...)
	} else {
		(*slots)[best] = remaining
	}
	return block, nil
}

// carveFromDistinctSlot behaves like carveSmallestSufficient but refuses to
// pick the slot index given by excludeIdx (the slot Block 9 already came
// from), guaranteeing Block 9 and Block 10 never share a FreeRun. It
// returns the slot index actually used so the caller can exclude it for a
// subsequent call; -1 when the carve consumed its slot entirely, since the
// run then has no bytes left for a later carve to collide with and the
// removal shifted every following index anyway.
func carveFromDistinctSlot(slots *[]slot, size int, purpose Purpose, excludeIdx int) (Block, int, error) {
	best := -1
	for i, s := range *slots {
		if i == excludeIdx || s.length < size {
			continue
		}
		if best == -1 || s.length < (*slots)[best].length {
			best = i
		}
	}
	if best == -1 {
		return Block{}, -1, &vserr.AllocationFailed{Needed: size}
	}

	s := (*slots)[best]
	block := Block{Purpose: purpose, Start: s.start, Length: size}

	remaining := slot{start: s.start + uint16(size), length: s.length - size}
	if remaining.length == 0 {
		*slots = append((*slots)[:best], (*slots)[best+1:]...)
		return block, -1, nil
	}
	(*slots)[best] = remaining
	return block, best, nil
}

// placeFinalStage chooses the page-1 window the final restore stage will
// occupy. It prefers a window entirely below the snapshot's stack pointer
// with finalStageMargin bytes to spare; if that does not fit, it falls
// back to the top of page 1 and reports StackRisk.
func placeFinalStage(sp byte, length int) FinalPlacement {
	ceiling := page1Start + int(sp) - finalStageMargin
	if ceiling >= page1Start+length && ceiling <= page1End {
		return FinalPlacement{Target: uint16(ceiling - length), Length: length}
	}
	target := page1End - length
	return FinalPlacement{Target: uint16(target), Length: length, StackRisk: true}
}

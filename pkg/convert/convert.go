// Package convert is the Driver: it orchestrates the full conversion
// pipeline end to end, from reading the snapshot through packaging the
// finished PRG or CRT.
package convert

import (
	"errors"
	"io"
	"strings"

	"github.com/tommyo123/vsfconv/pkg/crtbuild"
	"github.com/tommyo123/vsfconv/pkg/prgbuild"
	"github.com/tommyo123/vsfconv/pkg/restore"
	"github.com/tommyo123/vsfconv/pkg/vserr"
	"github.com/tommyo123/vsfconv/pkg/vsf"
)

// OutputKind selects the packaging format.
type OutputKind int

const (
	// OutputInfer picks PRG or CRT from the output file extension.
	OutputInfer OutputKind = iota
	OutputPRG
	OutputCRT
)

// Options mirrors the vsfconv CLI surface.
type Options struct {
	Kind       OutputKind
	OutputName string // drives extension inference when Kind == OutputInfer
	MagicDesk  bool
	CartName   string
	Includes   []crtbuild.IncludeFile
	ManualFree [][2]uint16
}

// Result is one finished conversion: the packaged artifact plus any
// non-fatal diagnostics the pipeline raised along the way.
type Result struct {
	Bytes []byte

	// StackRisk is set when the final restore stage could not be placed
	// below the snapshot's stack pointer and fell back to the top of page
	// 1 (see blockalloc). The conversion still succeeded; the caller
	// decides whether to warn.
	StackRisk *vserr.StackRisk
}

// Convert reads a snapshot from r, builds the restore program, and
// packages it per opts. The first BuildStages attempt never zero-fills
// opts.ManualFree, so a snapshot that allocates cleanly on its own never
// pays for ranges it didn't need. Only on AllocationFailed, and only if
// the caller supplied ManualFree ranges up front, is BuildStages retried
// once with them applied; a second AllocationFailed past that point is
// surfaced rather than retried again.
func Convert(r io.Reader, opts Options) (*Result, error) {
	state, err := vsf.ReadSnapshot(r)
	if err != nil {
		return nil, err
	}

	stages, err := restore.BuildStages(state, nil)
	var allocErr *vserr.AllocationFailed
	if errors.As(err, &allocErr) && len(opts.ManualFree) > 0 {
		stages, err = restore.BuildStages(state, opts.ManualFree)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if stages.StackRisk {
		res.StackRisk = &vserr.StackRisk{Target: stages.Final.Origin, Length: len(stages.Final.Bytes)}
	}

	if wantCRT(opts) {
		res.Bytes, err = crtbuild.Build(stages, crtbuild.Options{
			MagicDesk:  opts.MagicDesk,
			Name:       opts.CartName,
			Includes:   opts.Includes,
			SnapshotSP: state.CPU.SP,
		})
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	res.Bytes = prgbuild.Build(stages)
	return res, nil
}

func wantCRT(opts Options) bool {
	switch opts.Kind {
	case OutputCRT:
		return true
	case OutputPRG:
		return false
	default:
		return strings.HasSuffix(strings.ToLower(opts.OutputName), ".crt")
	}
}

// Command vsfconv converts a VICE-format C64 snapshot (format 2.0,
// C64SC model) into a self-restoring PRG or CRT cartridge image.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tommyo123/vsfconv/pkg/convert"
	"github.com/tommyo123/vsfconv/pkg/crtbuild"
	"github.com/tommyo123/vsfconv/pkg/version"
	"github.com/tommyo123/vsfconv/pkg/vserr"
)

var (
	forcePRG        bool
	forceCRT        bool
	magicDesk       bool
	cartName        string
	includeDir      string
	manualFree      []string
	showVersion     bool
	showVersionFull bool
)

var rootCmd = &cobra.Command{
	Use:   "vsfconv <input.vsf> <output.{prg,crt}>",
	Short: "Convert a C64 VICE snapshot into a self-restoring PRG or CRT",
	Long: `vsfconv reconstitutes the exact machine state captured in a VICE
snapshot (format 2.0, C64SC model) as a self-restoring PRG or CRT
cartridge image: CPU registers and flags, program counter, processor
port, RAM, color RAM, VIC-II, SID, and both CIA register files including
timers and interrupt masks. RAM is restored except for the restore
program's own resident code from $080D upward and the page-1 bytes its
final stage and RTI frame occupy.

EXAMPLES:
  vsfconv game.vsf game.prg
  vsfconv game.vsf game.crt --magic-desk
  vsfconv game.vsf game.crt --include-dir ./loader --name "MY GAME"
  vsfconv game.vsf game.prg --manual-free C000-CFFF`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.GetVersion())
			return nil
		}
		if showVersionFull {
			fmt.Println(version.GetFullVersion())
			return nil
		}
		if len(args) != 2 {
			return fmt.Errorf("expected exactly 2 arguments: <input.vsf> <output.{prg,crt}>")
		}
		return run(args[0], args[1])
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolVar(&forcePRG, "prg", false, "force PRG output")
	rootCmd.Flags().BoolVar(&forceCRT, "crt", false, "force CRT output")
	rootCmd.Flags().BoolVar(&magicDesk, "magic-desk", false, "use Magic Desk CRT subtype even with --include-dir (without --include-dir, CRT output is always Magic Desk)")
	rootCmd.Flags().StringVar(&cartName, "name", "", "cartridge name, up to 32 characters (default derived from the build version)")
	rootCmd.Flags().StringVar(&includeDir, "include-dir", "", "embed PRG files from this directory into an EasyFlash LOAD-hook")
	rootCmd.Flags().StringArrayVar(&manualFree, "manual-free", nil, "additional free range HEX-HEX, repeatable")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show version")
	rootCmd.Flags().BoolVar(&showVersionFull, "version-full", false, "show full version info")
}

func run(inputPath, outputPath string) error {
	if forcePRG && forceCRT {
		return fmt.Errorf("--prg and --crt are mutually exclusive")
	}
	if len(cartName) > 32 {
		return fmt.Errorf("--name must be at most 32 characters")
	}
	name := cartName
	if name == "" {
		name = version.DefaultCartName()
	}

	ranges, err := parseManualFree(manualFree)
	if err != nil {
		return err
	}

	includes, err := loadIncludeDir(includeDir)
	if err != nil {
		return &vserr.IoError{Op: "read include-dir", Err: err}
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return &vserr.IoError{Op: "open input", Err: err}
	}
	defer in.Close()

	kind := convert.OutputInfer
	if forcePRG {
		kind = convert.OutputPRG
	} else if forceCRT {
		kind = convert.OutputCRT
	}

	res, err := convert.Convert(in, convert.Options{
		Kind:       kind,
		OutputName: outputPath,
		MagicDesk:  magicDesk,
		CartName:   name,
		Includes:   includes,
		ManualFree: ranges,
	})
	if err != nil {
		return err
	}
	if res.StackRisk != nil {
		fmt.Fprintf(os.Stderr, "vsfconv: warning: %v\n", res.StackRisk)
	}

	if err := os.WriteFile(outputPath, res.Bytes, 0o644); err != nil {
		return &vserr.IoError{Op: "write output", Err: err}
	}

	return nil
}

// parseManualFree turns repeated "HEX-HEX" flag values into the
// [][2]uint16 ranges package convert expects.
func parseManualFree(specs []string) ([][2]uint16, error) {
	ranges := make([][2]uint16, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("--manual-free %q: expected HEX-HEX", s)
		}
		lo, err := strconv.ParseUint(parts[0], 16, 16)
		if err != nil {
			return nil, fmt.Errorf("--manual-free %q: bad start address: %w", s, err)
		}
		hi, err := strconv.ParseUint(parts[1], 16, 16)
		if err != nil {
			return nil, fmt.Errorf("--manual-free %q: bad end address: %w", s, err)
		}
		ranges = append(ranges, [2]uint16{uint16(lo), uint16(hi)})
	}
	return ranges, nil
}

// loadIncludeDir reads every regular file in dir as one EasyFlash
// LOAD-hook entry, named after its filename. crtbuild stores the name's
// bytes as-is (no ASCII-to-PETSCII mapping), truncated to 16 bytes and
// zero-padded on the right.
func loadIncludeDir(dir string) ([]crtbuild.IncludeFile, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var includes []crtbuild.IncludeFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(dir + string(os.PathSeparator) + e.Name())
		if err != nil {
			return nil, err
		}
		includes = append(includes, crtbuild.IncludeFile{Name: e.Name(), Bytes: data})
	}
	return includes, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vsfconv: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a pipeline error to its fixed process exit code.
func exitCodeFor(err error) int {
	switch err.(type) {
	case *vserr.UnsupportedSnapshot:
		return 3
	case *vserr.MalformedSnapshot:
		return 3
	case *vserr.AllocationFailed:
		return 4
	case *vserr.IoError:
		return 5
	case *vserr.AsmError, *vserr.CompressionOverflow:
		return 6
	default:
		return 2
	}
}

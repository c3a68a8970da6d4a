// Package lzsa implements the LZSA1-style byte-aligned compressor used to
// shrink restore payloads before they are embedded in the PRG/CRT output.
// Each stream is a literal-run/match token byte packed as `LLMMMMMM` (2-bit
// literal count, 6-bit match length), extension bytes for runs that
// overflow those fields, and 8- or 16-bit back-reference offsets chosen
// per stream ("block-type prefix").
//
// The 6502 decompressor emitted by package restore decodes exactly this
// format; see its emitDecompressBlock. Because both sides are written
// against this same description there is no dependency on an external LZSA
// tool or its exact historical bit layout — decompress(compress(x)) == x is
// the property this package and its 6502 counterpart both have to satisfy.
package lzsa

import (
	"encoding/binary"
	"fmt"

	"github.com/tommyo123/vsfconv/pkg/vserr"
)

// decodeError reports a malformed compressed stream, surfaced only by the
// Go-side self-test decoder; the pipeline itself never decompresses.
type decodeError struct{ reason string }

func (e *decodeError) Error() string { return fmt.Sprintf("lzsa: %s", e.reason) }

const (
	minMatch = 2

	litBase   = 3  // LL field values 0..2 are literal counts; 3 means extended
	matchBase = 63 // MMMMMM values 0..62 are direct; 63 means extended

	offset8Width  = 0
	offset16Width = 1

	// MaxDecompressedSize bounds the inputs this codec will accept, matching
	// the 6502 decompressor's assumption that expansion never exceeds 64 KiB.
	MaxDecompressedSize = 1 << 16
)

// token is one literal-run + optional-match step of the encoding, built by
// the greedy matcher before the offset width (and therefore final byte
// layout) is decided.
type token struct {
	literal  []byte
	matchLen int // 0 means "no match" (only valid for the final token)
	offset   int // back-reference distance; 0 if matchLen == 0
}

// Compress encodes data into the LZSA1-style stream described above.
// Compression is deterministic: the same input always produces the same
// output.
func Compress(data []byte) ([]byte, error) {
	if len(data) > MaxDecompressedSize {
		return nil, &vserr.CompressionOverflow{Region: "<input>", Size: len(data), Limit: MaxDecompressedSize}
	}

	tokens := greedyMatch(data)

	maxOffset := 0
	for _, t := range tokens {
		if t.offset > maxOffset {
			maxOffset = t.offset
		}
	}
	width := byte(offset16Width)
	if maxOffset <= 256 {
		width = offset8Width
	}

	out := make([]byte, 0, len(data)/2+16)
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(data)))
	out = append(out, lenPrefix[:]...)
	out = append(out, width)

	for _, t := range tokens {
		out = appendToken(out, t, width)
	}

	if len(out) > MaxDecompressedSize {
		return nil, &vserr.CompressionOverflow{Region: "<input>", Size: len(out), Limit: MaxDecompressedSize}
	}
	return out, nil
}

// greedyMatch scans data left to right, at each position taking the
// longest back-reference available within the already-emitted output
// (a classic greedy LZ77 pass, the same shape other_examples' ad hoc
// byte-oriented compressors use: slide a search window behind the cursor,
// keep the longest match of at least minMatch bytes).
func greedyMatch(data []byte) []token {
	var tokens []token
	pos := 0
	litStart := 0

	flush := func(end int, matchLen, offset int) {
		tokens = append(tokens, token{
			literal:  append([]byte(nil), data[litStart:end]...),
			matchLen: matchLen,
			offset:   offset,
		})
	}

	for pos < len(data) {
		bestLen, bestOff := findMatch(data, pos)
		if bestLen >= minMatch {
			flush(pos, bestLen, bestOff)
			pos += bestLen
			litStart = pos
		} else {
			pos++
		}
	}
	// Trailing literal-only token: whatever wasn't absorbed into a match.
	if litStart < len(data) || len(tokens) == 0 {
		flush(len(data), 0, 0)
	}
	return tokens
}

// findMatch returns the longest match ending at data[:pos] that data[pos:]
// can copy from, and its distance, or (0, 0) if nothing usable is found.
func findMatch(data []byte, pos int) (length, offset int) {
	maxLen := len(data) - pos
	if maxLen > 0xFFFF {
		maxLen = 0xFFFF
	}
	searchStart := 0
	bestLen, bestOff := 0, 0
	for i := pos - 1; i >= searchStart; i-- {
		l := 0
		for l < maxLen && data[i+l] == data[pos+l] {
			l++
		}
		if l > bestLen {
			bestLen = l
			bestOff = pos - i
			if bestLen == maxLen {
				break
			}
		}
	}
	return bestLen, bestOff
}

func appendToken(out []byte, t token, width byte) []byte {
	litLen := len(t.literal)
	ll := litLen
	if ll > litBase {
		ll = litBase
	}
	mm := 0
	if t.matchLen > 0 {
		mm = t.matchLen - minMatch
		if mm > matchBase {
			mm = matchBase
		}
	}
	out = append(out, byte(ll<<6)|byte(mm))

	if litLen >= litBase {
		out = appendExtendedLength(out, litLen-litBase)
	}
	out = append(out, t.literal...)

	if t.matchLen == 0 {
		return out
	}

	if t.matchLen-minMatch >= matchBase {
		out = appendExtendedLength(out, t.matchLen-minMatch-matchBase)
	}

	if width == offset8Width {
		out = append(out, byte(t.offset-1))
	} else {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(t.offset-1))
		out = append(out, b[:]...)
	}
	return out
}

// appendExtendedLength writes an LZ4-style continuation sequence: bytes of
// value 255 each add 255 to the running total, terminated by a byte < 255
// that adds its own value.
func appendExtendedLength(out []byte, extra int) []byte {
	for extra >= 255 {
		out = append(out, 255)
		extra -= 255
	}
	return append(out, byte(extra))
}

// Decompress reverses Compress. It is used by the Go-side self-tests; the
// authoritative decoder for the produced artifact is the 6502 routine
// package restore emits from the same format description.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < 5 {
		return nil, &decodeError{"stream too short"}
	}
	decompLen := int(binary.LittleEndian.Uint32(data[0:4]))
	width := data[4]
	pos := 5

	out := make([]byte, 0, decompLen)
	readExtended := func() (int, error) {
		total := 0
		for {
			if pos >= len(data) {
				return 0, &decodeError{"truncated extension byte"}
			}
			b := data[pos]
			pos++
			total += int(b)
			if b != 255 {
				return total, nil
			}
		}
	}

	for len(out) < decompLen {
		if pos >= len(data) {
			return nil, &decodeError{"truncated token"}
		}
		tok := data[pos]
		pos++
		ll := int(tok >> 6)
		mm := int(tok & 0x3F)

		if ll == litBase {
			extra, err := readExtended()
			if err != nil {
				return nil, err
			}
			ll += extra
		}
		if pos+ll > len(data) {
			return nil, &decodeError{"truncated literal run"}
		}
		out = append(out, data[pos:pos+ll]...)
		pos += ll

		if len(out) >= decompLen {
			break
		}

		matchLen := mm + minMatch
		if mm == matchBase {
			extra, err := readExtended()
			if err != nil {
				return nil, err
			}
			matchLen += extra
		}

		var offset int
		if width == offset8Width {
			if pos >= len(data) {
				return nil, &decodeError{"truncated offset"}
			}
			offset = int(data[pos]) + 1
			pos++
		} else {
			if pos+2 > len(data) {
				return nil, &decodeError{"truncated offset"}
			}
			offset = int(binary.LittleEndian.Uint16(data[pos:pos+2])) + 1
			pos += 2
		}

		src := len(out) - offset
		if src < 0 {
			return nil, &decodeError{"back-reference underflows output"}
		}
		for i := 0; i < matchLen; i++ {
			out = append(out, out[src+i])
		}
	}

	return out[:decompLen], nil
}

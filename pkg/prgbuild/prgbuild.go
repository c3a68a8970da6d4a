// Package prgbuild packages a restore.Stages result into a self-extracting
// PRG stream: a two-byte load address, a minimal BASIC trampoline line,
// then the Loader's own assembled bytes (which already carry every
// compressed region, preserve blob, and the Block 9 payload inline — see
// restore.BuildStages).
package prgbuild

import "github.com/tommyo123/vsfconv/pkg/restore"

// loadAddress is the fixed PRG load address: the first two bytes of every
// C64 PRG file, read by the KERNAL LOAD routine.
const loadAddress = 0x0801

// sysTarget is where the BASIC trampoline's SYS statement transfers
// control: restore.LoaderOrigin, decimal, the way BASIC SYS always takes
// a decimal address argument.
const sysTarget = restore.LoaderOrigin

// basicYear is the line number the trampoline's single BASIC line carries.
// Any value works; a plausible program year keeps a LIST of the PRG
// looking like an ordinary hand-typed loader rather than a giveaway.
const basicYear = 2026

// Build serializes stages into a complete PRG byte stream.
func Build(stages *restore.Stages) []byte {
	stub := basicStub(basicYear, sysTarget)

	out := make([]byte, 0, 2+len(stub)+len(stages.Loader.Bytes))
	loadAddr := uint16(loadAddress)
	out = append(out, byte(loadAddr), byte(loadAddr>>8))
	out = append(out, stub...)
	out = append(out, stages.Loader.Bytes...)
	return out
}

// basicStub emits one BASIC program line "<year> SYS <target>" followed by
// the end-of-program link (two zero bytes), the same encoding every C64
// BASIC loader uses: next-line pointer (2 bytes LE, computed once the
// line's own length is known), line number (2 bytes LE), tokenized body,
// a zero line terminator, then a final zero link marking end of program.
func basicStub(year int, target uint16) []byte {
	body := []byte{0x9E} // SYS token
	body = append(body, []byte(decimalDigits(int(target)))...)

	// lineLen covers everything from the next-line pointer field's own
	// start through the 0x00 line terminator, inclusive.
	const nextLinkLen = 2
	const lineNumLen = 2
	lineLen := nextLinkLen + lineNumLen + len(body) + 1

	nextLineAddr := uint16(loadAddress) + uint16(lineLen)

	line := make([]byte, 0, lineLen+2)
	line = append(line, byte(nextLineAddr), byte(nextLineAddr>>8))
	line = append(line, byte(year), byte(year>>8))
	line = append(line, body...)
	line = append(line, 0x00)       // end of line
	line = append(line, 0x00, 0x00) // end of program
	return line
}

// decimalDigits renders n as PETSCII decimal digits (ASCII '0'-'9' in the
// unshifted PETSCII range BASIC tokenizes identically to ASCII).
func decimalDigits(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [6]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

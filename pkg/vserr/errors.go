// Package vserr defines the structured error kinds shared across the
// conversion pipeline, mirroring the pipeline's own stage boundaries rather
// than wrapping a single generic error type.
package vserr

import "fmt"

// UnsupportedSnapshot is returned when the snapshot's declared version or
// machine type does not match what this converter understands.
type UnsupportedSnapshot struct {
	Expected string
	Got      string
}

func (e *UnsupportedSnapshot) Error() string {
	return fmt.Sprintf("unsupported snapshot: expected %s, got %s", e.Expected, e.Got)
}

// MalformedSnapshot is returned when a required section is missing or a
// section's bytes cannot be parsed.
type MalformedSnapshot struct {
	Section string
	Reason  string
}

func (e *MalformedSnapshot) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("malformed snapshot: missing section %q", e.Section)
	}
	return fmt.Sprintf("malformed snapshot: section %q: %s", e.Section, e.Reason)
}

// AllocationFailed is returned by the block allocator when a region's
// demand cannot be satisfied from the discovered free runs.
type AllocationFailed struct {
	Region string
	Needed int
	Free   int
}

func (e *AllocationFailed) Error() string {
	return fmt.Sprintf("allocation failed for %s: needed %d bytes, %d available", e.Region, e.Needed, e.Free)
}

// StackRisk is a non-fatal diagnostic: the final restore stage could not be
// placed below the snapshot's stack pointer with the required margin and
// fell back to the top of page 1.
type StackRisk struct {
	Target uint16
	Length int
}

func (e *StackRisk) Error() string {
	return fmt.Sprintf("stack risk: final stage placed at $%04X (len %d) overlaps likely stack usage", e.Target, e.Length)
}

// AsmError is returned by the embedded assembler, almost always indicating
// an internal codegen bug rather than bad user input.
type AsmError struct {
	Symbol string
	Reason string
}

func (e *AsmError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("assembler error: symbol %q: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("assembler error: %s", e.Reason)
}

// CompressionOverflow is returned when the LZSA1 codec produces (or would
// need to produce) a stream longer than the 6502 decompressor can trust.
type CompressionOverflow struct {
	Region string
	Size   int
	Limit  int
}

func (e *CompressionOverflow) Error() string {
	return fmt.Sprintf("compression overflow in %s: %d bytes exceeds limit %d", e.Region, e.Size, e.Limit)
}

// IoError wraps a boundary I/O failure (read input, write output).
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io error during %s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

package asm6502

import (
	"fmt"

	"github.com/tommyo123/vsfconv/pkg/vserr"
)

// Assembler performs the same two-pass strategy z80asm.Assembler uses for
// Z80 source: pass 1 assigns addresses (using each instruction's fixed,
// mode-determined size, so the layout does not depend on operand values),
// pass 2 resolves every label against the address table pass 1 built and
// emits final bytes.
type Assembler struct {
	symbols map[string]uint16
}

// NewAssembler creates an empty assembler. A single Assembler value is
// reused across the repeated Assemble calls RestoreCodegen issues while a
// stage's size feeds back into allocator placement (see package restore).
func NewAssembler() *Assembler {
	return &Assembler{symbols: make(map[string]uint16)}
}

// Assemble runs both passes over prog and returns the resulting bytes,
// origin, and resolved symbol table. It is a pure function of prog: calling
// it twice with an unchanged Program yields byte-identical output, which is
// what lets RestoreCodegen safely re-assemble a stage once placement
// addresses are substituted into its operands.
func (a *Assembler) Assemble(prog *Program) (*Result, error) {
	a.symbols = make(map[string]uint16)

	if err := a.pass1(prog); err != nil {
		return nil, err
	}
	out, err := a.pass2(prog)
	if err != nil {
		return nil, err
	}

	symbols := make(map[string]uint16, len(a.symbols))
	for k, v := range a.symbols {
		symbols[k] = v
	}
	return &Result{Origin: prog.Origin, Bytes: out, Symbols: symbols}, nil
}

// pass1 assigns every label an address by walking the node list once,
// accumulating instruction sizes. Relative branches and directives carry a
// fixed, mode-determined size, so unlike a text assembler with ambiguous
// mnemonic widths, no worst-case padding is needed: 6502 addressing modes
// are explicit in the Node, not inferred from operand magnitude.
func (a *Assembler) pass1(prog *Program) error {
	addr := prog.Origin
	for i, n := range prog.Nodes {
		if n.Label != "" {
			if _, exists := a.symbols[n.Label]; exists {
				return &vserr.AsmError{Symbol: n.Label, Reason: "label already defined"}
			}
			a.symbols[n.Label] = addr
			continue
		}
		if n.Bytes != nil {
			addr += uint16(len(n.Bytes))
			continue
		}
		if n.Mnemonic != "" {
			size, ok := instructionSize(n.Mnemonic, n.Mode)
			if !ok {
				return &vserr.AsmError{Reason: fmt.Sprintf("node %d: no encoding for %s in mode %d", i, n.Mnemonic, n.Mode)}
			}
			addr += uint16(size)
		}
	}
	return nil
}

// pass2 re-walks the node list, this time resolving operands against the
// symbol table from pass1 and emitting final bytes.
func (a *Assembler) pass2(prog *Program) ([]byte, error) {
	addr := prog.Origin
	out := make([]byte, 0, 256)

	for i, n := range prog.Nodes {
		switch {
		case n.Label != "":
			continue
		case n.Bytes != nil:
			out = append(out, n.Bytes...)
			addr += uint16(len(n.Bytes))
		case n.Mnemonic != "":
			size, ok := instructionSize(n.Mnemonic, n.Mode)
			if !ok {
				return nil, &vserr.AsmError{Reason: fmt.Sprintf("node %d: no encoding for %s", i, n.Mnemonic)}
			}
			value, err := a.resolveOperand(n.Operand)
			if err != nil {
				return nil, err
			}
			encoded, err := a.encode(n.Mnemonic, n.Mode, value, addr, size)
			if err != nil {
				return nil, err
			}
			out = append(out, encoded...)
			addr += uint16(size)
		}
	}
	return out, nil
}

func (a *Assembler) resolveOperand(op Operand) (uint16, error) {
	v := op.Value
	if op.Label != "" {
		sym, ok := a.symbols[op.Label]
		if !ok {
			return 0, &vserr.AsmError{Symbol: op.Label, Reason: "unresolved label"}
		}
		v = sym
	}
	switch op.Sel {
	case selLo:
		return uint16(byte(v)), nil
	case selHi:
		return uint16(byte(v >> 8)), nil
	default:
		return v, nil
	}
}

// encode turns a resolved operand value into the instruction's final
// bytes. addr and size are the instruction's own start address and total
// length, needed to compute PC-relative branch displacements.
func (a *Assembler) encode(mnemonic string, mode Mode, value uint16, addr uint16, size int) ([]byte, error) {
	opcode := opcodeTable[mnemonic][mode]

	switch mode {
	case Implied, Accumulator:
		return []byte{opcode}, nil

	case Immediate, ZeroPage, ZeroPageX, ZeroPageY, IndirectX, IndirectY:
		if value > 0xFF {
			return nil, &vserr.AsmError{Reason: fmt.Sprintf("%s: operand $%04X does not fit in one byte", mnemonic, value)}
		}
		return []byte{opcode, byte(value)}, nil

	case Absolute, AbsoluteX, AbsoluteY, Indirect:
		return []byte{opcode, byte(value), byte(value >> 8)}, nil

	case Relative:
		target := int(value)
		from := int(addr) + size
		disp := target - from
		if disp < -128 || disp > 127 {
			return nil, &vserr.AsmError{Reason: fmt.Sprintf("%s: branch target $%04X out of range from $%04X", mnemonic, value, addr)}
		}
		return []byte{opcode, byte(int8(disp))}, nil

	default:
		return nil, &vserr.AsmError{Reason: fmt.Sprintf("%s: unknown addressing mode", mnemonic)}
	}
}

// Symbol returns the resolved address of a label after a successful
// Assemble call. Package restore does not use it: cross-stage addresses
// such as Block 9's entry point reach the Loader as literal operands.
func (a *Assembler) Symbol(label string) (uint16, bool) {
	v, ok := a.symbols[label]
	return v, ok
}

// Package asm6502 is a symbolic, two-pass 6502 assembler. Unlike a
// text-format assembler it is driven programmatically: callers build a
// Program out of Node values (labels, instructions, raw bytes) and ask for
// it to be assembled at a given origin. This mirrors the way RestoreCodegen
// needs to emit position-dependent restore code whose exact layout is only
// known once earlier stages have been sized and placed.
package asm6502

// Mode is a 6502 addressing mode.
type Mode int

const (
	Implied Mode = iota
	Accumulator
	Immediate
	ZeroPage
	ZeroPageX
	ZeroPageY
	Absolute
	AbsoluteX
	AbsoluteY
	Indirect // JMP (nn) only
	IndirectX
	IndirectY
	Relative
)

// byteSel narrows a resolved 16-bit operand to one of its bytes, the way a
// real assembler's '<' (low) and '>' (high) prefixes do for splitting a
// label's address across two LDA #imm/zero-page-store pairs.
type byteSel int

const (
	selNone byteSel = iota
	selLo
	selHi
)

// Operand is the unresolved value an instruction refers to: either a fixed
// numeric value or a symbolic label (resolved to an address during
// assembly).
type Operand struct {
	Label string // if non-empty, resolved against the symbol table
	Value uint16 // literal value when Label == ""
	Sel   byteSel
}

// Imm builds an immediate/absolute-valued operand from a literal.
func Imm(v uint16) Operand { return Operand{Value: v} }

// Sym builds an operand that resolves to a label's address.
func Sym(label string) Operand { return Operand{Label: label} }

// LoByte builds an operand resolving to the low byte of a label's address,
// equivalent to a text assembler's '<label'.
func LoByte(label string) Operand { return Operand{Label: label, Sel: selLo} }

// HiByte builds an operand resolving to the high byte of a label's
// address, equivalent to a text assembler's '>label'.
func HiByte(label string) Operand { return Operand{Label: label, Sel: selHi} }

// Node is one element of a Program: a label definition, an instruction, or
// a raw data directive.
type Node struct {
	Label string // non-empty: defines a label at the current address

	Mnemonic string // non-empty: this node is an instruction
	Mode     Mode
	Operand  Operand

	Bytes []byte // non-nil: this node is a raw-byte / .byte directive

	// comment is carried only for listing output; it has no effect on
	// assembled bytes.
	comment string
}

// Program is the ordered instruction/label/data list for one assembled
// body (one restore stage, one loader, etc).
type Program struct {
	Origin uint16
	Nodes  []Node
}

// NewProgram creates an empty program at the given origin.
func NewProgram(origin uint16) *Program {
	return &Program{Origin: origin}
}

// Label appends a label definition at the current position.
func (p *Program) Label(name string) *Program {
	p.Nodes = append(p.Nodes, Node{Label: name})
	return p
}

// Emit appends one instruction.
func (p *Program) Emit(mnemonic string, mode Mode, operand Operand) *Program {
	p.Nodes = append(p.Nodes, Node{Mnemonic: mnemonic, Mode: mode, Operand: operand})
	return p
}

// Implied appends a no-operand instruction (RTS, SEI, NOP, ...).
func (p *Program) Implied(mnemonic string) *Program {
	return p.Emit(mnemonic, Implied, Operand{})
}

// Byte appends a raw byte-data directive.
func (p *Program) Byte(b ...byte) *Program {
	p.Nodes = append(p.Nodes, Node{Bytes: b})
	return p
}

// Comment annotates the most recently appended node for listing purposes.
func (p *Program) Comment(text string) *Program {
	if len(p.Nodes) > 0 {
		p.Nodes[len(p.Nodes)-1].comment = text
	}
	return p
}

// Result is the outcome of a successful Assemble call.
type Result struct {
	Origin  uint16
	Bytes   []byte
	Symbols map[string]uint16
}

// Size returns len(Bytes), the convenience codegen needs when feeding a
// stage's size back into allocation decisions.
func (r *Result) Size() int { return len(r.Bytes) }

package asm6502

// opcodeTable mirrors the table-driven instruction definitions z80asm uses
// for the Z80 (InstructionPattern), but keyed by the much more regular
// NMOS 6502 opcode matrix: mnemonic -> mode -> opcode byte. Only official
// documented opcodes are included; this assembler never needs to emit
// undocumented ones.
var opcodeTable = map[string]map[Mode]byte{
	"ADC": {Immediate: 0x69, ZeroPage: 0x65, ZeroPageX: 0x75, Absolute: 0x6D, AbsoluteX: 0x7D, AbsoluteY: 0x79, IndirectX: 0x61, IndirectY: 0x71},
	"AND": {Immediate: 0x29, ZeroPage: 0x25, ZeroPageX: 0x35, Absolute: 0x2D, AbsoluteX: 0x3D, AbsoluteY: 0x39, IndirectX: 0x21, IndirectY: 0x31},
	"ASL": {Accumulator: 0x0A, ZeroPage: 0x06, ZeroPageX: 0x16, Absolute: 0x0E, AbsoluteX: 0x1E},
	"BCC": {Relative: 0x90},
	"BCS": {Relative: 0xB0},
	"BEQ": {Relative: 0xF0},
	"BIT": {ZeroPage: 0x24, Absolute: 0x2C},
	"BMI": {Relative: 0x30},
	"BNE": {Relative: 0xD0},
	"BPL": {Relative: 0x10},
	"BRK": {Implied: 0x00},
	"BVC": {Relative: 0x50},
	"BVS": {Relative: 0x70},
	"CLC": {Implied: 0x18},
	"CLD": {Implied: 0xD8},
	"CLI": {Implied: 0x58},
	"CLV": {Implied: 0xB8},
	"CMP": {Immediate: 0xC9, ZeroPage: 0xC5, ZeroPageX: 0xD5, Absolute: 0xCD, AbsoluteX: 0xDD, AbsoluteY: 0xD9, IndirectX: 0xC1, IndirectY: 0xD1},
	"CPX": {Immediate: 0xE0, ZeroPage: 0xE4, Absolute: 0xEC},
	"CPY": {Immediate: 0xC0, ZeroPage: 0xC4, Absolute: 0xCC},
	"DEC": {ZeroPage: 0xC6, ZeroPageX: 0xD6, Absolute: 0xCE, AbsoluteX: 0xDE},
	"DEX": {Implied: 0xCA},
	"DEY": {Implied: 0x88},
	"EOR": {Immediate: 0x49, ZeroPage: 0x45, ZeroPageX: 0x55, Absolute: 0x4D, AbsoluteX: 0x5D, AbsoluteY: 0x59, IndirectX: 0x41, IndirectY: 0x51},
	"INC": {ZeroPage: 0xE6, ZeroPageX: 0xF6, Absolute: 0xEE, AbsoluteX: 0xFE},
	"INX": {Implied: 0xE8},
	"INY": {Implied: 0xC8},
	"JMP": {Absolute: 0x4C, Indirect: 0x6C},
	"JSR": {Absolute: 0x20},
	"LDA": {Immediate: 0xA9, ZeroPage: 0xA5, ZeroPageX: 0xB5, Absolute: 0xAD, AbsoluteX: 0xBD, AbsoluteY: 0xB9, IndirectX: 0xA1, IndirectY: 0xB1},
	"LDX": {Immediate: 0xA2, ZeroPage: 0xA6, ZeroPageY: 0xB6, Absolute: 0xAE, AbsoluteY: 0xBE},
	"LDY": {Immediate: 0xA0, ZeroPage: 0xA4, ZeroPageX: 0xB4, Absolute: 0xAC, AbsoluteX: 0xBC},
	"LSR": {Accumulator: 0x4A, ZeroPage: 0x46, ZeroPageX: 0x56, Absolute: 0x4E, AbsoluteX: 0x5E},
	"NOP": {Implied: 0xEA},
	"ORA": {Immediate: 0x09, ZeroPage: 0x05, ZeroPageX: 0x15, Absolute: 0x0D, AbsoluteX: 0x1D, AbsoluteY: 0x19, IndirectX: 0x01, IndirectY: 0x11},
	"PHA": {Implied: 0x48},
	"PHP": {Implied: 0x08},
	"PLA": {Implied: 0x68},
	"PLP": {Implied: 0x28},
	"ROL": {Accumulator: 0x2A, ZeroPage: 0x26, ZeroPageX: 0x36, Absolute: 0x2E, AbsoluteX: 0x3E},
	"ROR": {Accumulator: 0x6A, ZeroPage: 0x66, ZeroPageX: 0x76, Absolute: 0x6E, AbsoluteX: 0x7E},
	"RTI": {Implied: 0x40},
	"RTS": {Implied: 0x60},
	"SBC": {Immediate: 0xE9, ZeroPage: 0xE5, ZeroPageX: 0xF5, Absolute: 0xED, AbsoluteX: 0xFD, AbsoluteY: 0xF9, IndirectX: 0xE1, IndirectY: 0xF1},
	"SEC": {Implied: 0x38},
	"SED": {Implied: 0xF8},
	"SEI": {Implied: 0x78},
	"STA": {ZeroPage: 0x85, ZeroPageX: 0x95, Absolute: 0x8D, AbsoluteX: 0x9D, AbsoluteY: 0x99, IndirectX: 0x81, IndirectY: 0x91},
	"STX": {ZeroPage: 0x86, ZeroPageY: 0x96, Absolute: 0x8E},
	"STY": {ZeroPage: 0x84, ZeroPageX: 0x94, Absolute: 0x8C},
	"TAX": {Implied: 0xAA},
	"TAY": {Implied: 0xA8},
	"TSX": {Implied: 0xBA},
	"TXA": {Implied: 0x8A},
	"TXS": {Implied: 0x9A},
	"TYA": {Implied: 0x98},
}

// operandWidth returns the number of operand bytes (0, 1, or 2) for a mode.
func operandWidth(m Mode) int {
	switch m {
	case Implied, Accumulator:
		return 0
	case Immediate, ZeroPage, ZeroPageX, ZeroPageY, IndirectX, IndirectY, Relative:
		return 1
	case Absolute, AbsoluteX, AbsoluteY, Indirect:
		return 2
	default:
		return 0
	}
}

// instructionSize returns the total encoded size (opcode + operand) for a
// mnemonic/mode pair, used by pass 1 to assign addresses without yet
// knowing operand values.
func instructionSize(mnemonic string, mode Mode) (int, bool) {
	modes, ok := opcodeTable[mnemonic]
	if !ok {
		return 0, false
	}
	if _, ok := modes[mode]; !ok {
		return 0, false
	}
	return 1 + operandWidth(mode), true
}

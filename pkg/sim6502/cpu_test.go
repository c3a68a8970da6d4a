package sim6502

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// run loads code at $0200, executes exactly steps instructions (failing
// the test on any error), and returns the CPU for inspection.
func run(t *testing.T, code []byte, steps int) *CPU {
	t.Helper()
	c := New()
	c.LoadAt(0x0200, code)
	c.PC = 0x0200
	for i := 0; i < steps; i++ {
		require.NoError(t, c.Step())
	}
	return c
}

func TestLoadStoreAndFlags(t *testing.T) {
	// LDA #$42 ; STA $10 ; LDA #$80
	c := run(t, []byte{0xA9, 0x42, 0x85, 0x10, 0xA9, 0x80}, 3)
	require.Equal(t, byte(0x80), c.A)
	require.Equal(t, byte(0x42), c.ReadMemory(0x0010))
	require.NotZero(t, c.P&FlagN)
	require.Zero(t, c.P&FlagZ)
}

func TestAdcCarryAndOverflow(t *testing.T) {
	// CLC ; LDA #$7F ; ADC #$01 -> $80, V set, C clear
	c := run(t, []byte{0x18, 0xA9, 0x7F, 0x69, 0x01}, 3)
	require.Equal(t, byte(0x80), c.A)
	require.NotZero(t, c.P&FlagV)
	require.Zero(t, c.P&FlagC)

	// SEC ; LDA #$FF ; ADC #$00 -> $00, C set, Z set
	c = run(t, []byte{0x38, 0xA9, 0xFF, 0x69, 0x00}, 3)
	require.Equal(t, byte(0x00), c.A)
	require.NotZero(t, c.P&FlagC)
	require.NotZero(t, c.P&FlagZ)
}

func TestSbcBorrowChain(t *testing.T) {
	// SEC ; LDA #$10 ; SBC #$01 -> $0F, C set (no borrow)
	c := run(t, []byte{0x38, 0xA9, 0x10, 0xE9, 0x01}, 3)
	require.Equal(t, byte(0x0F), c.A)
	require.NotZero(t, c.P&FlagC)

	// SEC ; LDA #$00 ; SBC #$01 -> $FF, C clear (borrow out)
	c = run(t, []byte{0x38, 0xA9, 0x00, 0xE9, 0x01}, 3)
	require.Equal(t, byte(0xFF), c.A)
	require.Zero(t, c.P&FlagC)
}

func TestCompareSetsCarryAndZero(t *testing.T) {
	// LDA #$40 ; CMP #$40
	c := run(t, []byte{0xA9, 0x40, 0xC9, 0x40}, 2)
	require.NotZero(t, c.P&FlagC)
	require.NotZero(t, c.P&FlagZ)

	// LDA #$10 ; CMP #$40 -> borrow, C clear
	c = run(t, []byte{0xA9, 0x10, 0xC9, 0x40}, 2)
	require.Zero(t, c.P&FlagC)
}

func TestIndirectYLoadStore(t *testing.T) {
	c := New()
	// pointer at $F8 -> $1234
	c.WriteMemory(0x00F8, 0x34)
	c.WriteMemory(0x00F9, 0x12)
	c.WriteMemory(0x1235, 0x99)
	// LDY #$01 ; LDA ($F8),Y ; STA $2000
	c.LoadAt(0x0200, []byte{0xA0, 0x01, 0xB1, 0xF8, 0x8D, 0x00, 0x20})
	c.PC = 0x0200
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Step())
	}
	require.Equal(t, byte(0x99), c.ReadMemory(0x2000))
}

func TestJsrRtsRoundTrip(t *testing.T) {
	c := New()
	// $0200: JSR $0210 ; LDA #$55
	c.LoadAt(0x0200, []byte{0x20, 0x10, 0x02, 0xA9, 0x55})
	// $0210: LDX #$07 ; RTS
	c.LoadAt(0x0210, []byte{0xA2, 0x07, 0x60})
	c.PC = 0x0200
	sp := c.SP
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Step())
	}
	require.Equal(t, byte(0x07), c.X)
	require.Equal(t, byte(0x55), c.A)
	require.Equal(t, sp, c.SP, "stack must balance across JSR/RTS")
}

func TestBranchTakenAndNotTaken(t *testing.T) {
	// LDX #$02 ; loop: DEX ; BNE loop ; LDA #$AA
	c := run(t, []byte{0xA2, 0x02, 0xCA, 0xD0, 0xFD, 0xA9, 0xAA}, 6)
	require.Equal(t, byte(0x00), c.X)
	require.Equal(t, byte(0xAA), c.A)
}

func TestRtiRestoresFrameAndStops(t *testing.T) {
	c := New()
	// Build an RTI frame by hand: P=$24, PC=$E5CD, SP set so the three
	// pulls walk back up to $F3.
	c.WriteMemory(0x01F1, 0x24) // P
	c.WriteMemory(0x01F2, 0xCD) // PCL
	c.WriteMemory(0x01F3, 0xE5) // PCH
	c.SP = 0xF0
	c.LoadAt(0x0300, []byte{0x40}) // RTI
	c.PC = 0x0300

	require.NoError(t, c.RunUntilRTI(10))
	require.Equal(t, uint16(0xE5CD), c.PC)
	require.Equal(t, byte(0xF3), c.SP)
	require.Equal(t, byte(0x24), c.P)
}

func TestRunUntilRTIFailsWithoutRTI(t *testing.T) {
	c := New()
	c.LoadAt(0x0200, []byte{0x4C, 0x00, 0x02}) // JMP $0200 forever
	c.PC = 0x0200
	require.Error(t, c.RunUntilRTI(100))
}

func TestUnknownOpcodeFails(t *testing.T) {
	c := New()
	c.LoadAt(0x0200, []byte{0x02}) // JAM
	c.PC = 0x0200
	require.Error(t, c.Step())
}

func TestHooksInterceptOnlyClaimedAddresses(t *testing.T) {
	c := New()
	var io [0x1000]byte
	c.SetHooks(
		func(addr uint16) (byte, bool) {
			if addr&0xF000 == 0xD000 {
				return io[addr&0x0FFF], true
			}
			return 0, false
		},
		func(addr uint16, v byte) bool {
			if addr&0xF000 == 0xD000 {
				io[addr&0x0FFF] = v
				return true
			}
			return false
		},
	)
	// LDA #$0B ; STA $D020 ; STA $1000
	c.LoadAt(0x0200, []byte{0xA9, 0x0B, 0x8D, 0x20, 0xD0, 0x8D, 0x00, 0x10})
	c.PC = 0x0200
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Step())
	}
	require.Equal(t, byte(0x0B), io[0x020])
	require.Equal(t, byte(0x00), c.ReadMemory(0xD020), "hooked write must not land in RAM")
	require.Equal(t, byte(0x0B), c.ReadMemory(0x1000))
}

func TestShiftsAndRotates(t *testing.T) {
	// SEC ; LDA #$01 ; ROR -> $80 with C set from bit 0
	c := run(t, []byte{0x38, 0xA9, 0x01, 0x6A}, 3)
	require.Equal(t, byte(0x80), c.A)
	require.NotZero(t, c.P&FlagC)

	// LDA #$81 ; LSR -> $40, C set
	c = run(t, []byte{0xA9, 0x81, 0x4A}, 2)
	require.Equal(t, byte(0x40), c.A)
	require.NotZero(t, c.P&FlagC)
}

func TestJmpIndirectPageWrapQuirk(t *testing.T) {
	c := New()
	c.WriteMemory(0x02FF, 0x00)
	c.WriteMemory(0x0200, 0x40) // high byte read from $0200, not $0300
	c.LoadAt(0x0500, []byte{0x6C, 0xFF, 0x02})
	c.PC = 0x0500
	require.NoError(t, c.Step())
	require.Equal(t, uint16(0x4000), c.PC)
}

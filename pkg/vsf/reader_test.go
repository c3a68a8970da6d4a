package vsf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tommyo123/vsfconv/pkg/vserr"
)

func padField(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	for i := len(s); i < width; i++ {
		b[i] = ' '
	}
	return b
}

func writeSection(buf *bytes.Buffer, name string, major, minor byte, payload []byte) {
	buf.Write(padField(name, sectionNameLen))
	buf.WriteByte(major)
	buf.WriteByte(minor)
	total := uint32(sectionNameLen+2+4) + uint32(len(payload))
	binary.Write(buf, binary.LittleEndian, total)
	buf.Write(payload)
}

func buildSnapshot(t *testing.T, major, minor byte, machine string, extraSections func(*bytes.Buffer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(major)
	buf.WriteByte(minor)
	buf.Write(padField(machine, machineFieldLen))

	cpu := make([]byte, 9)
	cpu[0], cpu[1], cpu[2] = 0x11, 0x22, 0x33
	cpu[3] = 0xF3
	cpu[4] = 0x20
	cpu[5], cpu[6] = 0xCD, 0xE5
	cpu[7] = 0x37
	cpu[8] = 0x2F
	writeSection(&buf, "CPU", 1, 0, cpu)

	writeSection(&buf, "MEM", 1, 0, make([]byte, 0x10000))
	writeSection(&buf, "VIC", 1, 0, make([]byte, 47))
	writeSection(&buf, "SID", 1, 0, make([]byte, 29))
	writeSection(&buf, "CIA1", 1, 0, make([]byte, 21))
	writeSection(&buf, "CIA2", 1, 0, make([]byte, 21))
	writeSection(&buf, "C64MEM", 1, 0, make([]byte, 0x400))

	if extraSections != nil {
		extraSections(&buf)
	}
	return buf.Bytes()
}

func TestReadSnapshotRoundTripsCPU(t *testing.T) {
	data := buildSnapshot(t, wantMajor, wantMinor, wantMachine, nil)
	state, err := ReadSnapshot(bytes.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, byte(0x11), state.CPU.A)
	require.Equal(t, byte(0x22), state.CPU.X)
	require.Equal(t, byte(0x33), state.CPU.Y)
	require.Equal(t, byte(0xF3), state.CPU.SP)
	require.Equal(t, byte(0x20), state.CPU.P)
	require.Equal(t, uint16(0xE5CD), state.CPU.PC)
	require.Equal(t, byte(0x37), state.CPU.PortData)
	require.Equal(t, byte(0x2F), state.CPU.PortDDR)
}

func TestReadSnapshotRejectsWrongVersion(t *testing.T) {
	data := buildSnapshot(t, 3, 0, wantMachine, nil)
	_, err := ReadSnapshot(bytes.NewReader(data))
	require.Error(t, err)
	var us *vserr.UnsupportedSnapshot
	require.ErrorAs(t, err, &us)
	require.Contains(t, us.Expected, "2.0")
}

func TestReadSnapshotRejectsWrongMachine(t *testing.T) {
	data := buildSnapshot(t, wantMajor, wantMinor, "C128", nil)
	_, err := ReadSnapshot(bytes.NewReader(data))
	require.Error(t, err)
	var us *vserr.UnsupportedSnapshot
	require.ErrorAs(t, err, &us)
}

func TestReadSnapshotToleratesUnknownSections(t *testing.T) {
	data := buildSnapshot(t, wantMajor, wantMinor, wantMachine, func(buf *bytes.Buffer) {
		writeSection(buf, "REU", 2, 1, []byte{1, 2, 3, 4})
	})
	_, err := ReadSnapshot(bytes.NewReader(data))
	require.NoError(t, err, "unknown sections must be skipped, not rejected")
}

func TestReadSnapshotRejectsMissingSection(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(wantMajor)
	buf.WriteByte(wantMinor)
	buf.Write(padField(wantMachine, machineFieldLen))
	writeSection(&buf, "CPU", 1, 0, make([]byte, 9))
	// MEM and later sections deliberately omitted.

	_, err := ReadSnapshot(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
	var ms *vserr.MalformedSnapshot
	require.ErrorAs(t, err, &ms)
}

func TestReadSnapshotRejectsBadMagic(t *testing.T) {
	data := buildSnapshot(t, wantMajor, wantMinor, wantMachine, nil)
	data[0] = 'X'
	_, err := ReadSnapshot(bytes.NewReader(data))
	require.Error(t, err)
	var ms *vserr.MalformedSnapshot
	require.ErrorAs(t, err, &ms)
}

func TestReadSnapshotParsesCIALatches(t *testing.T) {
	data := buildSnapshot(t, wantMajor, wantMinor, wantMachine, nil)
	state, err := ReadSnapshot(bytes.NewReader(data))
	require.NoError(t, err)
	require.Zero(t, state.CIA1.TimerALatch)

	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(wantMajor)
	buf.WriteByte(wantMinor)
	buf.Write(padField(wantMachine, machineFieldLen))
	writeSection(&buf, "CPU", 1, 0, make([]byte, 9))
	writeSection(&buf, "MEM", 1, 0, make([]byte, 0x10000))
	writeSection(&buf, "VIC", 1, 0, make([]byte, 47))
	writeSection(&buf, "SID", 1, 0, make([]byte, 29))
	cia := make([]byte, 21)
	cia[16], cia[17] = 0x34, 0x12 // TimerALatch = $1234
	cia[18], cia[19] = 0x78, 0x56 // TimerBLatch = $5678
	cia[20] = 0x81
	writeSection(&buf, "CIA1", 1, 0, cia)
	writeSection(&buf, "CIA2", 1, 0, make([]byte, 21))
	writeSection(&buf, "C64MEM", 1, 0, make([]byte, 0x400))

	state, err = ReadSnapshot(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), state.CIA1.TimerALatch)
	require.Equal(t, uint16(0x5678), state.CIA1.TimerBLatch)
	require.Equal(t, byte(0x81), state.CIA1.ICRMask)
}

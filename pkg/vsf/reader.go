package vsf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tommyo123/vsfconv/pkg/vserr"
)

// magic is the fixed ASCII prefix every VICE-style snapshot container
// begins with, terminated by a single 0x1A byte the way VICE's own writer
// emits it.
var magic = []byte("VICE Snapshot File\x1a")

const (
	wantMajor   = 2
	wantMinor   = 0
	wantMachine = "C64SC"

	machineFieldLen = 16
	sectionNameLen  = 16
)

// requiredSections lists the sections ReadSnapshot refuses to proceed
// without. Anything else encountered is skipped by its declared length.
var requiredSections = []string{"CPU", "MEM", "VIC", "SID", "CIA1", "CIA2", "C64MEM"}

// ReadSnapshot parses r as a C64SC, format-2.0 snapshot container. It has no
// side effects beyond reading r and returns UnsupportedSnapshot or
// MalformedSnapshot on failure.
func ReadSnapshot(r io.Reader) (*MachineState, error) {
	br := bufio.NewReader(r)

	if err := expectMagic(br); err != nil {
		return nil, err
	}

	major, err := br.ReadByte()
	if err != nil {
		return nil, &vserr.MalformedSnapshot{Section: "header", Reason: "truncated version"}
	}
	minor, err := br.ReadByte()
	if err != nil {
		return nil, &vserr.MalformedSnapshot{Section: "header", Reason: "truncated version"}
	}
	if major != wantMajor || minor != wantMinor {
		return nil, &vserr.UnsupportedSnapshot{
			Expected: "format 2.0",
			Got:      fmt.Sprintf("format %d.%d", major, minor),
		}
	}

	machineBuf := make([]byte, machineFieldLen)
	if _, err := io.ReadFull(br, machineBuf); err != nil {
		return nil, &vserr.MalformedSnapshot{Section: "header", Reason: "truncated machine name"}
	}
	machine := trimField(machineBuf)
	if machine != wantMachine {
		return nil, &vserr.UnsupportedSnapshot{Expected: wantMachine, Got: machine}
	}

	state := &MachineState{}
	seen := make(map[string]bool)

	for {
		name, data, err := readSection(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := applySection(state, name, data); err != nil {
			return nil, err
		}
		seen[name] = true
	}

	for _, req := range requiredSections {
		if !seen[req] {
			return nil, &vserr.MalformedSnapshot{Section: req, Reason: "required section absent"}
		}
	}

	return state, nil
}

func expectMagic(br *bufio.Reader) error {
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(br, buf); err != nil {
		return &vserr.MalformedSnapshot{Section: "header", Reason: "truncated magic"}
	}
	for i, b := range magic {
		if buf[i] != b {
			return &vserr.MalformedSnapshot{Section: "header", Reason: "bad magic prefix"}
		}
	}
	return nil
}

// readSection reads one tagged section: a fixed-width name, a minor/major
// version pair, a 4-byte little-endian total length (including this
// header), and the remaining payload. The name is padded with spaces in the
// on-disk format, as VICE's own writer pads it.
func readSection(br *bufio.Reader) (string, []byte, error) {
	nameBuf := make([]byte, sectionNameLen)
	n, err := io.ReadFull(br, nameBuf)
	if err == io.EOF && n == 0 {
		return "", nil, io.EOF
	}
	if err != nil {
		return "", nil, &vserr.MalformedSnapshot{Section: "<section>", Reason: "truncated section name"}
	}
	name := trimField(nameBuf)

	// section minor/major version: tolerated but not interpreted, since
	// unknown sections may carry a version this converter has never seen.
	if _, err := br.ReadByte(); err != nil {
		return "", nil, &vserr.MalformedSnapshot{Section: name, Reason: "truncated version"}
	}
	if _, err := br.ReadByte(); err != nil {
		return "", nil, &vserr.MalformedSnapshot{Section: name, Reason: "truncated version"}
	}

	var totalLen uint32
	if err := binary.Read(br, binary.LittleEndian, &totalLen); err != nil {
		return "", nil, &vserr.MalformedSnapshot{Section: name, Reason: "truncated length"}
	}
	const headerLen = sectionNameLen + 2 + 4
	if totalLen < headerLen {
		return "", nil, &vserr.MalformedSnapshot{Section: name, Reason: "length shorter than header"}
	}

	payload := make([]byte, totalLen-headerLen)
	if _, err := io.ReadFull(br, payload); err != nil {
		return "", nil, &vserr.MalformedSnapshot{Section: name, Reason: "truncated payload"}
	}
	return name, payload, nil
}

func trimField(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	return string(b[:end])
}

func applySection(s *MachineState, name string, data []byte) error {
	switch name {
	case "CPU":
		return parseCPU(s, data)
	case "MEM":
		return parseMem(s, data)
	case "VIC":
		return parseVIC(s, data)
	case "SID":
		return parseSID(s, data)
	case "CIA1":
		return parseCIA(&s.CIA1, "CIA1", data)
	case "CIA2":
		return parseCIA(&s.CIA2, "CIA2", data)
	case "C64MEM":
		return parseColorRAM(s, data)
	default:
		// Unknown sections are tolerated: skipped by length, already
		// consumed by readSection.
		return nil
	}
}

func parseCPU(s *MachineState, data []byte) error {
	// A, X, Y, SP, P, PC(lo, hi), port data ($01), port DDR ($00)
	const want = 9
	if len(data) < want {
		return &vserr.MalformedSnapshot{Section: "CPU", Reason: "short record"}
	}
	s.CPU.A = data[0]
	s.CPU.X = data[1]
	s.CPU.Y = data[2]
	s.CPU.SP = data[3]
	s.CPU.P = data[4]
	s.CPU.PC = uint16(data[5]) | uint16(data[6])<<8
	s.CPU.PortData = data[7]
	s.CPU.PortDDR = data[8]
	return nil
}

func parseMem(s *MachineState, data []byte) error {
	if len(data) < len(s.Mem) {
		return &vserr.MalformedSnapshot{Section: "MEM", Reason: "short record"}
	}
	copy(s.Mem[:], data[:len(s.Mem)])
	return nil
}

func parseColorRAM(s *MachineState, data []byte) error {
	if len(data) < len(s.Color) {
		return &vserr.MalformedSnapshot{Section: "C64MEM", Reason: "short record"}
	}
	for i := range s.Color {
		s.Color[i] = data[i] & 0x0F
	}
	return nil
}

func parseVIC(s *MachineState, data []byte) error {
	if len(data) < len(s.VIC) {
		return &vserr.MalformedSnapshot{Section: "VIC", Reason: "short record"}
	}
	copy(s.VIC[:], data[:len(s.VIC)])
	return nil
}

func parseSID(s *MachineState, data []byte) error {
	if len(data) < len(s.SID) {
		return &vserr.MalformedSnapshot{Section: "SID", Reason: "short record"}
	}
	copy(s.SID[:], data[:len(s.SID)])
	return nil
}

func parseCIA(c *CIARegisters, name string, data []byte) error {
	const want = 16 + 2 + 2 + 1
	if len(data) < want {
		return &vserr.MalformedSnapshot{Section: name, Reason: "short record"}
	}
	copy(c.Regs[:], data[:16])
	c.TimerALatch = uint16(data[16]) | uint16(data[17])<<8
	c.TimerBLatch = uint16(data[18]) | uint16(data[19])<<8
	c.ICRMask = data[20]
	return nil
}

package prgbuild

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tommyo123/vsfconv/pkg/restore"
)

func TestBuildStartsWithLoadAddress(t *testing.T) {
	stages := &restore.Stages{
		Loader: restore.AssembledStage{Origin: restore.LoaderOrigin, Bytes: []byte{0xEA, 0xEA, 0x60}},
	}
	out := Build(stages)
	require.Equal(t, []byte{0x01, 0x08}, out[:2])
}

func TestBuildStubLandsLoaderAtFixedOrigin(t *testing.T) {
	stages := &restore.Stages{
		Loader: restore.AssembledStage{Origin: restore.LoaderOrigin, Bytes: []byte{0xEA, 0xEA, 0x60}},
	}
	out := Build(stages)

	// restore.LoaderOrigin ($080D) minus the $0801 load address is the
	// exact stub length the "SYS 2061" encoding must produce.
	stubLen := int(restore.LoaderOrigin) - 0x0801
	require.GreaterOrEqual(t, len(out), 2+stubLen+3)
	require.Equal(t, byte(0xEA), out[2+stubLen], "loader bytes not found at expected offset")
}

func TestBuildStubEncodesSYSLine(t *testing.T) {
	stages := &restore.Stages{
		Loader: restore.AssembledStage{Origin: restore.LoaderOrigin, Bytes: []byte{0x60}},
	}
	out := Build(stages)

	// Skip the load address: next-line pointer, line number, SYS token,
	// "2061", terminator, end-of-program link.
	stub := out[2:]
	require.Equal(t, byte(0x9E), stub[4], "SYS token")
	require.Equal(t, "2061", string(stub[5:9]))
	require.Equal(t, byte(0x00), stub[9], "line terminator")
	require.Equal(t, []byte{0x00, 0x00}, stub[10:12], "end-of-program link")
}

func TestDecimalDigits(t *testing.T) {
	cases := map[int]string{0: "0", 7: "7", 2061: "2061", 65535: "65535"}
	for n, want := range cases {
		require.Equal(t, want, decimalDigits(n))
	}
}

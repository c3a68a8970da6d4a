package crtbuild

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tommyo123/vsfconv/pkg/restore"
)

func testStages() *restore.Stages {
	return &restore.Stages{
		Loader: restore.AssembledStage{Origin: restore.LoaderOrigin, Bytes: make([]byte, 100)},
	}
}

func TestBuildMagicDeskHeader(t *testing.T) {
	out, err := Build(testStages(), Options{MagicDesk: true, Name: "TEST"})
	require.NoError(t, err)
	require.Equal(t, []byte("C64 CARTRIDGE   "), out[:16])

	hwType := uint16(out[0x16])<<8 | uint16(out[0x17])
	require.Equal(t, uint16(hwTypeMagicDesk), hwType)
	require.Equal(t, byte(0), out[0x18], "EXROM")
	require.Equal(t, byte(1), out[0x19], "GAME")
}

func TestBuildMagicDeskBank0CarriesCBM80(t *testing.T) {
	out, err := Build(testStages(), Options{MagicDesk: true})
	require.NoError(t, err)

	// First CHIP record starts at 0x40; its ROM data starts 16 bytes in,
	// and the CBM80 signature sits at $8004, i.e. data offset 4.
	data := out[0x40+16:]
	require.Equal(t, cbm80Signature, data[4:9])
}

func TestBuildMagicDeskMinimumBankCount(t *testing.T) {
	out, err := Build(testStages(), Options{MagicDesk: true})
	require.NoError(t, err)

	chips := 0
	for i := 0x40; i < len(out); {
		require.Equal(t, []byte("CHIP"), out[i:i+4])
		length := uint32(out[i+4])<<24 | uint32(out[i+5])<<16 | uint32(out[i+6])<<8 | uint32(out[i+7])
		chips++
		i += int(length)
	}
	require.GreaterOrEqual(t, chips, minMagicDeskBanks)
}

func TestBuildMagicDeskSpansBanksForLargePayload(t *testing.T) {
	stages := &restore.Stages{
		Loader: restore.AssembledStage{Origin: restore.LoaderOrigin, Bytes: make([]byte, 95*1024)},
	}
	out, err := Build(stages, Options{MagicDesk: true})
	require.NoError(t, err)

	chips := 0
	for i := 0x40; i < len(out); {
		length := uint32(out[i+4])<<24 | uint32(out[i+5])<<16 | uint32(out[i+6])<<8 | uint32(out[i+7])
		bank := uint16(out[i+10])<<8 | uint16(out[i+11])
		require.Equal(t, uint16(chips), bank, "banks must be numbered 0..N-1 in order")
		chips++
		i += int(length)
	}
	// 95 KiB needs bank 0's tail plus 11 more full banks: 12 banks in all.
	require.GreaterOrEqual(t, chips, 12)
	require.LessOrEqual(t, chips, maxMagicDeskBanks)
}

func TestBuildEasyFlashEmbedsIncludeDirectory(t *testing.T) {
	out, err := Build(testStages(), Options{
		Includes: []IncludeFile{{Name: "LOADER", Bytes: []byte("hello")}},
	})
	require.NoError(t, err)

	hwType := uint16(out[0x16])<<8 | uint16(out[0x17])
	require.Equal(t, uint16(hwTypeEasyFlash), hwType)
}

func TestBuildDirectoryRejectsEmptyFile(t *testing.T) {
	_, _, err := buildDirectory([]IncludeFile{{Name: "EMPTY", Bytes: nil}}, 0xA000)
	require.Error(t, err)
}

func TestBuildDirectoryPadsNamesTo16Bytes(t *testing.T) {
	dir, data, err := buildDirectory([]IncludeFile{
		{Name: "LOADER", Bytes: []byte{0x01, 0x08, 0x60}},
		{Name: "LEVEL1.PRG", Bytes: []byte{0x01, 0x08, 0xEA}},
	}, 0xA100)
	require.NoError(t, err)
	require.Len(t, dir, 2*directoryEntrySize)

	require.Equal(t, append([]byte("LOADER"), make([]byte, 10)...), dir[:16])
	require.Equal(t, append([]byte("LEVEL1.PRG"), make([]byte, 6)...), dir[directoryEntrySize:directoryEntrySize+16])

	// Second entry's address is the first file's end.
	addr := uint16(dir[directoryEntrySize+16])<<8 | uint16(dir[directoryEntrySize+17])
	require.Equal(t, uint16(0xA103), addr)
	require.Equal(t, []byte{0x01, 0x08, 0x60, 0x01, 0x08, 0xEA}, data)
}

func TestAssembleTrampolineSpansMultipleBanks(t *testing.T) {
	code, n0, banks, err := assembleTrampoline(Options{SnapshotSP: 0x20}, bankSize*2)
	require.NoError(t, err)
	require.GreaterOrEqual(t, banks, 3, "2-bank payload plus bank 0's own tail")
	require.Greater(t, n0, 0)
	require.Less(t, n0, bankSize)
	require.NotEmpty(t, code)
}

func TestAssembleLoadHookAndInstall(t *testing.T) {
	hook, err := assembleLoadHook(2)
	require.NoError(t, err)
	require.NotEmpty(t, hook)

	install, err := assembleHookInstall()
	require.NoError(t, err)
	require.NotEmpty(t, install)
}

func TestTrampolineTargetPicksByStackPointer(t *testing.T) {
	require.Equal(t, uint16(trampolineLow), trampolineTarget(0x20))
	require.Equal(t, uint16(trampolineHigh), trampolineTarget(0x04))
}

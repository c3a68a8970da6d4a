package restore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tommyo123/vsfconv/pkg/memscan"
	"github.com/tommyo123/vsfconv/pkg/vsf"
)

func emptyRAMState() *vsf.MachineState {
	s := &vsf.MachineState{}
	s.CPU.SP = 0xF3
	s.CPU.P = 0x20
	s.CPU.PC = 0xE5CD
	s.CPU.PortData = 0x37
	s.CPU.PortDDR = 0x2F
	return s
}

func TestBuildStagesEmptyRAMConverges(t *testing.T) {
	stages, err := BuildStages(emptyRAMState(), nil)
	require.NoError(t, err)

	require.Equal(t, uint16(LoaderOrigin), stages.Loader.Origin)
	require.NotEmpty(t, stages.Loader.Bytes)
	require.NotEmpty(t, stages.Block9.Bytes)
	require.NotEmpty(t, stages.Block10.Bytes)
	require.NotEmpty(t, stages.Final.Bytes)
	require.False(t, stages.StackRisk, "SP=$F3 should not trigger StackRisk")
}

func TestBuildStagesFinalFitsInPage1(t *testing.T) {
	stages, err := BuildStages(emptyRAMState(), nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, stages.Final.Origin, uint16(0x0100))
	require.LessOrEqual(t, int(stages.Final.Origin)+len(stages.Final.Bytes), 0x0200)
}

func TestBuildStagesBlocksOutsidePage1(t *testing.T) {
	stages, err := BuildStages(emptyRAMState(), nil)
	require.NoError(t, err)

	for _, st := range []AssembledStage{stages.Block9, stages.Block10} {
		end := int(st.Origin) + len(st.Bytes)
		outside := end <= 0x0100 || int(st.Origin) >= 0x0200
		require.Truef(t, outside, "stage at $%04X..$%04X overlaps page 1", st.Origin, end)
	}
}

func TestBuildStagesHighStackTriggersStackRisk(t *testing.T) {
	s := emptyRAMState()
	s.CPU.SP = 0x04
	stages, err := BuildStages(s, nil)
	require.NoError(t, err)
	require.True(t, stages.StackRisk, "SP=$04 should trigger the final-stage placement fallback")
}

func TestBuildStagesIsDeterministic(t *testing.T) {
	a, err := BuildStages(emptyRAMState(), nil)
	require.NoError(t, err)
	b, err := BuildStages(emptyRAMState(), nil)
	require.NoError(t, err)
	require.Equal(t, a.Loader.Bytes, b.Loader.Bytes)
	require.Equal(t, a.Block9.Bytes, b.Block9.Bytes)
	require.Equal(t, a.Block10.Bytes, b.Block10.Bytes)
	require.Equal(t, a.Final.Bytes, b.Final.Bytes)
}

func TestExcludeRangeSplitsStraddlingRun(t *testing.T) {
	runs := []memscan.FreeRun{{Start: 0x0200, Length: 0xFDF0}}
	got := excludeRange(runs, 0x0800, 0x1000)

	require.Len(t, got, 2)
	require.Equal(t, uint16(0x0200), got[0].Start)
	require.Equal(t, uint16(0x0800), got[0].End())
	require.Equal(t, uint16(0x1000), got[1].Start)
}

func TestExcludeRangeDropsShortRemainder(t *testing.T) {
	runs := []memscan.FreeRun{{Start: 0x0800, Length: 40}}
	got := excludeRange(runs, 0x0800, 0x0820)
	require.Empty(t, got, "the 8-byte remainder below MinRunLength must be dropped")
}

package cpu_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/internal/testutil"
)

type recordingListener struct {
	changes [][2]int
	freqs   []uint
}

func (r *recordingListener) OnOPPChanged(isl *cpu.Island, oldOPP, newOPP int) {
	r.changes = append(r.changes, [2]int{oldOPP, newOPP})
	for _, c := range isl.CPUs() {
		r.freqs = append(r.freqs, c.Frequency())
	}
}

// TestBP_ReferenceSpeeds tests the fitted speed curve against hand-computed values.
func TestBP_ReferenceSpeeds(t *testing.T) {
	little, big := testutil.NewBigLittle(t)

	bigTop, err := big.OPPByFrequency(2000)
	require.NoError(t, err)
	littleMid, err := little.OPPByFrequency(500)
	require.NoError(t, err)

	bigSpeed := big.CPUs()[0].SpeedAt(bigTop, "bzip2")
	littleSpeed := little.CPUs()[0].SpeedAt(littleMid, "bzip2")

	testutil.AssertFloat64Equal(t, "BIG bzip2 @2000", 1.00537, bigSpeed, 1e-3)
	testutil.AssertFloat64Equal(t, "LITTLE bzip2 @500", 0.151745, littleSpeed, 1e-3)
	assert.InDelta(t, 497.3, 500/bigSpeed, 0.5)
	assert.InDelta(t, 65.9, 10/littleSpeed, 0.2)

	assert.Equal(t, 1.0, big.CPUs()[0].SpeedAt(0, "idle"))
}

// TestBP_PowerIncreasesWithOPP tests that power grows along the OPP list.
func TestBP_PowerIncreasesWithOPP(t *testing.T) {
	_, big := testutil.NewBigLittle(t)
	c := big.CPUs()[0]
	prev := 0.0
	for i := 5; i < big.NumOPPs(); i++ {
		p := c.PowerAt(i, "bzip2")
		assert.Greater(t, p, prev, "OPP %d", i)
		prev = p
	}
}

// TestCPU_IdleShare tests that each core carries 1/n of the idle power.
func TestCPU_IdleShare(t *testing.T) {
	little, _ := testutil.NewBigLittle(t)
	c := little.CPUs()[0]
	idle := little.Model().Power(little.OPP(), "idle")

	assert.InDelta(t, idle/4, c.PowerAt(0, "idle"), 1e-12)
	assert.InDelta(t, little.Model().Power(little.OPP(), "hash")+idle/4, c.PowerAt(0, "hash"), 1e-12)
	assert.InDelta(t, c.PowerAt(0, "idle"), c.Power(), 1e-12, "new cores run idle")
}

// TestBP_UnknownWorkloadFallsBack tests the busy/idle fallback chain.
func TestBP_UnknownWorkloadFallsBack(t *testing.T) {
	little, _ := testutil.NewBigLittle(t)
	m := little.Model()
	assert.Equal(t, m.Speed(little.OPP(), "idle"), m.Speed(little.OPP(), "nonexistent"))

	_, err := cpu.NewBP(map[string]cpu.BPParams{"bzip2": {}})
	assert.ErrorIs(t, err, cpu.ErrUnknownWorkload)
}

// TestIsland_SetOPPNotifiesAndIsCoherent tests island-wide frequency changes.
func TestIsland_SetOPPNotifiesAndIsCoherent(t *testing.T) {
	_, big := testutil.NewBigLittle(t)
	l := &recordingListener{}
	big.AddListener(l)

	require.NoError(t, big.SetOPP(18))
	require.NoError(t, big.SetOPP(18))

	assert.Equal(t, [][2]int{{0, 18}}, l.changes)
	assert.Equal(t, []uint{2000, 2000, 2000, 2000}, l.freqs)
	for _, c := range big.CPUs() {
		assert.Equal(t, uint(2000), c.Frequency())
		assert.Equal(t, big.Voltage(), c.Voltage())
	}

	assert.ErrorIs(t, big.SetOPP(19), cpu.ErrOPPOutOfRange)
	assert.ErrorIs(t, big.SetOPP(-1), cpu.ErrOPPOutOfRange)
}

// TestIsland_HigherOPPs tests the OPP suffix from the current index.
func TestIsland_HigherOPPs(t *testing.T) {
	little, _ := testutil.NewBigLittle(t)
	little.MustSetOPP(10)
	assert.Equal(t, []int{10, 11, 12}, little.HigherOPPs())

	little.Reset()
	assert.Equal(t, 0, little.OPPIndex())
	assert.Len(t, little.HigherOPPs(), 13)
}

// TestIsland_Busy tests that an island is busy when any core is.
func TestIsland_Busy(t *testing.T) {
	little, _ := testutil.NewBigLittle(t)
	assert.False(t, little.Busy())
	little.CPUs()[3].SetBusy(true)
	assert.True(t, little.Busy())
}

// TestBuildOPPs_Validation tests OPP list validation.
func TestBuildOPPs_Validation(t *testing.T) {
	_, err := cpu.BuildOPPs([]float64{1, 1}, []uint{100})
	assert.Error(t, err)
	_, err = cpu.BuildOPPs([]float64{1, 1}, []uint{200, 100})
	assert.Error(t, err)
	_, err = cpu.BuildOPPs(nil, nil)
	assert.Error(t, err)
	opps, err := cpu.BuildOPPs([]float64{0.9, 1.0}, []uint{100, 200})
	require.NoError(t, err)
	assert.Equal(t, "200MHz@1V", opps[1].String())
}

// TestMinimal_LinearSpeed tests the workload-agnostic model.
func TestMinimal_LinearSpeed(t *testing.T) {
	m := cpu.NewMinimal(2000)
	assert.Equal(t, 0.5, m.Speed(cpu.OPP{Voltage: 1, Frequency: 1000}, "x"))
	assert.Equal(t, 1.0, m.Speed(cpu.OPP{Voltage: 1, Frequency: 2000}, "y"))
	assert.Equal(t, 4000.0, m.Power(cpu.OPP{Voltage: 2, Frequency: 1000}, "x"))
}

// TestTable_ExactAndApprox tests table lookups.
func TestTable_ExactAndApprox(t *testing.T) {
	rows := []cpu.TableEntry{
		{Workload: "idle", OPP: cpu.OPP{Voltage: 1, Frequency: 100}, Power: 0.1, Speed: 1},
		{Workload: "busy", OPP: cpu.OPP{Voltage: 1, Frequency: 100}, Power: 1, Speed: 0.5},
		{Workload: "busy", OPP: cpu.OPP{Voltage: 1.2, Frequency: 200}, Power: 2, Speed: 1},
	}
	exact, err := cpu.NewTable(rows, false)
	require.NoError(t, err)
	assert.Equal(t, 2.0, exact.Power(cpu.OPP{Voltage: 1.2, Frequency: 200}, "busy"))
	assert.Equal(t, 0.5, exact.Speed(cpu.OPP{Voltage: 1, Frequency: 100}, "bzip2"), "falls back to busy")
	assert.Panics(t, func() { exact.Power(cpu.OPP{Voltage: 1.1, Frequency: 150}, "busy") })

	approx, err := cpu.NewTable(rows, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, approx.Speed(cpu.OPP{Voltage: 1.15, Frequency: 190}, "busy"))
}

// TestReadBPParams_CSV tests loading fitted curves from CSV.
func TestReadBPParams_CSV(t *testing.T) {
	doc := `model,workload,power_d,power_e,power_g,power_k,speed_a,speed_b,speed_c,speed_d
big,idle,0.0162881,0.00100737,55.8491,1.00494e-9,1,0,0,0
big,bzip2,0.0407739,12.022,3.33367,7.4577e-9,0.17833,1.63265e+6,1.62033,118803
little,idle,0.00134845,1.76307e-5,124.535,1.00399e-10,1,0,0,0
`
	params, err := cpu.ReadBPParams(strings.NewReader(doc), "big")
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, testutil.BigParams["bzip2"], params["bzip2"])

	_, err = cpu.ReadBPParams(strings.NewReader("workload,power_d\nx,1\n"), "")
	assert.Error(t, err)
}

// TestReadTableEntries_CSV tests loading measured points from CSV.
func TestReadTableEntries_CSV(t *testing.T) {
	doc := "workload,freq,voltage,power,speed\nbusy,100,0.9,1.5,0.5\n# comment\nidle,100,0.9,0.2,1\n"
	rows, err := cpu.ReadTableEntries(strings.NewReader(doc), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint(100), rows[0].OPP.Frequency)
	assert.Equal(t, 1.5, rows[0].Power)
}

// Package testutil provides shared test infrastructure for the simulator:
// the 4+4 big.LITTLE reference topology and tolerance assertions.
package testutil

import (
	"math"
	"testing"

	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
)

// LittleVolts and LittleFreqs are the OPPs of the LITTLE island (MHz).
var (
	LittleVolts = []float64{0.92, 0.919643, 0.919357, 0.918924, 0.95625, 0.9925, 1.02993,
		1.0475, 1.08445, 1.12125, 1.15779, 1.2075, 1.25625}
	LittleFreqs = []uint{200, 300, 400, 500, 600, 700, 800, 900, 1000, 1100, 1200, 1300, 1400}
)

// BigVolts and BigFreqs are the OPPs of the BIG island (MHz).
var (
	BigVolts = []float64{0.916319, 0.915475, 0.915102, 0.91498, 0.91502, 0.90375, 0.916562,
		0.942543, 0.96877, 0.994941, 1.02094, 1.04648, 1.05995, 1.08583, 1.12384, 1.16325,
		1.20235, 1.2538, 1.33287}
	BigFreqs = []uint{200, 300, 400, 500, 600, 700, 800, 900, 1000, 1100, 1200, 1300, 1400,
		1500, 1600, 1700, 1800, 1900, 2000}
)

func bp(pd, pe, pg, pk, sa, sb, sc, sd float64) cpu.BPParams {
	return cpu.BPParams{
		Power: cpu.PowerParams{D: pd, E: pe, G: pg, K: pk},
		Speed: cpu.SpeedParams{A: sa, B: sb, C: sc, D: sd},
	}
}

// LittleParams are the fitted curves of the LITTLE cores.
var LittleParams = map[string]cpu.BPParams{
	"idle":        bp(0.00134845, 1.76307e-5, 124.535, 1.00399e-10, 1, 0, 0, 0),
	"bzip2":       bp(0.00775587, 33.376, 1.54585, 9.53439e-10, 0.0256054, 2.9809e+6, 0.602631, 8.13712e+9),
	"hash":        bp(0.00624673, 176.315, 1.72836, 1.77362e-10, 0.00645628, 3.37134e+6, 7.83177, 93459),
	"encrypt":     bp(0.00676544, 26.2243, 5.6071, 5.34216e-10, 6.11496e-78, 3.32246e+6, 6.5652, 115759),
	"decrypt":     bp(0.00629664, 87.1519, 2.93286, 2.80871e-10, 5.0154e-68, 3.31791e+6, 7.154, 112163),
	"cachekiller": bp(0.0126737, 67.9915, 1.63949, 3.66185e-10, 1.20262, 352597, 2.03511, 169523),
}

// BigParams are the fitted curves of the BIG cores.
var BigParams = map[string]cpu.BPParams{
	"idle":        bp(0.0162881, 0.00100737, 55.8491, 1.00494e-9, 1, 0, 0, 0),
	"bzip2":       bp(0.0407739, 12.022, 3.33367, 7.4577e-9, 0.17833, 1.63265e+6, 1.62033, 118803),
	"hash":        bp(0.0388215, 16.3205, 4.3418, 5.07039e-9, 0.017478, 1.93925e+6, 4.22469, 83048.3),
	"encrypt":     bp(0.0348728, 8.14399, 5.64344, 7.69915e-9, 8.39417e-34, 1.99222e+6, 3.33002, 96949.4),
	"decrypt":     bp(0.0320508, 25.8727, 3.27135, 4.11773e-9, 9.49471e-35, 1.98761e+6, 2.65652, 109497),
	"cachekiller": bp(0.086908, 9.17989, 2.5828, 7.64943e-9, 0.825212, 235044, 786.368, 25622.1),
}

// NewBigLittle builds the reference topology: four LITTLE and four BIG
// cores, both islands at their lowest OPP.
func NewBigLittle(t testing.TB) (little, big *cpu.Island) {
	t.Helper()
	little = mustIsland(t, "LITTLE", cpu.Little, LittleVolts, LittleFreqs, LittleParams)
	big = mustIsland(t, "BIG", cpu.Big, BigVolts, BigFreqs, BigParams)
	return little, big
}

func mustIsland(t testing.TB, name string, typ cpu.IslandType, volts []float64, freqs []uint, params map[string]cpu.BPParams) *cpu.Island {
	t.Helper()
	opps, err := cpu.BuildOPPs(volts, freqs)
	if err != nil {
		t.Fatalf("building %s OPPs: %v", name, err)
	}
	model, err := cpu.NewBP(params)
	if err != nil {
		t.Fatalf("building %s model: %v", name, err)
	}
	isl, err := cpu.NewIsland(name, typ, opps, 0, model, 4)
	if err != nil {
		t.Fatalf("building %s island: %v", name, err)
	}
	return isl
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t testing.TB, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// Package cpu models processors: operating performance points, frequency
// islands, cores and the power/speed models that drive them.
package cpu

import (
	"errors"
	"fmt"
)

var (
	// ErrOPPOutOfRange is returned when an OPP index does not exist.
	ErrOPPOutOfRange = errors.New("OPP index out of range")

	// ErrUnknownWorkload is raised when a model has no curve for a workload.
	ErrUnknownWorkload = errors.New("unknown workload")
)

// Well-known workload classes.
const (
	WorkloadIdle = "idle"
	WorkloadBusy = "busy"
)

// OPP is an operating performance point: a voltage (V) and a frequency (MHz).
type OPP struct {
	Voltage   float64
	Frequency uint
}

func (o OPP) String() string {
	return fmt.Sprintf("%dMHz@%.4gV", o.Frequency, o.Voltage)
}

// BuildOPPs pairs voltages and frequencies. Frequencies must be strictly
// ascending and both slices the same non-zero length.
func BuildOPPs(volts []float64, freqs []uint) ([]OPP, error) {
	if len(volts) != len(freqs) {
		return nil, fmt.Errorf("got %d voltages and %d frequencies", len(volts), len(freqs))
	}
	if len(freqs) == 0 {
		return nil, errors.New("no OPPs given")
	}
	opps := make([]OPP, len(freqs))
	for i := range freqs {
		if i > 0 && freqs[i] <= freqs[i-1] {
			return nil, fmt.Errorf("frequencies not ascending at index %d (%d <= %d)", i, freqs[i], freqs[i-1])
		}
		if volts[i] <= 0 {
			return nil, fmt.Errorf("non-positive voltage %g at index %d", volts[i], i)
		}
		opps[i] = OPP{Voltage: volts[i], Frequency: freqs[i]}
	}
	return opps, nil
}

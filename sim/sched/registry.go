package sched

import (
	"fmt"
	"sort"

	"github.com/gabrieleara/PARTSim-sub001/sim"
)

// DefaultRRSlice is the quantum of round-robin schedulers built by name.
const DefaultRRSlice sim.Tick = 10

// ValidSchedulers is the set of recognized scheduler names.
// An empty name selects EDF.
var ValidSchedulers = map[string]bool{"": true, "edf": true, "fp": true, "fifo": true, "rr": true}

// IsValidScheduler reports whether name selects a known policy.
func IsValidScheduler(name string) bool {
	return ValidSchedulers[name]
}

// SchedulerNames returns the recognized names, sorted.
func SchedulerNames() []string {
	var names []string
	for n := range ValidSchedulers {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// New creates a scheduler by name. rrSlice is only used by "rr"; zero
// selects DefaultRRSlice.
func New(s *sim.Simulation, name string, rrSlice sim.Tick) (Scheduler, error) {
	if !IsValidScheduler(name) {
		return nil, fmt.Errorf("unknown scheduler %q (valid: %v)", name, SchedulerNames())
	}
	switch name {
	case "", "edf":
		return NewEDF(s), nil
	case "fp":
		return NewFP(s), nil
	case "fifo":
		return NewFIFO(s), nil
	case "rr":
		if rrSlice <= 0 {
			rrSlice = DefaultRRSlice
		}
		return NewRR(s, rrSlice), nil
	default:
		panic(fmt.Sprintf("unhandled scheduler %q", name))
	}
}

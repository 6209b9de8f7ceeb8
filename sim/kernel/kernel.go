// Package kernel implements the operating-system side of the simulator:
// the components that own the ready queues and hand processors to tasks.
//
//   - RTKernel drives a single CPU with one scheduler.
//   - MRTKernel schedules a global ready queue on several CPUs.
//   - EnergyMRTKernel places every arrival on the (core, OPP) pair that
//     costs the least power on a big.LITTLE platform, and keeps one ready
//     queue per core.
//
// Every kernel gives a processor to a task in two steps. A begin-dispatch
// event picks the task and starts a context switch; an end-dispatch event
// fires once the switch overhead has elapsed and calls Schedule on the task.
package kernel

import (
	"errors"
	"fmt"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
)

var (
	// ErrNoCPU is returned when a kernel is built without processors.
	ErrNoCPU = errors.New("kernel needs at least one cpu")

	// ErrInvalidPolicy is returned for contradictory dispatch policies.
	ErrInvalidPolicy = errors.New("invalid dispatch policy")
)

// Hook positions raised by the energy-aware kernel. Item is the task.
var (
	// HookPosUnschedulable fires when no (core, OPP) pair admits a task.
	HookPosUnschedulable = &sim.HookPos{Name: "Unschedulable"}
	// HookPosMigration fires when a task lands on a new core. Detail is
	// the destination *cpu.CPU.
	HookPosMigration = &sim.HookPos{Name: "Migration"}
)

// Begin and end dispatch run after the tasks and servers of the same
// instant have settled.
const (
	beginDispatchPriority = sim.DefaultPriority + 10
	endDispatchPriority   = sim.DefaultPriority + 10
)

func mustInsert(sc sched.Scheduler, t rt.Task) {
	if err := sc.Insert(t); err != nil {
		panic(fmt.Errorf("kernel: %w", err))
	}
}

// extract removes t from sc if queued and reports whether it was.
func extract(sc sched.Scheduler, t rt.Task) bool {
	if !sc.InQueue(t) {
		return false
	}
	if err := sc.Extract(t); err != nil {
		panic(fmt.Errorf("kernel: %w", err))
	}
	return true
}

func forward(res rt.ResourceManager, t rt.Task, name string, n int) (bool, error) {
	if res == nil {
		return false, fmt.Errorf("task %s, resource %q: %w", t.Name(), name, rt.ErrNoResourceManager)
	}
	return res.Request(t, name, n)
}

func release(res rt.ResourceManager, t rt.Task, name string, n int) error {
	if res == nil {
		return fmt.Errorf("task %s, resource %q: %w", t.Name(), name, rt.ErrNoResourceManager)
	}
	return res.Release(t, name, n)
}

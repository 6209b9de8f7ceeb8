package testutil

import (
	"slices"
	"testing"

	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

// NewUnitIsland builds a generic island of n cores with a single OPP at
// which every workload runs at speed 1.
func NewUnitIsland(t testing.TB, name string, n int) *cpu.Island {
	t.Helper()
	opps, err := cpu.BuildOPPs([]float64{1}, []uint{1000})
	if err != nil {
		t.Fatalf("building OPPs: %v", err)
	}
	isl, err := cpu.NewIsland(name, cpu.Generic, opps, 0, cpu.NewMinimal(1000), n)
	if err != nil {
		t.Fatalf("building island: %v", err)
	}
	return isl
}

// FIFOKernel is a minimal uniprocessor kernel for unit tests. Ready tasks
// run in arrival order without preemption and without context switches.
type FIFOKernel struct {
	CPU       *cpu.CPU
	Resources rt.ResourceManager

	ready   []rt.Task
	running rt.Task
	last    map[rt.Task]*cpu.CPU
}

// NewFIFOKernel creates a kernel running on c.
func NewFIFOKernel(c *cpu.CPU) *FIFOKernel {
	return &FIFOKernel{CPU: c, last: make(map[rt.Task]*cpu.CPU)}
}

// Running returns the task holding the processor.
func (k *FIFOKernel) Running() rt.Task { return k.running }

// Ready returns the tasks in the ready queue, the running one included.
func (k *FIFOKernel) Ready() []rt.Task { return k.ready }

func (k *FIFOKernel) OnArrival(t rt.Task) {
	k.Activate(t)
	k.Dispatch()
}

func (k *FIFOKernel) Activate(t rt.Task) {
	if !slices.Contains(k.ready, t) {
		k.ready = append(k.ready, t)
	}
}

func (k *FIFOKernel) Suspend(t rt.Task) {
	if i := slices.Index(k.ready, t); i >= 0 {
		k.ready = slices.Delete(k.ready, i, i+1)
	}
	if k.running == t {
		t.Deschedule()
		k.last[t] = k.CPU
		k.running = nil
	}
}

func (k *FIFOKernel) OnEnd(t rt.Task) {
	k.Suspend(t)
	k.Dispatch()
}

func (k *FIFOKernel) Dispatch() {
	if k.running != nil || len(k.ready) == 0 {
		return
	}
	k.running = k.ready[0]
	k.running.Schedule()
}

func (k *FIFOKernel) Processor(t rt.Task) *cpu.CPU {
	if k.running == t {
		return k.CPU
	}
	return nil
}

func (k *FIFOKernel) OldProcessor(t rt.Task) *cpu.CPU {
	return k.last[t]
}

func (k *FIFOKernel) RequestResource(t rt.Task, res string, n int) (bool, error) {
	if k.Resources == nil {
		return false, rt.ErrNoResourceManager
	}
	return k.Resources.Request(t, res, n)
}

func (k *FIFOKernel) ReleaseResource(t rt.Task, res string, n int) error {
	if k.Resources == nil {
		return rt.ErrNoResourceManager
	}
	return k.Resources.Release(t, res, n)
}

var _ rt.Kernel = (*FIFOKernel)(nil)

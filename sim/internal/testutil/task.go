package testutil

import (
	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

// StubTask is an rt.Task whose attributes are set directly by tests.
type StubTask struct {
	sim.HookableBase

	TaskName  string
	TaskID    int
	Cycles    float64 // WCET at unit speed
	Left      float64 // remaining cycles, negative means Cycles
	Dline     sim.Tick
	Per       sim.Tick
	Arr       sim.Tick
	Sched     sim.Tick
	Active    bool
	Executing bool
	WL        string
	K         rt.Kernel
	Now       func() sim.Tick

	Schedules   int
	Deschedules int
	Refreshes   int
}

// NewStubTask creates an active stub task with a fresh ID.
func NewStubTask(name string, cycles float64, period sim.Tick) *StubTask {
	return &StubTask{TaskName: name, TaskID: rt.NextID(), Cycles: cycles, Left: -1, Per: period, Dline: period, Active: true}
}

func (s *StubTask) Name() string { return s.TaskName }
func (s *StubTask) NewRun() {}
func (s *StubTask) EndRun() {}
func (s *StubTask) ID() int { return s.TaskID }
func (s *StubTask) Kind() rt.Kind { return rt.KindTask }
func (s *StubTask) SetKernel(k rt.Kernel) { s.K = k }
func (s *StubTask) Kernel() rt.Kernel { return s.K }
func (s *StubTask) IsActive() bool { return s.Active }
func (s *StubTask) IsExecuting() bool { return s.Executing }
func (s *StubTask) Deadline() sim.Tick { return s.Dline }
func (s *StubTask) RelDline() sim.Tick { return s.Per }
func (s *StubTask) Period() sim.Tick { return s.Per }
func (s *StubTask) Arrival() sim.Tick { return s.Arr }
func (s *StubTask) LastSched() sim.Tick { return s.Sched }
func (s *StubTask) RefreshExec() { s.Refreshes++ }

func (s *StubTask) Schedule() {
	s.Executing = true
	s.Schedules++
	if s.Now != nil {
		s.Sched = s.Now()
	}
}

func (s *StubTask) Deschedule() {
	s.Executing = false
	s.Deschedules++
}

func (s *StubTask) WCET(capacity float64) sim.Tick {
	return sim.CeilTick(s.Cycles / capacity)
}

func (s *StubTask) RemainingWCET(capacity float64) sim.Tick {
	if s.Left < 0 {
		return s.WCET(capacity)
	}
	return sim.CeilTick(s.Left / capacity)
}

func (s *StubTask) Workload() string {
	if s.WL == "" {
		return cpu.WorkloadBusy
	}
	return s.WL
}

var _ rt.Task = (*StubTask)(nil)

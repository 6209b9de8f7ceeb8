package sched

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

// EDF orders tasks by absolute deadline.
type EDF struct {
	base
}

// NewEDF creates an earliest-deadline-first scheduler.
func NewEDF(s *sim.Simulation) *EDF {
	return &EDF{base: newBase(s, "edf", func(m *TaskModel) int64 {
		if m.override {
			return m.static
		}
		return int64(m.task.Deadline())
	})}
}

// ChangePriority overrides the deadline of t. Passing the current
// deadline removes the override.
func (e *EDF) ChangePriority(t rt.Task, p int64) error {
	m, err := e.find(t)
	if err != nil {
		return err
	}
	if p == int64(t.Deadline()) {
		m.override = false
	} else {
		m.override = true
		m.static = p
	}
	e.rekey(m)
	return nil
}

// IsAdmissible reports whether t fits with tasks on a processor of the
// given capacity: the sum of WCET/period must not exceed 1.
func IsAdmissible(capacity float64, tasks []rt.Task, t rt.Task) bool {
	wcet := t.WCET(capacity)
	if wcet == 0 {
		logrus.Debugf("admission of %s with a null WCET", t.Name())
	}
	u := wcet.Float() / t.Period().Float()
	for _, other := range tasks {
		u += other.WCET(capacity).Float() / other.Period().Float()
	}
	return u <= 1.0
}

// FP orders tasks by a static priority, lower values first.
type FP struct {
	base
}

// NewFP creates a fixed-priority scheduler.
func NewFP(s *sim.Simulation) *FP {
	return &FP{base: newBase(s, "fp", func(m *TaskModel) int64 { return m.static })}
}

// AddTaskPriority registers t with priority p.
func (f *FP) AddTaskPriority(t rt.Task, p int64) error {
	m, err := f.enqueueModel(t)
	if err != nil {
		return err
	}
	m.static = p
	return nil
}

func (f *FP) ChangePriority(t rt.Task, p int64) error {
	m, err := f.find(t)
	if err != nil {
		return err
	}
	m.static = p
	f.rekey(m)
	return nil
}

// FIFO serves tasks in insertion order.
type FIFO struct {
	base
}

// NewFIFO creates a first-in first-out scheduler.
func NewFIFO(s *sim.Simulation) *FIFO {
	return &FIFO{base: newBase(s, "fifo", func(*TaskModel) int64 { return 0 })}
}

func (f *FIFO) ChangePriority(t rt.Task, _ int64) error {
	return fmt.Errorf("fifo: %s: %w", taskName(t), ErrFixedPriority)
}

var (
	_ Scheduler = (*EDF)(nil)
	_ Scheduler = (*FP)(nil)
	_ Scheduler = (*FIFO)(nil)
)

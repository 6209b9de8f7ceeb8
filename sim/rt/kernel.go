// Package rt defines what kernels, schedulers and servers need from a
// schedulable entity, and provides the scripted real-time tasks that
// generate the workload: periodic, non-periodic and sporadic tasks whose
// body is a sequence of instructions.
package rt

import (
	"errors"
	"sync/atomic"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
)

var (
	// ErrParse is returned for malformed instruction scripts.
	ErrParse = errors.New("instruction parse error")

	// ErrNoResourceManager is returned by kernels asked for a resource
	// when none is attached.
	ErrNoResourceManager = errors.New("no resource manager attached")
)

// Kind distinguishes plain tasks from servers without type assertions.
type Kind int

const (
	KindTask Kind = iota
	KindServer
)

func (k Kind) String() string {
	if k == KindServer {
		return "server"
	}
	return "task"
}

// Task is the capability set that kernels and schedulers use.
// Plain tasks and bandwidth servers both implement it.
type Task interface {
	sim.Entity
	sim.Hookable

	// ID is unique among the tasks of a process and breaks priority ties.
	ID() int
	Kind() Kind

	SetKernel(k Kernel)
	Kernel() Kernel

	// Schedule and Deschedule are called by the kernel once the task has
	// been given (or taken away) a processor.
	Schedule()
	Deschedule()

	IsActive() bool
	IsExecuting() bool

	// WCET returns the worst-case execution time at the given capacity
	// (speed multiplier), rounded up to a whole tick.
	WCET(capacity float64) sim.Tick
	// RemainingWCET is WCET restricted to the part of the current instance
	// still to be executed.
	RemainingWCET(capacity float64) sim.Tick

	Deadline() sim.Tick
	RelDline() sim.Tick
	Period() sim.Tick
	Arrival() sim.Tick
	LastSched() sim.Tick

	// Workload is the workload class the task will run next.
	Workload() string

	// RefreshExec re-reads the processor speed and reposts the pending
	// completion event. Kernels call it after an OPP change.
	RefreshExec()
}

// Kernel is what a task sees of whoever schedules it: a kernel or a server.
type Kernel interface {
	// OnArrival inserts a newly active task and triggers a dispatch.
	OnArrival(t Task)
	// OnEnd removes a task whose instance has finished.
	OnEnd(t Task)
	// Suspend removes a task from the ready set without ending it.
	Suspend(t Task)
	// Activate inserts a task without dispatching.
	Activate(t Task)
	Dispatch()

	// Processor returns the CPU the task runs on, nil if none.
	Processor(t Task) *cpu.CPU
	// OldProcessor returns the CPU the task last ran on, nil if none.
	OldProcessor(t Task) *cpu.CPU

	// RequestResource returns true when the task has been blocked.
	RequestResource(t Task, res string, n int) (bool, error)
	ReleaseResource(t Task, res string, n int) error
}

// ResourceManager arbitrates named resources between tasks.
type ResourceManager interface {
	// Request locks n units of res for t. It returns true when t has
	// been suspended waiting for the resource.
	Request(t Task, res string, n int) (bool, error)
	Release(t Task, res string, n int) error
}

var lastID atomic.Int64

// NextID returns a fresh task identifier.
func NextID() int {
	return int(lastID.Add(1))
}

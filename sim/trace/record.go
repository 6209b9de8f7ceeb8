// Package trace turns the lifecycle hooks of tasks and kernels into
// records and writes them to sinks: plain text, JSON, SQLite or memory.
// PowerTrace samples the power drawn by a set of CPUs.
package trace

import (
	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/kernel"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindArrival       Kind = "arrival"
	KindScheduled     Kind = "scheduled"
	KindDescheduled   Kind = "descheduled"
	KindEndInstance   Kind = "end_instance"
	KindDeadlineMiss  Kind = "dline_miss"
	KindKill          Kind = "kill"
	KindUnschedulable Kind = "unschedulable"
	KindMigration     Kind = "migration"
)

var kinds = map[*sim.HookPos]Kind{
	rt.HookPosArrival:           KindArrival,
	rt.HookPosScheduled:         KindScheduled,
	rt.HookPosDescheduled:       KindDescheduled,
	rt.HookPosEndInstance:       KindEndInstance,
	rt.HookPosDeadlineMiss:      KindDeadlineMiss,
	rt.HookPosKill:              KindKill,
	kernel.HookPosUnschedulable: KindUnschedulable,
	kernel.HookPosMigration:     KindMigration,
}

// Record is one traced event. CPU and Frequency are set when the event
// concerns a processor.
type Record struct {
	Time      sim.Tick
	Kind      Kind
	Task      string
	CPU       string
	Frequency uint
	Arrival   sim.Tick
	Period    sim.Tick
}

// Sink receives records in simulation order.
type Sink interface {
	Write(r Record) error
	Close() error
}

// FromHook builds the record of a task or kernel hook. It reports false
// for hook positions that are not traced.
func FromHook(ctx sim.HookCtx) (Record, bool) {
	kind, ok := kinds[ctx.Pos]
	if !ok {
		return Record{}, false
	}
	task, ok := ctx.Item.(rt.Task)
	if !ok {
		return Record{}, false
	}
	r := Record{
		Time:    ctx.Now,
		Kind:    kind,
		Task:    task.Name(),
		Arrival: task.Arrival(),
		Period:  task.Period(),
	}
	if c, ok := ctx.Detail.(*cpu.CPU); ok && c != nil {
		r.CPU = c.Name()
		r.Frequency = c.Frequency()
	}
	return r, true
}

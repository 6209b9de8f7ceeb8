package sched

import (
	"fmt"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

// RoundHandler is implemented by kernels that want to be told explicitly
// when a round-robin quantum expires. Other kernels are asked to Dispatch.
type RoundHandler interface {
	OnRound()
}

// RR is a round-robin scheduler. All tasks share the same priority; the
// running task moves behind its peers once its slice has elapsed.
type RR struct {
	base
	defaultSlice sim.Tick
	rrEvt        *sim.Event
}

// NewRR creates a round-robin scheduler. Tasks added without a slice get
// defaultSlice.
func NewRR(s *sim.Simulation, defaultSlice sim.Tick) *RR {
	r := &RR{base: newBase(s, "rr", func(*TaskModel) int64 { return 1 }), defaultSlice: defaultSlice}
	r.rrEvt = s.NewEvent("rr_round", sim.DefaultPriority, func(*sim.Event) { r.round() })
	return r
}

func (r *RR) AddTask(t rt.Task) error {
	return r.AddTaskSlice(t, 0)
}

// AddTaskSlice registers t with its own slice. A slice below 1 selects the
// default one.
func (r *RR) AddTaskSlice(t rt.Task, slice sim.Tick) error {
	m, err := r.enqueueModel(t)
	if err != nil {
		return err
	}
	if slice < 1 {
		slice = r.defaultSlice
	}
	m.static = int64(slice)
	return nil
}

// SetSlice changes the slice of a registered task.
func (r *RR) SetSlice(t rt.Task, slice sim.Tick) error {
	m, err := r.find(t)
	if err != nil {
		return err
	}
	m.static = int64(slice)
	return nil
}

// Slice returns the slice of a registered task.
func (r *RR) Slice(t rt.Task) (sim.Tick, error) {
	m, err := r.find(t)
	if err != nil {
		return 0, err
	}
	return sim.Tick(m.static), nil
}

func (r *RR) ChangePriority(t rt.Task, _ int64) error {
	return fmt.Errorf("rr: %s: %w", taskName(t), ErrFixedPriority)
}

// IsRoundExpired reports whether t has used its whole slice since it was
// last scheduled.
func (r *RR) IsRoundExpired(t rt.Task) (bool, error) {
	m, err := r.find(t)
	if err != nil {
		return false, err
	}
	return r.expired(m), nil
}

func (r *RR) expired(m *TaskModel) bool {
	return m.static > 0 && r.sim.Now()-m.task.LastSched() >= sim.Tick(m.static)
}

// Notify arms the quantum timer for the task that starts running.
func (r *RR) Notify(t rt.Task) {
	r.base.Notify(t)
	r.rrEvt.Drop()
	if t == nil {
		return
	}
	m, err := r.find(t)
	if err != nil {
		panic(err)
	}
	if m.static > 0 {
		r.rrEvt.MustPost(r.sim.Now() + sim.Tick(m.static))
	}
}

func (r *RR) NewRun() {
	r.base.NewRun()
	r.rrEvt.Drop()
}

func (r *RR) EndRun() {
	r.rrEvt.Drop()
}

func (r *RR) round() {
	if len(r.queue) == 0 {
		return
	}
	head := r.queue[0]
	if r.expired(head) {
		r.unqueue(head)
		if head.active {
			head.insertTime = r.sim.Now()
			r.enqueue(head)
		}
	}
	if len(r.queue) > 0 {
		first := r.queue[0]
		if first.static == 0 {
			r.rrEvt.Drop()
		} else if first != head || r.expired(first) {
			r.rrEvt.Drop()
			r.rrEvt.MustPost(r.sim.Now() + sim.Tick(first.static))
		}
	}
	switch k := r.kernel.(type) {
	case nil:
	case RoundHandler:
		k.OnRound()
	default:
		k.Dispatch()
	}
}

var _ Scheduler = (*RR)(nil)

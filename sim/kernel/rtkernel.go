package kernel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
)

// RTKernel schedules its tasks on a single CPU.
type RTKernel struct {
	sim  *sim.Simulation
	name string
	cpu  *cpu.CPU

	sched     sched.Scheduler
	resources rt.ResourceManager
	csDelay   sim.Tick

	currExe   rt.Task
	incoming  rt.Task // being switched in
	switching bool
	last      map[rt.Task]*cpu.CPU

	beginEvt *sim.Event
	endEvt   *sim.Event
}

// NewRTKernel creates a kernel running on c with scheduler sc, EDF if
// nil, and registers it with s.
func NewRTKernel(s *sim.Simulation, name string, c *cpu.CPU, sc sched.Scheduler) (*RTKernel, error) {
	if c == nil {
		return nil, fmt.Errorf("kernel %q: %w", name, ErrNoCPU)
	}
	if sc == nil {
		sc = sched.NewEDF(s)
	}
	if name == "" {
		name = "kernel_" + c.Name()
	}
	k := &RTKernel{sim: s, name: name, cpu: c, sched: sc, last: make(map[rt.Task]*cpu.CPU)}
	sc.SetKernel(k)
	k.beginEvt = s.NewEvent(name+".begin_dispatch", beginDispatchPriority, func(*sim.Event) { k.onBegin() })
	k.endEvt = s.NewEvent(name+".end_dispatch", endDispatchPriority, func(*sim.Event) { k.onEnd() })
	if err := s.Register(k); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *RTKernel) Name() string { return k.name }
func (k *RTKernel) CPU() *cpu.CPU { return k.cpu }
func (k *RTKernel) Scheduler() sched.Scheduler { return k.sched }

// Running returns the task holding the processor. A task being switched
// in is not running until its context switch completes.
func (k *RTKernel) Running() rt.Task { return k.currExe }

// Incoming returns the task being switched in, nil outside a switch.
func (k *RTKernel) Incoming() rt.Task { return k.incoming }

// SetContextSwitchDelay sets the ticks spent switching between two tasks.
func (k *RTKernel) SetContextSwitchDelay(d sim.Tick) { k.csDelay = d }

// SetResourceManager attaches the manager serving wait and signal.
func (k *RTKernel) SetResourceManager(m rt.ResourceManager) { k.resources = m }

// AddTask registers t with the scheduler and becomes its kernel.
func (k *RTKernel) AddTask(t rt.Task) error {
	if err := k.sched.AddTask(t); err != nil {
		return fmt.Errorf("kernel %s: %w", k.name, err)
	}
	t.SetKernel(k)
	return nil
}

func (k *RTKernel) NewRun() {
	k.sched.NewRun()
	k.currExe, k.incoming = nil, nil
	k.switching = false
	clear(k.last)
	k.beginEvt.Drop()
	k.endEvt.Drop()
	k.cpu.SetBusy(false)
	k.cpu.SetWorkload(cpu.WorkloadIdle)
}

func (k *RTKernel) EndRun() {
	k.beginEvt.Drop()
	k.endEvt.Drop()
	k.sched.EndRun()
}

func (k *RTKernel) OnArrival(t rt.Task) {
	mustInsert(k.sched, t)
	k.Dispatch()
}

func (k *RTKernel) Activate(t rt.Task) {
	mustInsert(k.sched, t)
}

func (k *RTKernel) OnEnd(t rt.Task) {
	extract(k.sched, t)
	if k.currExe == t {
		k.last[t] = k.cpu
		k.currExe = nil
		k.sched.Notify(nil)
	}
	k.Dispatch()
}

// Suspend takes t out of the ready queue. The caller is expected to
// Dispatch afterwards.
func (k *RTKernel) Suspend(t rt.Task) {
	extract(k.sched, t)
	if k.incoming == t {
		k.endEvt.Drop()
		k.switching = false
		k.incoming = nil
		k.last[t] = k.cpu
	}
	if k.currExe == t {
		t.Deschedule()
		k.last[t] = k.cpu
		k.currExe = nil
		k.sched.Notify(nil)
	}
}

// Dispatch re-evaluates the running task. While a context switch is in
// progress the decision is deferred to the end of the switch.
func (k *RTKernel) Dispatch() {
	k.beginEvt.Drop()
	if k.switching {
		k.beginEvt.MustPost(k.endEvt.Time())
		return
	}
	k.beginEvt.MustPost(k.sim.Now())
}

// Processor returns the CPU of t from the start of its context switch.
func (k *RTKernel) Processor(t rt.Task) *cpu.CPU {
	if t != nil && (t == k.currExe || t == k.incoming) {
		return k.cpu
	}
	return nil
}

func (k *RTKernel) OldProcessor(t rt.Task) *cpu.CPU {
	return k.last[t]
}

func (k *RTKernel) RequestResource(t rt.Task, res string, n int) (bool, error) {
	return forward(k.resources, t, res, n)
}

func (k *RTKernel) ReleaseResource(t rt.Task, res string, n int) error {
	if err := release(k.resources, t, res, n); err != nil {
		return err
	}
	k.Dispatch()
	return nil
}

func (k *RTKernel) onBegin() {
	next := k.sched.First()
	if next == k.currExe && k.incoming == nil {
		return
	}
	if next != nil && next == k.incoming {
		return
	}
	if k.currExe != nil {
		k.currExe.Deschedule()
		k.last[k.currExe] = k.cpu
		k.currExe = nil
	}
	k.incoming = next
	k.sched.Notify(nil)
	k.cpu.SetBusy(false)
	k.cpu.SetWorkload(cpu.WorkloadIdle)
	if next == nil {
		k.switching = false
		k.endEvt.Drop()
		return
	}
	logrus.Debugf("[%v] %s: switching to %s", k.sim.Now(), k.name, next.Name())
	k.switching = true
	k.endEvt.Drop()
	k.endEvt.MustPost(k.sim.Now() + k.csDelay)
}

// onEnd hands the processor to the task switched in.
func (k *RTKernel) onEnd() {
	k.switching = false
	st := k.incoming
	k.incoming = nil
	if st == nil {
		k.Dispatch()
		return
	}
	k.currExe = st
	k.cpu.SetBusy(true)
	k.cpu.SetWorkload(st.Workload())
	st.Schedule()
	k.sched.Notify(st)
}

var _ rt.Kernel = (*RTKernel)(nil)

package kernel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
)

// mrtSlot is the dispatch state of one processor of an MRTKernel.
type mrtSlot struct {
	cpu       *cpu.CPU
	running   rt.Task
	switching bool
	incoming  rt.Task // task being switched in

	beginEvt *sim.Event
	endEvt   *sim.Event
}

// MRTKernel runs a global ready queue on several processors: at any time
// the first len(CPUs) tasks of the queue hold a processor.
type MRTKernel struct {
	sim  *sim.Simulation
	name string

	slots []*mrtSlot
	byCPU map[*cpu.CPU]*mrtSlot

	sched     sched.Scheduler
	resources rt.ResourceManager
	csDelay   sim.Tick
	migDelay  sim.Tick

	// dispatched maps a task to the processor it has been given, from the
	// start of its context switch until it leaves the processor.
	dispatched map[rt.Task]*cpu.CPU
	oldExe     map[rt.Task]*cpu.CPU
}

// NewMRTKernel creates a global kernel over cpus, scheduling with sc (EDF
// if nil), and registers it with s. Processors are served in the order
// given.
func NewMRTKernel(s *sim.Simulation, name string, cpus []*cpu.CPU, sc sched.Scheduler) (*MRTKernel, error) {
	if len(cpus) == 0 {
		return nil, fmt.Errorf("kernel %q: %w", name, ErrNoCPU)
	}
	if sc == nil {
		sc = sched.NewEDF(s)
	}
	if name == "" {
		name = "mrtkernel"
	}
	k := &MRTKernel{
		sim:        s,
		name:       name,
		byCPU:      make(map[*cpu.CPU]*mrtSlot),
		sched:      sc,
		dispatched: make(map[rt.Task]*cpu.CPU),
		oldExe:     make(map[rt.Task]*cpu.CPU),
	}
	for _, c := range cpus {
		if _, dup := k.byCPU[c]; dup {
			return nil, fmt.Errorf("kernel %s: cpu %s given twice", name, c.Name())
		}
		sl := &mrtSlot{cpu: c}
		sl.beginEvt = s.NewEvent(name+".begin_dispatch."+c.Name(), beginDispatchPriority, func(*sim.Event) { k.onBegin(sl) })
		sl.endEvt = s.NewEvent(name+".end_dispatch."+c.Name(), endDispatchPriority, func(*sim.Event) { k.onEnd(sl) })
		k.slots = append(k.slots, sl)
		k.byCPU[c] = sl
	}
	sc.SetKernel(k)
	if err := s.Register(k); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *MRTKernel) Name() string { return k.name }
func (k *MRTKernel) Scheduler() sched.Scheduler { return k.sched }
func (k *MRTKernel) SetContextSwitchDelay(d sim.Tick) { k.csDelay = d }
func (k *MRTKernel) SetMigrationDelay(d sim.Tick) { k.migDelay = d }
func (k *MRTKernel) SetResourceManager(m rt.ResourceManager) { k.resources = m }

// CPUs returns the processors in dispatch order.
func (k *MRTKernel) CPUs() []*cpu.CPU {
	out := make([]*cpu.CPU, len(k.slots))
	for i, sl := range k.slots {
		out[i] = sl.cpu
	}
	return out
}

// Running returns the task executing on c.
func (k *MRTKernel) Running(c *cpu.CPU) rt.Task {
	if sl, ok := k.byCPU[c]; ok {
		return sl.running
	}
	return nil
}

// RunningTasks returns the names of the executing tasks, in processor order.
func (k *MRTKernel) RunningTasks() []string {
	var names []string
	for _, sl := range k.slots {
		if sl.running != nil {
			names = append(names, sl.running.Name())
		}
	}
	return names
}

func (k *MRTKernel) AddTask(t rt.Task) error {
	if err := k.sched.AddTask(t); err != nil {
		return fmt.Errorf("kernel %s: %w", k.name, err)
	}
	t.SetKernel(k)
	return nil
}

func (k *MRTKernel) NewRun() {
	k.sched.NewRun()
	for _, sl := range k.slots {
		sl.running, sl.incoming, sl.switching = nil, nil, false
		sl.beginEvt.Drop()
		sl.endEvt.Drop()
		sl.cpu.SetBusy(false)
		sl.cpu.SetWorkload(cpu.WorkloadIdle)
	}
	clear(k.dispatched)
	clear(k.oldExe)
}

func (k *MRTKernel) EndRun() {
	for _, sl := range k.slots {
		sl.beginEvt.Drop()
		sl.endEvt.Drop()
	}
	k.sched.EndRun()
}

func (k *MRTKernel) OnArrival(t rt.Task) {
	mustInsert(k.sched, t)
	k.Dispatch()
}

func (k *MRTKernel) Activate(t rt.Task) {
	mustInsert(k.sched, t)
}

func (k *MRTKernel) Suspend(t rt.Task) {
	extract(k.sched, t)
	sl := k.slotOf(t)
	if sl == nil {
		return
	}
	t.Deschedule()
	sl.running = nil
	k.oldExe[t] = sl.cpu
	delete(k.dispatched, t)
	k.dispatchOn(sl)
}

// OnEnd panics for a task that holds no processor.
func (k *MRTKernel) OnEnd(t rt.Task) {
	sl := k.slotOf(t)
	if sl == nil {
		panic(fmt.Errorf("kernel %s: end of %s, which is not executing", k.name, t.Name()))
	}
	extract(k.sched, t)
	k.oldExe[t] = sl.cpu
	sl.running = nil
	delete(k.dispatched, t)
	k.dispatchOn(sl)
}

// Dispatch hands a processor to each of the first len(CPUs) ready tasks
// that has none, preferring free processors and otherwise taking the
// processor of a task further down the queue.
func (k *MRTKernel) Dispatch() {
	ncpu := len(k.slots)
	fresh := 0
	for i := 0; i < ncpu; i++ {
		t := k.sched.TaskN(i)
		if t == nil {
			break
		}
		if k.slotOf(t) == nil && k.dispatched[t] == nil {
			fresh++
		}
	}
	if fresh == 0 {
		return
	}
	next := ncpu
	for _, sl := range k.slots {
		if fresh == 0 {
			return
		}
		if sl.running == nil && !k.isDispatched(sl.cpu) {
			k.dispatchOn(sl)
			fresh--
		}
	}
	for ; fresh > 0; fresh-- {
		for {
			t := k.sched.TaskN(next)
			next++
			if t == nil {
				panic(fmt.Errorf("kernel %s: no task to evict", k.name))
			}
			if c := k.dispatched[t]; c != nil {
				logrus.Debugf("[%v] %s: evicting %s from %s", k.sim.Now(), k.name, t.Name(), c.Name())
				k.dispatchOn(k.byCPU[c])
				break
			}
		}
	}
}

// dispatchOn reschedules one processor. A switch in progress is cancelled
// and the decision postponed to its end.
func (k *MRTKernel) dispatchOn(sl *mrtSlot) {
	sl.beginEvt.Drop()
	if !sl.switching {
		sl.beginEvt.MustPost(k.sim.Now())
		return
	}
	sl.beginEvt.MustPost(sl.endEvt.Time())
	sl.endEvt.Drop()
	if sl.incoming != nil {
		delete(k.dispatched, sl.incoming)
		sl.incoming = nil
	}
}

func (k *MRTKernel) isDispatched(c *cpu.CPU) bool {
	for _, d := range k.dispatched {
		if d == c {
			return true
		}
	}
	return false
}

func (k *MRTKernel) slotOf(t rt.Task) *mrtSlot {
	for _, sl := range k.slots {
		if sl.running == t {
			return sl
		}
	}
	return nil
}

func (k *MRTKernel) Processor(t rt.Task) *cpu.CPU {
	if sl := k.slotOf(t); sl != nil {
		return sl.cpu
	}
	return nil
}

func (k *MRTKernel) OldProcessor(t rt.Task) *cpu.CPU {
	return k.oldExe[t]
}

func (k *MRTKernel) RequestResource(t rt.Task, res string, n int) (bool, error) {
	return forward(k.resources, t, res, n)
}

func (k *MRTKernel) ReleaseResource(t rt.Task, res string, n int) error {
	if err := release(k.resources, t, res, n); err != nil {
		return err
	}
	k.Dispatch()
	return nil
}

func (k *MRTKernel) onBegin(sl *mrtSlot) {
	if dt := sl.running; dt != nil {
		k.oldExe[dt] = sl.cpu
		sl.running = nil
		delete(k.dispatched, dt)
		dt.Deschedule()
	}
	var st rt.Task
	for i := 0; ; i++ {
		st = k.sched.TaskN(i)
		if st == nil || k.dispatched[st] == nil {
			break
		}
	}
	overhead := k.csDelay
	if st != nil {
		k.dispatched[st] = sl.cpu
		if old := k.oldExe[st]; old != nil && old != sl.cpu {
			overhead += k.migDelay
		}
		logrus.Debugf("[%v] %s: dispatching %s on %s", k.sim.Now(), k.name, st.Name(), sl.cpu.Name())
	}
	sl.incoming = st
	sl.switching = true
	sl.endEvt.MustPost(k.sim.Now() + overhead)
}

func (k *MRTKernel) onEnd(sl *mrtSlot) {
	st := sl.incoming
	sl.incoming = nil
	sl.running = st
	sl.cpu.SetBusy(st != nil)
	if st != nil {
		sl.cpu.SetWorkload(st.Workload())
		st.Schedule()
	} else {
		sl.cpu.SetWorkload(cpu.WorkloadIdle)
	}
	sl.switching = false
	k.sched.Notify(st)
}

var _ rt.Kernel = (*MRTKernel)(nil)

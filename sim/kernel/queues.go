package kernel

import (
	"fmt"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
	"github.com/gabrieleara/PARTSim-sub001/sim/server"
)

// core is the per-processor state of an EnergyMRTKernel: its own ready
// queue, the task running on it and the context switch in progress.
// The running task stays in the queue until it leaves the core.
type core struct {
	cpu   *cpu.CPU
	sched sched.Scheduler

	running  rt.Task
	incoming rt.Task // being switched in
	pending  rt.Task // waiting for beginEvt

	beginEvt *sim.Event
	endEvt   *sim.Event
}

func (c *core) switching() bool { return c.endEvt.IsQueued() }

// current is the task holding the core or about to.
func (c *core) current() rt.Task {
	if c.pending != nil {
		return c.pending
	}
	if c.incoming != nil {
		return c.incoming
	}
	return c.running
}

// first is the head of the queue, skipping a yielding server.
func (c *core) first() rt.Task {
	t := c.sched.First()
	if s, ok := t.(server.Server); ok && s.Yielding() {
		return c.sched.TaskN(1)
	}
	return t
}

// ready returns the queued tasks that are not on the processor, yielding
// servers excluded.
func (c *core) ready() []rt.Task {
	var out []rt.Task
	for _, t := range c.sched.Queue() {
		if t == c.running || t == c.incoming {
			continue
		}
		if s, ok := t.(server.Server); ok && s.Yielding() {
			continue
		}
		out = append(out, t)
	}
	return out
}

// coreKernel is the kernel seen by the scheduler of one core, so that a
// round-robin quantum expiry reschedules that core only.
type coreKernel struct {
	*EnergyMRTKernel
	c *core
}

func (ck coreKernel) OnRound() { ck.schedule(ck.c) }

// reservation keeps the bandwidth of a releasing server on its core until
// the server's virtual time.
type reservation struct {
	cpu   *core
	vtime sim.Tick
	u     float64
}

// enqueue puts t in the ready queue of c with the OPP it needs there.
func (k *EnergyMRTKernel) enqueue(c *core, t rt.Task, opp int) {
	if !c.sched.Has(t) {
		if err := c.sched.AddTask(t); err != nil {
			panic(fmt.Errorf("kernel %s: %w", k.name, err))
		}
	}
	mustInsert(c.sched, t)
	k.where[t] = c
	k.required[t] = opp
	c.cpu.SetBusy(true)
}

// dequeue takes t off c, descheduling it if it holds the processor.
func (k *EnergyMRTKernel) dequeue(c *core, t rt.Task) {
	extract(c.sched, t)
	if c.pending == t {
		c.beginEvt.Drop()
		c.pending = nil
	}
	if c.incoming == t {
		c.endEvt.Drop()
		c.incoming = nil
	}
	if c.running == t {
		t.Deschedule()
		k.oldExe[t] = c.cpu
		c.running = nil
		c.sched.Notify(nil)
	}
	delete(k.where, t)
	delete(k.required, t)
}

// schedule gives c to the head of its queue if it is not already there.
func (k *EnergyMRTKernel) schedule(c *core) {
	first := c.first()
	if first == c.current() {
		return
	}
	if c.running != nil {
		k.makeReady(c)
	}
	if first != nil {
		k.makeRunning(c, first)
		return
	}
	c.beginEvt.Drop()
	c.pending = nil
	if c.incoming != nil {
		c.endEvt.Drop()
		c.incoming = nil
	}
}

func (k *EnergyMRTKernel) makeReady(c *core) {
	t := c.running
	t.Deschedule()
	k.oldExe[t] = c.cpu
	c.running = nil
	c.sched.Notify(nil)
}

// makeRunning starts a context switch towards t. A switch in progress is
// cancelled and the new one starts when it would have ended.
func (k *EnergyMRTKernel) makeRunning(c *core, t rt.Task) {
	when := k.sim.Now()
	if c.switching() {
		when = c.endEvt.Time()
		c.endEvt.Drop()
		c.incoming = nil
	}
	c.beginEvt.Drop()
	c.pending = t
	c.beginEvt.MustPost(when)
}

func (k *EnergyMRTKernel) onBegin(c *core) {
	st := c.pending
	c.pending = nil
	if st == nil || st == c.running || !c.sched.InQueue(st) {
		return
	}
	if c.running != nil {
		k.makeReady(c)
	}
	overhead := k.csDelay
	if old := k.oldExe[st]; old != nil && old != c.cpu {
		overhead += k.migDelay
	}
	c.incoming = st
	c.endEvt.MustPost(k.sim.Now() + overhead)
}

// onEnd completes the switch. The island is raised to the highest OPP
// required by the tasks of the core before the task starts.
func (k *EnergyMRTKernel) onEnd(c *core) {
	st := c.incoming
	c.incoming = nil
	if st == nil {
		return
	}
	if opp := k.requiredOPP(c); opp > c.cpu.OPPIndex() {
		c.cpu.Island().MustSetOPP(opp)
	}
	c.running = st
	k.oldExe[st] = c.cpu
	c.cpu.SetBusy(true)
	c.cpu.SetWorkload(st.Workload())
	st.Schedule()
	c.sched.Notify(st)
}

func (k *EnergyMRTKernel) requiredOPP(c *core) int {
	opp := 0
	for _, t := range c.sched.Queue() {
		opp = max(opp, k.required[t])
	}
	return opp
}

// refresh updates the flags of c after its queue changed, and lowers an
// island left without work to its slowest OPP.
func (k *EnergyMRTKernel) refresh(c *core) {
	empty := c.sched.Len() == 0
	c.cpu.SetBusy(!empty)
	if empty {
		c.cpu.SetWorkload(cpu.WorkloadIdle)
	}
	if isl := c.cpu.Island(); !isl.Busy() && isl.OPPIndex() != 0 {
		isl.MustSetOPP(0)
	}
}

func (k *EnergyMRTKernel) reserve(c *core, s server.Server) {
	vt := sim.FloorTick(s.VirtualTime())
	if vt < k.sim.Now() {
		return
	}
	k.reservations[s] = reservation{cpu: c, vtime: vt, u: s.Bandwidth()}
}

// forget drops the reservation of t and returns the core it was on.
func (k *EnergyMRTKernel) forget(t rt.Task) *core {
	r, ok := k.reservations[t]
	if !ok {
		return nil
	}
	delete(k.reservations, t)
	return r.cpu
}

// activeUtilization sums the reservations held on c.
func (k *EnergyMRTKernel) activeUtilization(c *core) float64 {
	u := 0.0
	for _, t := range k.tasks {
		if r, ok := k.reservations[t]; ok && r.cpu == c {
			u += r.u
		}
	}
	return u
}

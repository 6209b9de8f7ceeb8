package rt

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/randvar"
)

// Instruction completion fires before the kernel events of the same tick.
const instrEndPriority = sim.DefaultPriority - 3

// Instr is one step of a task body.
type Instr interface {
	// Reset prepares the instruction for a new instance.
	Reset()
	Schedule()
	Deschedule()
	// RefreshExec reposts the completion event after a speed change.
	RefreshExec()
	EndRun()

	// Cycles is the worst-case cost in cycles at unit speed.
	Cycles() float64
	// Remaining is the cost still to be executed in the current instance.
	Remaining() float64
	// Workload returns the workload class, empty for non-executing steps.
	Workload() string
	String() string
}

// ExecInstr consumes processor time. Its cost is drawn once per instance
// and scaled by the speed of the CPU it runs on.
type ExecInstr struct {
	task     *RTTask
	cost     randvar.Var
	workload string
	endEvt   *sim.Event

	current   float64 // cost of this instance
	done      float64 // cycles already executed
	lastTime  sim.Tick
	speed     float64
	cpu       *cpu.CPU
	executing bool
}

// NewExecInstr creates an execution step. An empty workload means "busy".
func NewExecInstr(t *RTTask, cost randvar.Var, workload string) *ExecInstr {
	if workload == "" {
		workload = cpu.WorkloadBusy
	}
	in := &ExecInstr{task: t, cost: cost, workload: workload}
	in.endEvt = t.sim.NewEvent(t.name+".instr_end", instrEndPriority, func(*sim.Event) { in.onEnd() })
	return in
}

func (in *ExecInstr) Reset() {
	in.endEvt.Drop()
	in.current = in.cost.Get()
	if in.current < 0 {
		in.current = 0
	}
	in.done = 0
	in.executing = false
}

func (in *ExecInstr) Schedule() {
	c := in.task.Kernel().Processor(in.task)
	if c == nil {
		panic(fmt.Sprintf("task %s scheduled without a processor", in.task.Name()))
	}
	c.SetWorkload(in.workload)
	in.cpu = c
	in.speed = c.Speed()
	in.lastTime = in.task.sim.Now()
	in.executing = true
	in.postEnd()
}

func (in *ExecInstr) Deschedule() {
	if !in.executing {
		return
	}
	in.account()
	in.endEvt.Drop()
	in.executing = false
	in.cpu.SetWorkload(cpu.WorkloadIdle)
}

func (in *ExecInstr) RefreshExec() {
	if !in.executing {
		return
	}
	in.account()
	in.endEvt.Drop()
	in.speed = in.cpu.SpeedFor(in.workload)
	in.postEnd()
}

func (in *ExecInstr) EndRun() {
	in.endEvt.Drop()
	in.executing = false
}

func (in *ExecInstr) Cycles() float64 {
	if m, err := in.cost.Max(); err == nil {
		return m
	}
	return in.current
}

func (in *ExecInstr) Remaining() float64 {
	r := in.current - in.done
	if in.executing {
		r -= (in.task.sim.Now() - in.lastTime).Float() * in.speed
	}
	if r < 0 {
		return 0
	}
	return r
}

func (in *ExecInstr) Workload() string { return in.workload }

func (in *ExecInstr) String() string {
	return fmt.Sprintf("exec(%v,%s)", in.cost, in.workload)
}

func (in *ExecInstr) account() {
	now := in.task.sim.Now()
	in.done += (now - in.lastTime).Float() * in.speed
	if in.done > in.current {
		in.done = in.current
	}
	in.lastTime = now
}

func (in *ExecInstr) postEnd() {
	left := in.current - in.done
	var d sim.Tick
	if left > 0 {
		d = sim.CeilTick(left / in.speed)
	}
	in.endEvt.MustPost(in.task.sim.Now() + d)
}

func (in *ExecInstr) onEnd() {
	in.done = in.current
	in.executing = false
	logrus.Debugf("[%v] %s: %v completed", in.task.sim.Now(), in.task.Name(), in)
	in.task.onInstrEnd()
}

// zeroInstr holds the parts shared by the instructions that take no
// processor time.
type zeroInstr struct {
	task *RTTask
}

func (zeroInstr) Reset() {}
func (zeroInstr) Deschedule() {}
func (zeroInstr) RefreshExec() {}
func (zeroInstr) Cycles() float64 { return 0 }
func (zeroInstr) Remaining() float64 { return 0 }
func (zeroInstr) Workload() string { return "" }

// WaitInstr locks n units of a resource, blocking the task if needed.
type WaitInstr struct {
	zeroInstr
	res    string
	n      int
	endEvt *sim.Event
}

// NewWaitInstr creates a resource request step.
func NewWaitInstr(t *RTTask, res string, n int) *WaitInstr {
	in := &WaitInstr{zeroInstr: zeroInstr{task: t}, res: res, n: n}
	in.endEvt = t.sim.NewEvent(t.name+".wait", instrEndPriority, func(*sim.Event) { in.onEnd() })
	return in
}

func (in *WaitInstr) Schedule() { in.endEvt.Drop(); in.endEvt.MustPost(in.task.sim.Now()) }
func (in *WaitInstr) Deschedule() { in.endEvt.Drop() }
func (in *WaitInstr) EndRun() { in.endEvt.Drop() }

func (in *WaitInstr) String() string { return fmt.Sprintf("wait(%s,%d)", in.res, in.n) }

func (in *WaitInstr) onEnd() {
	t := in.task
	if _, err := t.Kernel().RequestResource(t, in.res, in.n); err != nil {
		panic(fmt.Errorf("task %s: %w", t.Name(), err))
	}
	// A blocked task has been descheduled: advancing only moves the cursor.
	t.onInstrEnd()
}

// SignalInstr releases n units of a resource.
type SignalInstr struct {
	zeroInstr
	res    string
	n      int
	endEvt *sim.Event
}

// NewSignalInstr creates a resource release step.
func NewSignalInstr(t *RTTask, res string, n int) *SignalInstr {
	in := &SignalInstr{zeroInstr: zeroInstr{task: t}, res: res, n: n}
	in.endEvt = t.sim.NewEvent(t.name+".signal", instrEndPriority, func(*sim.Event) { in.onEnd() })
	return in
}

func (in *SignalInstr) Schedule() { in.endEvt.Drop(); in.endEvt.MustPost(in.task.sim.Now()) }
func (in *SignalInstr) Deschedule() { in.endEvt.Drop() }
func (in *SignalInstr) EndRun() { in.endEvt.Drop() }

func (in *SignalInstr) String() string { return fmt.Sprintf("signal(%s,%d)", in.res, in.n) }

func (in *SignalInstr) onEnd() {
	t := in.task
	t.onInstrEnd()
	if err := t.Kernel().ReleaseResource(t, in.res, in.n); err != nil {
		panic(fmt.Errorf("task %s: %w", t.Name(), err))
	}
}

// SuspendInstr leaves the processor for a fixed delay.
type SuspendInstr struct {
	zeroInstr
	delay     sim.Tick
	suspEvt   *sim.Event
	resumeEvt *sim.Event
}

// NewSuspendInstr creates a self-suspension step.
func NewSuspendInstr(t *RTTask, delay sim.Tick) *SuspendInstr {
	in := &SuspendInstr{zeroInstr: zeroInstr{task: t}, delay: delay}
	in.suspEvt = t.sim.NewEvent(t.name+".suspending", instrEndPriority, func(*sim.Event) { in.onSuspend() })
	in.resumeEvt = t.sim.NewEvent(t.name+".resuming", instrEndPriority, func(*sim.Event) { in.onResume() })
	return in
}

func (in *SuspendInstr) Schedule() { in.suspEvt.Process() }

func (in *SuspendInstr) EndRun() {
	in.suspEvt.Drop()
	in.resumeEvt.Drop()
}

func (in *SuspendInstr) String() string { return fmt.Sprintf("suspend(%d)", int64(in.delay)) }

func (in *SuspendInstr) onSuspend() {
	k := in.task.Kernel()
	k.Suspend(in.task)
	k.Dispatch()
	in.resumeEvt.MustPost(in.task.sim.Now() + in.delay)
}

func (in *SuspendInstr) onResume() {
	in.task.onInstrEnd()
	in.task.Kernel().OnArrival(in.task)
}

var (
	_ Instr = (*ExecInstr)(nil)
	_ Instr = (*WaitInstr)(nil)
	_ Instr = (*SignalInstr)(nil)
	_ Instr = (*SuspendInstr)(nil)
)

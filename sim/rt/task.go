package rt

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/randvar"
)

// Lifecycle hook positions raised by tasks. Item is the task, Detail the
// CPU for scheduling hooks.
var (
	HookPosArrival      = &sim.HookPos{Name: "Arrival"}
	HookPosScheduled    = &sim.HookPos{Name: "Scheduled"}
	HookPosDescheduled  = &sim.HookPos{Name: "Descheduled"}
	HookPosEndInstance  = &sim.HookPos{Name: "EndInstance"}
	HookPosDeadlineMiss = &sim.HookPos{Name: "DeadlineMiss"}
	HookPosKill         = &sim.HookPos{Name: "Kill"}
)

// Task event priorities.
const (
	endPriority     = sim.DefaultPriority - 2
	fakeArrPriority = sim.DefaultPriority - 1
	deadPriority    = sim.DefaultPriority + 1
)

// MaxBufferedArrivals bounds the arrivals remembered while an instance runs.
const MaxBufferedArrivals = 100

// State is the lifecycle state of a task instance.
type State int

const (
	StateIdle State = iota
	StateReady
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	}
	return "idle"
}

// ArrivalKind selects how a task generates its instances.
type ArrivalKind int

const (
	// Periodic tasks arrive every period, starting at the phase.
	Periodic ArrivalKind = iota
	// NonPeriodic tasks arrive once, at the phase.
	NonPeriodic
	// Sporadic tasks arrive at least one period apart, plus a random gap.
	Sporadic
)

func (k ArrivalKind) String() string {
	switch k {
	case NonPeriodic:
		return "nonperiodic"
	case Sporadic:
		return "sporadic"
	}
	return "periodic"
}

// Stats holds per-run response bookkeeping.
type Stats struct {
	Instances    int
	Misses       int
	Kills        int
	Dropped      int // arrivals lost to a full buffer
	LastArrival  sim.Tick
	LastEnd      sim.Tick
	LastResponse sim.Tick
	MaxResponse  sim.Tick
}

// Params configures an RTTask.
type Params struct {
	Name     string
	Kind     ArrivalKind
	Period   sim.Tick
	RelDline sim.Tick // zero means equal to the period
	Phase    sim.Tick
	// Jitter is the extra inter-arrival of sporadic tasks.
	Jitter randvar.Var
	// Abort kills an instance when it misses its deadline.
	Abort bool
}

// RTTask is a scripted real-time task.
type RTTask struct {
	sim.HookableBase

	sim    *sim.Simulation
	name   string
	id     int
	kernel Kernel

	kind     ArrivalKind
	period   sim.Tick
	relDline sim.Tick
	phase    sim.Tick
	jitter   randvar.Var
	abort    bool

	instrs []Instr
	cur    int
	state  State

	arrival   sim.Tick
	dline     sim.Tick
	lastSched sim.Tick
	arrQueue  []sim.Tick
	stats     Stats

	arrEvt     *sim.Event
	endEvt     *sim.Event
	fakeArrEvt *sim.Event
	deadEvt    *sim.Event
}

// NewTask creates a task with an empty body and registers it.
func NewTask(s *sim.Simulation, p Params) (*RTTask, error) {
	if p.Period <= 0 {
		return nil, fmt.Errorf("task %q: period must be positive, got %v", p.Name, p.Period)
	}
	if p.Kind == Sporadic && p.Jitter == nil {
		p.Jitter = randvar.NewDelta(0)
	}
	t := &RTTask{
		sim:      s,
		name:     p.Name,
		id:       NextID(),
		kind:     p.Kind,
		period:   p.Period,
		relDline: p.RelDline,
		phase:    p.Phase,
		jitter:   p.Jitter,
		abort:    p.Abort,
	}
	if t.relDline <= 0 {
		t.relDline = t.period
	}
	if t.name == "" {
		t.name = fmt.Sprintf("T%d", t.id)
	}
	t.arrEvt = s.NewEvent(t.name+".arrival", sim.DefaultPriority, func(*sim.Event) { t.onArrival() })
	t.endEvt = s.NewEvent(t.name+".end", endPriority, func(*sim.Event) { t.onEndInstance() })
	t.fakeArrEvt = s.NewEvent(t.name+".buffered_arrival", fakeArrPriority, func(*sim.Event) { t.onBufferedArrival() })
	t.deadEvt = s.NewEvent(t.name+".deadline", deadPriority, func(*sim.Event) { t.onDeadline() })
	if err := s.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// NewPeriodic creates a periodic task running code.
func NewPeriodic(s *sim.Simulation, name string, period, relDline, phase sim.Tick, code string) (*RTTask, error) {
	t, err := NewTask(s, Params{Name: name, Kind: Periodic, Period: period, RelDline: relDline, Phase: phase})
	if err != nil {
		return nil, err
	}
	return t, t.SetCode(code)
}

// NewNonPeriodic creates a task with a single instance. The period is only
// used for utilization.
func NewNonPeriodic(s *sim.Simulation, name string, period, relDline, phase sim.Tick, code string) (*RTTask, error) {
	t, err := NewTask(s, Params{Name: name, Kind: NonPeriodic, Period: period, RelDline: relDline, Phase: phase})
	if err != nil {
		return nil, err
	}
	return t, t.SetCode(code)
}

// NewSporadic creates a task whose arrivals are separated by at least
// minIAT plus a draw of jitter.
func NewSporadic(s *sim.Simulation, name string, minIAT, relDline, phase sim.Tick, jitter randvar.Var, code string) (*RTTask, error) {
	t, err := NewTask(s, Params{Name: name, Kind: Sporadic, Period: minIAT, RelDline: relDline, Phase: phase, Jitter: jitter})
	if err != nil {
		return nil, err
	}
	return t, t.SetCode(code)
}

// SetCode replaces the task body with the parsed script.
func (t *RTTask) SetCode(code string) error {
	instrs, err := ParseInstrs(t, code)
	if err != nil {
		return err
	}
	t.instrs = instrs
	return nil
}

// AddInstr appends one step to the body.
func (t *RTTask) AddInstr(in Instr) {
	t.instrs = append(t.instrs, in)
}

func (t *RTTask) Name() string { return t.name }
func (t *RTTask) ID() int { return t.id }
func (t *RTTask) Kind() Kind { return KindTask }
func (t *RTTask) SetKernel(k Kernel) { t.kernel = k }
func (t *RTTask) Kernel() Kernel { return t.kernel }
func (t *RTTask) State() State { return t.state }
func (t *RTTask) IsActive() bool { return t.state != StateIdle }
func (t *RTTask) IsExecuting() bool { return t.state == StateExecuting }
func (t *RTTask) Deadline() sim.Tick { return t.dline }
func (t *RTTask) RelDline() sim.Tick { return t.relDline }
func (t *RTTask) Period() sim.Tick { return t.period }
func (t *RTTask) Phase() sim.Tick { return t.phase }
func (t *RTTask) Arrival() sim.Tick { return t.arrival }
func (t *RTTask) LastSched() sim.Tick { return t.lastSched }
func (t *RTTask) Instrs() []Instr { return t.instrs }
func (t *RTTask) Stats() Stats { return t.stats }
func (t *RTTask) Abort() bool { return t.abort }
func (t *RTTask) SetAbort(b bool) { t.abort = b }

// ArrivalKind returns how instances are generated.
func (t *RTTask) ArrivalKind() ArrivalKind { return t.kind }

// WCET sums the worst-case cost of every instruction at capacity.
func (t *RTTask) WCET(capacity float64) sim.Tick {
	var c float64
	for _, in := range t.instrs {
		c += in.Cycles()
	}
	return sim.CeilTick(c / capacity)
}

// RemainingWCET is WCET from the current instruction on. An idle task
// reports its full WCET.
func (t *RTTask) RemainingWCET(capacity float64) sim.Tick {
	if !t.IsActive() {
		return t.WCET(capacity)
	}
	var c float64
	for _, in := range t.instrs[t.cur:] {
		c += in.Remaining()
	}
	return sim.CeilTick(c / capacity)
}

// Workload returns the class of the next executing instruction, "busy" if
// there is none.
func (t *RTTask) Workload() string {
	from := 0
	if t.IsActive() {
		from = t.cur
	}
	for _, in := range t.instrs[min(from, len(t.instrs)):] {
		if wl := in.Workload(); wl != "" {
			return wl
		}
	}
	return cpu.WorkloadBusy
}

// NewRun resets the task and posts its first arrival.
func (t *RTTask) NewRun() {
	t.state = StateIdle
	t.cur = 0
	t.arrival, t.dline, t.lastSched = 0, 0, 0
	t.arrQueue = t.arrQueue[:0]
	t.stats = Stats{}
	t.arrEvt.MustPost(t.phase)
}

// EndRun drops every pending event.
func (t *RTTask) EndRun() {
	t.arrEvt.Drop()
	t.endEvt.Drop()
	t.fakeArrEvt.Drop()
	t.deadEvt.Drop()
	for _, in := range t.instrs {
		in.EndRun()
	}
	t.state = StateIdle
}

// Schedule is called by the kernel when the task gets a processor.
func (t *RTTask) Schedule() {
	t.state = StateExecuting
	t.lastSched = t.sim.Now()
	t.hook(HookPosScheduled, t.processor())
	if t.cur < len(t.instrs) {
		t.instrs[t.cur].Schedule()
	} else {
		t.endEvt.Process()
	}
}

// Deschedule is called by the kernel when the task loses its processor.
func (t *RTTask) Deschedule() {
	if t.state != StateExecuting {
		return
	}
	t.state = StateReady
	if t.cur < len(t.instrs) {
		t.instrs[t.cur].Deschedule()
	}
	t.hook(HookPosDescheduled, t.processor())
}

func (t *RTTask) RefreshExec() {
	if t.state == StateExecuting && t.cur < len(t.instrs) {
		t.instrs[t.cur].RefreshExec()
	}
}

// KillInstance aborts the current instance.
func (t *RTTask) KillInstance() {
	if !t.IsActive() {
		return
	}
	c := t.processor()
	if t.state == StateExecuting {
		if t.cur < len(t.instrs) {
			t.instrs[t.cur].Deschedule()
		}
		t.closeInstance()
		t.kernel.OnEnd(t)
	} else {
		t.closeInstance()
		t.kernel.Suspend(t)
		t.kernel.Dispatch()
	}
	t.endEvt.Drop()
	t.stats.Kills++
	t.hook(HookPosKill, c)
	logrus.Debugf("[%v] %s: instance killed", t.sim.Now(), t.name)
	t.drainBuffered()
}

func (t *RTTask) processor() *cpu.CPU {
	if t.kernel == nil {
		return nil
	}
	return t.kernel.Processor(t)
}

func (t *RTTask) hook(pos *sim.HookPos, c *cpu.CPU) {
	if t.NumHooks() == 0 {
		return
	}
	var detail any
	if c != nil {
		detail = c
	}
	t.InvokeHook(sim.HookCtx{Domain: t, Now: t.sim.Now(), Pos: pos, Item: t, Detail: detail})
}

func (t *RTTask) onArrival() {
	now := t.sim.Now()
	if !t.IsActive() {
		t.handleArrival(now)
		t.kernel.OnArrival(t)
	} else if len(t.arrQueue) < MaxBufferedArrivals {
		t.arrQueue = append(t.arrQueue, now)
	} else {
		t.stats.Dropped++
		logrus.Debugf("[%v] %s: arrival buffer full, arrival dropped", now, t.name)
	}
	t.reactivate()
}

func (t *RTTask) reactivate() {
	switch t.kind {
	case Periodic:
		t.arrEvt.MustPost(t.sim.Now() + t.period)
	case Sporadic:
		gap := t.period + sim.CeilTick(t.jitter.Get())
		if gap < t.period {
			gap = t.period
		}
		t.arrEvt.MustPost(t.sim.Now() + gap)
	}
}

func (t *RTTask) handleArrival(at sim.Tick) {
	t.arrival = at
	t.cur = 0
	for _, in := range t.instrs {
		in.Reset()
	}
	t.state = StateReady
	t.dline = at + t.relDline
	t.deadEvt.Drop()
	t.deadEvt.MustPost(t.dline)
	t.stats.LastArrival = at
	t.hook(HookPosArrival, nil)
}

func (t *RTTask) onBufferedArrival() {
	if t.IsActive() || len(t.arrQueue) == 0 {
		return
	}
	at := t.arrQueue[0]
	t.arrQueue = t.arrQueue[1:]
	t.handleArrival(at)
	t.kernel.OnArrival(t)
}

func (t *RTTask) drainBuffered() {
	if len(t.arrQueue) > 0 {
		t.fakeArrEvt.Drop()
		t.fakeArrEvt.MustPost(t.sim.Now())
	}
}

func (t *RTTask) onInstrEnd() {
	t.cur++
	if t.cur >= len(t.instrs) {
		t.endEvt.Process()
		return
	}
	if t.state == StateExecuting {
		t.instrs[t.cur].Schedule()
	}
}

// closeInstance moves the task to idle and records its response time.
func (t *RTTask) closeInstance() {
	t.state = StateIdle
	t.deadEvt.Drop()
}

func (t *RTTask) onEndInstance() {
	if !t.IsActive() {
		panic(fmt.Sprintf("task %s: end of an instance that is not active", t.name))
	}
	now := t.sim.Now()
	c := t.processor()
	t.closeInstance()
	t.stats.Instances++
	t.stats.LastEnd = now
	t.stats.LastResponse = now - t.arrival
	t.stats.MaxResponse = sim.MaxOf(t.stats.MaxResponse, t.stats.LastResponse)
	t.hook(HookPosEndInstance, c)
	t.kernel.OnEnd(t)
	if t.kind == NonPeriodic {
		t.arrQueue = t.arrQueue[:0]
		return
	}
	t.drainBuffered()
}

func (t *RTTask) onDeadline() {
	t.stats.Misses++
	t.hook(HookPosDeadlineMiss, t.processor())
	logrus.Debugf("[%v] %s: deadline miss (arrival %v)", t.sim.Now(), t.name, t.arrival)
	if t.abort && t.IsActive() {
		t.KillInstance()
	}
}

func (t *RTTask) String() string {
	return fmt.Sprintf("%s(id=%d, %s, P=%v, D=%v)", t.name, t.id, t.state, t.period, t.relDline)
}

var _ Task = (*RTTask)(nil)

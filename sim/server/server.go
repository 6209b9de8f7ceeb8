// Package server implements bandwidth-reservation servers.
//
// A server is a task towards the kernel that schedules it and a kernel
// towards the tasks it serves. It hands its processor to the first of its
// own ready tasks and limits how long that processor is used through a
// budget Q replenished every period P.
//
// Servers go through five states:
//
//	IDLE -> READY -> EXECUTING -> RELEASING -> IDLE
//	                     |
//	                     +-> RECHARGING -> READY or IDLE
//
// CBS and GRUB differ in how they account the budget along each
// transition.
package server

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
)

var (
	// ErrInvalidTransition reports a state change the server cannot make.
	ErrInvalidTransition = errors.New("invalid server state transition")

	// ErrUnsupported is returned for operations a server kind lacks.
	ErrUnsupported = errors.New("operation not supported by this server")
)

// HookPosStatus fires on every state change. Detail is the new Status.
var HookPosStatus = &sim.HookPos{Name: "ServerStatus"}

// Server event priorities.
const (
	rechargingPriority = sim.DefaultPriority - 1
	bandExPriority     = sim.DefaultPriority + 4
	dispatchPriority   = sim.DefaultPriority + 5
)

// Status is the state of a server.
type Status int

const (
	Idle Status = iota
	Ready
	Executing
	Releasing
	Recharging
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "READY"
	case Executing:
		return "EXECUTING"
	case Releasing:
		return "RELEASING"
	case Recharging:
		return "RECHARGING"
	}
	return "IDLE"
}

// Server is a bandwidth server, schedulable by a kernel and scheduling
// its own tasks.
type Server interface {
	rt.Task
	rt.Kernel

	Status() Status
	// Budget is the maximum budget Q.
	Budget() sim.Tick
	// Capacity is the budget left in the current period.
	Capacity() float64
	// ChangeBudget sets Q and returns when the change takes effect.
	ChangeBudget(q sim.Tick) (sim.Tick, error)
	VirtualTime() float64
	// Bandwidth is Q/P.
	Bandwidth() float64

	AddTask(t rt.Task) error
	Tasks() []rt.Task
	Scheduler() sched.Scheduler
	// Current is the served task holding the processor, nil if none.
	Current() rt.Task
	IsEmpty() bool

	AddObserver(o Observer)
	Yield()
	Yielding() bool
}

// Observer is told about the transitions energy-aware kernels care for.
type Observer interface {
	OnExecutingReleasing(s Server)
	OnReleasingIdle(s Server)
	OnExecutingRecharging(s Server)
	OnReplenishment(s Server)
	OnTaskEnd(s Server, t rt.Task)
}

// transitions is implemented by each server kind.
type transitions interface {
	idleReady()
	releasingReady()
	readyExecuting()
	executingReady()
	executingReleasing()
	releasingIdle()
	executingRecharging()
	rechargingReady()
	rechargingIdle()
}

// base holds the state machine shared by every server kind. self is the
// concrete server, handed to the enclosing kernel and to observers.
type base struct {
	sim.HookableBase

	sim    *sim.Simulation
	name   string
	id     int
	kernel rt.Kernel
	sched  sched.Scheduler
	tasks  []rt.Task

	status    Status
	budget    sim.Tick
	period    sim.Tick
	dline     sim.Tick
	arrival   sim.Tick
	lastSched sim.Tick
	currExe   rt.Task
	yielding  bool

	bandExEvt     *sim.Event
	rechargingEvt *sim.Event
	dispatchEvt   *sim.Event

	observers []Observer

	tr   transitions
	self Server
}

func (b *base) init(s *sim.Simulation, name string, q, p sim.Tick, sc sched.Scheduler) error {
	if q <= 0 || p <= 0 || q > p {
		return fmt.Errorf("server %q: need 0 < Q <= P, got Q=%v P=%v", name, q, p)
	}
	if sc == nil {
		sc = sched.NewEDF(s)
	}
	b.sim = s
	b.id = rt.NextID()
	b.name = name
	if b.name == "" {
		b.name = fmt.Sprintf("S%d", b.id)
	}
	b.budget, b.period = q, p
	b.sched = sc
	b.sched.SetKernel(b.self)
	b.bandExEvt = s.NewEvent(b.name+".budget_exhausted", bandExPriority, func(*sim.Event) { b.onBudgetExhausted() })
	b.rechargingEvt = s.NewEvent(b.name+".recharging", rechargingPriority, func(*sim.Event) { b.onRecharging() })
	b.dispatchEvt = s.NewEvent(b.name+".dispatch", dispatchPriority, func(*sim.Event) { b.onDispatch() })
	return nil
}

func (b *base) Name() string { return b.name }
func (b *base) ID() int { return b.id }
func (b *base) Kind() rt.Kind { return rt.KindServer }
func (b *base) SetKernel(k rt.Kernel) { b.kernel = k }
func (b *base) Kernel() rt.Kernel { return b.kernel }
func (b *base) Status() Status { return b.status }
func (b *base) Budget() sim.Tick { return b.budget }
func (b *base) Period() sim.Tick { return b.period }
func (b *base) RelDline() sim.Tick { return b.period }
func (b *base) Deadline() sim.Tick { return b.dline }
func (b *base) Arrival() sim.Tick { return b.arrival }
func (b *base) LastSched() sim.Tick { return b.lastSched }
func (b *base) IsActive() bool { return b.status != Idle }
func (b *base) IsExecuting() bool { return b.status == Executing }
func (b *base) Scheduler() sched.Scheduler { return b.sched }
func (b *base) Current() rt.Task { return b.currExe }
func (b *base) IsEmpty() bool { return b.sched.First() == nil }
func (b *base) Yielding() bool { return b.yielding }
func (b *base) Bandwidth() float64 { return b.budget.Float() / b.period.Float() }
func (b *base) AddObserver(o Observer) { b.observers = append(b.observers, o) }

func (b *base) Tasks() []rt.Task { return append([]rt.Task(nil), b.tasks...) }

// AddTask makes the server the kernel of t.
func (b *base) AddTask(t rt.Task) error {
	if err := b.sched.AddTask(t); err != nil {
		return fmt.Errorf("server %s: %w", b.name, err)
	}
	t.SetKernel(b.self)
	b.tasks = append(b.tasks, t)
	return nil
}

// WCET sums the worst case of the served tasks.
func (b *base) WCET(capacity float64) sim.Tick {
	var w sim.Tick
	for _, t := range b.tasks {
		w += t.WCET(capacity)
	}
	return w
}

// RemainingWCET sums what is left of the served tasks' instances; idle
// tasks count for their whole WCET.
func (b *base) RemainingWCET(capacity float64) sim.Tick {
	var w sim.Tick
	for _, t := range b.tasks {
		w += t.RemainingWCET(capacity)
	}
	return w
}

func (b *base) Workload() string {
	if b.currExe != nil {
		return b.currExe.Workload()
	}
	if t := b.sched.First(); t != nil {
		return t.Workload()
	}
	return cpu.WorkloadBusy
}

func (b *base) RefreshExec() {
	if b.currExe != nil {
		b.currExe.RefreshExec()
	}
}

func (b *base) NewRun() {
	b.sched.NewRun()
	b.status = Idle
	b.arrival, b.dline, b.lastSched = 0, 0, 0
	b.currExe = nil
	b.yielding = false
	b.bandExEvt.Drop()
	b.rechargingEvt.Drop()
	b.dispatchEvt.Drop()
}

func (b *base) EndRun() {
	b.bandExEvt.Drop()
	b.rechargingEvt.Drop()
	b.dispatchEvt.Drop()
	b.sched.EndRun()
}

func (b *base) setStatus(st Status) {
	if b.status == st {
		return
	}
	logrus.Debugf("[%v] %s: %v -> %v", b.sim.Now(), b.name, b.status, st)
	b.status = st
	if b.NumHooks() > 0 {
		b.InvokeHook(sim.HookCtx{Domain: b.self, Now: b.sim.Now(), Pos: HookPosStatus, Item: b.self, Detail: st})
	}
}

func (b *base) mustBe(st Status, op string) {
	if b.status != st {
		panic(fmt.Errorf("server %s: %s in status %v: %w", b.name, op, b.status, ErrInvalidTransition))
	}
}

// Schedule is called by the kernel when the server gets a processor.
func (b *base) Schedule() {
	b.mustBe(Ready, "schedule")
	b.lastSched = b.sim.Now()
	b.tr.readyExecuting()
	b.Dispatch()
}

// Deschedule is called by the kernel when the server is preempted.
func (b *base) Deschedule() {
	if b.status != Executing {
		return
	}
	b.tr.executingReady()
	b.dispatchEvt.Drop()
	if b.currExe != nil {
		b.currExe.Deschedule()
		b.currExe = nil
	}
	b.sched.Notify(nil)
}

// OnArrival queues a served task and wakes the server if needed.
func (b *base) OnArrival(t rt.Task) {
	b.insert(t)
	switch b.status {
	case Idle:
		b.tr.idleReady()
		b.kernel.OnArrival(b.self)
	case Releasing:
		b.tr.releasingReady()
		b.kernel.OnArrival(b.self)
	}
	b.Dispatch()
}

// Activate is OnArrival without triggering the enclosing kernel.
func (b *base) Activate(t rt.Task) {
	b.insert(t)
	switch b.status {
	case Idle:
		b.tr.idleReady()
		b.kernel.Activate(b.self)
	case Releasing:
		b.tr.releasingReady()
		b.kernel.Activate(b.self)
	}
	b.Dispatch()
}

func (b *base) insert(t rt.Task) {
	if err := b.sched.Insert(t); err != nil {
		panic(fmt.Errorf("server %s: %w", b.name, err))
	}
}

func (b *base) extract(t rt.Task) {
	if b.sched.InQueue(t) {
		if err := b.sched.Extract(t); err != nil {
			panic(fmt.Errorf("server %s: %w", b.name, err))
		}
	}
}

// Suspend removes a served task without ending its instance.
func (b *base) Suspend(t rt.Task) {
	b.extract(t)
	if b.currExe == t {
		t.Deschedule()
		b.currExe = nil
		b.sched.Notify(nil)
	}
	b.Dispatch()
}

// OnEnd removes a served task whose instance has finished.
func (b *base) OnEnd(t rt.Task) {
	b.extract(t)
	if b.currExe == t {
		b.currExe = nil
		b.sched.Notify(nil)
	}
	b.Dispatch()
}

// Dispatch re-evaluates the served task to run, later in this instant.
func (b *base) Dispatch() {
	b.dispatchEvt.Drop()
	b.dispatchEvt.MustPost(b.sim.Now())
}

// Processor is the CPU of the server, for its running task only.
func (b *base) Processor(t rt.Task) *cpu.CPU {
	if b.kernel == nil || (t != b.currExe && t != rt.Task(b.self)) {
		return nil
	}
	return b.kernel.Processor(b.self)
}

func (b *base) OldProcessor(rt.Task) *cpu.CPU {
	if b.kernel == nil {
		return nil
	}
	return b.kernel.OldProcessor(b.self)
}

func (b *base) RequestResource(t rt.Task, res string, n int) (bool, error) {
	return b.kernel.RequestResource(t, res, n)
}

func (b *base) ReleaseResource(t rt.Task, res string, n int) error {
	return b.kernel.ReleaseResource(t, res, n)
}

// Yield marks the server as giving up its reservation until the next
// arrival of a served task.
func (b *base) Yield() {
	b.yielding = true
}

func (b *base) onDispatch() {
	if b.status != Executing {
		return
	}
	next := b.sched.First()
	if next != b.currExe {
		if b.currExe != nil {
			b.currExe.Deschedule()
		}
		b.currExe = next
		if next != nil {
			next.Schedule()
		}
		b.sched.Notify(next)
	}
	if b.currExe == nil {
		b.tr.executingReleasing()
		b.kernel.Suspend(b.self)
		b.kernel.Dispatch()
	}
}

// onBudgetExhausted leaves EXECUTING before giving the processor back, so
// that the kernel's Deschedule finds nothing to do.
func (b *base) onBudgetExhausted() {
	b.mustBe(Executing, "budget exhausted")
	logrus.Debugf("[%v] %s: budget exhausted", b.sim.Now(), b.name)
	b.dispatchEvt.Drop()
	if b.currExe != nil {
		b.currExe.Deschedule()
		b.currExe = nil
	}
	b.sched.Notify(nil)
	b.tr.executingRecharging()
	b.kernel.Suspend(b.self)
	b.kernel.Dispatch()
	if b.status == Ready {
		b.kernel.OnArrival(b.self)
	}
}

func (b *base) onRecharging() {
	b.mustBe(Recharging, "recharged")
	if b.sched.First() != nil {
		b.tr.rechargingReady()
		b.kernel.OnArrival(b.self)
		return
	}
	b.tr.rechargingIdle()
	b.currExe = nil
	b.sched.Notify(nil)
}

func (b *base) notifyReleasing() {
	for _, o := range b.observers {
		o.OnExecutingReleasing(b.self)
	}
}

func (b *base) notifyIdle() {
	for _, o := range b.observers {
		o.OnReleasingIdle(b.self)
	}
}

func (b *base) notifyRecharging() {
	for _, o := range b.observers {
		o.OnExecutingRecharging(b.self)
	}
}

func (b *base) notifyReplenishment() {
	for _, o := range b.observers {
		o.OnReplenishment(b.self)
	}
}

func (b *base) String() string {
	return fmt.Sprintf("%s(Q=%v,P=%v,%v)", b.name, b.budget, b.period, b.status)
}

package server

import (
	"fmt"
	"math"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
)

// Replenishment and idle events fire before arrivals at the same instant.
const (
	replenishPriority = sim.DefaultPriority - 1
	idlePriority      = sim.DefaultPriority - 1
)

// IdlePolicy selects what a CBS does with its deadline when it wakes up.
type IdlePolicy int

const (
	// IdleOriginal always assigns a fresh budget and deadline.
	IdleOriginal IdlePolicy = iota
	// IdleReuseDeadline keeps the old deadline when it is still ahead,
	// with the budget scaled to the time left.
	IdleReuseDeadline
)

// ValidIdlePolicies maps descriptor names to policies.
var ValidIdlePolicies = map[string]IdlePolicy{"": IdleOriginal, "original": IdleOriginal, "reuse_dline": IdleReuseDeadline}

// CBS is a Constant Bandwidth Server. A soft CBS postpones its deadline
// and refills the budget on exhaustion; a hard one waits for the deadline.
type CBS struct {
	base

	hard       bool
	idlePolicy IdlePolicy

	cap   float64
	last  sim.Tick
	vtime *CapacityTimer

	replEvt *sim.Event
	idleEvt *sim.Event
}

// NewCBS creates a server with budget q and period p scheduling its tasks
// with sc, EDF if nil. The server is registered with s.
func NewCBS(s *sim.Simulation, name string, q, p sim.Tick, hard bool, sc sched.Scheduler) (*CBS, error) {
	c := &CBS{hard: hard, vtime: NewCapacityTimer(s)}
	c.tr, c.self = c, c
	if err := c.init(s, name, q, p, sc); err != nil {
		return nil, err
	}
	c.replEvt = s.NewEvent(c.name+".replenishment", replenishPriority, func(*sim.Event) { c.onReplenishment() })
	c.idleEvt = s.NewEvent(c.name+".idle", idlePriority, func(*sim.Event) { c.onIdle() })
	if err := s.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CBS) Hard() bool { return c.hard }
func (c *CBS) SetIdlePolicy(p IdlePolicy) { c.idlePolicy = p }

// Capacity is the budget left, accounting the current execution.
func (c *CBS) Capacity() float64 {
	if c.status == Executing {
		return c.cap - (c.sim.Now() - c.last).Float()
	}
	return c.cap
}

// VirtualTime is the instant up to which the reserved bandwidth has been
// consumed. An idle server's virtual time is the current time.
func (c *CBS) VirtualTime() float64 {
	if c.status == Idle {
		return c.sim.Now().Float()
	}
	return c.vtime.Value()
}

// ChangeBudget sets Q to q. The capacity moves by the same amount, and a
// running server re-evaluates its exhaustion instant at once.
func (c *CBS) ChangeBudget(q sim.Tick) (sim.Tick, error) {
	if q <= 0 {
		return 0, fmt.Errorf("server %s: budget must be positive, got %v", c.name, q)
	}
	now := c.sim.Now()
	if q == c.budget {
		return now, nil
	}
	c.cap += (q - c.budget).Float()
	c.budget = q
	if c.status == Executing {
		c.cap -= (now - c.last).Float()
		c.last = now
		c.bandExEvt.Drop()
		c.bandExEvt.MustPost(now + c.capTicks())
		c.vtime.Start(c.period.Float() / c.budget.Float())
	}
	return now, nil
}

func (c *CBS) capTicks() sim.Tick {
	return sim.CeilTick(math.Max(c.cap, 0))
}

// OnArrival clears a previous yield.
func (c *CBS) OnArrival(t rt.Task) {
	c.yielding = false
	c.base.OnArrival(t)
}

// OnEnd tells the observers about the ended task and yields when nothing
// else is pending.
func (c *CBS) OnEnd(t rt.Task) {
	c.base.OnEnd(t)
	for _, o := range c.observers {
		o.OnTaskEnd(c, t)
	}
	if c.IsEmpty() {
		c.Yield()
	}
}

// KillInstance aborts the instance of the first served task.
func (c *CBS) KillInstance() {
	if k, ok := c.sched.First().(interface{ KillInstance() }); ok {
		k.KillInstance()
	}
}

func (c *CBS) NewRun() {
	c.base.NewRun()
	c.cap = c.budget.Float()
	c.last = 0
	c.vtime.Reset(0)
	c.replEvt.Drop()
	c.idleEvt.Drop()
}

func (c *CBS) EndRun() {
	c.base.EndRun()
	c.replEvt.Drop()
	c.idleEvt.Drop()
}

func (c *CBS) idleReady() {
	now := c.sim.Now()
	c.setStatus(Ready)
	c.arrival = now
	c.cap = 0
	if c.idlePolicy == IdleReuseDeadline && now < c.dline {
		c.cap = math.Floor((c.dline - now).Float() * c.budget.Float() / c.period.Float())
	}
	if c.cap == 0 {
		c.cap = c.budget.Float()
		c.dline = now + c.period
	}
	c.vtime.SetValue(now.Float())
}

func (c *CBS) releasingReady() {
	c.setStatus(Ready)
	c.idleEvt.Drop()
}

func (c *CBS) readyExecuting() {
	now := c.sim.Now()
	c.setStatus(Executing)
	c.last = now
	c.vtime.Start(c.period.Float() / c.budget.Float())
	c.bandExEvt.Drop()
	c.bandExEvt.MustPost(now + c.capTicks())
}

func (c *CBS) account() {
	now := c.sim.Now()
	c.cap -= (now - c.last).Float()
	c.last = now
	c.vtime.Stop()
	c.bandExEvt.Drop()
}

func (c *CBS) executingReady() {
	c.account()
	c.setStatus(Ready)
}

// executingReleasing keeps the reservation until the virtual time is
// reached, so an early wake-up cannot claim more than Q/P.
func (c *CBS) executingReleasing() {
	if c.status == Executing {
		c.account()
	}
	now := c.sim.Now()
	c.notifyReleasing()
	if vt := c.vtime.Value(); vt > now.Float() {
		c.setStatus(Releasing)
		c.idleEvt.Drop()
		c.idleEvt.MustPost(sim.CeilTick(vt))
		return
	}
	c.setStatus(Idle)
	c.notifyIdle()
}

func (c *CBS) releasingIdle() {
	c.setStatus(Idle)
	c.notifyIdle()
}

func (c *CBS) executingRecharging() {
	now := c.sim.Now()
	c.bandExEvt.Drop()
	c.vtime.Stop()
	c.notifyRecharging()
	c.replEvt.Drop()
	if !c.hard {
		c.cap = c.budget.Float()
		c.dline += c.period
		c.setStatus(Ready)
		c.replEvt.MustPost(now)
		return
	}
	c.cap = 0
	c.replEvt.MustPost(sim.MaxOf(now, c.dline))
	c.dline += c.period
	c.setStatus(Recharging)
}

func (c *CBS) rechargingReady() {
	c.setStatus(Ready)
}

func (c *CBS) rechargingIdle() {
	panic(fmt.Errorf("server %s: CBS cannot go from RECHARGING to IDLE: %w", c.name, ErrInvalidTransition))
}

func (c *CBS) onReplenishment() {
	now := c.sim.Now()
	switch c.status {
	case Recharging, Releasing, Idle:
		c.notifyReplenishment()
		c.cap = c.budget.Float()
		if c.sched.First() != nil {
			c.idleEvt.Drop()
			if c.status == Idle {
				c.arrival = now
				c.vtime.SetValue(now.Float())
			}
			c.setStatus(Ready)
			c.kernel.OnArrival(c)
			return
		}
		if c.status != Idle {
			if vt := c.vtime.Value(); now.Float() < vt {
				c.setStatus(Releasing)
				c.idleEvt.Drop()
				c.idleEvt.MustPost(sim.CeilTick(vt))
			} else {
				c.setStatus(Idle)
				c.notifyIdle()
			}
		}
		c.currExe = nil
		c.sched.Notify(nil)
	}
}

func (c *CBS) onIdle() {
	if c.status == Releasing {
		c.releasingIdle()
	}
}

var _ Server = (*CBS)(nil)

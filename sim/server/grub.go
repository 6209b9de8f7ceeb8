package server

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
)

// UtilizationManager tracks the bandwidth of the GRUB servers sharing a
// processor. Active servers consume their budget at the rate of the total
// active bandwidth, and a server going idle early leaves its unused share
// to whoever runs next.
type UtilizationManager struct {
	name     string
	servers  []*GRUB
	totalU   float64
	activeU  float64
	residual float64
}

// NewUtilizationManager creates a manager and registers it with s.
func NewUtilizationManager(s *sim.Simulation, name string) (*UtilizationManager, error) {
	m := &UtilizationManager{name: name}
	if err := s.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *UtilizationManager) Name() string { return m.name }
func (m *UtilizationManager) TotalUtilization() float64 { return m.totalU }
func (m *UtilizationManager) ActiveUtilization() float64 { return m.activeU }

// Residual is the reclaimable budget not yet taken by a server.
func (m *UtilizationManager) Residual() float64 { return m.residual }

// AddServer admits g if the total bandwidth stays within one processor.
func (m *UtilizationManager) AddServer(g *GRUB) error {
	u := g.Bandwidth()
	if m.totalU+u > 1 {
		return fmt.Errorf("grub %s: utilization %.3f exceeds the free %.3f", g.name, u, 1-m.totalU)
	}
	m.totalU += u
	m.servers = append(m.servers, g)
	g.supervisor = m
	return nil
}

func (m *UtilizationManager) setActive(g *GRUB) {
	m.updateAll()
	m.activeU += g.Bandwidth()
	m.startAll()
}

func (m *UtilizationManager) setIdle(g *GRUB) {
	m.updateAll()
	m.activeU -= g.Bandwidth()
	m.startAll()
}

func (m *UtilizationManager) updateAll() {
	for _, g := range m.servers {
		g.updateBudget()
	}
}

func (m *UtilizationManager) startAll() {
	for _, g := range m.servers {
		g.startAccounting()
	}
}

// takeResidual returns and clears the budget left by idle servers.
func (m *UtilizationManager) takeResidual() float64 {
	r := m.residual
	m.residual = 0
	return r
}

func (m *UtilizationManager) NewRun() {
	m.activeU = 0
	m.residual = 0
}

func (m *UtilizationManager) EndRun() {}

// GRUB is a Greedy Reclamation of Unused Bandwidth server.
type GRUB struct {
	base

	supervisor *UtilizationManager
	cap        *CapacityTimer
	vtime      *CapacityTimer

	idleEvt *sim.Event
}

// NewGRUB creates a server and admits it to m.
func NewGRUB(s *sim.Simulation, name string, q, p sim.Tick, m *UtilizationManager, sc sched.Scheduler) (*GRUB, error) {
	g := &GRUB{cap: NewCapacityTimer(s), vtime: NewCapacityTimer(s)}
	g.tr, g.self = g, g
	if err := g.init(s, name, q, p, sc); err != nil {
		return nil, err
	}
	g.idleEvt = s.NewEvent(g.name+".idle", idlePriority, func(*sim.Event) { g.onIdle() })
	if err := m.AddServer(g); err != nil {
		return nil, err
	}
	if err := s.Register(g); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GRUB) Capacity() float64 { return g.cap.Value() }

func (g *GRUB) VirtualTime() float64 {
	if g.status == Idle {
		return g.sim.Now().Float()
	}
	return g.vtime.Value()
}

// ChangeBudget is not available: the bandwidth is part of the admission
// test of the utilization manager.
func (g *GRUB) ChangeBudget(sim.Tick) (sim.Tick, error) {
	return 0, fmt.Errorf("grub %s: %w", g.name, ErrUnsupported)
}

func (g *GRUB) NewRun() {
	g.base.NewRun()
	g.cap.Reset(g.budget.Float())
	g.vtime.Reset(0)
	g.idleEvt.Drop()
}

func (g *GRUB) EndRun() {
	g.base.EndRun()
	g.idleEvt.Drop()
}

func (g *GRUB) updateBudget() {
	if g.status != Executing {
		return
	}
	g.vtime.Stop()
	g.cap.Stop()
	g.bandExEvt.Drop()
}

func (g *GRUB) startAccounting() {
	if g.status != Executing {
		return
	}
	active := g.supervisor.activeU
	g.vtime.Start(active / g.Bandwidth())
	g.cap.Start(-active)
	delta := g.cap.Intercept(0)
	if delta < 0 {
		panic(fmt.Errorf("grub %s: negative budget %.3f: %w", g.name, g.cap.Value(), ErrInvalidTransition))
	}
	g.bandExEvt.Drop()
	g.bandExEvt.MustPost(g.sim.Now() + delta)
}

func (g *GRUB) idleReady() {
	now := g.sim.Now()
	g.setStatus(Ready)
	g.arrival = now
	g.cap.SetValue(g.budget.Float())
	g.dline = now + g.period
	g.vtime.SetValue(now.Float())
	g.supervisor.setActive(g)
}

func (g *GRUB) releasingReady() {
	g.setStatus(Ready)
	g.idleEvt.Drop()
}

func (g *GRUB) readyExecuting() {
	g.setStatus(Executing)
	if r := g.supervisor.takeResidual(); r > 0 {
		logrus.Debugf("[%v] %s: reclaiming %.3f", g.sim.Now(), g.name, r)
		g.cap.SetValue(g.cap.Value() + r)
	}
	g.startAccounting()
}

func (g *GRUB) executingReady() {
	g.updateBudget()
	g.setStatus(Ready)
}

func (g *GRUB) executingReleasing() {
	g.updateBudget()
	g.notifyReleasing()
	g.setStatus(Releasing)
	g.idleEvt.Drop()
	g.idleEvt.MustPost(sim.MaxOf(g.sim.Now(), sim.CeilTick(g.vtime.Value())))
}

// releasingIdle leaves the budget not consumed before the virtual time
// to the next server that runs.
func (g *GRUB) releasingIdle() {
	now := g.sim.Now().Float()
	if vt := g.vtime.Value(); now > vt {
		g.supervisor.residual = g.Bandwidth() * (now - vt)
	}
	g.setStatus(Idle)
	g.supervisor.setIdle(g)
	g.notifyIdle()
}

func (g *GRUB) executingRecharging() {
	g.updateBudget()
	g.notifyRecharging()
	g.setStatus(Recharging)
	g.rechargingEvt.Drop()
	g.rechargingEvt.MustPost(sim.MaxOf(g.sim.Now(), g.dline))
}

func (g *GRUB) rechargingReady() {
	now := g.sim.Now()
	g.cap.SetValue(g.budget.Float())
	g.dline = now + g.period
	g.vtime.SetValue(now.Float())
	g.setStatus(Ready)
	g.notifyReplenishment()
}

func (g *GRUB) rechargingIdle() {
	g.releasingIdle()
}

func (g *GRUB) onIdle() {
	if g.status == Releasing {
		g.releasingIdle()
	}
}

var _ Server = (*GRUB)(nil)

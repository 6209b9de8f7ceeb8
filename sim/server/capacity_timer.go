package server

import (
	"math"

	"github.com/gabrieleara/PARTSim-sub001/sim"
)

// CapacityTimer is a real-valued quantity that changes linearly with
// simulated time while running. Servers use it for virtual time and for
// reclaimed budgets.
type CapacityTimer struct {
	sim     *sim.Simulation
	value   float64
	slope   float64
	last    sim.Tick
	running bool
}

// NewCapacityTimer creates a stopped timer at zero.
func NewCapacityTimer(s *sim.Simulation) *CapacityTimer {
	return &CapacityTimer{sim: s}
}

// Start makes the value change at slope units per tick from now on.
func (c *CapacityTimer) Start(slope float64) {
	c.advance()
	c.slope = slope
	c.running = true
}

// Stop freezes the value and returns it.
func (c *CapacityTimer) Stop() float64 {
	c.advance()
	c.running = false
	return c.value
}

// Value returns the current value.
func (c *CapacityTimer) Value() float64 {
	if !c.running {
		return c.value
	}
	return c.value + c.slope*(c.sim.Now()-c.last).Float()
}

// SetValue overwrites the value without changing the running state.
func (c *CapacityTimer) SetValue(v float64) {
	c.value = v
	c.last = c.sim.Now()
}

func (c *CapacityTimer) Running() bool { return c.running }
func (c *CapacityTimer) Slope() float64 { return c.slope }

// Intercept returns how many ticks from now the value reaches target,
// rounded up. A stopped or flat timer never gets there.
func (c *CapacityTimer) Intercept(target float64) sim.Tick {
	if !c.running || c.slope == 0 {
		return sim.MaxTick
	}
	d := (target - c.Value()) / c.slope
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return sim.MaxTick
	}
	return sim.CeilTick(d)
}

// Reset stops the timer and sets it to v.
func (c *CapacityTimer) Reset(v float64) {
	c.running = false
	c.slope = 0
	c.SetValue(v)
}

func (c *CapacityTimer) advance() {
	now := c.sim.Now()
	if c.running {
		c.value += c.slope * (now - c.last).Float()
	}
	c.last = now
}

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim"
)

// TestCapacityTimer_Slopes tests linear growth, stops and intercepts.
func TestCapacityTimer_Slopes(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	c := NewCapacityTimer(s)
	c.SetValue(10)
	assert.Equal(t, sim.MaxTick, c.Intercept(0), "stopped")

	c.Start(-2)
	assert.Equal(t, sim.Tick(5), c.Intercept(0))

	ev := s.NewEvent("step", sim.DefaultPriority, func(*sim.Event) {
		assert.InDelta(t, 4.0, c.Value(), 1e-9)
		c.Start(-0.5)
		assert.Equal(t, sim.Tick(8), c.Intercept(0))
	})
	ev.MustPost(3)
	s.RunTo(4)
	assert.InDelta(t, 3.5, c.Stop(), 1e-9)
	assert.False(t, c.Running())

	s.RunTo(10)
	assert.InDelta(t, 3.5, c.Value(), 1e-9, "frozen while stopped")
	assert.Equal(t, sim.Tick(3), func() sim.Tick { c.Start(-1.5); return c.Intercept(0) }(), "3.5/1.5 rounds up")

	c.Reset(1)
	assert.False(t, c.Running())
	assert.Equal(t, 1.0, c.Value())
}

// TestCBS_RechargingToIdlePanics tests that a CBS refuses to become idle
// while waiting for its replenishment.
func TestCBS_RechargingToIdlePanics(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	c, err := NewCBS(s, "S", 1, 10, true, nil)
	require.NoError(t, err)
	c.status = Recharging
	assert.Panics(t, func() { c.rechargingIdle() })
	assert.Panics(t, func() { c.Schedule() }, "only a READY server can be scheduled")
}

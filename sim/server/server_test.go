package server_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/internal/testutil"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/server"
)

// served builds a CBS on a FIFO kernel serving one periodic task.
func served(t *testing.T, q, p sim.Tick, hard bool, period sim.Tick, code string) (*sim.Simulation, *server.CBS, *rt.RTTask) {
	t.Helper()
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	cbs, err := server.NewCBS(s, "S", q, p, hard, nil)
	require.NoError(t, err)
	cbs.SetKernel(k)
	task, err := rt.NewPeriodic(s, "A", period, 0, 0, code)
	require.NoError(t, err)
	require.NoError(t, cbs.AddTask(task))
	return s, cbs, task
}

// at runs f at the given instant, after the server and kernel events of
// that instant.
func at(s *sim.Simulation, when sim.Tick, f func()) {
	s.NewEvent(fmt.Sprintf("check@%v", when), sim.DefaultPriority+20, func(*sim.Event) { f() }).MustPost(when)
}

// TestCBS_SoftBudgetAccounting tests budget consumption, deadline
// postponement and virtual time of a soft CBS.
func TestCBS_SoftBudgetAccounting(t *testing.T) {
	s, cbs, task := served(t, 2, 10, false, 20, "fixed(5);")
	s.InitSingleRun()

	var capAt3 float64
	var statusAt3, statusAt10 server.Status
	var dlineAt3, dlineAt10 sim.Tick
	var vtimeAt10 float64
	at(s, 3, func() {
		capAt3, statusAt3, dlineAt3 = cbs.Capacity(), cbs.Status(), cbs.Deadline()
	})
	at(s, 10, func() {
		statusAt10, dlineAt10, vtimeAt10 = cbs.Status(), cbs.Deadline(), cbs.VirtualTime()
	})
	s.RunTo(15)

	assert.Equal(t, server.Executing, statusAt3)
	assert.InDelta(t, 1.0, capAt3, 1e-9, "one tick consumed since the refill at 2")
	assert.Equal(t, sim.Tick(20), dlineAt3, "postponed once")

	assert.Equal(t, server.Releasing, statusAt10)
	assert.Equal(t, sim.Tick(30), dlineAt10)
	assert.InDelta(t, 25.0, vtimeAt10, 1e-9, "five ticks at rate P/Q")

	assert.Equal(t, 1, task.Stats().Instances)
	assert.Equal(t, sim.Tick(5), task.Stats().LastResponse)
}

// TestCBS_ChangeBudget tests that a new budget is visible at once and that
// a running server moves its exhaustion instant.
func TestCBS_ChangeBudget(t *testing.T) {
	s, cbs, task := served(t, 2, 10, false, 100, "fixed(5);")
	s.InitSingleRun()

	var capAfter float64
	var budgetAfter, dlineAt6 sim.Tick
	at(s, 1, func() {
		when, err := cbs.ChangeBudget(4)
		require.NoError(t, err)
		assert.Equal(t, sim.Tick(1), when)
		budgetAfter, capAfter = cbs.Budget(), cbs.Capacity()
	})
	at(s, 6, func() { dlineAt6 = cbs.Deadline() })
	s.RunTo(10)

	assert.Equal(t, sim.Tick(4), budgetAfter)
	assert.InDelta(t, 3.0, capAfter, 1e-9)
	assert.Equal(t, sim.Tick(20), dlineAt6, "exhausted once, at 4")
	assert.Equal(t, sim.Tick(5), task.Stats().LastResponse)

	_, err := cbs.ChangeBudget(0)
	assert.Error(t, err)
}

// TestCBS_HardReservation tests that a hard CBS waits for its deadline
// before getting a new budget.
func TestCBS_HardReservation(t *testing.T) {
	s, cbs, task := served(t, 2, 10, true, 50, "fixed(5);")
	s.InitSingleRun()

	var statusAt5 server.Status
	var capAt5 float64
	at(s, 5, func() { statusAt5, capAt5 = cbs.Status(), cbs.Capacity() })
	s.RunTo(49)

	assert.Equal(t, server.Recharging, statusAt5)
	assert.Zero(t, capAt5)
	assert.Equal(t, 1, task.Stats().Instances)
	assert.Equal(t, sim.Tick(31), task.Stats().LastResponse, "2 ticks in each of [0,10), [10,20), [20,30), then 1")
	assert.Equal(t, server.Idle, cbs.Status())
}

// TestCBS_ReuseDeadline tests the idle policy that keeps a deadline still
// in the future.
func TestCBS_ReuseDeadline(t *testing.T) {
	for _, tc := range []struct {
		policy    server.IdlePolicy
		wantCap   float64
		wantDline sim.Tick
	}{
		{server.IdleOriginal, 4, 16},
		{server.IdleReuseDeadline, 1, 10},
	} {
		t.Run(fmt.Sprint(tc.policy), func(t *testing.T) {
			s, cbs, _ := served(t, 5, 10, false, 6, "fixed(2);")
			cbs.SetIdlePolicy(tc.policy)
			s.InitSingleRun()

			var capAt7 float64
			var dlineAt7 sim.Tick
			at(s, 7, func() { capAt7, dlineAt7 = cbs.Capacity(), cbs.Deadline() })
			s.RunTo(8)

			assert.InDelta(t, tc.wantCap, capAt7, 1e-9)
			assert.Equal(t, tc.wantDline, dlineAt7)
		})
	}
}

type recorder struct {
	now func() sim.Tick
	log []string
}

func (r *recorder) add(what string) { r.log = append(r.log, fmt.Sprintf("%s@%v", what, r.now())) }

func (r *recorder) OnExecutingReleasing(server.Server) { r.add("releasing") }
func (r *recorder) OnReleasingIdle(server.Server) { r.add("idle") }
func (r *recorder) OnExecutingRecharging(server.Server) { r.add("recharging") }
func (r *recorder) OnReplenishment(server.Server) { r.add("replenished") }
func (r *recorder) OnTaskEnd(_ server.Server, t rt.Task) { r.add("end:" + t.Name()) }

// TestCBS_Observers tests the notifications sent to an observer and the
// yield after the last task ends.
func TestCBS_Observers(t *testing.T) {
	s, cbs, _ := served(t, 5, 10, false, 100, "fixed(2);")
	rec := &recorder{now: s.Now}
	cbs.AddObserver(rec)
	s.InitSingleRun()
	s.RunTo(20)

	assert.Equal(t, []string{"end:A@2", "releasing@2", "idle@4"}, rec.log)
	assert.True(t, cbs.Yielding())
	assert.True(t, cbs.IsEmpty())
}

// TestNewCBS_Validation tests server parameter checks.
func TestNewCBS_Validation(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	_, err := server.NewCBS(s, "bad", 0, 10, false, nil)
	assert.Error(t, err)
	_, err = server.NewCBS(s, "over", 11, 10, false, nil)
	assert.Error(t, err)

	cbs, err := server.NewCBS(s, "", 1, 4, false, nil)
	require.NoError(t, err)
	assert.Equal(t, rt.KindServer, cbs.Kind())
	assert.InDelta(t, 0.25, cbs.Bandwidth(), 1e-9)
	_, err = server.NewCBS(s, cbs.Name(), 1, 4, false, nil)
	assert.Error(t, err, "names are unique")
}

// TestGRUB_Reclaiming tests the active utilization bookkeeping and the
// budget left behind by a server whose virtual time lags.
func TestGRUB_Reclaiming(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	m, err := server.NewUtilizationManager(s, "grub")
	require.NoError(t, err)

	g1, err := server.NewGRUB(s, "G1", 2, 10, m, nil)
	require.NoError(t, err)
	g2, err := server.NewGRUB(s, "G2", 4, 10, m, nil)
	require.NoError(t, err)
	_, err = server.NewGRUB(s, "G3", 5, 10, m, nil)
	assert.Error(t, err, "admission over one processor")
	assert.InDelta(t, 0.6, m.TotalUtilization(), 1e-9)

	for _, g := range []*server.GRUB{g1, g2} {
		g.SetKernel(k)
	}
	a, err := rt.NewPeriodic(s, "A", 100, 0, 0, "fixed(1);")
	require.NoError(t, err)
	b, err := rt.NewPeriodic(s, "B", 100, 0, 0, "fixed(1);")
	require.NoError(t, err)
	require.NoError(t, g1.AddTask(a))
	require.NoError(t, g2.AddTask(b))

	s.InitSingleRun()
	var activeAt0, activeAt2, residualAt2, activeAt3 float64
	var capG1At1 float64
	at(s, 0, func() { activeAt0 = m.ActiveUtilization() })
	at(s, 1, func() { capG1At1 = g1.Capacity() })
	at(s, 2, func() { activeAt2, residualAt2 = m.ActiveUtilization(), m.Residual() })
	at(s, 3, func() { activeAt3 = m.ActiveUtilization() })
	s.RunTo(5)

	assert.InDelta(t, 0.6, activeAt0, 1e-9)
	assert.InDelta(t, 1.4, capG1At1, 1e-9, "consumed at the active utilization rate")
	assert.InDelta(t, 0.2, activeAt2, 1e-9)
	assert.InDelta(t, 0.2, residualAt2, 1e-9, "G2 lagged half a tick at bandwidth 0.4")
	assert.InDelta(t, 0.0, activeAt3, 1e-9)
	assert.Equal(t, sim.Tick(1), a.Stats().LastResponse)
	assert.Equal(t, sim.Tick(2), b.Stats().LastResponse)

	_, err = g1.ChangeBudget(3)
	assert.ErrorIs(t, err, server.ErrUnsupported)
}

// TestGRUB_AloneUsesWholeProcessor tests that a lone GRUB server consumes
// budget at its own bandwidth.
func TestGRUB_AloneUsesWholeProcessor(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	m, err := server.NewUtilizationManager(s, "grub")
	require.NoError(t, err)
	g, err := server.NewGRUB(s, "G", 2, 10, m, nil)
	require.NoError(t, err)
	g.SetKernel(k)
	a, err := rt.NewPeriodic(s, "A", 100, 0, 0, "fixed(5);")
	require.NoError(t, err)
	require.NoError(t, g.AddTask(a))

	s.InitSingleRun()
	var capAt3, vtimeAt3 float64
	at(s, 3, func() { capAt3, vtimeAt3 = g.Capacity(), g.VirtualTime() })
	s.RunTo(20)

	assert.InDelta(t, 1.4, capAt3, 1e-9)
	assert.InDelta(t, 3.0, vtimeAt3, 1e-9)
	assert.Equal(t, sim.Tick(5), a.Stats().LastResponse, "no exhaustion before the end")
	assert.Equal(t, server.Idle, g.Status())
}

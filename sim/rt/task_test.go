package rt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/internal/testutil"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

type hookLog struct {
	pos   []string
	times []sim.Tick
}

func (l *hookLog) Func(ctx sim.HookCtx) {
	l.pos = append(l.pos, ctx.Pos.Name)
	l.times = append(l.times, ctx.Now)
}

func newTaskOnKernel(t *testing.T, s *sim.Simulation, k rt.Kernel, p rt.Params, code string) *rt.RTTask {
	t.Helper()
	task, err := rt.NewTask(s, p)
	require.NoError(t, err)
	require.NoError(t, task.SetCode(code))
	task.SetKernel(k)
	return task
}

// TestRTTask_PeriodicInstances tests that a periodic task completes one
// instance per period with the expected response time.
func TestRTTask_PeriodicInstances(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	task := newTaskOnKernel(t, s, k, rt.Params{Name: "T", Period: 50}, "fixed(10);")

	log := &hookLog{}
	task.AcceptHook(log)

	s.InitSingleRun()
	s.RunTo(200)

	st := task.Stats()
	assert.Equal(t, 4, st.Instances)
	assert.Equal(t, sim.Tick(10), st.LastResponse)
	assert.Equal(t, sim.Tick(160), st.LastEnd)
	assert.Equal(t, sim.Tick(200), st.LastArrival)
	assert.Zero(t, st.Misses)

	require.GreaterOrEqual(t, len(log.pos), 3)
	assert.Equal(t, []string{"Arrival", "Scheduled", "EndInstance"}, log.pos[:3])
	assert.Equal(t, []sim.Tick{0, 0, 10}, log.times[:3])
}

// TestRTTask_AbortOnMiss tests that an aborting task is killed at its
// deadline and that the buffered arrival restarts it.
func TestRTTask_AbortOnMiss(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	task := newTaskOnKernel(t, s, k, rt.Params{Name: "T", Period: 50, Abort: true}, "fixed(100)")

	s.InitSingleRun()
	s.RunTo(120)

	st := task.Stats()
	assert.Equal(t, 2, st.Misses)
	assert.Equal(t, 2, st.Kills)
	assert.Zero(t, st.Instances)
	assert.True(t, task.IsExecuting(), "the instance arrived at 100 runs after the kill")
}

// TestRTTask_BufferedArrivals tests that arrivals during an active
// instance are served in order once it ends.
func TestRTTask_BufferedArrivals(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	task := newTaskOnKernel(t, s, k, rt.Params{Name: "T", Period: 20}, "fixed(30)")

	s.InitSingleRun()
	s.RunTo(60)

	st := task.Stats()
	assert.Equal(t, 2, st.Instances)
	assert.Equal(t, sim.Tick(40), st.LastResponse, "the instance arrived at 20 ends at 60")
	assert.Equal(t, 3, st.Misses)
	assert.Equal(t, sim.Tick(40), task.Arrival())
}

// TestRTTask_NonPeriodicSingleInstance tests that a non-periodic task
// arrives only once.
func TestRTTask_NonPeriodicSingleInstance(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	task := newTaskOnKernel(t, s, k, rt.Params{Name: "T", Kind: rt.NonPeriodic, Period: 10, Phase: 5}, "fixed(3)")

	s.InitSingleRun()
	s.RunTo(1000)

	assert.Equal(t, 1, task.Stats().Instances)
	assert.Equal(t, sim.Tick(8), task.Stats().LastEnd)
}

// TestRTTask_SporadicMinimumGap tests that sporadic arrivals are never
// closer than the minimum inter-arrival time.
func TestRTTask_SporadicMinimumGap(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(7))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	task, err := rt.NewSporadic(s, "S", 40, 0, 0, nil, "fixed(1)")
	require.NoError(t, err)
	task.SetKernel(k)

	log := &hookLog{}
	task.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
		if ctx.Pos == rt.HookPosArrival {
			log.Func(ctx)
		}
	}))

	s.InitSingleRun()
	s.RunTo(400)

	require.Len(t, log.times, 11)
	for i := 1; i < len(log.times); i++ {
		assert.GreaterOrEqual(t, log.times[i]-log.times[i-1], sim.Tick(40))
	}
}

// TestRTTask_SelfSuspension tests that suspend() releases the processor
// for the requested delay.
func TestRTTask_SelfSuspension(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	task := newTaskOnKernel(t, s, k, rt.Params{Name: "T", Period: 100}, "fixed(5);suspend(10);fixed(5);")

	s.InitSingleRun()
	s.RunTo(12)
	assert.Nil(t, k.Running(), "suspended task holds no processor")
	assert.True(t, task.IsActive())

	s.RunTo(50)
	assert.Equal(t, 1, task.Stats().Instances)
	assert.Equal(t, sim.Tick(20), task.Stats().LastResponse)
}

// TestRTTask_RemainingWCET tests the remaining budget of a running instance.
func TestRTTask_RemainingWCET(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	task := newTaskOnKernel(t, s, k, rt.Params{Name: "T", Period: 100}, "fixed(30);fixed(20)")

	assert.Equal(t, sim.Tick(50), task.WCET(1))
	assert.Equal(t, sim.Tick(100), task.WCET(0.5))

	s.InitSingleRun()
	s.RunTo(40)
	assert.Equal(t, sim.Tick(10), task.RemainingWCET(1))
	assert.Equal(t, sim.Tick(20), task.RemainingWCET(0.5))
}

// TestRTTask_Determinism tests that two runs of a randomized body draw the
// same costs.
func TestRTTask_Determinism(t *testing.T) {
	run := func() []sim.Tick {
		s := sim.NewSimulation(sim.NewSimulationKey(99))
		k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
		task := newTaskOnKernel(t, s, k, rt.Params{Name: "T", Period: 100}, "delay(unif(10,50))")
		var ends []sim.Tick
		task.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			if ctx.Pos == rt.HookPosEndInstance {
				ends = append(ends, ctx.Now)
			}
		}))
		s.InitSingleRun()
		s.RunTo(1000)
		return ends
	}
	a, b := run(), run()
	require.Len(t, a, 10)
	assert.Equal(t, a, b)
}

// TestNewTask_Validation tests constructor errors.
func TestNewTask_Validation(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	_, err := rt.NewTask(s, rt.Params{Name: "bad", Period: 0})
	assert.Error(t, err)

	_, err = rt.NewTask(s, rt.Params{Name: "dup", Period: 10})
	require.NoError(t, err)
	_, err = rt.NewTask(s, rt.Params{Name: "dup", Period: 10})
	assert.Error(t, err, "names are unique within a simulation")

	task, err := rt.NewTask(s, rt.Params{Name: "D", Period: 10})
	require.NoError(t, err)
	assert.Equal(t, sim.Tick(10), task.RelDline(), "relative deadline defaults to the period")
}

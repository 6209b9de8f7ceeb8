package sched_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/internal/testutil"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
)

func stubs(s *sim.Simulation, names ...string) []*testutil.StubTask {
	out := make([]*testutil.StubTask, len(names))
	for i, n := range names {
		out[i] = testutil.NewStubTask(n, 10, 100)
		out[i].Now = s.Now
	}
	return out
}

func names(tasks []rt.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name()
	}
	return out
}

// TestEDF_DeadlineOrder tests that tasks are ordered by absolute deadline.
func TestEDF_DeadlineOrder(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	edf := sched.NewEDF(s)
	ts := stubs(s, "A", "B", "C")
	ts[0].Dline, ts[1].Dline, ts[2].Dline = 300, 100, 200
	for _, task := range ts {
		require.NoError(t, edf.AddTask(task))
		require.NoError(t, edf.Insert(task))
	}

	assert.Equal(t, []string{"B", "C", "A"}, names(edf.Queue()))
	assert.Equal(t, "B", edf.First().Name())
	assert.Equal(t, "A", edf.TaskN(2).Name())
	assert.Nil(t, edf.TaskN(3), "past the end")
	assert.Equal(t, 3, edf.Len())
}

// TestEDF_TieBreak tests that equal deadlines are broken by insertion time,
// then by task ID.
func TestEDF_TieBreak(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	edf := sched.NewEDF(s)
	ts := stubs(s, "first", "second", "late")
	for _, task := range ts {
		task.Dline = 100
		require.NoError(t, edf.AddTask(task))
	}
	require.NoError(t, edf.Insert(ts[1]))
	require.NoError(t, edf.Insert(ts[0]))

	ev := s.NewEvent("later", sim.DefaultPriority, func(*sim.Event) {
		require.NoError(t, edf.Insert(ts[2]))
	})
	ev.MustPost(5)
	s.RunTo(5)

	assert.Equal(t, []string{"first", "second", "late"}, names(edf.Queue()))
}

// TestEDF_ChangePriority tests explicit priority overrides.
func TestEDF_ChangePriority(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	edf := sched.NewEDF(s)
	ts := stubs(s, "A", "B")
	ts[0].Dline, ts[1].Dline = 100, 200
	for _, task := range ts {
		require.NoError(t, edf.AddTask(task))
		require.NoError(t, edf.Insert(task))
	}

	require.NoError(t, edf.ChangePriority(ts[1], 50))
	assert.Equal(t, "B", edf.First().Name())
	p, err := edf.Priority(ts[1])
	require.NoError(t, err)
	assert.Equal(t, int64(50), p)

	require.NoError(t, edf.ChangePriority(ts[1], 200))
	assert.Equal(t, "A", edf.First().Name(), "passing the deadline removes the override")
}

// TestScheduler_ProtocolErrors tests lookups of unknown or duplicated tasks.
func TestScheduler_ProtocolErrors(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	for _, name := range sched.SchedulerNames() {
		t.Run(name, func(t *testing.T) {
			sc, err := sched.New(s, name, 0)
			require.NoError(t, err)
			task := testutil.NewStubTask("T", 1, 10)

			assert.ErrorIs(t, sc.Insert(task), sched.ErrTaskNotFound)
			assert.ErrorIs(t, sc.Extract(task), sched.ErrTaskNotFound)
			_, err = sc.Priority(task)
			assert.ErrorIs(t, err, sched.ErrTaskNotFound)

			require.NoError(t, sc.AddTask(task))
			assert.ErrorIs(t, sc.AddTask(task), sched.ErrTaskExists)
			assert.True(t, sc.Has(task))
			assert.False(t, sc.InQueue(task))

			require.NoError(t, sc.Insert(task))
			require.NoError(t, sc.Insert(task), "reinsertion refreshes the entry")
			assert.Equal(t, 1, sc.Len())

			require.NoError(t, sc.Extract(task))
			assert.Zero(t, sc.Len())
			assert.Nil(t, sc.First())

			require.NoError(t, sc.RemoveTask(task))
			assert.False(t, sc.Has(task))
		})
	}
}

// TestFP_StaticPriority tests that lower static values run first.
func TestFP_StaticPriority(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	fp := sched.NewFP(s)
	ts := stubs(s, "low", "high", "mid")
	require.NoError(t, fp.AddTaskPriority(ts[0], 10))
	require.NoError(t, fp.AddTaskPriority(ts[1], 1))
	require.NoError(t, fp.AddTaskPriority(ts[2], 5))
	for _, task := range ts {
		require.NoError(t, fp.Insert(task))
	}
	assert.Equal(t, []string{"high", "mid", "low"}, names(fp.Queue()))

	require.NoError(t, fp.ChangePriority(ts[0], 0))
	assert.Equal(t, "low", fp.First().Name())
}

// TestFIFO_InsertionOrder tests that FIFO ignores deadlines.
func TestFIFO_InsertionOrder(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	fifo := sched.NewFIFO(s)
	ts := stubs(s, "A", "B")
	ts[0].Dline, ts[1].Dline = 500, 100
	for _, task := range ts {
		require.NoError(t, fifo.AddTask(task))
		require.NoError(t, fifo.Insert(task))
	}
	assert.Equal(t, []string{"A", "B"}, names(fifo.Queue()))
	assert.ErrorIs(t, fifo.ChangePriority(ts[0], 1), sched.ErrFixedPriority)
}

type roundKernel struct {
	*testutil.FIFOKernel
	rounds []sim.Tick
	now    func() sim.Tick
}

func (k *roundKernel) OnRound() { k.rounds = append(k.rounds, k.now()) }

// TestRR_Rotation tests that an expired task moves behind its peers and
// that the kernel is told about the round.
func TestRR_Rotation(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	rr := sched.NewRR(s, 5)
	k := &roundKernel{FIFOKernel: testutil.NewFIFOKernel(nil), now: s.Now}
	rr.SetKernel(k)

	ts := stubs(s, "A", "B")
	for _, task := range ts {
		require.NoError(t, rr.AddTask(task))
		require.NoError(t, rr.Insert(task))
	}
	slice, err := rr.Slice(ts[0])
	require.NoError(t, err)
	assert.Equal(t, sim.Tick(5), slice)

	ts[0].Schedule()
	rr.Notify(ts[0])

	s.RunTo(4)
	assert.Equal(t, "A", rr.First().Name())
	expired, err := rr.IsRoundExpired(ts[0])
	require.NoError(t, err)
	assert.False(t, expired)

	s.RunTo(5)
	assert.Equal(t, []string{"B", "A"}, names(rr.Queue()))
	assert.Equal(t, []sim.Tick{5}, k.rounds)

	assert.ErrorIs(t, rr.ChangePriority(ts[0], 3), sched.ErrFixedPriority)
}

// TestRR_AddTaskSlice tests per-task slices and the default fallback.
func TestRR_AddTaskSlice(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	rr := sched.NewRR(s, 7)
	a, b := testutil.NewStubTask("A", 1, 10), testutil.NewStubTask("B", 1, 10)
	require.NoError(t, rr.AddTaskSlice(a, 3))
	require.NoError(t, rr.AddTaskSlice(b, 0))

	sa, _ := rr.Slice(a)
	sb, _ := rr.Slice(b)
	assert.Equal(t, sim.Tick(3), sa)
	assert.Equal(t, sim.Tick(7), sb)
}

// TestIsAdmissible tests the EDF utilization bound at several capacities.
func TestIsAdmissible(t *testing.T) {
	tasks := []rt.Task{
		testutil.NewStubTask("a", 30, 100),
		testutil.NewStubTask("b", 30, 100),
		testutil.NewStubTask("c", 30, 100),
	}
	assert.True(t, sched.IsAdmissible(1, tasks, testutil.NewStubTask("fits", 10, 100)))
	assert.False(t, sched.IsAdmissible(1, tasks, testutil.NewStubTask("over", 11, 100)))
	assert.False(t, sched.IsAdmissible(0.5, tasks, testutil.NewStubTask("slow", 1, 100)))
	assert.True(t, sched.IsAdmissible(0.5, nil, testutil.NewStubTask("alone", 50, 100)))
}

// TestNew_UnknownScheduler tests the name registry.
func TestNew_UnknownScheduler(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	_, err := sched.New(s, "lottery", 0)
	assert.Error(t, err)

	sc, err := sched.New(s, "", 0)
	require.NoError(t, err)
	assert.IsType(t, &sched.EDF{}, sc)
	assert.Equal(t, []string{"edf", "fifo", "fp", "rr"}, sched.SchedulerNames())
}

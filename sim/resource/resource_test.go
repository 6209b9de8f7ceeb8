package resource_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/internal/testutil"
	"github.com/gabrieleara/PARTSim-sub001/sim/resource"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

// TestFCFSManager_BlockAndHandOver tests that a blocked task is suspended
// and handed the resource on release.
func TestFCFSManager_BlockAndHandOver(t *testing.T) {
	m := resource.NewFCFSManager()
	require.NoError(t, m.AddResource("R", 1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	k.Resources = m

	a, b := testutil.NewStubTask("A", 10, 100), testutil.NewStubTask("B", 10, 100)
	a.SetKernel(k)
	b.SetKernel(k)
	k.OnArrival(a)
	k.OnArrival(b)
	require.Equal(t, a, k.Running())

	blocked, err := k.RequestResource(a, "R", 1)
	require.NoError(t, err)
	assert.False(t, blocked)

	blocked, err = k.RequestResource(b, "R", 1)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.NotContains(t, k.Ready(), rt.Task(b), "blocked task leaves the ready queue")
	assert.Equal(t, []rt.Task{b}, m.Blocked("R"))

	// A leaves the processor before releasing so B can run at once.
	k.Suspend(a)
	require.NoError(t, k.ReleaseResource(a, "R", 1))
	r, err := m.Resource("R")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Held(b))
	assert.Zero(t, r.Available())
	assert.Empty(t, m.Blocked("R"))
	assert.Equal(t, b, k.Running(), "the unblocked task is reactivated through its kernel")
}

// TestFCFSManager_Errors tests protocol violations.
func TestFCFSManager_Errors(t *testing.T) {
	m := resource.NewFCFSManager()
	require.NoError(t, m.AddResource("R", 2))
	assert.Error(t, m.AddResource("R", 1), "duplicate name")
	assert.Error(t, m.AddResource("Z", 0), "no units")

	task := testutil.NewStubTask("T", 1, 10)
	_, err := m.Request(task, "missing", 1)
	assert.ErrorIs(t, err, resource.ErrUnknownResource)
	_, err = m.Request(task, "R", 3)
	assert.Error(t, err, "more units than the resource has")
	assert.ErrorIs(t, m.Release(task, "R", 1), resource.ErrNotOwner)

	_, err = resource.NewManager("pi")
	assert.ErrorIs(t, err, resource.ErrUnsupportedProtocol)
	_, err = resource.NewManager("fcfs")
	assert.NoError(t, err)

	k := testutil.NewFIFOKernel(nil)
	_, err = k.RequestResource(task, "R", 1)
	assert.ErrorIs(t, err, rt.ErrNoResourceManager)
}

// TestFCFSManager_NewRunFreesUnits tests that a new run starts with every
// unit available.
func TestFCFSManager_NewRunFreesUnits(t *testing.T) {
	m := resource.NewFCFSManager()
	require.NoError(t, m.AddResource("R", 2))
	task := testutil.NewStubTask("T", 1, 10)
	blocked, err := m.Request(task, "R", 2)
	require.NoError(t, err)
	require.False(t, blocked)

	m.NewRun()
	r, _ := m.Resource("R")
	assert.Equal(t, 2, r.Available())
	assert.Zero(t, r.Held(task))
}

// TestWaitSignal_TaskBody tests the wait and signal instructions of a
// scripted task.
func TestWaitSignal_TaskBody(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	m := resource.NewFCFSManager()
	require.NoError(t, m.AddResource("R", 1))
	k := testutil.NewFIFOKernel(testutil.NewUnitIsland(t, "uni", 1).CPUs()[0])
	k.Resources = m

	task, err := rt.NewPeriodic(s, "A", 100, 0, 0, "wait(R);fixed(10);signal(R);")
	require.NoError(t, err)
	task.SetKernel(k)

	var heldAt5 int
	check := s.NewEvent("check", sim.DefaultPriority, func(*sim.Event) {
		r, _ := m.Resource("R")
		heldAt5 = r.Held(task)
	})

	s.InitSingleRun()
	check.MustPost(5)
	s.RunTo(50)

	assert.Equal(t, 1, heldAt5)
	assert.Equal(t, 1, task.Stats().Instances)
	assert.Equal(t, sim.Tick(10), task.Stats().LastResponse)
	r, _ := m.Resource("R")
	assert.Equal(t, 1, r.Available())
}

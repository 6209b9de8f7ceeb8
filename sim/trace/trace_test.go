package trace_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/internal/testutil"
	"github.com/gabrieleara/PARTSim-sub001/sim/kernel"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/trace"
)

// traced runs two tasks on a single-CPU EDF kernel with a tracer attached.
func traced(t *testing.T, sinks ...trace.Sink) *sim.Simulation {
	t.Helper()
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	c := testutil.NewUnitIsland(t, "uni", 1).CPUs()[0]
	k, err := kernel.NewRTKernel(s, "k", c, nil)
	require.NoError(t, err)
	tr := trace.NewTracer(sinks...)
	for _, tc := range []struct {
		name   string
		period sim.Tick
		code   string
	}{{"A", 50, "fixed(10);"}, {"B", 100, "fixed(30);"}} {
		task, err := rt.NewPeriodic(s, tc.name, tc.period, 0, 0, tc.code)
		require.NoError(t, err)
		require.NoError(t, k.AddTask(task))
		tr.Attach(task)
	}
	s.InitSingleRun()
	s.RunTo(99)
	require.NoError(t, tr.Close())
	return s
}

// TestTracer_Lifecycle tests the sequence of records of a task.
func TestTracer_Lifecycle(t *testing.T) {
	mem := &trace.MemorySink{}
	traced(t, mem)

	assert.Equal(t, []trace.Kind{
		trace.KindArrival, trace.KindScheduled, trace.KindEndInstance,
		trace.KindArrival, trace.KindScheduled, trace.KindEndInstance,
	}, mem.Kinds("A"))
	assert.Equal(t, []trace.Kind{
		trace.KindArrival, trace.KindScheduled, trace.KindEndInstance,
	}, mem.Kinds("B"))

	for _, r := range mem.Records {
		if r.Kind == trace.KindScheduled {
			assert.Equal(t, "uni_0", r.CPU)
			assert.Equal(t, uint(1000), r.Frequency)
		}
	}
}

// TestSummarize_Counts tests the per-task aggregation.
func TestSummarize_Counts(t *testing.T) {
	mem := &trace.MemorySink{}
	traced(t, mem)

	sum := trace.Summarize(mem.Records)
	assert.Equal(t, []string{"A", "B"}, sum.Order)
	assert.Equal(t, 2, sum.Tasks["A"].Arrivals)
	assert.Equal(t, 2, sum.Tasks["A"].Ends)
	assert.Equal(t, sim.Tick(10), sum.Tasks["A"].MaxResponse)
	assert.Equal(t, sim.Tick(40), sum.Tasks["B"].MaxResponse)
	assert.Zero(t, sum.Tasks["B"].Misses)
	assert.Zero(t, sum.Unschedulable)

	assert.Empty(t, trace.Summarize(nil).Tasks)
}

// TestTextSink_Format tests the line format of the text trace.
func TestTextSink_Format(t *testing.T) {
	var buf bytes.Buffer
	traced(t, trace.NewTextSink(&buf))

	out := buf.String()
	assert.Contains(t, out, "[Time:0]\tA arrived at 0\n")
	assert.Contains(t, out, "[Time:0]\tA scheduled on CPU uni_0 freq 1000 its arrival was 0\n")
	assert.Contains(t, out, "[Time:10]\tA ended, its arrival was 0, its period was 50, RespTime/Period is 0.2\n")
	assert.Contains(t, out, "[Time:40]\tB ended")
}

// TestJSONSink_Document tests the structure of the JSON trace.
func TestJSONSink_Document(t *testing.T) {
	var buf bytes.Buffer
	traced(t, trace.NewJSONSink(&buf))

	var doc struct {
		Events []struct {
			Time      int64  `json:"time"`
			EventType string `json:"event_type"`
			TaskName  string `json:"task_name"`
			CPU       string `json:"cpu"`
			Arrival   int64  `json:"arrival_time"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Events, 9)
	assert.Equal(t, "arrival", doc.Events[0].EventType)
	assert.Equal(t, "A", doc.Events[0].TaskName)

	var ends int
	for _, e := range doc.Events {
		if e.EventType == "end_instance" {
			ends++
		}
		if e.EventType == "scheduled" {
			assert.Equal(t, "uni_0", e.CPU)
		}
	}
	assert.Equal(t, 3, ends)
}

// TestFromHook_Ignored tests that untraced hook positions yield nothing.
func TestFromHook_Ignored(t *testing.T) {
	_, ok := trace.FromHook(sim.HookCtx{Pos: sim.HookPosEventFired})
	assert.False(t, ok)
	_, ok = trace.FromHook(sim.HookCtx{Pos: rt.HookPosArrival, Item: "not a task"})
	assert.False(t, ok)
}

// TestOpen_UnknownFormat tests the extension check.
func TestOpen_UnknownFormat(t *testing.T) {
	_, err := trace.Open("trace.xml")
	assert.ErrorIs(t, err, trace.ErrUnknownFormat)
}

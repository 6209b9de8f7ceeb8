package rt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

// TestParseInstrs_Valid tests that every instruction kind parses.
func TestParseInstrs_Valid(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	task, err := rt.NewTask(s, rt.Params{Name: "T", Period: 1000})
	require.NoError(t, err)

	instrs, err := rt.ParseInstrs(task, "fixed(500,bzip2); wait(R); delay(unif(1,5)); signal(R,2); suspend(3)")
	require.NoError(t, err)
	require.Len(t, instrs, 5)

	assert.IsType(t, &rt.ExecInstr{}, instrs[0])
	assert.IsType(t, &rt.WaitInstr{}, instrs[1])
	assert.IsType(t, &rt.ExecInstr{}, instrs[2])
	assert.IsType(t, &rt.SignalInstr{}, instrs[3])
	assert.IsType(t, &rt.SuspendInstr{}, instrs[4])

	assert.Equal(t, "bzip2", instrs[0].Workload())
	assert.Equal(t, "busy", instrs[2].Workload(), "workload defaults to busy")
	assert.Equal(t, 5.0, instrs[2].Cycles(), "randomized cost reports its maximum")
	assert.Equal(t, "signal(R,2)", instrs[3].String())
}

// TestParseInstrs_TrailingSeparator tests that the final separator is optional.
func TestParseInstrs_TrailingSeparator(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	task, err := rt.NewTask(s, rt.Params{Name: "T", Period: 1000})
	require.NoError(t, err)

	for _, code := range []string{"fixed(1);fixed(2);", "fixed(1);fixed(2)", "fixed(1); fixed(2) ; "} {
		instrs, err := rt.ParseInstrs(task, code)
		require.NoError(t, err, code)
		assert.Len(t, instrs, 2, code)
	}
}

// TestParseInstrs_Errors tests that malformed scripts fail with ErrParse
// naming the offending fragment.
func TestParseInstrs_Errors(t *testing.T) {
	s := sim.NewSimulation(sim.NewSimulationKey(1))
	task, err := rt.NewTask(s, rt.Params{Name: "T", Period: 1000})
	require.NoError(t, err)

	tests := []struct {
		code     string
		fragment string
	}{
		{"jump(3);", "jump"},
		{"fixed(1);;fixed(2);", `""`},
		{"fixed(1", "fixed(1"},
		{"fixed(abc);", "abc"},
		{"fixed(-1);", "-1"},
		{"wait();", "wait"},
		{"signal(R,0);", "0"},
		{"suspend(1,2);", "suspend"},
		{"delay(foo(1));", "foo"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			_, err := rt.ParseInstrs(task, tc.code)
			require.ErrorIs(t, err, rt.ErrParse)
			assert.Contains(t, err.Error(), tc.fragment)
		})
	}
}

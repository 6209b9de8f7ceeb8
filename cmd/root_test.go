package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim"
)

// TestSimulate_Outputs tests that a run writes every requested trace and
// reports the per-task outcome.
func TestSimulate_Outputs(t *testing.T) {
	sysCfg, tsCfg := load(t, "testdata/uni.yaml", "testdata/taskset.yaml")
	dir := t.TempDir()
	txt := filepath.Join(dir, "trace.txt")
	js := filepath.Join(dir, "trace.json")
	db := filepath.Join(dir, "trace.sqlite")
	power := filepath.Join(dir, "power.csv")

	report, err := simulate(sysCfg, tsCfg, runOptions{
		duration:    99,
		runs:        1,
		seed:        7,
		traces:      []string{txt, js, db},
		powerTrace:  power,
		powerPeriod: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Runs)
	require.Len(t, report.Tasks, 2)
	assert.Equal(t, "A", report.Tasks[0].Name)
	assert.Equal(t, 2, report.Tasks[0].Instances)
	assert.Equal(t, int64(30), report.Tasks[1].LastResponse)
	assert.Zero(t, report.Tasks[1].StdMaxResponse)
	assert.Positive(t, report.Energy)

	text, err := os.ReadFile(txt)
	require.NoError(t, err)
	assert.Contains(t, string(text), "[Time:0]\tA arrived at 0")

	var doc struct {
		Events []map[string]any `json:"events"`
	}
	data, err := os.ReadFile(js)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.NotEmpty(t, doc.Events)

	_, err = os.Stat(db)
	assert.NoError(t, err)

	csv, err := os.ReadFile(power)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	assert.Equal(t, "time,cpu,frequency,workload,speed,power", lines[0])
	assert.Len(t, lines, 1+2*10, "two cpus sampled every 10 ticks up to 99")
}

// TestSimulate_Batch tests the statistics of a batch of runs.
func TestSimulate_Batch(t *testing.T) {
	sysCfg, tsCfg := load(t, "testdata/uni.yaml", "testdata/taskset.yaml")
	report, err := simulate(sysCfg, tsCfg, runOptions{duration: 200, runs: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Runs)
	assert.Equal(t, float64(10), report.Tasks[0].MeanMaxResponse)
	assert.Zero(t, report.Tasks[0].StdMaxResponse, "every run is identical")
	assert.InDelta(t, report.Energy, report.MeanEnergy, 1e-9)
}

// TestSimulate_UnknownTrace tests that an unrecognized trace extension
// fails before running.
func TestSimulate_UnknownTrace(t *testing.T) {
	sysCfg, tsCfg := load(t, "testdata/uni.yaml", "testdata/taskset.yaml")
	_, err := simulate(sysCfg, tsCfg, runOptions{duration: 10, runs: 1, traces: []string{"out.xml"}})
	assert.Error(t, err)
}

// TestReport_Print tests the summary header and JSON body.
func TestReport_Print(t *testing.T) {
	r := &Report{Runs: 1, Duration: int64(sim.Tick(100)), Tasks: []TaskReport{{Name: "A", Instances: 2}}}
	var buf bytes.Buffer
	require.NoError(t, r.Print(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "=== Simulation Summary ===\n"))
	assert.Contains(t, out, `"instances": 2`)
}

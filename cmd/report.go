package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/stat"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/trace"
)

// TaskReport is the outcome of one task. Counters refer to the last run,
// Mean/Std fields to the whole batch.
type TaskReport struct {
	Name            string  `json:"name"`
	Instances       int     `json:"instances"`
	Misses          int     `json:"misses"`
	Kills           int     `json:"kills"`
	Migrations      int     `json:"migrations"`
	LastResponse    int64   `json:"last_response"`
	MaxResponse     int64   `json:"max_response"`
	MeanMaxResponse float64 `json:"mean_max_response"`
	StdMaxResponse  float64 `json:"std_max_response"`
	MeanMisses      float64 `json:"mean_misses"`
}

// Report is printed at the end of the run command.
type Report struct {
	Runs          int          `json:"runs"`
	Duration      int64        `json:"duration"`
	Tasks         []TaskReport `json:"tasks"`
	Unschedulable int          `json:"unschedulable"`
	Energy        float64      `json:"energy"`
	MeanEnergy    float64      `json:"mean_energy"`
}

// Print writes the report to w as indented JSON under a header.
func (r *Report) Print(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "=== Simulation Summary ===\n%s\n", data)
	return err
}

// batchStats is a sim.Stat collecting per-run figures of a System.
type batchStats struct {
	tasks []*rt.RTTask
	power *trace.PowerTrace
	mem   *trace.MemorySink

	runs     int
	maxResp  map[string][]float64
	misses   map[string][]float64
	energies []float64
}

func newBatchStats(tasks []*rt.RTTask, power *trace.PowerTrace, mem *trace.MemorySink) *batchStats {
	return &batchStats{tasks: tasks, power: power, mem: mem}
}

func (b *batchStats) InitRuns(int) {
	b.runs = 0
	b.maxResp = make(map[string][]float64)
	b.misses = make(map[string][]float64)
	b.energies = nil
}

func (b *batchStats) NewRun() {
	if b.mem != nil {
		b.mem.Records = b.mem.Records[:0]
	}
}

func (b *batchStats) EndRun() {
	b.runs++
	for _, t := range b.tasks {
		st := t.Stats()
		b.maxResp[t.Name()] = append(b.maxResp[t.Name()], st.MaxResponse.Float())
		b.misses[t.Name()] = append(b.misses[t.Name()], float64(st.Misses))
	}
	if b.power != nil {
		b.energies = append(b.energies, b.power.TotalEnergy())
	}
}

func (b *batchStats) EndSim() {}

// Report summarizes the batch. Counters come from the last run.
func (b *batchStats) Report(duration sim.Tick) *Report {
	r := &Report{Runs: b.runs, Duration: int64(duration)}
	var sum *trace.Summary
	if b.mem != nil {
		sum = trace.Summarize(b.mem.Records)
		r.Unschedulable = sum.Unschedulable
	}
	for _, t := range b.tasks {
		st := t.Stats()
		tr := TaskReport{
			Name:         t.Name(),
			Instances:    st.Instances,
			Misses:       st.Misses,
			Kills:        st.Kills,
			LastResponse: int64(st.LastResponse),
			MaxResponse:  int64(st.MaxResponse),
		}
		if sum != nil && sum.Tasks[t.Name()] != nil {
			tr.Migrations = sum.Tasks[t.Name()].Migrations
		}
		if xs := b.maxResp[t.Name()]; len(xs) > 0 {
			tr.MeanMaxResponse, tr.StdMaxResponse = stat.MeanStdDev(xs, nil)
			if len(xs) == 1 {
				tr.StdMaxResponse = 0
			}
		}
		if xs := b.misses[t.Name()]; len(xs) > 0 {
			tr.MeanMisses = stat.Mean(xs, nil)
		}
		r.Tasks = append(r.Tasks, tr)
	}
	if n := len(b.energies); n > 0 {
		r.Energy = b.energies[n-1]
		r.MeanEnergy = stat.Mean(b.energies, nil)
	}
	return r
}

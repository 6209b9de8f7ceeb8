package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
)

// PowerSample is the state of one CPU at a sampling instant.
type PowerSample struct {
	Time      sim.Tick
	CPU       string
	Frequency uint
	Workload  string
	Speed     float64
	Power     float64
}

// PowerTrace samples the power of a set of CPUs every period and
// integrates their energy.
type PowerTrace struct {
	sim    *sim.Simulation
	name   string
	cpus   []*cpu.CPU
	period sim.Tick
	evt    *sim.Event

	samples []PowerSample
	energy  map[*cpu.CPU]float64
	last    map[*cpu.CPU]float64
	lastAt  sim.Tick
}

// NewPowerTrace creates a sampler and registers it with s.
func NewPowerTrace(s *sim.Simulation, name string, period sim.Tick, cpus []*cpu.CPU) (*PowerTrace, error) {
	if period <= 0 {
		return nil, fmt.Errorf("power trace %q: period must be positive, got %v", name, period)
	}
	if name == "" {
		name = "power_trace"
	}
	p := &PowerTrace{
		sim:    s,
		name:   name,
		cpus:   cpus,
		period: period,
		energy: make(map[*cpu.CPU]float64),
		last:   make(map[*cpu.CPU]float64),
	}
	p.evt = s.NewEvent(name+".sample", sim.DefaultPriority+30, func(*sim.Event) { p.sample() })
	if err := s.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PowerTrace) Name() string { return p.name }

func (p *PowerTrace) NewRun() {
	p.samples = nil
	clear(p.energy)
	clear(p.last)
	p.lastAt = 0
	p.evt.MustPost(0)
}

// EndRun accounts the energy up to the end of the run.
func (p *PowerTrace) EndRun() {
	p.evt.Drop()
	p.integrate()
}

func (p *PowerTrace) integrate() {
	now := p.sim.Now()
	dt := (now - p.lastAt).Float()
	for _, c := range p.cpus {
		p.energy[c] += p.last[c] * dt
	}
	p.lastAt = now
}

func (p *PowerTrace) sample() {
	p.integrate()
	now := p.sim.Now()
	for _, c := range p.cpus {
		pw := c.Power()
		p.last[c] = pw
		p.samples = append(p.samples, PowerSample{
			Time:      now,
			CPU:       c.Name(),
			Frequency: c.Frequency(),
			Workload:  c.Workload(),
			Speed:     c.Speed(),
			Power:     pw,
		})
	}
	p.evt.MustPost(now + p.period)
}

// Samples returns the samples of the current or last run.
func (p *PowerTrace) Samples() []PowerSample { return p.samples }

// Energy returns the energy consumed by c, in power units times ticks.
func (p *PowerTrace) Energy(c *cpu.CPU) float64 { return p.energy[c] }

// TotalEnergy sums the energy of every sampled CPU.
func (p *PowerTrace) TotalEnergy() float64 {
	total := 0.0
	for _, c := range p.cpus {
		total += p.energy[c]
	}
	return total
}

// WriteCSV writes the samples with a header row.
func (p *PowerTrace) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "cpu", "frequency", "workload", "speed", "power"}); err != nil {
		return err
	}
	for _, s := range p.samples {
		if err := cw.Write([]string{
			s.Time.String(),
			s.CPU,
			strconv.FormatUint(uint64(s.Frequency), 10),
			s.Workload,
			strconv.FormatFloat(s.Speed, 'g', -1, 64),
			strconv.FormatFloat(s.Power, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

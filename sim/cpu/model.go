package cpu

import (
	"fmt"
	"math"
)

// Model maps an OPP and a workload class to a power draw and a speed.
//
// Implementations must be pure: the same inputs always give the same
// outputs, since one model instance is shared by every core of an island.
type Model interface {
	// Power returns the power (W) drawn by a core running workload at opp.
	Power(opp OPP, workload string) float64
	// Speed returns the execution speed at opp relative to the nominal
	// speed WCETs are expressed in.
	Speed(opp OPP, workload string) float64
}

// Minimal is a workload-agnostic model: power grows as V²f and speed is
// linear in the frequency, normalized to the island's maximum frequency.
type Minimal struct {
	MaxFrequency uint
}

// NewMinimal creates a minimal model normalized to fmax.
func NewMinimal(fmax uint) *Minimal {
	return &Minimal{MaxFrequency: fmax}
}

func (m *Minimal) Power(opp OPP, _ string) float64 {
	return opp.Voltage * opp.Voltage * float64(opp.Frequency)
}

func (m *Minimal) Speed(opp OPP, _ string) float64 {
	return float64(opp.Frequency) / float64(m.MaxFrequency)
}

// PowerParams are the coefficients of the power curve of one workload.
type PowerParams struct {
	D, E, G, K float64
}

// SpeedParams are the coefficients of the speed curve of one workload.
type SpeedParams struct {
	A, B, C, D float64
}

// BPParams bundles the curves of one workload.
type BPParams struct {
	Power PowerParams
	Speed SpeedParams
}

// BP is the fitted model of Balsini and Pannocchi. With f in kHz:
//
//	Pdyn  = k·f·V²·(1+e)
//	Pleak = g·V·Pdyn
//	P     = Pdyn + Pleak + d
//	speed = 1 / (a + b/f + c·exp(-f/d))
type BP struct {
	params map[string]BPParams
}

// NewBP creates a BP model. The idle workload is required.
func NewBP(params map[string]BPParams) (*BP, error) {
	if _, ok := params[WorkloadIdle]; !ok {
		return nil, fmt.Errorf("bp model without %q curve: %w", WorkloadIdle, ErrUnknownWorkload)
	}
	cp := make(map[string]BPParams, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return &BP{params: cp}, nil
}

// Workloads returns the workload classes the model knows.
func (m *BP) Workloads() []string {
	out := make([]string, 0, len(m.params))
	for k := range m.params {
		out = append(out, k)
	}
	return out
}

func (m *BP) lookup(workload string) BPParams {
	for _, wl := range []string{workload, WorkloadBusy, WorkloadIdle} {
		if p, ok := m.params[wl]; ok {
			return p
		}
	}
	panic(fmt.Errorf("bp model, workload %q: %w", workload, ErrUnknownWorkload))
}

func (m *BP) Power(opp OPP, workload string) float64 {
	p := m.lookup(workload).Power
	f := float64(opp.Frequency) * 1000
	v := opp.Voltage

	pCharge := p.K * f * v * v
	pDyn := pCharge * (1 + p.E)
	pLeak := p.G * v * pDyn
	return pLeak + pDyn + p.D
}

func (m *BP) Speed(opp OPP, workload string) float64 {
	s := m.lookup(workload).Speed
	f := float64(opp.Frequency) * 1000

	expTerm := 0.0
	if s.C != 0 && s.D != 0 {
		expTerm = s.C * math.Exp(-f/s.D)
	}
	return 1 / (s.A + s.B/f + expTerm)
}

// TableEntry is one measured point of a table model.
type TableEntry struct {
	Workload string
	OPP      OPP
	Power    float64
	Speed    float64
}

// Table is a measured model. Exact tables require a row for every OPP
// queried; approximate tables pick the nearest row of the workload.
type Table struct {
	approx  bool
	entries map[string][]TableEntry
}

// NewTable creates a table model from measured rows.
func NewTable(rows []TableEntry, approx bool) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty table model")
	}
	t := &Table{approx: approx, entries: make(map[string][]TableEntry)}
	for _, r := range rows {
		t.entries[r.Workload] = append(t.entries[r.Workload], r)
	}
	return t, nil
}

func (t *Table) rows(workload string) []TableEntry {
	for _, wl := range []string{workload, WorkloadBusy, WorkloadIdle} {
		if rows, ok := t.entries[wl]; ok {
			return rows
		}
	}
	panic(fmt.Errorf("table model, workload %q: %w", workload, ErrUnknownWorkload))
}

func (t *Table) find(opp OPP, workload string, dist func(a, b OPP) float64) TableEntry {
	rows := t.rows(workload)
	for _, r := range rows {
		if r.OPP.Frequency == opp.Frequency && (r.OPP.Voltage == opp.Voltage || t.approx) {
			return r
		}
	}
	if !t.approx {
		panic(fmt.Errorf("table model, workload %q has no row for %v: %w", workload, opp, ErrOPPOutOfRange))
	}
	best := rows[0]
	bestD := dist(opp, best.OPP)
	for _, r := range rows[1:] {
		if d := dist(opp, r.OPP); d < bestD {
			best, bestD = r, d
		}
	}
	return best
}

func powerDistance(a, b OPP) float64 {
	dv := (a.Voltage - b.Voltage) * 1000
	df := math.Abs(float64(a.Frequency) - float64(b.Frequency))
	return dv*dv*df + df
}

func speedDistance(a, b OPP) float64 {
	df := float64(a.Frequency) - float64(b.Frequency)
	return df * df
}

func (t *Table) Power(opp OPP, workload string) float64 {
	return t.find(opp, workload, powerDistance).Power
}

func (t *Table) Speed(opp OPP, workload string) float64 {
	return t.find(opp, workload, speedDistance).Speed
}

var (
	_ Model = (*Minimal)(nil)
	_ Model = (*BP)(nil)
	_ Model = (*Table)(nil)
)

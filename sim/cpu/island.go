package cpu

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// IslandType tells big cores from little ones.
type IslandType int

const (
	Generic IslandType = iota
	Little
	Big
)

func (t IslandType) String() string {
	switch t {
	case Little:
		return "LITTLE"
	case Big:
		return "BIG"
	default:
		return "GENERIC"
	}
}

// ParseIslandType parses LITTLE, BIG or GENERIC (case-insensitive).
func ParseIslandType(s string) (IslandType, error) {
	switch strings.ToUpper(s) {
	case "LITTLE":
		return Little, nil
	case "BIG":
		return Big, nil
	case "GENERIC", "":
		return Generic, nil
	}
	return Generic, fmt.Errorf("unknown island type %q", s)
}

// OPPListener is notified synchronously after an island changes OPP.
type OPPListener interface {
	OnOPPChanged(isl *Island, oldOPP, newOPP int)
}

// Island is a group of cores sharing one voltage/frequency domain.
// The current OPP belongs to the island: all of its cores always run at
// the same frequency.
type Island struct {
	name      string
	typ       IslandType
	opps      []OPP
	cur       int
	base      int
	model     Model
	cpus      []*CPU
	listeners []OPPListener
}

// NewIsland creates an island with ncpus cores named <name>_<i>.
// The island starts at OPP index base.
func NewIsland(name string, typ IslandType, opps []OPP, base int, model Model, ncpus int) (*Island, error) {
	if len(opps) == 0 {
		return nil, fmt.Errorf("island %s: no OPPs", name)
	}
	if base < 0 || base >= len(opps) {
		return nil, fmt.Errorf("island %s: base OPP %d: %w", name, base, ErrOPPOutOfRange)
	}
	if model == nil {
		return nil, fmt.Errorf("island %s: no model", name)
	}
	if ncpus <= 0 {
		return nil, fmt.Errorf("island %s: %d cpus", name, ncpus)
	}
	isl := &Island{
		name:  name,
		typ:   typ,
		opps:  append([]OPP(nil), opps...),
		cur:   base,
		base:  base,
		model: model,
	}
	for i := 0; i < ncpus; i++ {
		isl.cpus = append(isl.cpus, newCPU(fmt.Sprintf("%s_%d", name, i), i, isl))
	}
	return isl, nil
}

func (isl *Island) Name() string { return isl.name }
func (isl *Island) Type() IslandType { return isl.typ }
func (isl *Island) Model() Model { return isl.model }
func (isl *Island) CPUs() []*CPU { return isl.cpus }
func (isl *Island) OPPs() []OPP { return isl.opps }
func (isl *Island) NumOPPs() int { return len(isl.opps) }
func (isl *Island) OPPIndex() int { return isl.cur }
func (isl *Island) OPP() OPP { return isl.opps[isl.cur] }
func (isl *Island) Frequency() uint { return isl.opps[isl.cur].Frequency }
func (isl *Island) Voltage() float64 { return isl.opps[isl.cur].Voltage }

// MaxFrequency returns the frequency of the highest OPP.
func (isl *Island) MaxFrequency() uint {
	return isl.opps[len(isl.opps)-1].Frequency
}

// OPPAt returns the OPP with the given index.
func (isl *Island) OPPAt(i int) (OPP, error) {
	if i < 0 || i >= len(isl.opps) {
		return OPP{}, fmt.Errorf("island %s, OPP %d: %w", isl.name, i, ErrOPPOutOfRange)
	}
	return isl.opps[i], nil
}

// HigherOPPs returns the indices of the current OPP and of every OPP above it.
func (isl *Island) HigherOPPs() []int {
	out := make([]int, 0, len(isl.opps)-isl.cur)
	for i := isl.cur; i < len(isl.opps); i++ {
		out = append(out, i)
	}
	return out
}

// OPPByFrequency returns the index of the OPP running at freq.
func (isl *Island) OPPByFrequency(freq uint) (int, error) {
	for i, o := range isl.opps {
		if o.Frequency == freq {
			return i, nil
		}
	}
	return -1, fmt.Errorf("island %s has no %d MHz OPP: %w", isl.name, freq, ErrOPPOutOfRange)
}

// AddListener registers an OPP change listener.
func (isl *Island) AddListener(l OPPListener) {
	isl.listeners = append(isl.listeners, l)
}

// SetOPP moves the whole island to OPP index i and notifies listeners
// before returning. Setting the current OPP is a no-op.
func (isl *Island) SetOPP(i int) error {
	if i < 0 || i >= len(isl.opps) {
		return fmt.Errorf("island %s, OPP %d: %w", isl.name, i, ErrOPPOutOfRange)
	}
	if i == isl.cur {
		return nil
	}
	old := isl.cur
	isl.cur = i
	logrus.Debugf("island %s: OPP %v -> %v", isl.name, isl.opps[old], isl.opps[i])
	for _, l := range isl.listeners {
		l.OnOPPChanged(isl, old, i)
	}
	return nil
}

// MustSetOPP is SetOPP for indices known to be valid.
func (isl *Island) MustSetOPP(i int) {
	if err := isl.SetOPP(i); err != nil {
		panic(err)
	}
}

// Busy reports whether any core of the island is busy.
func (isl *Island) Busy() bool {
	for _, c := range isl.cpus {
		if c.Busy() {
			return true
		}
	}
	return false
}

// Reset restores the base OPP without notifying listeners, and clears
// every core's state. Used between runs.
func (isl *Island) Reset() {
	isl.cur = isl.base
	for _, c := range isl.cpus {
		c.reset()
	}
}

// Power returns the sum of the current power of every core.
func (isl *Island) Power() float64 {
	total := 0.0
	for _, c := range isl.cpus {
		total += c.Power()
	}
	return total
}

func (isl *Island) String() string {
	return fmt.Sprintf("%s(%s, %d cpus, %v)", isl.name, isl.typ, len(isl.cpus), isl.OPP())
}

package cpu

import "fmt"

// CPU is a core of an island. Frequency and voltage are the island's;
// the core only owns the workload class it is running and its flags.
type CPU struct {
	name     string
	index    int
	island   *Island
	workload string
	busy     bool
	disabled bool
}

func newCPU(name string, index int, isl *Island) *CPU {
	return &CPU{name: name, index: index, island: isl, workload: WorkloadIdle}
}

func (c *CPU) Name() string { return c.name }
func (c *CPU) Index() int { return c.index }
func (c *CPU) Island() *Island { return c.island }
func (c *CPU) Workload() string { return c.workload }
func (c *CPU) Busy() bool { return c.busy }
func (c *CPU) Disabled() bool { return c.disabled }
func (c *CPU) OPPIndex() int { return c.island.cur }
func (c *CPU) OPP() OPP { return c.island.OPP() }
func (c *CPU) Frequency() uint { return c.island.Frequency() }
func (c *CPU) Voltage() float64 { return c.island.Voltage() }
func (c *CPU) SetBusy(b bool) { c.busy = b }
func (c *CPU) SetDisabled(b bool) { c.disabled = b }

// SetWorkload changes the workload class. An empty class means idle.
func (c *CPU) SetWorkload(wl string) {
	if wl == "" {
		wl = WorkloadIdle
	}
	c.workload = wl
}

// SpeedAt returns the speed of a workload at OPP index opp.
// It is a pure lookup and never changes the island.
func (c *CPU) SpeedAt(opp int, workload string) float64 {
	if workload == "" {
		workload = WorkloadIdle
	}
	return c.island.model.Speed(c.island.opps[opp], workload)
}

// PowerAt returns the power of this core at OPP index opp running workload.
// Every core carries its share of the island's idle power.
func (c *CPU) PowerAt(opp int, workload string) float64 {
	o := c.island.opps[opp]
	idleShare := c.island.model.Power(o, WorkloadIdle) / float64(len(c.island.cpus))
	if workload == "" || workload == WorkloadIdle {
		return idleShare
	}
	return c.island.model.Power(o, workload) + idleShare
}

// Speed returns the current speed of the running workload.
func (c *CPU) Speed() float64 {
	return c.SpeedAt(c.island.cur, c.workload)
}

// SpeedFor returns the speed a workload would have at the current OPP.
func (c *CPU) SpeedFor(workload string) float64 {
	return c.SpeedAt(c.island.cur, workload)
}

// Power returns the current power draw.
func (c *CPU) Power() float64 {
	return c.PowerAt(c.island.cur, c.workload)
}

// PowerFor returns the power a workload would draw at the current OPP.
func (c *CPU) PowerFor(workload string) float64 {
	return c.PowerAt(c.island.cur, workload)
}

func (c *CPU) reset() {
	c.workload = WorkloadIdle
	c.busy = false
}

func (c *CPU) String() string {
	return fmt.Sprintf("%s[%dMHz,%s]", c.name, c.Frequency(), c.workload)
}

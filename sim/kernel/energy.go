package kernel

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
	"github.com/gabrieleara/PARTSim-sub001/sim/server"
)

// ErrZeroWCET is returned when enveloping a task that needs no time.
var ErrZeroWCET = errors.New("task has a null WCET")

// EnergyMRTKernel partitions tasks over the cores of a set of islands.
// An arriving task waits in a global EDF queue until a dispatch pass
// places it on the (core, OPP) pair that adds the least power, and from
// then on it is scheduled by the ready queue of that core.
//
// With CBS enveloping every plain task runs inside a hard CBS whose
// budget follows the WCET of the task at the speed of its core. The
// kernel observes these servers: the bandwidth of an envelope whose task
// has ended stays reserved on its core until the envelope's virtual time,
// and a core freed by a virtual time or a task end may pull tasks from
// other cores.
type EnergyMRTKernel struct {
	sim.HookableBase

	sim  *sim.Simulation
	name string

	islands []*cpu.Island
	cores   []*core
	byCPU   map[*cpu.CPU]*core

	global    sched.Scheduler
	policy    DispatchPolicy
	resources rt.ResourceManager
	csDelay   sim.Tick
	migDelay  sim.Tick

	// tasks lists the entities of the global queue in registration order.
	tasks     []rt.Task
	envelopes map[rt.Task]*server.CBS
	enveloped map[rt.Task]rt.Task // envelope -> task

	where        map[rt.Task]*core
	required     map[rt.Task]int
	reservations map[rt.Task]reservation
	oldExe       map[rt.Task]*cpu.CPU
	tempMigrated []migration

	forcedCfg    map[rt.Task]forcedDispatch
	forced       map[rt.Task]forcedDispatch
	discardedCfg map[rt.Task]int
	discarded    map[rt.Task]int
}

type migration struct {
	task     rt.Task
	from, to *core
}

type forcedDispatch struct {
	core  *core
	opp   int
	times int
}

type candidate struct {
	core  *core
	opp   int
	delta float64
}

// NewEnergyMRTKernel creates a kernel over every core of islands, in
// island order, and registers it with s. newQueue builds the ready queue
// of each core; EDF is used if nil.
func NewEnergyMRTKernel(s *sim.Simulation, name string, islands []*cpu.Island, newQueue func() sched.Scheduler) (*EnergyMRTKernel, error) {
	if name == "" {
		name = "energy_mrtkernel"
	}
	if newQueue == nil {
		newQueue = func() sched.Scheduler { return sched.NewEDF(s) }
	}
	k := &EnergyMRTKernel{
		sim:          s,
		name:         name,
		islands:      islands,
		byCPU:        make(map[*cpu.CPU]*core),
		global:       sched.NewEDF(s),
		policy:       DefaultDispatchPolicy(),
		envelopes:    make(map[rt.Task]*server.CBS),
		enveloped:    make(map[rt.Task]rt.Task),
		where:        make(map[rt.Task]*core),
		required:     make(map[rt.Task]int),
		reservations: make(map[rt.Task]reservation),
		oldExe:       make(map[rt.Task]*cpu.CPU),
		forcedCfg:    make(map[rt.Task]forcedDispatch),
		forced:       make(map[rt.Task]forcedDispatch),
		discardedCfg: make(map[rt.Task]int),
		discarded:    make(map[rt.Task]int),
	}
	for _, isl := range islands {
		for _, c := range isl.CPUs() {
			if _, dup := k.byCPU[c]; dup {
				return nil, fmt.Errorf("kernel %s: cpu %s given twice", name, c.Name())
			}
			cr := &core{cpu: c, sched: newQueue()}
			cr.beginEvt = s.NewEvent(name+".begin_dispatch."+c.Name(), beginDispatchPriority, func(*sim.Event) { k.onBegin(cr) })
			cr.endEvt = s.NewEvent(name+".end_dispatch."+c.Name(), endDispatchPriority, func(*sim.Event) { k.onEnd(cr) })
			cr.sched.SetKernel(coreKernel{EnergyMRTKernel: k, c: cr})
			k.cores = append(k.cores, cr)
			k.byCPU[c] = cr
		}
		isl.AddListener(k)
	}
	if len(k.cores) == 0 {
		return nil, fmt.Errorf("kernel %q: %w", name, ErrNoCPU)
	}
	k.global.SetKernel(k)
	if err := s.Register(k); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *EnergyMRTKernel) Name() string { return k.name }
func (k *EnergyMRTKernel) Islands() []*cpu.Island { return k.islands }
func (k *EnergyMRTKernel) Policy() DispatchPolicy { return k.policy }
func (k *EnergyMRTKernel) SetContextSwitchDelay(d sim.Tick) { k.csDelay = d }
func (k *EnergyMRTKernel) SetMigrationDelay(d sim.Tick) { k.migDelay = d }
func (k *EnergyMRTKernel) SetResourceManager(m rt.ResourceManager) { k.resources = m }

// SetPolicy validates and installs p. Tasks already added keep the
// enveloping decided when they were added.
func (k *EnergyMRTKernel) SetPolicy(p DispatchPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("kernel %s: %w", k.name, err)
	}
	k.policy = p
	return nil
}

// CPUs returns the cores in island order.
func (k *EnergyMRTKernel) CPUs() []*cpu.CPU {
	out := make([]*cpu.CPU, len(k.cores))
	for i, c := range k.cores {
		out[i] = c.cpu
	}
	return out
}

// AddTask registers t. Under CBS enveloping a plain task is wrapped in a
// new CBS first.
func (k *EnergyMRTKernel) AddTask(t rt.Task) error {
	if k.policy.CBSEnveloping && t.Kind() == rt.KindTask {
		_, err := k.AddTaskAndEnvelope(t)
		return err
	}
	return k.register(t)
}

// AddTaskAndEnvelope wraps t in a hard CBS named cbs_<task> with budget
// WCET(1) and period equal to the relative deadline of t, and registers
// the server in its place. The budget is refitted on every placement.
func (k *EnergyMRTKernel) AddTaskAndEnvelope(t rt.Task) (*server.CBS, error) {
	q := t.WCET(1)
	if q == 0 {
		return nil, fmt.Errorf("kernel %s, task %s: %w", k.name, t.Name(), ErrZeroWCET)
	}
	p := t.RelDline()
	q = sim.MinOf(sim.MaxOf(q, 1), p)
	s, err := server.NewCBS(k.sim, "cbs_"+t.Name(), q, p, true, sched.NewFIFO(k.sim))
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", k.name, err)
	}
	if err := s.AddTask(t); err != nil {
		return nil, fmt.Errorf("kernel %s: %w", k.name, err)
	}
	if err := k.register(s); err != nil {
		return nil, err
	}
	k.envelopes[t] = s
	k.enveloped[s] = t
	return s, nil
}

func (k *EnergyMRTKernel) register(t rt.Task) error {
	if err := k.global.AddTask(t); err != nil {
		return fmt.Errorf("kernel %s: %w", k.name, err)
	}
	t.SetKernel(k)
	if s, ok := t.(server.Server); ok {
		s.AddObserver(k)
	}
	k.tasks = append(k.tasks, t)
	return nil
}

// Envelope returns the CBS wrapping t, nil if t is not enveloped.
func (k *EnergyMRTKernel) Envelope(t rt.Task) *server.CBS { return k.envelopes[t] }

// resolve maps an enveloped task to its envelope.
func (k *EnergyMRTKernel) resolve(t rt.Task) rt.Task {
	if s, ok := k.envelopes[t]; ok {
		return s
	}
	return t
}

// AddForcedDispatch places t on c at OPP opp for its next times
// placements, bypassing the power search. It must follow AddTask.
func (k *EnergyMRTKernel) AddForcedDispatch(t rt.Task, c *cpu.CPU, opp, times int) error {
	cr, ok := k.byCPU[c]
	if !ok {
		return fmt.Errorf("kernel %s: cpu %s is not managed", k.name, c.Name())
	}
	if _, err := c.Island().OPPAt(opp); err != nil {
		return fmt.Errorf("kernel %s: %w", k.name, err)
	}
	f := forcedDispatch{core: cr, opp: opp, times: times}
	k.forcedCfg[k.resolve(t)] = f
	k.forced[k.resolve(t)] = f
	return nil
}

// AddDiscard leaves t in the global queue for its next times dispatch
// passes. It must follow AddTask.
func (k *EnergyMRTKernel) AddDiscard(t rt.Task, times int) {
	k.discardedCfg[k.resolve(t)] = times
	k.discarded[k.resolve(t)] = times
}

// RunningTask returns the task on c, an envelope if enveloping.
func (k *EnergyMRTKernel) RunningTask(c *cpu.CPU) rt.Task {
	if cr, ok := k.byCPU[c]; ok {
		return cr.running
	}
	return nil
}

// ReadyTasks returns the tasks queued on c that are not executing.
func (k *EnergyMRTKernel) ReadyTasks(c *cpu.CPU) []rt.Task {
	if cr, ok := k.byCPU[c]; ok {
		return cr.ready()
	}
	return nil
}

// Utilization returns the load of c at its current OPP, reservations
// included.
func (k *EnergyMRTKernel) Utilization(c *cpu.CPU) float64 {
	if cr, ok := k.byCPU[c]; ok {
		return k.coreUtilization(cr, c.OPPIndex())
	}
	return 0
}

func (k *EnergyMRTKernel) NewRun() {
	k.global.NewRun()
	for _, isl := range k.islands {
		isl.Reset()
	}
	for _, c := range k.cores {
		c.sched.NewRun()
		c.running, c.incoming, c.pending = nil, nil, nil
		c.beginEvt.Drop()
		c.endEvt.Drop()
	}
	clear(k.where)
	clear(k.required)
	clear(k.reservations)
	clear(k.oldExe)
	k.tempMigrated = nil
	k.forced = maps.Clone(k.forcedCfg)
	k.discarded = maps.Clone(k.discardedCfg)
}

func (k *EnergyMRTKernel) EndRun() {
	for _, c := range k.cores {
		c.beginEvt.Drop()
		c.endEvt.Drop()
		c.sched.EndRun()
	}
	k.global.EndRun()
}

func (k *EnergyMRTKernel) OnArrival(t rt.Task) {
	if c, ok := k.where[t]; ok {
		k.schedule(c)
		return
	}
	mustInsert(k.global, t)
	k.Dispatch()
}

func (k *EnergyMRTKernel) Activate(t rt.Task) {
	if _, ok := k.where[t]; ok {
		return
	}
	mustInsert(k.global, t)
}

// Suspend takes t off its core, or out of the global queue if it was
// still waiting for a placement.
func (k *EnergyMRTKernel) Suspend(t rt.Task) {
	k.leave(t)
}

func (k *EnergyMRTKernel) OnEnd(t rt.Task) {
	k.leave(t)
	k.Dispatch()
}

func (k *EnergyMRTKernel) leave(t rt.Task) {
	if extract(k.global, t) {
		return
	}
	c, ok := k.where[t]
	if !ok {
		return
	}
	k.dequeue(c, t)
	k.oldExe[t] = c.cpu
	k.tempMigrated = slices.DeleteFunc(k.tempMigrated, func(m migration) bool { return m.task == t })

	if c.sched.Len() == 0 {
		moved := false
		if k.policy.Migration && k.policy.MigrateAfterEnd {
			moved = k.migrateInto(c, false)
		}
		if !moved && k.policy.Migration && k.policy.TemporaryMigrationEnd {
			k.migrateTemporarily(c)
		}
	} else {
		k.schedule(c)
	}
	k.refresh(c)
}

// Dispatch runs a placement pass over the global queue, then gives every
// core to the head of its own queue.
func (k *EnergyMRTKernel) Dispatch() {
	for _, t := range k.global.Queue() {
		if _, placed := k.where[t]; placed {
			extract(k.global, t)
			continue
		}
		if f, ok := k.forced[t]; ok && f.times > 0 {
			f.times--
			k.forced[t] = f
			k.place(t, f.core, f.opp)
			continue
		}
		if n := k.discarded[t]; n > 0 {
			k.discarded[t] = n - 1
			logrus.Debugf("[%v] %s: discarding %s", k.sim.Now(), k.name, t.Name())
			continue
		}
		cands := k.candidates(t)
		if len(cands) == 0 {
			k.unschedulable(t)
			continue
		}
		best := k.choose(cands)
		k.place(t, best.core, best.opp)
	}
	for _, c := range k.cores {
		k.schedule(c)
	}
}

func (k *EnergyMRTKernel) unschedulable(t rt.Task) {
	logrus.Warnf("[%v] %s: no core can admit %s, keeping it in the global queue", k.sim.Now(), k.name, t.Name())
	if k.NumHooks() > 0 {
		k.InvokeHook(sim.HookCtx{Domain: k, Now: k.sim.Now(), Pos: HookPosUnschedulable, Item: t})
	}
}

// candidates lists the admissible (core, OPP) pairs for t by increasing
// power increase. The increase is computed on the whole island, since all
// of its cores move to the new OPP.
func (k *EnergyMRTKernel) candidates(t rt.Task) []candidate {
	var out []candidate
	wl := t.Workload()
	for _, c := range k.cores {
		if c.cpu.Disabled() {
			continue
		}
		isl := c.cpu.Island()
		cur := isl.OPPIndex()
		before := k.islandUtilization(isl, cur) * c.cpu.PowerAt(cur, wl)
		for _, opp := range isl.HigherOPPs() {
			speed := c.cpu.SpeedAt(opp, wl)
			if !sched.IsAdmissible(speed, c.sched.Queue(), t) {
				continue
			}
			uc := k.coreUtilization(c, opp)
			ut := t.RemainingWCET(speed).Float() / t.Period().Float()
			if uc > 1 || uc+ut > 1 {
				continue
			}
			after := (k.islandUtilization(isl, opp) + ut) * c.cpu.PowerAt(opp, wl)
			out = append(out, candidate{core: c, opp: opp, delta: after - before})
		}
	}
	slices.SortStableFunc(out, func(a, b candidate) int { return cmp.Compare(a.delta, b.delta) })
	return out
}

func (k *EnergyMRTKernel) choose(cands []candidate) candidate {
	best := cands[0]
	if k.policy.Balance && best.core.cpu.Busy() {
		for _, c := range cands[1:] {
			if c.delta == best.delta && c.core.cpu.Island() == best.core.cpu.Island() && !c.core.cpu.Busy() {
				best = c
				break
			}
		}
	}
	if k.policy.LeaveLastLittleFree && isLastLittle(best.core) {
		for _, c := range cands {
			if c.core.cpu.Island().Type() == cpu.Little && !isLastLittle(c.core) {
				best = c
				break
			}
		}
	}
	return best
}

func isLastLittle(c *core) bool {
	isl := c.cpu.Island()
	cpus := isl.CPUs()
	return isl.Type() == cpu.Little && cpus[len(cpus)-1] == c.cpu
}

// place moves t from the global queue to c, raising the island to opp.
// Tasks borrowed by c are sent back first.
func (k *EnergyMRTKernel) place(t rt.Task, c *core, opp int) {
	k.returnBorrowed(c)
	extract(k.global, t)
	k.enqueue(c, t, opp)
	if isl := c.cpu.Island(); opp > isl.OPPIndex() {
		isl.MustSetOPP(opp)
	}
	k.fitEnvelope(t)
	k.forget(t)
	logrus.Debugf("[%v] %s: %s placed on %s at %v", k.sim.Now(), k.name, t.Name(), c.cpu.Name(), c.cpu.OPP())
}

// coreUtilization is the load of c if its island ran at opp: the queued
// tasks, the reservations held on c and the tasks c lent to other cores.
func (k *EnergyMRTKernel) coreUtilization(c *core, opp int) float64 {
	u := 0.0
	for _, t := range c.sched.Queue() {
		if s, ok := t.(server.Server); ok && s.IsEmpty() {
			continue
		}
		if k.borrowedBy(t, c) {
			continue
		}
		u += utilization(t, c.cpu.SpeedAt(opp, t.Workload()))
	}
	u += k.activeUtilization(c)
	for _, m := range k.tempMigrated {
		if m.from == c {
			u += utilization(m.task, c.cpu.SpeedAt(opp, m.task.Workload()))
		}
	}
	return u
}

func (k *EnergyMRTKernel) islandUtilization(isl *cpu.Island, opp int) float64 {
	u := 0.0
	for _, c := range isl.CPUs() {
		u += k.coreUtilization(k.byCPU[c], opp)
	}
	return u
}

func utilization(t rt.Task, speed float64) float64 {
	return t.RemainingWCET(speed).Float() / t.Period().Float()
}

// fitEnvelope sizes the budget of an envelope to the WCET of its task at
// the current speed of its core.
func (k *EnergyMRTKernel) fitEnvelope(t rt.Task) {
	task, ok := k.enveloped[t]
	if !ok {
		return
	}
	c, ok := k.where[t]
	if !ok {
		return
	}
	s := k.envelopes[task]
	q := task.WCET(c.cpu.SpeedFor(task.Workload()))
	q = sim.MinOf(sim.MaxOf(q, 1), s.Period())
	if q == s.Budget() {
		return
	}
	if _, err := s.ChangeBudget(q); err != nil {
		logrus.Warnf("[%v] %s: resizing %s: %v", k.sim.Now(), k.name, s.Name(), err)
	}
}

// OnOPPChanged refits the envelopes placed on isl and lets the running
// tasks recompute their end of execution.
func (k *EnergyMRTKernel) OnOPPChanged(isl *cpu.Island, _, _ int) {
	for _, t := range k.tasks {
		if c, ok := k.where[t]; ok && c.cpu.Island() == isl {
			k.fitEnvelope(t)
		}
	}
	for _, c := range k.cores {
		if c.cpu.Island() == isl && c.running != nil {
			c.running.RefreshExec()
		}
	}
}

func (k *EnergyMRTKernel) Processor(t rt.Task) *cpu.CPU {
	t = k.resolve(t)
	for _, c := range k.cores {
		if c.running == t {
			return c.cpu
		}
	}
	return nil
}

func (k *EnergyMRTKernel) OldProcessor(t rt.Task) *cpu.CPU {
	return k.oldExe[k.resolve(t)]
}

func (k *EnergyMRTKernel) RequestResource(t rt.Task, res string, n int) (bool, error) {
	return forward(k.resources, t, res, n)
}

func (k *EnergyMRTKernel) ReleaseResource(t rt.Task, res string, n int) error {
	if err := release(k.resources, t, res, n); err != nil {
		return err
	}
	k.Dispatch()
	return nil
}

// OnExecutingReleasing reserves the bandwidth of s on its core until its
// virtual time, and lets the core run something else meanwhile.
func (k *EnergyMRTKernel) OnExecutingReleasing(s server.Server) {
	c, ok := k.where[s]
	if !ok {
		return
	}
	k.reserve(c, s)
	if k.policy.CBSYield && s.IsEmpty() {
		s.Yield()
	}
	if k.policy.CBSEnveloping {
		k.schedule(c)
	}
}

// OnReleasingIdle frees the bandwidth of s. If its core has nothing left
// to run, a task is migrated into it, for good if the move is safe and
// saves power, temporarily otherwise.
func (k *EnergyMRTKernel) OnReleasingIdle(s server.Server) {
	c := k.forget(s)
	if c == nil {
		if old := k.oldExe[s]; old != nil {
			c = k.byCPU[old]
		}
	}
	if c == nil || c.current() != nil {
		return
	}
	if len(c.ready()) > 0 {
		k.schedule(c)
		return
	}
	if !k.policy.Migration {
		return
	}
	if k.policy.MigrateAfterVirtualTimeEnd && k.migrateInto(c, true) {
		return
	}
	if k.policy.TemporaryMigrationVTime {
		k.migrateTemporarily(c)
	}
}

func (k *EnergyMRTKernel) OnExecutingRecharging(s server.Server) { k.forget(s) }

// OnReplenishment drops the reservation; the server reports its own
// arrival when it has work.
func (k *EnergyMRTKernel) OnReplenishment(s server.Server) { k.forget(s) }

func (k *EnergyMRTKernel) OnTaskEnd(server.Server, rt.Task) {}

// proposal returns the next task c could take: first a task waiting on a
// BIG core when c is LITTLE, then a task of a loaded sibling of c.
func (k *EnergyMRTKernel) proposal(c *core, skip []rt.Task) *migration {
	if c.cpu.Island().Type() == cpu.Little {
		for _, from := range k.cores {
			if from.cpu.Island().Type() != cpu.Big {
				continue
			}
			for _, t := range from.ready() {
				if slices.Contains(skip, t) {
					continue
				}
				if slices.ContainsFunc(k.candidates(t), func(cd candidate) bool { return cd.core == c }) {
					return &migration{task: t, from: from, to: c}
				}
			}
		}
	}
	return k.balanceLoad(c, skip)
}

// balanceLoad takes the first ready task of a sibling of c holding more
// than one task.
func (k *EnergyMRTKernel) balanceLoad(c *core, skip []rt.Task) *migration {
	for _, cpuN := range c.cpu.Island().CPUs() {
		from := k.byCPU[cpuN]
		if from == c {
			continue
		}
		ready := from.ready()
		if len(ready) == 0 || len(ready)+btoi(from.current() != nil) < 2 {
			continue
		}
		if slices.Contains(skip, ready[0]) {
			continue
		}
		return &migration{task: ready[0], from: from, to: c}
	}
	return nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// migrateInto moves into c the first proposed task that can meet its
// deadline there and, if convenient is set, does not cost more power.
func (k *EnergyMRTKernel) migrateInto(c *core, convenient bool) bool {
	var skip []rt.Task
	for {
		m := k.proposal(c, skip)
		if m == nil {
			return false
		}
		skip = append(skip, m.task)
		if !k.isMigrationSafe(m) || (convenient && !isEnergyConvenient(m)) {
			continue
		}
		k.migrate(m)
		return true
	}
}

// migrateTemporarily lends c the first task of a loaded sibling that is
// safe to move, until c gets a placement of its own. The task keeps
// counting on its origin core.
func (k *EnergyMRTKernel) migrateTemporarily(c *core) bool {
	var skip []rt.Task
	for {
		m := k.balanceLoad(c, skip)
		if m == nil {
			return false
		}
		skip = append(skip, m.task)
		if !k.isMigrationSafe(m) {
			continue
		}
		k.tempMigrated = append(k.tempMigrated, *m)
		k.migrate(m)
		return true
	}
}

// isMigrationSafe reports whether the task can complete by its deadline
// with the spare capacity of the destination.
func (k *EnergyMRTKernel) isMigrationSafe(m *migration) bool {
	speed := m.to.cpu.SpeedFor(m.task.Workload())
	need := m.task.WCET(1).Float() / speed
	free := 1 - k.load(m.to)
	return need <= free*(m.task.Deadline()-k.sim.Now()).Float()
}

// load is the utilization c carries at its current OPP: its own tasks,
// reservations and loans, plus the tasks it borrowed.
func (k *EnergyMRTKernel) load(c *core) float64 {
	opp := c.cpu.OPPIndex()
	u := k.coreUtilization(c, opp)
	for _, m := range k.tempMigrated {
		if m.to == c {
			u += utilization(m.task, c.cpu.SpeedAt(opp, m.task.Workload()))
		}
	}
	return u
}

func isEnergyConvenient(m *migration) bool {
	wl := m.task.Workload()
	return m.to.cpu.PowerFor(wl) <= m.from.cpu.PowerFor(wl)
}

func (k *EnergyMRTKernel) migrate(m *migration) {
	k.dequeue(m.from, m.task)
	k.enqueue(m.to, m.task, m.to.cpu.OPPIndex())
	m.to.cpu.SetWorkload(m.task.Workload())
	k.fitEnvelope(m.task)
	k.schedule(m.from)
	k.schedule(m.to)
	k.refresh(m.from)
	logrus.Debugf("[%v] %s: %s migrated from %s to %s", k.sim.Now(), k.name, m.task.Name(), m.from.cpu.Name(), m.to.cpu.Name())
	if k.NumHooks() > 0 {
		k.InvokeHook(sim.HookCtx{Domain: k, Now: k.sim.Now(), Pos: HookPosMigration, Item: m.task, Detail: m.to.cpu})
	}
}

func (k *EnergyMRTKernel) borrowedBy(t rt.Task, c *core) bool {
	return slices.ContainsFunc(k.tempMigrated, func(m migration) bool { return m.task == t && m.to == c })
}

// returnBorrowed sends the tasks lent to c back to their cores.
func (k *EnergyMRTKernel) returnBorrowed(c *core) {
	var back []migration
	k.tempMigrated = slices.DeleteFunc(k.tempMigrated, func(m migration) bool {
		if m.to != c {
			return false
		}
		back = append(back, m)
		return true
	})
	for _, m := range back {
		if k.where[m.task] == c {
			k.migrate(&migration{task: m.task, from: c, to: m.from})
		}
	}
}

var (
	_ rt.Kernel          = (*EnergyMRTKernel)(nil)
	_ server.Observer    = (*EnergyMRTKernel)(nil)
	_ cpu.OPPListener    = (*EnergyMRTKernel)(nil)
	_ sched.RoundHandler = coreKernel{}
)

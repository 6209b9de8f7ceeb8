package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/kernel"
	"github.com/gabrieleara/PARTSim-sub001/sim/randvar"
	"github.com/gabrieleara/PARTSim-sub001/sim/resource"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
	"github.com/gabrieleara/PARTSim-sub001/sim/server"
)

// System is a simulated platform with its taskset, ready to run.
type System struct {
	Sim       *sim.Simulation
	Islands   []*cpu.Island
	Energy    *kernel.EnergyMRTKernel // nil unless configured
	Kernels   map[string]rt.Kernel    // island kernels by name
	Tasks     []*rt.RTTask
	Servers   []server.Server
	Resources resource.Manager // nil without resources
}

// CPUs returns the cores of every island in declaration order.
func (sys *System) CPUs() []*cpu.CPU {
	var out []*cpu.CPU
	for _, isl := range sys.Islands {
		out = append(out, isl.CPUs()...)
	}
	return out
}

// Hookables returns the entities emitting trace records.
func (sys *System) Hookables() []sim.Hookable {
	var out []sim.Hookable
	for _, t := range sys.Tasks {
		out = append(out, t)
	}
	if sys.Energy != nil {
		out = append(out, sys.Energy)
	}
	return out
}

// islandKernel is what the builder needs from RTKernel and MRTKernel.
type islandKernel interface {
	rt.Kernel
	AddTask(t rt.Task) error
	Scheduler() sched.Scheduler
	SetResourceManager(m rt.ResourceManager)
}

type builder struct {
	s   *sim.Simulation
	sys *SystemConfig
	ts  *TasksetConfig
	out *System

	kernels  map[string]islandKernel
	utilMgrs map[string]*server.UtilizationManager
	servers  map[string]server.Server
}

// Build instantiates the platform of sys and the taskset ts on s.
func Build(s *sim.Simulation, sys *SystemConfig, ts *TasksetConfig) (*System, error) {
	b := &builder{
		s:        s,
		sys:      sys,
		ts:       ts,
		out:      &System{Sim: s, Kernels: make(map[string]rt.Kernel)},
		kernels:  make(map[string]islandKernel),
		utilMgrs: make(map[string]*server.UtilizationManager),
		servers:  make(map[string]server.Server),
	}
	if err := b.islands(); err != nil {
		return nil, err
	}
	if sys.EnergyKernel != nil {
		if err := b.energyKernel(); err != nil {
			return nil, err
		}
	} else if err := b.islandKernels(); err != nil {
		return nil, err
	}
	if err := b.resources(); err != nil {
		return nil, err
	}
	for _, tc := range ts.Tasks {
		if err := b.task(tc); err != nil {
			return nil, fmt.Errorf("task %q: %w", tc.Name, err)
		}
	}
	return b.out, nil
}

func (b *builder) islands() error {
	for _, ic := range b.sys.Islands {
		typ, err := cpu.ParseIslandType(ic.Type)
		if err != nil {
			return err
		}
		opps, err := cpu.BuildOPPs(ic.Volts, ic.Freqs)
		if err != nil {
			return fmt.Errorf("island %q: %w", ic.Name, err)
		}
		base := 0
		for i, o := range opps {
			if o.Frequency == ic.BaseFreq {
				base = i
			}
		}
		model, err := b.model(ic, opps)
		if err != nil {
			return fmt.Errorf("island %q: %w", ic.Name, err)
		}
		isl, err := cpu.NewIsland(ic.Name, typ, opps, base, model, ic.NumCPUs)
		if err != nil {
			return err
		}
		b.out.Islands = append(b.out.Islands, isl)
	}
	return nil
}

// model builds the power model of an island. Islands without one get the
// minimal model.
func (b *builder) model(ic IslandConfig, opps []cpu.OPP) (cpu.Model, error) {
	fmax := opps[len(opps)-1].Frequency
	mc, ok := b.sys.powerModel(ic.PowerModel)
	if !ok || mc.Type == ModelMinimal {
		return cpu.NewMinimal(fmax), nil
	}
	switch mc.Type {
	case ModelBP:
		params := make(map[string]cpu.BPParams)
		if mc.Filename != "" {
			f, err := os.Open(b.sys.path(mc.Filename))
			if err != nil {
				return nil, err
			}
			defer f.Close()
			if params, err = cpu.ReadBPParams(f, mc.Name); err != nil {
				return nil, fmt.Errorf("power model %q: %w", mc.Name, err)
			}
		}
		for _, p := range mc.Params {
			params[p.Workload] = cpu.BPParams{
				Power: cpu.PowerParams{D: p.PowerParams.D, E: p.PowerParams.E, G: p.PowerParams.G, K: p.PowerParams.K},
				Speed: cpu.SpeedParams{A: p.SpeedParams.A, B: p.SpeedParams.B, C: p.SpeedParams.C, D: p.SpeedParams.D},
			}
		}
		return cpu.NewBP(params)
	case ModelTable:
		f, err := os.Open(b.sys.path(mc.Filename))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		rows, err := cpu.ReadTableEntries(f, mc.Name)
		if err != nil {
			return nil, fmt.Errorf("power model %q: %w", mc.Name, err)
		}
		return cpu.NewTable(rows, mc.Approx)
	}
	return nil, invalid("power model %q: unknown type %q", mc.Name, mc.Type)
}

func (b *builder) energyKernel() error {
	ec := b.sys.EnergyKernel
	if _, err := sched.New(b.s, ec.Scheduler, 0); err != nil {
		return err
	}
	newQueue := func() sched.Scheduler {
		sc, _ := sched.New(b.s, ec.Scheduler, sim.Tick(ec.RRSlice))
		return sc
	}
	k, err := kernel.NewEnergyMRTKernel(b.s, "", b.out.Islands, newQueue)
	if err != nil {
		return err
	}
	if err := k.SetPolicy(ec.Policy.DispatchPolicy()); err != nil {
		return err
	}
	k.SetContextSwitchDelay(sim.Tick(ec.ContextSwitchDelay))
	k.SetMigrationDelay(sim.Tick(ec.MigrationDelay))
	logrus.Infof("Energy kernel over %d islands, policy %+v", len(b.out.Islands), k.Policy())
	b.out.Energy = k
	return nil
}

// islandKernels creates one RTKernel per core of partitioned islands and
// one MRTKernel per global island.
func (b *builder) islandKernels() error {
	for i, ic := range b.sys.Islands {
		isl := b.out.Islands[i]
		kc := ic.Kernel
		if kc.global() {
			sc, err := sched.New(b.s, kc.Scheduler, sim.Tick(kc.RRSlice))
			if err != nil {
				return err
			}
			k, err := kernel.NewMRTKernel(b.s, "kernel_"+ic.Name, isl.CPUs(), sc)
			if err != nil {
				return err
			}
			k.SetContextSwitchDelay(sim.Tick(kc.ContextSwitchDelay))
			k.SetMigrationDelay(sim.Tick(kc.MigrationDelay))
			b.addKernel(k.Name(), k)
			continue
		}
		for _, c := range isl.CPUs() {
			sc, err := sched.New(b.s, kc.Scheduler, sim.Tick(kc.RRSlice))
			if err != nil {
				return err
			}
			k, err := kernel.NewRTKernel(b.s, "", c, sc)
			if err != nil {
				return err
			}
			k.SetContextSwitchDelay(sim.Tick(kc.ContextSwitchDelay))
			b.addKernel(k.Name(), k)
		}
	}
	return nil
}

func (b *builder) addKernel(name string, k islandKernel) {
	b.kernels[name] = k
	b.out.Kernels[name] = k
}

func (b *builder) resources() error {
	if len(b.ts.Resources) == 0 {
		return nil
	}
	m, err := resource.NewManager(b.ts.ResourceProtocol)
	if err != nil {
		return err
	}
	for _, r := range b.ts.Resources {
		if err := m.AddResource(r.Name, r.Units); err != nil {
			return err
		}
	}
	if err := b.s.Register(m); err != nil {
		return err
	}
	for _, k := range b.kernels {
		k.SetResourceManager(m)
	}
	if b.out.Energy != nil {
		b.out.Energy.SetResourceManager(m)
	}
	b.out.Resources = m
	return nil
}

func (b *builder) task(tc TaskConfig) error {
	t, err := b.newTask(tc)
	if err != nil {
		return err
	}
	b.out.Tasks = append(b.out.Tasks, t)

	var k islandKernel
	if b.out.Energy == nil {
		if k, err = b.kernelFor(tc); err != nil {
			return err
		}
	}

	entity := rt.Task(t)
	if tc.Server != nil {
		srv, created, err := b.server(tc.Server.withDefaults(tc.Name), k)
		if err != nil {
			return err
		}
		if err := srv.AddTask(t); err != nil {
			return err
		}
		if !created {
			return nil
		}
		entity = srv
	}

	if b.out.Energy != nil {
		if tc.Priority != nil {
			logrus.Warnf("Task %s: priority ignored under the energy kernel", tc.Name)
		}
		return b.out.Energy.AddTask(entity)
	}
	if err := k.AddTask(entity); err != nil {
		return err
	}
	if tc.Priority == nil {
		return nil
	}
	if _, ok := k.Scheduler().(*sched.FP); !ok {
		logrus.Warnf("Task %s: priority only applies to fp kernels", tc.Name)
		return nil
	}
	return k.Scheduler().ChangePriority(entity, *tc.Priority)
}

func (b *builder) newTask(tc TaskConfig) (*rt.RTTask, error) {
	p := rt.Params{
		Name:     tc.Name,
		Period:   sim.Tick(tc.Period),
		RelDline: sim.Tick(tc.Deadline),
		Phase:    sim.Tick(tc.Phase),
		Abort:    tc.Abort,
	}
	switch tc.Type {
	case TaskNonPeriodic:
		p.Kind = rt.NonPeriodic
	case TaskSporadic:
		p.Kind = rt.Sporadic
		if tc.Interarrival != "" {
			v, err := randvar.Parse(tc.Interarrival, b.s.RNG().Source(sim.SubsystemTask(tc.Name)))
			if err != nil {
				return nil, fmt.Errorf("%w: interarrival: %w", ErrInvalidDescriptor, err)
			}
			p.Jitter = v
		}
	default:
		p.Kind = rt.Periodic
	}
	t, err := rt.NewTask(b.s, p)
	if err != nil {
		return nil, err
	}
	if err := t.SetCode(tc.Code); err != nil {
		return nil, err
	}
	return t, nil
}

// kernelFor resolves the island kernel of a task.
func (b *builder) kernelFor(tc TaskConfig) (islandKernel, error) {
	ic, ok := b.sys.Island(tc.Kernel)
	if !ok {
		if tc.Kernel != "" || len(b.sys.Islands) != 1 {
			return nil, invalid("unknown kernel %q", tc.Kernel)
		}
		ic = b.sys.Islands[0]
	}
	if ic.Kernel.global() {
		return b.kernels["kernel_"+ic.Name], nil
	}
	if tc.CPU >= ic.NumCPUs {
		return nil, invalid("cpu %d out of island %q", tc.CPU, ic.Name)
	}
	for _, isl := range b.out.Islands {
		if isl.Name() == ic.Name {
			return b.kernels["kernel_"+isl.CPUs()[tc.CPU].Name()], nil
		}
	}
	return nil, invalid("unknown kernel %q", tc.Kernel)
}

// server returns the server described by sc, creating it on first use.
func (b *builder) server(sc ServerConfig, k islandKernel) (server.Server, bool, error) {
	if srv, ok := b.servers[sc.Name]; ok {
		if b.out.Energy == nil && srv.Kernel() != rt.Kernel(k) {
			return nil, false, invalid("server %q shared by tasks of different kernels", sc.Name)
		}
		return srv, false, nil
	}
	inner, err := sched.New(b.s, sc.Scheduler, 0)
	if err != nil {
		return nil, false, err
	}
	q, p := sim.Tick(sc.Budget), sim.Tick(sc.Period)

	var srv server.Server
	switch sc.Type {
	case ServerGRUB:
		rk, ok := k.(*kernel.RTKernel)
		if !ok {
			return nil, false, invalid("grub server %q needs a partitioned island kernel", sc.Name)
		}
		m, ok := b.utilMgrs[rk.Name()]
		if !ok {
			if m, err = server.NewUtilizationManager(b.s, "grub_"+rk.Name()); err != nil {
				return nil, false, err
			}
			b.utilMgrs[rk.Name()] = m
		}
		if srv, err = server.NewGRUB(b.s, sc.Name, q, p, m, inner); err != nil {
			return nil, false, err
		}
	default:
		cbs, err := server.NewCBS(b.s, sc.Name, q, p, *sc.Hard, inner)
		if err != nil {
			return nil, false, err
		}
		cbs.SetIdlePolicy(server.ValidIdlePolicies[sc.IdlePolicy])
		srv = cbs
	}
	b.servers[sc.Name] = srv
	b.out.Servers = append(b.out.Servers, srv)
	return srv, true, nil
}

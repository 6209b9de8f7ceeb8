package sim

import (
	"hash/fnv"
	"math/rand/v2"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation.
// Two simulations with the same SimulationKey and identical system and
// task set MUST produce identical scheduling decisions.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemWorkload is the RNG subsystem shared by instruction costs
	// that are not bound to a task. Uses the master seed directly.
	SubsystemWorkload = "workload"
)

// SubsystemTask returns the subsystem name for a task's own random variables
// (inter-arrival times, randomized instruction costs).
func SubsystemTask(name string) string {
	return "task_" + name
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated random streams per subsystem.
//
// Derivation formula:
//   - For SubsystemWorkload: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
	sources    map[string]*rand.PCG
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
		sources:    make(map[string]*rand.PCG),
	}
}

// Source returns the deterministic source of the named subsystem.
// The same name always returns the same source.
func (p *PartitionedRNG) Source(name string) rand.Source {
	return p.source(name)
}

// ForSubsystem returns a *rand.Rand reading from the named subsystem's source.
// The same subsystem name always returns the same instance. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(p.source(name))
	p.subsystems[name] = rng
	return rng
}

// Reset rewinds every subsystem to its initial state, so that each run of
// a batch can be replayed independently.
func (p *PartitionedRNG) Reset() {
	for name, src := range p.sources {
		seed := p.derive(name)
		src.Seed(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
	}
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func (p *PartitionedRNG) source(name string) *rand.PCG {
	if src, ok := p.sources[name]; ok {
		return src
	}
	seed := p.derive(name)
	src := rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
	p.sources[name] = src
	return src
}

func (p *PartitionedRNG) derive(name string) int64 {
	if name == SubsystemWorkload {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/gabrieleara/PARTSim-sub001/sim/cpu"
	"github.com/gabrieleara/PARTSim-sub001/sim/kernel"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
)

// ErrInvalidDescriptor wraps every validation failure of the system and
// taskset descriptors.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// Task placement policies of an island kernel.
const (
	PlacementPartitioned = "partitioned"
	PlacementGlobal      = "global"
)

// Power model kinds.
const (
	ModelBP      = "bp"
	ModelTable   = "table"
	ModelMinimal = "minimal"
)

// SystemConfig is the system descriptor: the islands, their power models
// and the optional energy-aware kernel driving all of them.
// All top-level sections must be listed to satisfy KnownFields(true).
type SystemConfig struct {
	Islands      []IslandConfig      `yaml:"cpu_islands"`
	PowerModels  []PowerModelConfig  `yaml:"power_models"`
	EnergyKernel *EnergyKernelConfig `yaml:"energy_kernel"`

	// dir resolves relative model file names.
	dir string
}

type IslandConfig struct {
	Name       string       `yaml:"name"`
	Type       string       `yaml:"type"`
	NumCPUs    int          `yaml:"numcpus"`
	Volts      []float64    `yaml:"volts"`
	Freqs      []uint       `yaml:"freqs"`
	BaseFreq   uint         `yaml:"base_freq"`
	PowerModel string       `yaml:"power_model"`
	Kernel     KernelConfig `yaml:"kernel"`
}

// KernelConfig describes the kernel of one island. It is ignored when an
// energy kernel is configured.
type KernelConfig struct {
	Scheduler          string `yaml:"scheduler"`
	TaskPlacement      string `yaml:"task_placement"`
	ContextSwitchDelay int64  `yaml:"context_switch_delay"`
	MigrationDelay     int64  `yaml:"migration_delay"`
	RRSlice            int64  `yaml:"rr_slice"`
}

type PowerModelConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Filename string `yaml:"filename"`
	// Approx lets a table model answer for OPPs it has no row for.
	Approx bool                  `yaml:"approx"`
	Params []WorkloadModelParams `yaml:"params"`
}

type WorkloadModelParams struct {
	Workload    string            `yaml:"workload"`
	PowerParams PowerParamsConfig `yaml:"power_params"`
	SpeedParams SpeedParamsConfig `yaml:"speed_params"`
}

type PowerParamsConfig struct {
	D float64 `yaml:"d"`
	E float64 `yaml:"e"`
	G float64 `yaml:"g"`
	K float64 `yaml:"k"`
}

type SpeedParamsConfig struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
	C float64 `yaml:"c"`
	D float64 `yaml:"d"`
}

type EnergyKernelConfig struct {
	Scheduler          string        `yaml:"scheduler"`
	ContextSwitchDelay int64         `yaml:"context_switch_delay"`
	MigrationDelay     int64         `yaml:"migration_delay"`
	RRSlice            int64         `yaml:"rr_slice"`
	Policy             *PolicyConfig `yaml:"policy"`
}

// PolicyConfig overrides the default dispatch policy. Absent keys keep
// their default.
type PolicyConfig struct {
	Migration                  *bool `yaml:"migration"`
	LeaveLastLittleFree        *bool `yaml:"leave_last_little_free"`
	CBSEnveloping              *bool `yaml:"cbs_enveloping"`
	CBSYield                   *bool `yaml:"cbs_yield"`
	TemporaryMigrationVTime    *bool `yaml:"temporary_migration_vtime"`
	TemporaryMigrationEnd      *bool `yaml:"temporary_migration_end"`
	Balance                    *bool `yaml:"balance"`
	MigrateAfterVirtualTimeEnd *bool `yaml:"migrate_after_vtime_end"`
	MigrateAfterEnd            *bool `yaml:"migrate_after_end"`
}

// DispatchPolicy applies the overrides to the default policy.
func (c *PolicyConfig) DispatchPolicy() kernel.DispatchPolicy {
	p := kernel.DefaultDispatchPolicy()
	if c == nil {
		return p
	}
	for _, o := range []struct {
		from *bool
		to   *bool
	}{
		{c.Migration, &p.Migration},
		{c.LeaveLastLittleFree, &p.LeaveLastLittleFree},
		{c.CBSEnveloping, &p.CBSEnveloping},
		{c.CBSYield, &p.CBSYield},
		{c.TemporaryMigrationVTime, &p.TemporaryMigrationVTime},
		{c.TemporaryMigrationEnd, &p.TemporaryMigrationEnd},
		{c.Balance, &p.Balance},
		{c.MigrateAfterVirtualTimeEnd, &p.MigrateAfterVirtualTimeEnd},
		{c.MigrateAfterEnd, &p.MigrateAfterEnd},
	} {
		if o.from != nil {
			*o.to = *o.from
		}
	}
	return p
}

// LoadSystem reads and validates a system descriptor.
// Uses strict field checking: typos are errors.
func LoadSystem(path string) (*SystemConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading system descriptor: %w", err)
	}
	cfg, err := ParseSystem(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// ParseSystem decodes and validates a system descriptor.
func ParseSystem(data []byte) (*SystemConfig, error) {
	var cfg SystemConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing system YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks names, ranges and cross references.
func (c *SystemConfig) Validate() error {
	if len(c.Islands) == 0 {
		return invalid("no cpu_islands")
	}
	models := make(map[string]PowerModelConfig)
	for _, m := range c.PowerModels {
		if m.Name == "" {
			return invalid("power model without a name")
		}
		if _, dup := models[m.Name]; dup {
			return invalid("duplicate power model %q", m.Name)
		}
		switch m.Type {
		case ModelBP:
			if m.Filename == "" && len(m.Params) == 0 {
				return invalid("power model %q: bp needs params or a filename", m.Name)
			}
		case ModelTable:
			if m.Filename == "" {
				return invalid("power model %q: table needs a filename", m.Name)
			}
		case ModelMinimal:
		default:
			return invalid("power model %q: unknown type %q", m.Name, m.Type)
		}
		models[m.Name] = m
	}

	seen := make(map[string]bool)
	for i, isl := range c.Islands {
		if isl.Name == "" {
			return invalid("island %d without a name", i)
		}
		if seen[isl.Name] {
			return invalid("duplicate island %q", isl.Name)
		}
		seen[isl.Name] = true
		if _, err := cpu.ParseIslandType(isl.Type); err != nil {
			return invalid("island %q: %v", isl.Name, err)
		}
		if isl.NumCPUs <= 0 {
			return invalid("island %q: numcpus must be positive, got %d", isl.Name, isl.NumCPUs)
		}
		if _, err := cpu.BuildOPPs(isl.Volts, isl.Freqs); err != nil {
			return invalid("island %q: %v", isl.Name, err)
		}
		if isl.BaseFreq != 0 && !slices.Contains(isl.Freqs, isl.BaseFreq) {
			return invalid("island %q: base_freq %d is not an OPP", isl.Name, isl.BaseFreq)
		}
		if isl.PowerModel != "" {
			if _, ok := models[isl.PowerModel]; !ok {
				return invalid("island %q: unknown power model %q", isl.Name, isl.PowerModel)
			}
		}
		if c.EnergyKernel == nil {
			if err := isl.Kernel.validate(); err != nil {
				return invalid("island %q: %v", isl.Name, err)
			}
		}
	}

	if ek := c.EnergyKernel; ek != nil {
		if !sched.IsValidScheduler(ek.Scheduler) {
			return invalid("energy_kernel: unknown scheduler %q (valid: %v)", ek.Scheduler, sched.SchedulerNames())
		}
		if ek.ContextSwitchDelay < 0 || ek.MigrationDelay < 0 || ek.RRSlice < 0 {
			return invalid("energy_kernel: negative delay")
		}
		if err := ek.Policy.DispatchPolicy().Validate(); err != nil {
			return fmt.Errorf("energy_kernel: %w: %w", ErrInvalidDescriptor, err)
		}
	}
	return nil
}

func (k KernelConfig) validate() error {
	if !sched.IsValidScheduler(k.Scheduler) {
		return fmt.Errorf("unknown scheduler %q (valid: %v)", k.Scheduler, sched.SchedulerNames())
	}
	switch k.TaskPlacement {
	case "", PlacementPartitioned, PlacementGlobal:
	default:
		return fmt.Errorf("unknown task_placement %q", k.TaskPlacement)
	}
	if k.ContextSwitchDelay < 0 || k.MigrationDelay < 0 || k.RRSlice < 0 {
		return fmt.Errorf("negative delay")
	}
	return nil
}

func (k KernelConfig) global() bool { return k.TaskPlacement == PlacementGlobal }

// Island returns the island named name.
func (c *SystemConfig) Island(name string) (IslandConfig, bool) {
	for _, isl := range c.Islands {
		if isl.Name == name {
			return isl, true
		}
	}
	return IslandConfig{}, false
}

func (c *SystemConfig) powerModel(name string) (PowerModelConfig, bool) {
	for _, m := range c.PowerModels {
		if m.Name == name {
			return m, true
		}
	}
	return PowerModelConfig{}, false
}

func (c *SystemConfig) path(name string) string {
	if filepath.IsAbs(name) || c.dir == "" {
		return name
	}
	return filepath.Join(c.dir, name)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDescriptor, fmt.Sprintf(format, args...))
}

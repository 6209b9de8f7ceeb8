package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gabrieleara/PARTSim-sub001/sim/resource"
	"github.com/gabrieleara/PARTSim-sub001/sim/sched"
	"github.com/gabrieleara/PARTSim-sub001/sim/server"
)

// Task arrival kinds.
const (
	TaskPeriodic    = "periodic"
	TaskNonPeriodic = "nonperiodic"
	TaskSporadic    = "sporadic"
)

// Server kinds.
const (
	ServerCBS  = "cbs"
	ServerGRUB = "grub"
)

// TasksetConfig is the taskset descriptor.
type TasksetConfig struct {
	Tasks     []TaskConfig     `yaml:"tasks"`
	Resources []ResourceConfig `yaml:"resources"`
	// ResourceProtocol names the resource manager, fcfs by default.
	ResourceProtocol string `yaml:"resource_protocol"`
}

type TaskConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Period   int64  `yaml:"period"`
	Deadline int64  `yaml:"deadline"` // zero means the period
	Phase    int64  `yaml:"phase"`
	// Interarrival is the random extra gap of a sporadic task.
	Interarrival string `yaml:"interarrival"`
	Code         string `yaml:"code"`
	// Kernel is the island the task runs on and CPU the core of a
	// partitioned island. Both are ignored under an energy kernel.
	Kernel   string        `yaml:"kernel"`
	CPU      int           `yaml:"cpu"`
	Priority *int64        `yaml:"priority"`
	Abort    bool          `yaml:"abort"`
	Server   *ServerConfig `yaml:"server"`
}

// ServerConfig puts a task inside a bandwidth server. Tasks naming the
// same server share it.
type ServerConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Budget     int64  `yaml:"budget"`
	Period     int64  `yaml:"period"`
	Hard       *bool  `yaml:"hard"`
	IdlePolicy string `yaml:"idle_policy"`
	Scheduler  string `yaml:"scheduler"`
}

type ResourceConfig struct {
	Name  string `yaml:"name"`
	Units int    `yaml:"units"`
}

// LoadTaskset reads and validates a taskset descriptor.
func LoadTaskset(path string) (*TasksetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taskset descriptor: %w", err)
	}
	cfg, err := ParseTaskset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseTaskset decodes and validates a taskset descriptor.
func ParseTaskset(data []byte) (*TasksetConfig, error) {
	var cfg TasksetConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing taskset YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the taskset on its own. References to islands are
// checked by Build against the system descriptor.
func (c *TasksetConfig) Validate() error {
	if len(c.Tasks) == 0 {
		return invalid("no tasks")
	}
	names := make(map[string]bool)
	servers := make(map[string]ServerConfig)
	for i, t := range c.Tasks {
		if t.Name == "" {
			return invalid("task %d without a name", i)
		}
		if names[t.Name] {
			return invalid("duplicate task %q", t.Name)
		}
		names[t.Name] = true
		switch t.Type {
		case "", TaskPeriodic, TaskNonPeriodic:
			if t.Interarrival != "" {
				return invalid("task %q: interarrival only applies to sporadic tasks", t.Name)
			}
		case TaskSporadic:
		default:
			return invalid("task %q: unknown type %q", t.Name, t.Type)
		}
		if t.Period <= 0 {
			return invalid("task %q: period must be positive, got %d", t.Name, t.Period)
		}
		if t.Deadline < 0 || t.Phase < 0 || t.CPU < 0 {
			return invalid("task %q: negative deadline, phase or cpu", t.Name)
		}
		if t.Code == "" {
			return invalid("task %q: empty code", t.Name)
		}
		if t.Server == nil {
			continue
		}
		s := t.Server.withDefaults(t.Name)
		if err := s.validate(); err != nil {
			return invalid("task %q: server %q: %v", t.Name, s.Name, err)
		}
		if prev, ok := servers[s.Name]; ok && !prev.equal(s) {
			return invalid("task %q: server %q is configured differently by another task", t.Name, s.Name)
		}
		servers[s.Name] = s
	}

	if _, err := resource.NewManager(c.ResourceProtocol); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	res := make(map[string]bool)
	for _, r := range c.Resources {
		if r.Name == "" || res[r.Name] {
			return invalid("resource name %q is empty or duplicated", r.Name)
		}
		if r.Units <= 0 {
			return invalid("resource %q: units must be positive, got %d", r.Name, r.Units)
		}
		res[r.Name] = true
	}
	return nil
}

// withDefaults fills the name, kind and hardness of a server. The result
// is matched with equal when several tasks share a server.
func (s ServerConfig) withDefaults(task string) ServerConfig {
	if s.Name == "" {
		s.Name = "server_" + task
	}
	if s.Type == "" {
		s.Type = ServerCBS
	}
	if s.Hard == nil {
		hard := true
		s.Hard = &hard
	}
	return s
}

// equal compares two server descriptions by value.
func (s ServerConfig) equal(o ServerConfig) bool {
	return s.Name == o.Name && s.Type == o.Type && s.Budget == o.Budget && s.Period == o.Period &&
		*s.Hard == *o.Hard && s.IdlePolicy == o.IdlePolicy && s.Scheduler == o.Scheduler
}

func (s ServerConfig) validate() error {
	switch s.Type {
	case ServerCBS, ServerGRUB:
	default:
		return fmt.Errorf("unknown type %q", s.Type)
	}
	if s.Budget <= 0 || s.Budget > s.Period {
		return fmt.Errorf("need 0 < budget <= period, got %d/%d", s.Budget, s.Period)
	}
	if _, ok := server.ValidIdlePolicies[s.IdlePolicy]; !ok {
		return fmt.Errorf("unknown idle_policy %q", s.IdlePolicy)
	}
	if !sched.IsValidScheduler(s.Scheduler) {
		return fmt.Errorf("unknown scheduler %q", s.Scheduler)
	}
	return nil
}

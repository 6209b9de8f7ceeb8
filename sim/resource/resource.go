// Package resource arbitrates shared resources between tasks.
//
// Tasks lock and unlock resources through their kernel with the wait and
// signal instructions. A task that cannot obtain a resource is suspended
// and reactivated, through its kernel, once the units it asked for are
// available.
package resource

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

var (
	// ErrUnknownResource is returned for names never added to a manager.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrNotOwner is returned when releasing units a task does not hold.
	ErrNotOwner = errors.New("task does not hold the resource")

	// ErrUnsupportedProtocol is returned by NewManager for access
	// protocols that are not provided.
	ErrUnsupportedProtocol = errors.New("unsupported resource access protocol")
)

// Manager is a resource manager whose resources are declared up front.
type Manager interface {
	rt.ResourceManager
	Name() string
	NewRun()
	EndRun()
	AddResource(name string, units int) error
}

// NewManager creates a manager by protocol name.
func NewManager(protocol string) (Manager, error) {
	switch protocol {
	case "", "fcfs":
		return NewFCFSManager(), nil
	default:
		return nil, fmt.Errorf("%q: %w", protocol, ErrUnsupportedProtocol)
	}
}

// Resource is a pool of identical units.
type Resource struct {
	name      string
	units     int
	available int
	owners    map[rt.Task]int
}

func (r *Resource) Name() string { return r.name }
func (r *Resource) Units() int { return r.units }
func (r *Resource) Available() int { return r.available }

// Held returns how many units t holds.
func (r *Resource) Held(t rt.Task) int { return r.owners[t] }

type waiter struct {
	task rt.Task
	n    int
}

// FCFSManager grants resources in request order. A request that cannot
// be satisfied, or that would overtake an earlier blocked one, blocks.
type FCFSManager struct {
	resources map[string]*Resource
	order     []string
	blocked   map[string][]waiter
}

// NewFCFSManager creates an empty manager.
func NewFCFSManager() *FCFSManager {
	return &FCFSManager{
		resources: make(map[string]*Resource),
		blocked:   make(map[string][]waiter),
	}
}

func (m *FCFSManager) Name() string { return "fcfs_resources" }

// AddResource declares a resource with the given number of units.
func (m *FCFSManager) AddResource(name string, units int) error {
	if units < 1 {
		return fmt.Errorf("resource %q: units must be positive, got %d", name, units)
	}
	if _, dup := m.resources[name]; dup {
		return fmt.Errorf("resource %q declared twice", name)
	}
	m.resources[name] = &Resource{name: name, units: units, available: units, owners: make(map[rt.Task]int)}
	m.order = append(m.order, name)
	return nil
}

// Resource returns a declared resource.
func (m *FCFSManager) Resource(name string) (*Resource, error) {
	r, ok := m.resources[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownResource)
	}
	return r, nil
}

// Blocked returns the tasks waiting for a resource, in arrival order.
func (m *FCFSManager) Blocked(name string) []rt.Task {
	var out []rt.Task
	for _, w := range m.blocked[name] {
		out = append(out, w.task)
	}
	return out
}

// NewRun frees every resource.
func (m *FCFSManager) NewRun() {
	for _, name := range m.order {
		r := m.resources[name]
		r.available = r.units
		clear(r.owners)
		delete(m.blocked, name)
	}
}

func (m *FCFSManager) EndRun() {}

func (m *FCFSManager) Request(t rt.Task, name string, n int) (bool, error) {
	r, err := m.Resource(name)
	if err != nil {
		return false, err
	}
	if n > r.units {
		return false, fmt.Errorf("task %s asks %d units of %q, which has %d", t.Name(), n, name, r.units)
	}
	if r.available >= n && len(m.blocked[name]) == 0 {
		r.available -= n
		r.owners[t] += n
		return false, nil
	}
	logrus.Debugf("%s blocked on %s", t.Name(), name)
	m.blocked[name] = append(m.blocked[name], waiter{task: t, n: n})
	k := t.Kernel()
	k.Suspend(t)
	k.Dispatch()
	return true, nil
}

func (m *FCFSManager) Release(t rt.Task, name string, n int) error {
	r, err := m.Resource(name)
	if err != nil {
		return err
	}
	if r.owners[t] < n {
		return fmt.Errorf("task %s releases %d units of %q holding %d: %w", t.Name(), n, name, r.owners[t], ErrNotOwner)
	}
	r.owners[t] -= n
	if r.owners[t] == 0 {
		delete(r.owners, t)
	}
	r.available += n

	queue := m.blocked[name]
	for len(queue) > 0 && r.available >= queue[0].n {
		w := queue[0]
		queue = queue[1:]
		r.available -= w.n
		r.owners[w.task] += w.n
		logrus.Debugf("%s unblocked on %s", w.task.Name(), name)
		w.task.Kernel().OnArrival(w.task)
	}
	m.blocked[name] = queue
	return nil
}

var _ Manager = (*FCFSManager)(nil)

// Package sched orders the ready tasks of a kernel or server.
//
// Every scheduler keeps one TaskModel per registered task and a ready queue
// sorted by the tuple (priority, insertion time, task ID), lowest first.
// The priority is read when a task is inserted, so a deadline that moves
// while a task is queued only takes effect at its next insertion.
package sched

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/rt"
)

var (
	// ErrTaskNotFound is returned for tasks never added to the scheduler.
	ErrTaskNotFound = errors.New("task not found in scheduler")

	// ErrTaskExists is returned when adding a task twice.
	ErrTaskExists = errors.New("task already present in scheduler")

	// ErrFixedPriority is returned by schedulers whose priorities cannot change.
	ErrFixedPriority = errors.New("priority cannot be changed")
)

// Scheduler is a ready queue with a scheduling policy.
type Scheduler interface {
	Name() string
	NewRun()
	EndRun()

	// AddTask registers a task with default parameters.
	AddTask(t rt.Task) error
	RemoveTask(t rt.Task) error
	Has(t rt.Task) bool
	Tasks() []rt.Task

	// Insert stamps the insertion time and queues the task.
	Insert(t rt.Task) error
	// Extract removes the task from the queue.
	Extract(t rt.Task) error
	InQueue(t rt.Task) bool

	// TaskN returns the n-th task in priority order, nil past the end.
	TaskN(n int) rt.Task
	First() rt.Task
	Len() int
	Queue() []rt.Task

	Priority(t rt.Task) (int64, error)
	ChangePriority(t rt.Task, p int64) error

	// Notify tells the scheduler which task is running, nil for none.
	Notify(t rt.Task)
	SetKernel(k rt.Kernel)
}

// TaskModel is the scheduler-private view of a task.
type TaskModel struct {
	task       rt.Task
	insertTime sim.Tick
	active     bool

	key int64 // priority when last inserted

	static   int64 // fixed priority, RR slice
	override bool  // EDF explicit priority
}

func (m *TaskModel) Task() rt.Task { return m.task }
func (m *TaskModel) InsertTime() sim.Tick { return m.insertTime }
func (m *TaskModel) Active() bool { return m.active }

func compareModels(a, b *TaskModel) int {
	if c := cmp.Compare(a.key, b.key); c != 0 {
		return c
	}
	if c := cmp.Compare(a.insertTime, b.insertTime); c != 0 {
		return c
	}
	return cmp.Compare(a.task.ID(), b.task.ID())
}

// base implements the queue shared by every policy.
type base struct {
	name   string
	sim    *sim.Simulation
	kernel rt.Kernel

	models  map[rt.Task]*TaskModel
	order   []rt.Task // registration order
	queue   []*TaskModel
	current rt.Task

	priority func(m *TaskModel) int64
}

func newBase(s *sim.Simulation, name string, prio func(m *TaskModel) int64) base {
	return base{
		name:     name,
		sim:      s,
		models:   make(map[rt.Task]*TaskModel),
		priority: prio,
	}
}

func (b *base) Name() string { return b.name }
func (b *base) SetKernel(k rt.Kernel) { b.kernel = k }
func (b *base) Kernel() rt.Kernel { return b.kernel }
func (b *base) Len() int { return len(b.queue) }
func (b *base) Tasks() []rt.Task { return b.order }
func (b *base) Current() rt.Task { return b.current }
func (b *base) Notify(t rt.Task) { b.current = t }
func (b *base) Has(t rt.Task) bool { _, ok := b.models[t]; return ok }
func (b *base) First() rt.Task { return b.TaskN(0) }

// NewRun empties the queue and marks every task inactive.
func (b *base) NewRun() {
	b.queue = b.queue[:0]
	b.current = nil
	for _, m := range b.models {
		m.active = false
	}
}

func (b *base) EndRun() {}

func (b *base) enqueueModel(t rt.Task) (*TaskModel, error) {
	if _, ok := b.models[t]; ok {
		return nil, fmt.Errorf("%s: adding %s: %w", b.name, t.Name(), ErrTaskExists)
	}
	m := &TaskModel{task: t}
	b.models[t] = m
	b.order = append(b.order, t)
	return m, nil
}

func (b *base) AddTask(t rt.Task) error {
	_, err := b.enqueueModel(t)
	return err
}

func (b *base) RemoveTask(t rt.Task) error {
	m, err := b.find(t)
	if err != nil {
		return err
	}
	b.unqueue(m)
	delete(b.models, t)
	if i := slices.Index(b.order, t); i >= 0 {
		b.order = slices.Delete(b.order, i, i+1)
	}
	return nil
}

func (b *base) find(t rt.Task) (*TaskModel, error) {
	m, ok := b.models[t]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", b.name, taskName(t), ErrTaskNotFound)
	}
	return m, nil
}

// Model returns the model of a registered task.
func (b *base) Model(t rt.Task) (*TaskModel, error) {
	return b.find(t)
}

func (b *base) Insert(t rt.Task) error {
	m, err := b.find(t)
	if err != nil {
		return err
	}
	b.unqueue(m)
	m.insertTime = b.sim.Now()
	m.active = true
	b.enqueue(m)
	return nil
}

func (b *base) Extract(t rt.Task) error {
	m, err := b.find(t)
	if err != nil {
		return err
	}
	b.unqueue(m)
	m.active = false
	return nil
}

func (b *base) InQueue(t rt.Task) bool {
	m, ok := b.models[t]
	return ok && b.indexOf(m) >= 0
}

func (b *base) TaskN(n int) rt.Task {
	if n < 0 || n >= len(b.queue) {
		return nil
	}
	return b.queue[n].task
}

func (b *base) Queue() []rt.Task {
	out := make([]rt.Task, len(b.queue))
	for i, m := range b.queue {
		out[i] = m.task
	}
	return out
}

func (b *base) Priority(t rt.Task) (int64, error) {
	m, err := b.find(t)
	if err != nil {
		return 0, err
	}
	return b.priority(m), nil
}

// rekey reorders a queued model after its priority changed.
func (b *base) rekey(m *TaskModel) {
	if b.indexOf(m) < 0 {
		return
	}
	b.unqueue(m)
	b.enqueue(m)
}

func (b *base) enqueue(m *TaskModel) {
	m.key = b.priority(m)
	i, _ := slices.BinarySearchFunc(b.queue, m, compareModels)
	b.queue = slices.Insert(b.queue, i, m)
}

func (b *base) unqueue(m *TaskModel) {
	if i := b.indexOf(m); i >= 0 {
		b.queue = slices.Delete(b.queue, i, i+1)
	}
}

func (b *base) indexOf(m *TaskModel) int {
	return slices.Index(b.queue, m)
}

func (b *base) String() string {
	names := make([]string, len(b.queue))
	for i, m := range b.queue {
		names[i] = m.task.Name()
	}
	return fmt.Sprintf("%s ready queue: %s", b.name, strings.Join(names, " -> "))
}

func taskName(t rt.Task) string {
	if t == nil {
		return "(nil)"
	}
	return t.Name()
}

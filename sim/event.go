package sim

import (
	"fmt"
)

// Event priorities. Lower values fire first among events posted for the
// same tick.
const (
	// ImmediatePriority is used by Process to fire an event before every
	// normally scheduled event of the current tick.
	ImmediatePriority = 0

	// DefaultPriority is the priority of an event created without one.
	DefaultPriority = 100
)

// Handler is the action executed when an event fires.
type Handler func(e *Event)

// Event is a named, reusable occurrence owned by an entity.
//
// An event is created once and posted many times. While posted it is
// "live": it sits in the simulation queue and cannot be posted again until
// it fires or is dropped. Disposable events are forgotten by their owner
// once they have fired.
type Event struct {
	HookableBase

	name    string
	sim     *Simulation
	handler Handler

	time     Tick
	lastTime Tick

	priority    int
	stdPriority int

	order      uint64
	index      int // position in the queue heap, -1 when not live
	disposable bool

	// Data is free for the owner to attach context (a task, a cpu).
	Data any
}

// NewEvent creates an event bound to this simulation.
func (s *Simulation) NewEvent(name string, priority int, h Handler) *Event {
	return &Event{
		name:        name,
		sim:         s,
		handler:     h,
		time:        MaxTick,
		lastTime:    0,
		priority:    priority,
		stdPriority: priority,
		index:       -1,
	}
}

// Name returns the event name.
func (e *Event) Name() string { return e.name }

// Time returns the instant the event is posted at, MaxTick if never posted.
func (e *Event) Time() Tick { return e.time }

// LastTime returns the instant the event last fired.
func (e *Event) LastTime() Tick { return e.lastTime }

// Priority returns the current priority.
func (e *Event) Priority() int { return e.priority }

// IsQueued reports whether the event is live.
func (e *Event) IsQueued() bool { return e.index >= 0 }

// IsDisposable reports whether the event was posted as disposable.
func (e *Event) IsDisposable() bool { return e.disposable }

// SetPriority changes both the current and the standard priority.
// It must not be called while the event is live.
func (e *Event) SetPriority(p int) {
	e.priority = p
	e.stdPriority = p
}

// Post inserts the event in the simulation queue at time t.
func (e *Event) Post(t Tick) error {
	return e.post(t, false)
}

// PostDisposable is Post for events the owner drops after firing.
func (e *Event) PostDisposable(t Tick) error {
	return e.post(t, true)
}

// MustPost posts the event and panics on protocol violations.
func (e *Event) MustPost(t Tick) {
	if err := e.Post(t); err != nil {
		panic(err)
	}
}

func (e *Event) post(t Tick, disposable bool) error {
	if e.IsQueued() {
		return fmt.Errorf("posting %q at %v: %w", e.name, t, ErrAlreadyQueued)
	}
	if t < e.sim.Now() {
		return fmt.Errorf("posting %q at %v (now %v): %w", e.name, t, e.sim.Now(), ErrPastPosting)
	}
	e.time = t
	e.disposable = disposable
	e.sim.queue.Schedule(e)
	return nil
}

// Drop removes the event from the queue. Dropping a non-live event is a no-op.
func (e *Event) Drop() {
	if !e.IsQueued() {
		return
	}
	e.sim.queue.Remove(e)
}

// Process forces the event to fire again in the current tick, ahead of
// every event posted with a normal priority.
func (e *Event) Process() {
	e.Drop()
	e.priority = ImmediatePriority
	e.MustPost(e.sim.Now())
}

func (e *Event) fire() {
	e.lastTime = e.time
	e.priority = e.stdPriority
	if e.handler != nil {
		e.handler(e)
	}
	if e.NumHooks() > 0 {
		e.InvokeHook(HookCtx{
			Domain: e,
			Now:    e.lastTime,
			Pos:    HookPosEventFired,
			Item:   e,
		})
	}
}

func (e *Event) String() string {
	return fmt.Sprintf("%s@%v/%d", e.name, e.time, e.priority)
}

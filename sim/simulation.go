package sim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Run-count sentinels accepted by Run.
const (
	// RunsContinueBatch runs once without initializing or finalizing statistics.
	RunsContinueBatch = -1

	// RunsLastInBatch runs once and finalizes statistics without initializing them.
	RunsLastInBatch = 0
)

// priority of the sentinel posted by RunTo
const runToPriority = DefaultPriority + 10

// Simulation owns the event queue and the global clock.
//
// Every component receives the Simulation it belongs to at construction,
// so independent simulations can live side by side.
type Simulation struct {
	queue *EventQueue
	now   Tick

	entities []Entity
	byName   map[string]Entity
	stats    []Stat

	rng *PartitionedRNG

	numRuns int
	actRuns int
	ended   bool
}

// NewSimulation creates an empty simulation seeded by key.
func NewSimulation(key SimulationKey) *Simulation {
	return &Simulation{
		queue:  NewEventQueue(),
		byName: make(map[string]Entity),
		rng:    NewPartitionedRNG(key),
	}
}

// Now returns the current simulation time.
func (s *Simulation) Now() Tick {
	return s.now
}

// RNG returns the simulation's partitioned random source.
func (s *Simulation) RNG() *PartitionedRNG {
	return s.rng
}

// Register adds an entity. Entities receive NewRun/EndRun in registration order.
// Names must be unique among named entities; an empty name is allowed.
func (s *Simulation) Register(e Entity) error {
	if name := e.Name(); name != "" {
		if _, dup := s.byName[name]; dup {
			return fmt.Errorf("entity %q already registered", name)
		}
		s.byName[name] = e
	}
	s.entities = append(s.entities, e)
	return nil
}

// MustRegister is Register that panics on a duplicate name.
func (s *Simulation) MustRegister(e Entity) {
	if err := s.Register(e); err != nil {
		panic(err)
	}
}

// Lookup finds a registered entity by name.
func (s *Simulation) Lookup(name string) (Entity, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// Entities returns the registered entities in registration order.
func (s *Simulation) Entities() []Entity {
	return s.entities
}

// AddStat registers a statistic collector.
func (s *Simulation) AddStat(st Stat) {
	s.stats = append(s.stats, st)
}

// Pending returns the number of live events.
func (s *Simulation) Pending() int {
	return s.queue.Len()
}

// NextEventTime returns the time of the earliest live event.
func (s *Simulation) NextEventTime() (Tick, error) {
	e := s.queue.Peek()
	if e == nil {
		return 0, ErrNoMoreEvents
	}
	return e.time, nil
}

// Step fires the earliest live event and returns its time.
func (s *Simulation) Step() (Tick, error) {
	e := s.queue.PopNext()
	if e == nil {
		return s.now, ErrNoMoreEvents
	}
	s.now = e.time
	e.fire()
	return s.now, nil
}

// RunTo fires every event with time <= stop and leaves the clock at stop.
// An empty queue ends the run silently.
func (s *Simulation) RunTo(stop Tick) Tick {
	sentinel := s.NewEvent("run_to", runToPriority, nil)
	if err := sentinel.PostDisposable(stop); err != nil {
		logrus.Debugf("run_to(%v): %v", stop, err)
		return s.now
	}
	defer sentinel.Drop()

	for {
		next, err := s.NextEventTime()
		if err != nil || next > stop {
			break
		}
		if _, err := s.Step(); err != nil {
			if errors.Is(err, ErrNoMoreEvents) {
				logrus.Debugf("No more events in queue: simulation time = %v", s.now)
				break
			}
		}
	}
	return s.now
}

// InitSingleRun resets the clock and calls NewRun on every entity.
func (s *Simulation) InitSingleRun() {
	s.now = 0
	for _, e := range s.entities {
		e.NewRun()
	}
	for _, st := range s.stats {
		st.NewRun()
	}
}

// EndSingleRun calls EndRun on every entity and clears the queue.
func (s *Simulation) EndSingleRun() {
	for _, e := range s.entities {
		e.EndRun()
	}
	for _, st := range s.stats {
		st.EndRun()
	}
	s.ClearEventQueue()
}

// ClearEventQueue drops every live event and resets the clock.
func (s *Simulation) ClearEventQueue() {
	s.queue.Clear()
	s.now = 0
}

// Run executes nRuns independent runs, each up to endTick.
//
// nRuns >= 1 is a self-contained batch. The sentinels RunsContinueBatch
// and RunsLastInBatch execute a single run that respectively neither
// initializes nor finalizes statistics, or only finalizes them. A value
// below -1 opens a batch of -nRuns runs and executes the first one.
func (s *Simulation) Run(endTick Tick, nRuns int) {
	initRuns, finalize := true, true
	switch {
	case nRuns < RunsContinueBatch:
		s.initRuns(-nRuns)
		initRuns, finalize = false, false
		s.numRuns = 1
	case nRuns == RunsContinueBatch:
		initRuns, finalize = false, false
		s.numRuns = 1
	case nRuns == RunsLastInBatch:
		initRuns, finalize = false, true
		s.numRuns = 1
	default:
		s.numRuns = nRuns
	}
	if initRuns {
		s.initRuns(s.numRuns)
	}

	for s.actRuns = 0; s.actRuns < s.numRuns; s.actRuns++ {
		logrus.Debugf("Run #%d", s.actRuns)
		s.InitSingleRun()
		s.RunTo(endTick)
		s.EndSingleRun()
	}

	s.ended = true
	if finalize {
		for _, st := range s.stats {
			st.EndSim()
		}
	}
}

// CurrentRun returns the index of the run in progress.
func (s *Simulation) CurrentRun() int {
	return s.actRuns
}

// Ended reports whether the last call to Run completed.
func (s *Simulation) Ended() bool {
	return s.ended
}

func (s *Simulation) initRuns(n int) {
	s.now = 0
	s.ended = false
	for _, st := range s.stats {
		st.InitRuns(n)
	}
}

package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firingLog records the names of fired events in order.
type firingLog struct {
	names []string
	times []Tick
}

func (l *firingLog) handler(e *Event) {
	l.names = append(l.names, e.Name())
	l.times = append(l.times, e.LastTime())
}

// TestEventQueue_TimestampOrdering tests that events fire in time order
// regardless of posting order.
func TestEventQueue_TimestampOrdering(t *testing.T) {
	s := NewSimulation(NewSimulationKey(1))
	log := &firingLog{}

	e1 := s.NewEvent("e100", DefaultPriority, log.handler)
	e2 := s.NewEvent("e50", DefaultPriority, log.handler)
	e3 := s.NewEvent("e150", DefaultPriority, log.handler)
	require.NoError(t, e1.Post(100))
	require.NoError(t, e2.Post(50))
	require.NoError(t, e3.Post(150))

	s.RunTo(200)

	assert.Equal(t, []string{"e50", "e100", "e150"}, log.names)
	assert.Equal(t, []Tick{50, 100, 150}, log.times)
	assert.Equal(t, Tick(200), s.Now())
}

// TestEventQueue_PriorityThenInsertionOrder tests same-time ordering.
func TestEventQueue_PriorityThenInsertionOrder(t *testing.T) {
	s := NewSimulation(NewSimulationKey(1))
	log := &firingLog{}

	low := s.NewEvent("low", DefaultPriority+10, log.handler)
	firstDefault := s.NewEvent("first", DefaultPriority, log.handler)
	secondDefault := s.NewEvent("second", DefaultPriority, log.handler)
	high := s.NewEvent("high", DefaultPriority-1, log.handler)

	low.MustPost(10)
	firstDefault.MustPost(10)
	secondDefault.MustPost(10)
	high.MustPost(10)

	s.RunTo(10)

	assert.Equal(t, []string{"high", "first", "second", "low"}, log.names)
}

// TestEvent_NoDoublePosting tests that a live event cannot be posted again.
func TestEvent_NoDoublePosting(t *testing.T) {
	s := NewSimulation(NewSimulationKey(1))
	e := s.NewEvent("e", DefaultPriority, nil)

	require.NoError(t, e.Post(5))
	err := e.Post(6)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Equal(t, Tick(5), e.Time())
	assert.Panics(t, func() { e.MustPost(7) })
}

// TestEvent_PastPosting tests that posting before now fails.
func TestEvent_PastPosting(t *testing.T) {
	s := NewSimulation(NewSimulationKey(1))
	s.RunTo(20)

	e := s.NewEvent("late", DefaultPriority, nil)
	assert.ErrorIs(t, e.Post(19), ErrPastPosting)
	assert.False(t, e.IsQueued())
	assert.NoError(t, e.Post(20))
}

// TestEvent_DropIsIdempotent tests that dropping a non-live event is a no-op.
func TestEvent_DropIsIdempotent(t *testing.T) {
	s := NewSimulation(NewSimulationKey(1))
	log := &firingLog{}
	e := s.NewEvent("e", DefaultPriority, log.handler)

	e.Drop()
	e.MustPost(3)
	e.Drop()
	e.Drop()
	assert.False(t, e.IsQueued())

	s.RunTo(10)
	assert.Empty(t, log.names)
}

// TestEvent_ProcessFiresFirstInTick tests that Process jumps ahead of
// normal events of the current tick and restores the priority afterwards.
func TestEvent_ProcessFiresFirstInTick(t *testing.T) {
	s := NewSimulation(NewSimulationKey(1))
	log := &firingLog{}

	chained := s.NewEvent("chained", DefaultPriority+5, log.handler)
	normal := s.NewEvent("normal", DefaultPriority, log.handler)
	trigger := s.NewEvent("trigger", DefaultPriority-1, func(e *Event) {
		log.handler(e)
		chained.Process()
	})

	trigger.MustPost(4)
	normal.MustPost(4)
	s.RunTo(4)

	assert.Equal(t, []string{"trigger", "chained", "normal"}, log.names)
	assert.Equal(t, DefaultPriority+5, chained.Priority())
}

// TestEvent_ReentrantRepost tests that a handler may repost its own event.
func TestEvent_ReentrantRepost(t *testing.T) {
	s := NewSimulation(NewSimulationKey(1))
	count := 0
	var periodic *Event
	periodic = s.NewEvent("periodic", DefaultPriority, func(e *Event) {
		count++
		e.MustPost(s.Now() + 10)
	})
	periodic.MustPost(0)

	s.RunTo(35)
	assert.Equal(t, 4, count)
	assert.Equal(t, Tick(40), periodic.Time())
}

// TestEvent_HooksRunAfterHandler tests that hooks observe a fired event.
func TestEvent_HooksRunAfterHandler(t *testing.T) {
	s := NewSimulation(NewSimulationKey(1))
	var order []string
	e := s.NewEvent("check", DefaultPriority, func(*Event) { order = append(order, "handler") })
	e.AcceptHook(HookFunc(func(ctx HookCtx) {
		order = append(order, "hook")
		assert.Equal(t, HookPosEventFired, ctx.Pos)
		assert.Equal(t, Tick(7), ctx.Now)
	}))
	e.MustPost(7)
	s.RunTo(7)
	assert.Equal(t, []string{"handler", "hook"}, order)
}

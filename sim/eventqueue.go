package sim

import "container/heap"

// EventQueue holds the live events of a simulation.
// Ordering: time → priority → insertion order
type EventQueue struct {
	events    []*Event
	nextOrder uint64
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		events: make([]*Event, 0),
	}
	heap.Init(q)
	return q
}

// Len implements heap.Interface
func (q *EventQueue) Len() int {
	return len(q.events)
}

// Less implements heap.Interface with deterministic ordering
// Order by: time → priority → insertion order
func (q *EventQueue) Less(i, j int) bool {
	ei, ej := q.events[i], q.events[j]

	// Primary: time (earlier first)
	if ei.time != ej.time {
		return ei.time < ej.time
	}

	// Secondary: priority (lower value first)
	if ei.priority != ej.priority {
		return ei.priority < ej.priority
	}

	// Tertiary: insertion order (FIFO among equals)
	return ei.order < ej.order
}

// Swap implements heap.Interface
func (q *EventQueue) Swap(i, j int) {
	q.events[i], q.events[j] = q.events[j], q.events[i]
	q.events[i].index = i
	q.events[j].index = j
}

// Push implements heap.Interface
func (q *EventQueue) Push(x any) {
	e := x.(*Event)
	e.index = len(q.events)
	q.events = append(q.events, e)
}

// Pop implements heap.Interface
func (q *EventQueue) Pop() any {
	old := q.events
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	q.events = old[0 : n-1]
	return item
}

// Schedule adds an event, stamping its insertion order.
func (q *EventQueue) Schedule(e *Event) {
	q.nextOrder++
	e.order = q.nextOrder
	heap.Push(q, e)
}

// Remove takes a live event out of the queue.
func (q *EventQueue) Remove(e *Event) {
	if e.index < 0 || e.index >= len(q.events) || q.events[e.index] != e {
		return
	}
	heap.Remove(q, e.index)
}

// PopNext removes and returns the next event
func (q *EventQueue) PopNext() *Event {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*Event)
}

// Peek returns the next event without removing it
func (q *EventQueue) Peek() *Event {
	if q.Len() == 0 {
		return nil
	}
	return q.events[0]
}

// Clear drops every live event.
func (q *EventQueue) Clear() {
	for _, e := range q.events {
		e.index = -1
	}
	q.events = q.events[:0]
}

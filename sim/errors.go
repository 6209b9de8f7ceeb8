package sim

import "errors"

var (
	// ErrAlreadyQueued is returned when posting an event that is still live.
	ErrAlreadyQueued = errors.New("event already queued")

	// ErrPastPosting is returned when posting an event before the current time.
	ErrPastPosting = errors.New("event posted in the past")

	// ErrNoMoreEvents is returned by Step when the queue is empty.
	ErrNoMoreEvents = errors.New("no more events")
)

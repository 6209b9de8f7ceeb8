// Package sim provides the discrete-event simulation engine of PARTSim.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - tick.go: the integer time unit and its real-number conversions
//   - event.go: reusable events (Post, Drop, Process) and their firing
//   - eventqueue.go: the (time, priority, insertion order) heap
//   - simulation.go: the clock, RunTo and the multi-run Run loop
//
// # Architecture
//
// The sim package only knows about time and events. The real-time model
// lives in sub-packages:
//   - sim/cpu/: OPPs, frequency islands, cores and power/speed models
//   - sim/rt/: tasks and the instruction language that scripts them
//   - sim/sched/: ready queues (EDF, FP, RR, FIFO)
//   - sim/server/: CBS and GRUB bandwidth servers
//   - sim/kernel/: single-core, global multi-core and energy-aware kernels
//   - sim/resource/: shared resources and their managers
//   - sim/trace/: text, JSON, SQLite and power trace sinks
//   - sim/randvar/: random variables for synthesized workloads
//
// # Same-tick causality
//
// Handlers may post events for the current tick. Event.Process reposts an
// event at the current time with ImmediatePriority, which is how a kernel
// makes "descheduled before rescheduled" chains deterministic within a tick.
package sim

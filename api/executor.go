// Package api
// Author: momentics
//
// Executor contract. When an endpoint is configured with an external
// Executor (spec.md §6, "executor"), the internal WorkerStack is not used:
// dispatch constructs a per-call task and submits it here instead.

package api

// Executor abstracts a zero-argument task dispatcher. Implementations must
// swallow errors raised by the task itself; Submit only reports dispatch
// failures (queue full, executor closed).
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error

	// NumWorkers returns current number of active worker routines.
	NumWorkers() int

	// Resize adjusts the concurrency at runtime.
	Resize(newCount int)
}

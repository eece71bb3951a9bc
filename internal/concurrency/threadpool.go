// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadPool adapts Executor to the api.Executor contract (spec.md §6
// "executor" option): an Endpoint built with ThreadPool as its Config.Executor
// bypasses the internal WorkerStack entirely.

package concurrency

type ThreadPool struct {
	executor *Executor
}

// NewThreadPool builds a ThreadPool with size workers (runtime.NumCPU() if
// size <= 0).
func NewThreadPool(size int) *ThreadPool {
	return &ThreadPool{
		executor: NewExecutor(size),
	}
}

func (tp *ThreadPool) Submit(f func()) error {
	return tp.executor.Submit(f)
}

func (tp *ThreadPool) NumWorkers() int {
	return tp.executor.NumWorkers()
}

func (tp *ThreadPool) Resize(newCount int) {
	tp.executor.Resize(newCount)
}

func (tp *ThreadPool) Close() {
	tp.executor.Close()
}

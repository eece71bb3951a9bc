// File: endpoint/workerstack.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WorkerStack: bounded LIFO pool of idle Worker handles (spec.md §4.3).
// Grounded on the teacher's concurrency.Executor worker-count bookkeeping
// (atomic counters guarded by a resize mutex); here the idle pool itself is
// the thing being resized, so a single mutex + condition variable guards
// both the stack and the curThreads/curThreadsBusy counters together.

package endpoint

import (
	"sync"

	"go.uber.org/zap"
)

// WorkerStack is a fixed-capacity LIFO of idle *Worker plus the live worker
// accounting (curThreads, curThreadsBusy) spec.md §3 requires to hold
// `curThreads = idle + curThreadsBusy` at every synchronization boundary.
type WorkerStack struct {
	mu   sync.Mutex
	cond *sync.Cond

	endpoint *Endpoint
	log      *zap.Logger

	items    []*Worker
	capacity int

	maxThreads     int // <0 unbounded, 0 disabled, >0 bounded
	curThreads     int
	curThreadsBusy int
	loggedMax      bool
	nextID         int
}

func newWorkerStack(e *Endpoint, capacity, maxThreads int) *WorkerStack {
	s := &WorkerStack{
		endpoint:   e,
		log:        e.cfg.Logger,
		capacity:   capacity,
		maxThreads: maxThreads,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// createWorkerThreadLocked implements spec.md §4.3's four-step acquisition
// policy. Caller must hold s.mu.
func (s *WorkerStack) createWorkerThreadLocked() *Worker {
	if n := len(s.items); n > 0 {
		w := s.items[n-1]
		s.items = s.items[:n-1]
		s.curThreadsBusy++
		return w
	}
	if s.maxThreads > 0 && s.curThreads < s.maxThreads {
		return s.spawnLocked()
	}
	if s.maxThreads < 0 {
		return s.spawnLocked()
	}
	return nil
}

func (s *WorkerStack) spawnLocked() *Worker {
	w := newWorker(s.nextID, s.endpoint)
	s.nextID++
	s.curThreads++
	s.curThreadsBusy++
	go w.run()
	if s.maxThreads > 0 && s.curThreadsBusy == s.maxThreads && !s.loggedMax {
		s.loggedMax = true
		s.log.Info("worker pool reached maxThreads", zap.Int("maxThreads", s.maxThreads))
	}
	return w
}

// getWorkerThread loops createWorkerThreadLocked, waiting on the condition
// variable whenever the pool is at maxThreads and every worker is busy
// (spec.md §4.3 step 4: "caller blocks on the stack's condition variable").
// Returns nil only when maxThreads==0 (worker creation disabled).
func (s *WorkerStack) getWorkerThread() *Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxThreads == 0 {
		return nil
	}
	for {
		if w := s.createWorkerThreadLocked(); w != nil {
			return w
		}
		s.cond.Wait()
	}
}

// recycle pushes w back onto the idle stack and decrements curThreadsBusy.
// It reports false when the stack was already at capacity — the caller
// (Worker.run) must then retire: the push is dropped and curThreads
// decremented, exactly the "push drops, decrementing curThreads" rule that
// lets Resize shrink the pool live.
func (s *WorkerStack) recycle(w *Worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curThreadsBusy--
	if len(s.items) >= s.capacity {
		s.curThreads--
		s.cond.Broadcast()
		return false
	}
	s.items = append(s.items, w)
	s.cond.Broadcast()
	return true
}

// resize copies min(old,new) idle entries and retires the rest (spec.md
// §4.3 "resize(newSize) copies min(old,new) entries; existing excess
// workers are considered retired").
func (s *WorkerStack) resize(newSize int) {
	if newSize < 0 {
		newSize = 0
	}
	s.mu.Lock()
	var retired []*Worker
	if len(s.items) > newSize {
		retired = append(retired, s.items[newSize:]...)
		s.items = s.items[:newSize]
		s.curThreads -= len(retired)
	}
	s.capacity = newSize
	s.maxThreads = newSize
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, w := range retired {
		w.shutdown()
	}
}

// size reports the number of idle workers currently parked.
func (s *WorkerStack) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// stats reports curThreads/curThreadsBusy for tests and diagnostics.
func (s *WorkerStack) stats() (curThreads, curThreadsBusy int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curThreads, s.curThreadsBusy
}

// shutdownAll retires every live worker (idle and, via their own next loop
// iteration, busy ones once they finish the in-flight assignment).
func (s *WorkerStack) shutdownAll() {
	s.mu.Lock()
	idle := append([]*Worker(nil), s.items...)
	s.items = nil
	s.capacity = 0 // every later recycle overflows, so busy workers retire
	s.mu.Unlock()
	for _, w := range idle {
		w.shutdown()
	}
}

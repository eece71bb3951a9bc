// File: endpoint/workerstack_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func testEndpointForStack(maxThreads int) *Endpoint {
	cfg := NewConfig(WithMaxThreads(maxThreads), WithLogger(zap.NewNop()))
	e := New(cfg)
	e.workerStack = newWorkerStack(e, maxThreads, maxThreads)
	return e
}

func TestWorkerStack_CurThreadsInvariant(t *testing.T) {
	e := testEndpointForStack(2)
	s := e.workerStack

	w1 := s.getWorkerThread()
	if w1 == nil {
		t.Fatal("expected a worker")
	}
	cur, busy := s.stats()
	if cur != 1 || busy != 1 {
		t.Fatalf("curThreads=%d curThreadsBusy=%d, want 1/1", cur, busy)
	}

	w2 := s.getWorkerThread()
	if w2 == nil {
		t.Fatal("expected a second worker")
	}
	cur, busy = s.stats()
	if cur != 2 || busy != 2 {
		t.Fatalf("curThreads=%d curThreadsBusy=%d, want 2/2", cur, busy)
	}

	// maxThreads reached: a third acquisition must block until one recycles.
	done := make(chan *Worker, 1)
	go func() { done <- s.getWorkerThread() }()

	select {
	case <-done:
		t.Fatal("getWorkerThread returned before any worker was recycled")
	case <-time.After(50 * time.Millisecond):
	}

	if !s.recycle(w1) {
		t.Fatal("expected recycle to succeed under capacity")
	}

	select {
	case w3 := <-done:
		if w3 == nil {
			t.Fatal("expected the pending acquisition to receive a worker")
		}
	case <-time.After(time.Second):
		t.Fatal("pending getWorkerThread never unblocked after recycle")
	}

	cur, busy = s.stats()
	if cur != 2 || busy != 2 {
		t.Fatalf("curThreads=%d curThreadsBusy=%d after handoff, want 2/2", cur, busy)
	}
	if idle := s.size(); idle != 0 {
		t.Fatalf("idle size = %d, want 0 (both busy)", idle)
	}
}

func TestWorkerStack_MaxThreadsDisabledReturnsNil(t *testing.T) {
	e := testEndpointForStack(0)
	if w := e.workerStack.getWorkerThread(); w != nil {
		t.Fatal("expected nil worker when maxThreads == 0")
	}
}

func TestWorkerStack_UnboundedNeverBlocks(t *testing.T) {
	e := testEndpointForStack(-1)
	s := e.workerStack
	for i := 0; i < 10; i++ {
		if w := s.getWorkerThread(); w == nil {
			t.Fatalf("unbounded stack returned nil at iteration %d", i)
		}
	}
	_, busy := s.stats()
	if busy != 10 {
		t.Fatalf("curThreadsBusy = %d, want 10", busy)
	}
}

func TestWorkerStack_RecycleDropsPastCapacity(t *testing.T) {
	e := testEndpointForStack(1)
	s := e.workerStack
	s.capacity = 0 // force every push to overflow immediately

	w := s.getWorkerThread()
	if w == nil {
		t.Fatal("expected a worker")
	}
	if kept := s.recycle(w); kept {
		t.Fatal("expected recycle to report retirement when over capacity")
	}
	cur, busy := s.stats()
	if cur != 0 || busy != 0 {
		t.Fatalf("curThreads=%d curThreadsBusy=%d after drop, want 0/0", cur, busy)
	}
}

func TestWorkerStack_Resize(t *testing.T) {
	e := testEndpointForStack(4)
	s := e.workerStack

	workers := make([]*Worker, 4)
	for i := range workers {
		workers[i] = s.getWorkerThread()
	}
	for _, w := range workers {
		s.recycle(w)
	}
	if idle := s.size(); idle != 4 {
		t.Fatalf("idle size = %d, want 4", idle)
	}

	s.resize(2)
	if idle := s.size(); idle != 2 {
		t.Fatalf("idle size after resize = %d, want 2", idle)
	}
	cur, _ := s.stats()
	if cur != 2 {
		t.Fatalf("curThreads after resize = %d, want 2", cur)
	}
}

// File: endpoint/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker and its single-producer/single-consumer assignment rendezvous.
// spec.md §9 allows either a mutex+CV with a boolean `available`, or a
// capacity-1 channel; this rendering uses an unbuffered channel, which is
// the idiomatic Go expression of the same rendezvous (send blocks until the
// worker goroutine is ready to receive, exactly like the wait-on-available
// protocol described in spec.md §4.3).

package endpoint

import (
	"fmt"

	"github.com/momentics/apr-endpoint/api"
)

// assignment is the unit handed from a producer (Acceptor, Poller, or a
// keep-alive re-registration) to a Worker.
type assignment struct {
	socket         int
	status         *api.SocketStatus
	optionsPending bool
}

// Worker is a long-lived goroutine that waits for a socket assignment,
// optionally performs option-setting/TLS handshake, invokes the Handler,
// and parks itself back on the owning WorkerStack (spec.md §4.3).
type Worker struct {
	id       int
	name     string
	endpoint *Endpoint
	assignCh chan assignment
	stopCh   chan struct{}
}

func newWorker(id int, e *Endpoint) *Worker {
	return &Worker{
		id:       id,
		name:     fmt.Sprintf("%s-%d", e.cfg.Name, id),
		endpoint: e,
		assignCh: make(chan assignment),
		stopCh:   make(chan struct{}),
	}
}

// assignWithOptions hands a raw just-accepted socket to the worker: options
// and (if configured) the TLS handshake run before any Handler call.
func (w *Worker) assignWithOptions(socket int) {
	w.assignCh <- assignment{socket: socket, optionsPending: true}
}

// assign hands a socket that arrived ready via a Poller (fresh deferAccept
// request or keep-alive wakeup); no option-setting is repeated.
func (w *Worker) assign(socket int) {
	w.assignCh <- assignment{socket: socket}
}

// assignStatus delivers a comet lifecycle event.
func (w *Worker) assignStatus(socket int, status api.SocketStatus) {
	w.assignCh <- assignment{socket: socket, status: &status}
}

// shutdown retires the worker; safe to call at most once.
func (w *Worker) shutdown() {
	close(w.stopCh)
}

// run is the worker's main loop (spec.md §4.3): await an assignment,
// process it, recycle onto the stack, repeat until retired.
func (w *Worker) run() {
	stack := w.endpoint.workerStack
	for {
		select {
		case a := <-w.assignCh:
			w.endpoint.processAssignment(a.socket, a.status, a.optionsPending)
			if !stack.recycle(w) {
				return
			}
		case <-w.stopCh:
			return
		}
	}
}

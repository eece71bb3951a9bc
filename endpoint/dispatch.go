// File: endpoint/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dispatch helpers and the Worker main-loop decision logic (spec.md §4.3).
// Shared between the internal WorkerStack path (Worker.run) and the
// external-executor path (dispatch* constructs a one-shot task instead).

package endpoint

import (
	"go.uber.org/zap"

	"github.com/momentics/apr-endpoint/api"
	"github.com/momentics/apr-endpoint/internal/socket"
)

// dispatchWithOptions hands a freshly accepted socket to a worker (internal
// pool) or submits an equivalent task (external executor). Returns false if
// the caller must destroy the socket itself (worker creation disabled by
// maxThreads == 0 / executor rejected the task); with workers at maxThreads
// it blocks until one is recycled.
func (e *Endpoint) dispatchWithOptions(sock int) bool {
	if e.cfg.Executor != nil {
		err := e.cfg.Executor.Submit(func() { e.processAssignment(sock, nil, true) })
		if err != nil {
			e.cfg.Logger.Warn("executor rejected socket dispatch", zap.Error(err))
			return false
		}
		return true
	}
	w := e.workerStack.getWorkerThread()
	if w == nil {
		return false
	}
	w.assignWithOptions(sock)
	return true
}

// dispatch hands a socket that arrived via Poller readiness (no repeated
// option-setting).
func (e *Endpoint) dispatch(sock int) bool {
	if e.cfg.Executor != nil {
		err := e.cfg.Executor.Submit(func() { e.processAssignment(sock, nil, false) })
		if err != nil {
			e.cfg.Logger.Warn("executor rejected socket dispatch", zap.Error(err))
			return false
		}
		return true
	}
	w := e.workerStack.getWorkerThread()
	if w == nil {
		return false
	}
	w.assign(sock)
	return true
}

// dispatchStatus delivers a comet lifecycle event.
func (e *Endpoint) dispatchStatus(sock int, status api.SocketStatus) bool {
	if e.cfg.Executor != nil {
		err := e.cfg.Executor.Submit(func() { e.processAssignment(sock, &status, false) })
		if err != nil {
			e.cfg.Logger.Warn("executor rejected status dispatch", zap.Error(err))
			return false
		}
		return true
	}
	w := e.workerStack.getWorkerThread()
	if w == nil {
		return false
	}
	w.assignStatus(sock, status)
	return true
}

// processAssignment is the Worker main-loop body of spec.md §4.3, factored
// out so both the Worker goroutine and an external-executor task run the
// exact same decision tree.
func (e *Endpoint) processAssignment(sock int, status *api.SocketStatus, optionsPending bool) {
	if !e.cfg.DeferAccept && optionsPending {
		newSock, ok := e.setSocketOptions(sock)
		if ok {
			e.addToNormalPoller(newSock)
		} else if newSock >= 0 {
			e.destroySocket(newSock)
		}
		return
	}

	if status != nil {
		state, err := e.cfg.Handler.Event(sock, *status)
		if err != nil || state == api.StateClosed {
			e.destroySocket(sock)
		} else if state == api.StateLong {
			e.addToNormalPoller(sock)
		}
		return
	}

	if optionsPending {
		newSock, ok := e.setSocketOptions(sock)
		if !ok {
			if newSock >= 0 {
				e.destroySocket(newSock)
			}
			return
		}
		sock = newSock
	}

	state, err := e.cfg.Handler.Process(sock)
	if err != nil || state == api.StateClosed {
		e.destroySocket(sock)
	} else if state == api.StateLong {
		e.addToNormalPoller(sock)
	}
}

// setSocketOptions applies SO_LINGER/TCP_NODELAY/SO_TIMEOUT then, if TLS is
// enabled, attaches the TLSContext and performs the handshake (spec.md
// §4.3's setSocketOptions). It returns the socket value every later stage
// must use from this point on (identical to sock unless a TLS handshake
// replaced it with the fd of the dup'd net.Conn, per endpoint/tls.go) and
// whether setup succeeded. On failure the returned int is either the
// still-valid sock (ApplyOptions failed before any TLS wrapping happened)
// or -1 (tlsHandshake already tore down every descriptor it touched) — the
// caller must skip destruction entirely when it sees -1.
func (e *Endpoint) setSocketOptions(sock int) (int, bool) {
	opts := socket.Options{
		SoLinger:    e.cfg.SoLinger,
		TCPNoDelay:  e.cfg.TCPNoDelay,
		SoTimeoutMs: int(e.cfg.SoTimeout / 1_000_000),
	}
	if err := socket.ApplyOptions(socket.Handle(sock), opts); err != nil {
		e.cfg.Logger.Debug("setSocketOptions failed", zap.Int("socket", sock), zap.Error(err))
		return sock, false
	}
	if e.tlsCtx == nil {
		return sock, true
	}
	newSock, err := e.tlsHandshake(sock)
	if err != nil {
		e.cfg.Logger.Debug("TLS handshake failed", zap.Int("socket", sock), zap.Error(err))
		return newSock, false
	}
	return newSock, true
}

// destroySocket tears down a socket unconditionally. Per spec.md §9's open
// question, destroySocket is a no-op once the endpoint has stopped running
// and cleanup defers to pool/listener teardown; that guarantee is provided
// here by Destroy cascading through every per-socket pool still registered
// at shutdown.
//
// For a TLS-wrapped socket, forgetTLSConn's tls.Conn.Close already closes
// the underlying net.Conn (and so the fd): socket.Destroy must not run a
// second time against the same descriptor, which the kernel may by then
// have reassigned to an unrelated new connection.
func (e *Endpoint) destroySocket(sock int) {
	if !e.isRunning() {
		return
	}
	if e.tlsCtx != nil {
		if _, ok := e.TLSConn(sock); ok {
			e.forgetTLSConn(sock)
			return
		}
	}
	_ = socket.Destroy(socket.Handle(sock))
}

// closeSocket applies the close-path policy shared by Poller and Sendfile:
// comet mode posts a status event through the worker path; non-comet mode
// destroys directly (spec.md §4.4 step 5, §4.5).
func (e *Endpoint) closeSocket(sock int, comet bool, status api.SocketStatus) {
	if comet {
		if e.dispatchStatus(sock, status) {
			return
		}
	}
	e.destroySocket(sock)
}

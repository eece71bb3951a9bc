// File: endpoint/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Acceptor (spec.md §4.2): blocks on the listening socket's accept queue,
// discards the unlock-protocol wake-up byte while paused/stopped under
// deferAccept, and otherwise hands the raw socket to dispatchWithOptions.

package endpoint

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/apr-endpoint/internal/socket"
)

// hpuxBenignErrno is the HP-UX accept() error code spec.md §4.2 downgrades
// to a warning instead of an error log.
const hpuxBenignErrno = 233

// Acceptor owns no state of its own beyond bookkeeping needed to join on
// stop; the listening socket and running/paused flags live on Endpoint.
type Acceptor struct {
	name string
	ep   *Endpoint
	log  *zap.Logger

	doneCh chan struct{}
}

func newAcceptor(ep *Endpoint, name string) *Acceptor {
	return &Acceptor{
		name:   name,
		ep:     ep,
		log:    ep.cfg.Logger.With(zap.String("acceptor", name)),
		doneCh: make(chan struct{}),
	}
}

func (a *Acceptor) start() { go a.run() }

func (a *Acceptor) run() {
	defer close(a.doneCh)
	for a.ep.isRunning() {
		if a.ep.isPaused() {
			time.Sleep(time.Second)
			continue
		}

		h, err := a.ep.listener.Accept()
		if err != nil {
			if !a.ep.isRunning() {
				return
			}
			a.logAcceptError(err)
			continue
		}
		sock := int(h)

		if a.ep.cfg.DeferAccept && (a.ep.isPaused() || !a.ep.isRunning()) {
			// This is the unlock protocol's wake-up connection, not a real
			// client; discard it silently (spec.md §4.2).
			_ = socket.Destroy(h)
			continue
		}

		if !a.ep.dispatchWithOptions(sock) {
			_ = socket.Destroy(h)
		}
	}
}

func (a *Acceptor) logAcceptError(err error) {
	var errno unix.Errno
	if errors.As(err, &errno) && int(errno) == hpuxBenignErrno {
		a.log.Warn("accept returned benign HP-UX errno, continuing", zap.Error(err))
		return
	}
	a.log.Error("accept failed", zap.Error(err))
}

// join waits up to budget for the acceptor loop to exit.
func (a *Acceptor) join(budget time.Duration) bool {
	select {
	case <-a.doneCh:
		return true
	case <-time.After(budget):
		return false
	}
}

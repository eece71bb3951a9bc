// File: endpoint/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poller: owns one PollSet, absorbs idle/keep-alive sockets, wakes workers
// on readiness/timeout (spec.md §4.4). The normal and comet fleets share
// this single type, differing only in the `comet` policy flag passed to
// closeSocket/dispatch — exactly the parameterization spec.md §9 asks for
// instead of duplicating the type.
//
// Grounded on the teacher's reactor.EventReactor consumer loop shape
// (Register/Wait/dispatch-on-ready), extended with the add-queue and
// maintain-timeout sweep the teacher's reactor never needed.

package endpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/apr-endpoint/api"
	"github.com/momentics/apr-endpoint/pool"
	"github.com/momentics/apr-endpoint/reactor"
)

const maintainWindow = time.Second

// Poller is one instance of the normal or comet fleet.
type Poller struct {
	name  string
	comet bool
	ep    *Endpoint
	log   *zap.Logger

	memPool *pool.MemoryPool
	pollSet reactor.PollSet

	mu             sync.Mutex
	wake           chan struct{}
	addQueue       *queue.Queue
	capacity       int
	keepAliveCount int

	pollTime time.Duration
	kaTime   time.Duration

	events []reactor.Event

	stopCh chan struct{}
	doneCh chan struct{}
}

func newPoller(ep *Endpoint, name string, comet bool, capacity int) (*Poller, error) {
	pollSet, err := reactor.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("poller %s: %w", name, err)
	}
	memPool := ep.serverPool.NewChild()
	p := &Poller{
		name:     name,
		comet:    comet,
		ep:       ep,
		log:      ep.cfg.Logger.With(zap.String("poller", name)),
		memPool:  memPool,
		pollSet:  pollSet,
		addQueue: queue.New(),
		wake:     make(chan struct{}, 1),
		capacity: capacity,
		pollTime: ep.cfg.PollTime,
		kaTime:   ep.cfg.effectiveKeepAliveTimeout(),
		events:   make([]reactor.Event, capacity),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	memPool.Track(func() { _ = pollSet.Close() })
	return p, nil
}

// add enqueues socket for registration at the next loop iteration. Returns
// reactor.ErrFull when the add-queue itself is already saturated (spec.md
// §4.4's add() backpressure check, distinct from the drain-time PollSet.Add
// failure handled inside run()).
func (p *Poller) add(sock int) error {
	p.mu.Lock()
	if p.addQueue.Length() >= p.capacity {
		p.mu.Unlock()
		return reactor.ErrFull
	}
	p.addQueue.Add(sock)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *Poller) start() {
	go p.run()
}

func (p *Poller) run() {
	defer close(p.doneCh)
	var maintainAccum time.Duration

	for p.ep.isRunning() {
		if p.ep.isPaused() {
			time.Sleep(time.Second)
			continue
		}

		p.mu.Lock()
		empty := p.keepAliveCount < 1 && p.addQueue.Length() < 1
		p.mu.Unlock()
		if empty {
			maintainAccum = 0
			select {
			case <-p.wake:
			case <-p.stopCh:
				return
			case <-time.After(maintainWindow):
			}
			continue
		}

		p.mu.Lock()
		n := p.addQueue.Length()
		var success int
		for i := 0; i < n; i++ {
			sock := p.addQueue.Remove().(int)
			if err := p.pollSet.Add(sock, reactor.InterestRead, p.kaTime); err != nil {
				p.mu.Unlock()
				p.ep.closeSocket(sock, p.comet, api.SocketError)
				p.mu.Lock()
				continue
			}
			success++
		}
		p.keepAliveCount += success
		p.mu.Unlock()

		maintainAccum += p.pollTime
		n2, err := p.pollSet.Poll(p.pollTime, p.events)
		if err != nil {
			p.log.Warn("poll error, reinitializing PollSet", zap.Error(err))
			p.reinit()
			continue
		}
		if n2 > 0 {
			p.mu.Lock()
			p.keepAliveCount -= n2
			for i := 0; i < n2; i++ {
				p.pollSet.Remove(p.events[i].Socket)
			}
			p.mu.Unlock()
			for i := 0; i < n2; i++ {
				ev := p.events[i]
				if ev.Err || ev.Hup {
					p.ep.closeSocket(ev.Socket, p.comet, api.SocketDisconnect)
					continue
				}
				var ok bool
				if p.comet {
					ok = p.ep.dispatchStatus(ev.Socket, api.SocketOpen)
				} else {
					ok = p.ep.dispatch(ev.Socket)
				}
				if !ok {
					p.ep.closeSocket(ev.Socket, p.comet, api.SocketError)
				}
			}
		}

		if p.kaTime > 0 && maintainAccum > maintainWindow {
			expired := p.pollSet.Maintain()
			if len(expired) > 0 {
				p.mu.Lock()
				p.keepAliveCount -= len(expired)
				p.mu.Unlock()
				for _, sock := range expired {
					p.ep.closeSocket(sock, p.comet, api.SocketTimeout)
				}
			}
			maintainAccum = 0
		}
	}
}

// reinit destroys and recreates the PollSet in place after a critical poll
// error (spec.md §4.4 step 6). The add-queue is preserved; in-flight
// registered sockets are lost, matching the source behavior of destroy+init
// under the monitor.
func (p *Poller) reinit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.pollSet.Close()
	ps, err := reactor.New(p.capacity)
	if err != nil {
		p.log.Error("failed to reinitialize PollSet", zap.Error(err))
		return
	}
	p.pollSet = ps
	p.keepAliveCount = 0
}

// destroy stops the loop, passes every socket still in the add-queue through
// the close path with SocketStop, then destroys its memory pool, which closes
// the PollSet. Sockets registered in the PollSet are not closed one by one.
func (p *Poller) destroy() {
	close(p.stopCh)
	<-p.doneCh

	p.mu.Lock()
	for p.addQueue.Length() > 0 {
		sock := p.addQueue.Remove().(int)
		p.mu.Unlock()
		p.ep.closeSocket(sock, p.comet, api.SocketStop)
		p.mu.Lock()
	}
	p.mu.Unlock()

	p.memPool.DestroyAndDetach()
}

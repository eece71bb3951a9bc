// File: endpoint/sendfile.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sendfile stage (spec.md §4.5): drives non-blocking kernel sendfile(2) to
// completion for outstanding SendfileData transfers, falling through to a
// write-ready PollSet when a call returns EAGAIN. Structurally a sibling of
// Poller (same add-queue/poll/maintain skeleton) but keyed by socket ->
// SendfileData and interested in POLLOUT instead of POLLIN.

package endpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/apr-endpoint/internal/socket"
	"github.com/momentics/apr-endpoint/pool"
	"github.com/momentics/apr-endpoint/reactor"
)

// Sendfile is one instance of the sendfile fleet.
type Sendfile struct {
	name string
	ep   *Endpoint
	log  *zap.Logger

	memPool *pool.MemoryPool
	pollSet reactor.PollSet

	mu       sync.Mutex
	wake     chan struct{}
	addQueue *queue.Queue
	capacity int
	inFlight map[int]*SendfileData

	pollTime time.Duration
	kaTime   time.Duration

	events []reactor.Event

	stopCh chan struct{}
	doneCh chan struct{}
}

func newSendfile(ep *Endpoint, name string, capacity int) (*Sendfile, error) {
	pollSet, err := reactor.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("sendfile %s: %w", name, err)
	}
	memPool := ep.serverPool.NewChild()
	s := &Sendfile{
		name:     name,
		ep:       ep,
		log:      ep.cfg.Logger.With(zap.String("sendfile", name)),
		memPool:  memPool,
		pollSet:  pollSet,
		addQueue: queue.New(),
		wake:     make(chan struct{}, 1),
		capacity: capacity,
		inFlight: make(map[int]*SendfileData),
		pollTime: ep.cfg.PollTime,
		kaTime:   ep.cfg.effectiveKeepAliveTimeout(),
		events:   make([]reactor.Event, capacity),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	memPool.Track(func() { _ = pollSet.Close() })
	return s, nil
}

// add drives data's transfer inline until it completes or blocks with
// EAGAIN (spec.md §4.5 "add(data)"). Returns true if the file was fully
// sent synchronously (caller must not touch the socket further — keep-alive
// continuation, if any, already happened); returns false if the transfer
// failed (caller destroys the socket) or was handed off to the poll loop
// (caller must not close the socket; the Sendfile stage owns it now).
func (s *Sendfile) add(data *SendfileData) bool {
	sockInt := int(data.Socket)
	if err := socket.SetNonblocking(socket.Handle(sockInt), true); err != nil {
		s.log.Warn("failed to set socket non-blocking for sendfile", zap.Error(err))
	}

	for {
		n, err := socket.Sendfile(socket.Handle(sockInt), data.FileFD, &data.CurrentOffset, data.remaining())
		if err != nil {
			if socket.IsEAGAIN(err) {
				break
			}
			data.FilePool.DestroyAndDetach()
			data.Socket = 0
			return false
		}
		_ = n
		if data.done() {
			data.FilePool.DestroyAndDetach()
			_ = socket.TimeoutSet(socket.Handle(sockInt), int(s.ep.cfg.SoTimeout/1_000_000))
			_ = socket.SetNonblocking(socket.Handle(sockInt), false)
			if data.KeepAlive {
				s.ep.addToNormalPoller(sockInt)
			} else {
				s.ep.destroySocket(sockInt)
			}
			return true
		}
	}

	s.mu.Lock()
	if s.addQueue.Length() >= s.capacity {
		s.mu.Unlock()
		data.FilePool.DestroyAndDetach()
		data.Socket = 0
		return false
	}
	s.addQueue.Add(data)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return false
}

func (s *Sendfile) start() { go s.run() }

func (s *Sendfile) run() {
	defer close(s.doneCh)
	var maintainAccum time.Duration

	for s.ep.isRunning() {
		if s.ep.isPaused() {
			time.Sleep(time.Second)
			continue
		}

		s.mu.Lock()
		empty := len(s.inFlight) < 1 && s.addQueue.Length() < 1
		s.mu.Unlock()
		if empty {
			maintainAccum = 0
			select {
			case <-s.wake:
			case <-s.stopCh:
				return
			case <-time.After(maintainWindow):
			}
			continue
		}

		s.mu.Lock()
		n := s.addQueue.Length()
		for i := 0; i < n; i++ {
			data := s.addQueue.Remove().(*SendfileData)
			sock := int(data.Socket)
			if err := s.pollSet.Add(sock, reactor.InterestWrite, s.kaTime); err != nil {
				s.mu.Unlock()
				data.FilePool.DestroyAndDetach()
				s.ep.destroySocket(sock)
				s.mu.Lock()
				continue
			}
			s.inFlight[sock] = data
		}
		s.mu.Unlock()

		maintainAccum += s.pollTime
		n2, err := s.pollSet.Poll(s.pollTime, s.events)
		if err != nil {
			s.log.Warn("poll error, reinitializing PollSet", zap.Error(err))
			s.reinit()
			continue
		}
		if n2 > 0 {
			for i := 0; i < n2; i++ {
				ev := s.events[i]
				s.mu.Lock()
				data, ok := s.inFlight[ev.Socket]
				s.mu.Unlock()
				if !ok {
					continue
				}
				if ev.Err || ev.Hup {
					s.finish(ev.Socket, data, false)
					continue
				}
				s.advance(ev.Socket, data)
			}
		}

		if s.kaTime > 0 && maintainAccum > maintainWindow {
			expired := s.pollSet.Maintain()
			for _, sock := range expired {
				s.mu.Lock()
				data, ok := s.inFlight[sock]
				s.mu.Unlock()
				if ok {
					s.finish(sock, data, false)
				}
			}
			maintainAccum = 0
		}
	}
}

// advance performs one more sendfilen call for an already-registered
// transfer; on completion it runs the keep-alive continuation, on error it
// tears down, and on further EAGAIN it simply leaves the entry registered.
func (s *Sendfile) advance(sock int, data *SendfileData) {
	n, err := socket.Sendfile(socket.Handle(sock), data.FileFD, &data.CurrentOffset, data.remaining())
	if err != nil {
		if socket.IsEAGAIN(err) {
			return
		}
		s.finish(sock, data, false)
		return
	}
	_ = n
	if data.done() {
		s.finish(sock, data, true)
	}
}

// finish removes sock from the poll set and in-flight map, releases the
// file pool, and either continues the socket as keep-alive (success path)
// or destroys it (failure/timeout path).
func (s *Sendfile) finish(sock int, data *SendfileData, success bool) {
	s.mu.Lock()
	s.pollSet.Remove(sock)
	delete(s.inFlight, sock)
	s.mu.Unlock()

	data.FilePool.DestroyAndDetach()
	if success && data.KeepAlive {
		_ = socket.TimeoutSet(socket.Handle(sock), int(s.ep.cfg.SoTimeout/1_000_000))
		_ = socket.SetNonblocking(socket.Handle(sock), false)
		s.ep.addToNormalPoller(sock)
		return
	}
	s.ep.destroySocket(sock)
}

func (s *Sendfile) reinit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.pollSet.Close()
	ps, err := reactor.New(s.capacity)
	if err != nil {
		s.log.Error("failed to reinitialize PollSet", zap.Error(err))
		return
	}
	s.pollSet = ps
	for sock, data := range s.inFlight {
		data.FilePool.DestroyAndDetach()
		s.ep.destroySocket(sock)
	}
	s.inFlight = make(map[int]*SendfileData)
}

func (s *Sendfile) destroy() {
	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	for s.addQueue.Length() > 0 {
		data := s.addQueue.Remove().(*SendfileData)
		sock := int(data.Socket)
		s.mu.Unlock()
		data.FilePool.DestroyAndDetach()
		s.ep.destroySocket(sock)
		s.mu.Lock()
	}
	for sock, data := range s.inFlight {
		data.FilePool.DestroyAndDetach()
		s.ep.destroySocket(sock)
	}
	s.inFlight = make(map[int]*SendfileData)
	s.mu.Unlock()

	s.memPool.DestroyAndDetach()
}

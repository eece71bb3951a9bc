// File: endpoint/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint owns the root memory pool, listening socket, TLS context, and
// every stage instance; it implements the init/start/pause/resume/stop/
// destroy lifecycle of spec.md §4.1.

package endpoint

import (
	"crypto/tls"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/apr-endpoint/internal/socket"
	"github.com/momentics/apr-endpoint/pool"
	"github.com/momentics/apr-endpoint/tlsconfig"
)

// platformIsBSDOrWindows reports whether runtime.GOOS matches the set of
// platforms spec.md §4.1 step 2 treats as defaulting to IPv4 rather than
// dual-stack when no address is given (BSD family, including Darwin, and
// Windows).
func platformIsBSDOrWindows() bool {
	switch runtime.GOOS {
	case "windows", "darwin", "freebsd", "netbsd", "openbsd", "dragonfly":
		return true
	default:
		return false
	}
}

const acceptorJoinBudget = 10 * time.Second

// Endpoint is the core type of this module: bind, accept, (optionally) TLS,
// poll, and dispatch, per spec.md §1-§5.
type Endpoint struct {
	cfg Config

	mu          sync.Mutex
	initialized bool
	running     atomic.Bool
	paused      atomic.Bool

	rootPool   *pool.MemoryPool
	serverPool *pool.MemoryPool

	listener   *socket.Listener
	actualPort int

	tlsCtx   *tlsconfig.Context
	tlsMu    sync.Mutex
	tlsConns map[int]*tls.Conn

	workerStack *WorkerStack

	acceptors     []*Acceptor
	normalPollers []*Poller
	cometPollers  []*Poller
	sendfiles     []*Sendfile

	normalRR   atomic.Uint64
	cometRR    atomic.Uint64
	sendfileRR atomic.Uint64
}

// New constructs an Endpoint from cfg. Call Init then Start to bring it up.
func New(cfg Config) *Endpoint {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Endpoint{cfg: cfg, tlsConns: make(map[int]*tls.Conn)}
}

func (e *Endpoint) isRunning() bool { return e.running.Load() }
func (e *Endpoint) isPaused() bool  { return e.paused.Load() }

// Init performs the one-time setup of spec.md §4.1's init(): memory pools,
// listening socket, deferAccept/sendfile capability probing, stage-count
// defaulting, and (if enabled) the TLS context.
func (e *Endpoint) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return ErrAlreadyInitialized
	}
	if e.rootPool != nil {
		return ErrPriorInitFailed
	}
	if e.cfg.Backlog <= 0 {
		return ErrBacklogInvalid
	}
	if e.cfg.PollTime <= 0 {
		return ErrPollTimeInvalid
	}

	rootPool := pool.NewRootPool()
	e.rootPool = rootPool // set before the fallible steps below: a failure there must
	// leave rootPool non-nil so a subsequent Init() refuses until Destroy().
	e.serverPool = rootPool.NewChild()

	family := socket.ResolveFamily(e.cfg.Address, platformIsBSDOrWindows())
	listener, err := socket.Create(e.cfg.Address, e.cfg.Port, e.cfg.Backlog, family)
	if err != nil {
		return fmt.Errorf("endpoint: create listener: %w", err)
	}
	e.listener = listener
	e.actualPort, err = localPort(listener.Fd())
	if err != nil {
		return fmt.Errorf("endpoint: resolve bound port: %w", err)
	}

	if e.cfg.DeferAccept {
		if err := listener.TryDeferAccept(); err != nil {
			if err == socket.ErrNotImplemented {
				e.cfg.DeferAccept = false
			} else {
				return fmt.Errorf("endpoint: TCP_DEFER_ACCEPT: %w", err)
			}
		}
	}

	if e.cfg.UseSendfile && !socket.HasSendfileSupport() {
		e.cfg.UseSendfile = false
	}

	e.applyStageDefaults()

	if e.cfg.SSLEnabled {
		ctx, err := tlsconfig.Build(e.cfg.SSL, e.cfg.Logger)
		if err != nil {
			return fmt.Errorf("endpoint: build TLS context: %w", err)
		}
		e.tlsCtx = ctx
		e.cfg.UseSendfile = false // spec.md §4.1 step 7: force off under TLS
	}

	e.initialized = true
	return nil
}

// applyStageDefaults fills unset stage counts per spec.md §4.1 step 6.
func (e *Endpoint) applyStageDefaults() {
	if e.cfg.AcceptorThreadCount <= 0 {
		e.cfg.AcceptorThreadCount = 1
	}
	if e.cfg.PollerSize <= 0 {
		e.cfg.PollerSize = 1024
	}
	if e.cfg.PollerThreadCount <= 0 {
		e.cfg.PollerThreadCount = 1
	}
	if e.cfg.UseSendfile {
		if e.cfg.SendfileSize <= 0 {
			e.cfg.SendfileSize = 1024
		}
		if e.cfg.SendfileThreadCount <= 0 {
			e.cfg.SendfileThreadCount = 1
		}
	}
}

// Start spawns every stage goroutine (spec.md §4.1 start()).
func (e *Endpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	if e.running.Load() {
		return nil // idempotent
	}

	if e.cfg.Executor == nil {
		capacity := e.cfg.MaxThreads
		if capacity <= 0 {
			capacity = 1024
		}
		e.workerStack = newWorkerStack(e, capacity, e.cfg.MaxThreads)
	}

	e.running.Store(true)
	e.paused.Store(false)

	perPollerSize := e.cfg.PollerSize / e.cfg.PollerThreadCount
	for i := 0; i < e.cfg.PollerThreadCount; i++ {
		p, err := newPoller(e, fmt.Sprintf("%s-Poller-%d", e.cfg.Name, i), false, perPollerSize)
		if err != nil {
			return err
		}
		p.start()
		e.normalPollers = append(e.normalPollers, p)
	}
	if e.cfg.UseComet {
		for i := 0; i < e.cfg.PollerThreadCount; i++ {
			p, err := newPoller(e, fmt.Sprintf("%s-CometPoller-%d", e.cfg.Name, i), true, perPollerSize)
			if err != nil {
				return err
			}
			p.start()
			e.cometPollers = append(e.cometPollers, p)
		}
	}

	if e.cfg.UseSendfile {
		perSendfileSize := e.cfg.SendfileSize / e.cfg.SendfileThreadCount
		for i := 0; i < e.cfg.SendfileThreadCount; i++ {
			s, err := newSendfile(e, fmt.Sprintf("%s-Sendfile-%d", e.cfg.Name, i), perSendfileSize)
			if err != nil {
				return err
			}
			s.start()
			e.sendfiles = append(e.sendfiles, s)
		}
	}

	for i := 0; i < e.cfg.AcceptorThreadCount; i++ {
		a := newAcceptor(e, fmt.Sprintf("%s-Acceptor-%d", e.cfg.Name, i))
		a.start()
		e.acceptors = append(e.acceptors, a)
	}

	return nil
}

// Pause sets the paused flag and wakes the Acceptor out of accept() via the
// unlock protocol (spec.md §4.1 pause()).
func (e *Endpoint) Pause() {
	if !e.running.Load() || e.paused.Load() {
		return
	}
	e.paused.Store(true)
	e.unlock()
}

// Resume clears the paused flag (spec.md §4.1 resume()); idempotent.
func (e *Endpoint) Resume() {
	e.paused.Store(false)
}

// Stop halts every stage (spec.md §4.1 stop()).
func (e *Endpoint) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.Load() {
		return nil
	}
	e.running.Store(false)
	e.unlock()

	for _, a := range e.acceptors {
		if !a.join(acceptorJoinBudget) {
			_ = e.listener.ShutdownRead()
		}
	}
	e.acceptors = nil

	for _, p := range e.normalPollers {
		p.destroy()
	}
	e.normalPollers = nil
	for _, p := range e.cometPollers {
		p.destroy()
	}
	e.cometPollers = nil
	for _, s := range e.sendfiles {
		s.destroy()
	}
	e.sendfiles = nil

	if e.workerStack != nil {
		e.workerStack.shutdownAll()
		e.workerStack = nil
	}

	e.paused.Store(false)
	return nil
}

// Destroy releases every resource and resets the endpoint so a later Init
// may restart it (spec.md §4.1 destroy()).
func (e *Endpoint) Destroy() error {
	if e.running.Load() {
		if err := e.Stop(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.serverPool != nil {
		e.serverPool.Destroy()
		e.serverPool = nil
	}
	if e.listener != nil {
		_ = e.listener.Close()
		e.listener = nil
	}
	e.tlsCtx = nil
	e.tlsMu.Lock()
	e.tlsConns = make(map[int]*tls.Conn)
	e.tlsMu.Unlock()

	if e.rootPool != nil {
		e.rootPool.Destroy()
		e.rootPool = nil
	}
	e.initialized = false
	return nil
}

// addToNormalPoller registers sock with the next normal Poller via
// round-robin fleet selection (spec.md §9).
func (e *Endpoint) addToNormalPoller(sock int) {
	if len(e.normalPollers) == 0 {
		e.destroySocket(sock)
		return
	}
	idx := e.normalRR.Add(1) % uint64(len(e.normalPollers))
	p := e.normalPollers[idx]
	if err := p.add(sock); err != nil {
		e.destroySocket(sock)
	}
}

// ResizeWorkers live-adjusts worker concurrency (spec.md §6 "maxThreads ...
// live-resize allowed"), routing to whichever dispatch path is active.
func (e *Endpoint) ResizeWorkers(n int) {
	if e.cfg.Executor != nil {
		e.cfg.Executor.Resize(n)
		return
	}
	if e.workerStack != nil {
		e.workerStack.resize(n)
	}
}

func localPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port, nil
	case *unix.SockaddrInet6:
		return sa.Port, nil
	default:
		return 0, fmt.Errorf("endpoint: unexpected sockaddr type %T", sa)
	}
}

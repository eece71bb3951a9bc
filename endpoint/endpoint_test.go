// File: endpoint/endpoint_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/apr-endpoint/api"
	"github.com/momentics/apr-endpoint/tlsconfig"
)

// closeOnceHandler echoes one request then reports CLOSED, recording every
// call for assertions.
type closeOnceHandler struct {
	calls int32
}

func (h *closeOnceHandler) Process(sock int) (api.HandlerSocketState, error) {
	atomic.AddInt32(&h.calls, 1)
	buf := make([]byte, 256)
	n, err := unix.Read(sock, buf)
	if err != nil || n == 0 {
		return api.StateClosed, err
	}
	if _, err := unix.Write(sock, buf[:n]); err != nil {
		return api.StateClosed, err
	}
	return api.StateClosed, nil
}

func (h *closeOnceHandler) Event(sock int, status api.SocketStatus) (api.HandlerSocketState, error) {
	return api.StateClosed, nil
}

func newTestEndpoint(t *testing.T, opts ...Option) *Endpoint {
	t.Helper()
	base := []Option{
		WithAddress("127.0.0.1", 0),
		WithBacklog(16),
		WithMaxThreads(8),
		WithPollTime(2000 * time.Microsecond),
		WithLogger(nil),
	}
	cfg := NewConfig(append(base, opts...)...)
	return New(cfg)
}

func TestEndpoint_AcceptAndEcho(t *testing.T) {
	h := &closeOnceHandler{}
	ep := newTestEndpoint(t, WithHandler(h))
	if err := ep.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := ep.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ep.Destroy()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", itoa(ep.actualPort)))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg := []byte("ping")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(msg))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(conn, buf); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf) != string(msg) {
		t.Fatalf("echo mismatch: got %q want %q", buf, msg)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&h.calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&h.calls) != 1 {
		t.Fatalf("handler calls = %d, want 1", h.calls)
	}
}

func TestEndpoint_InitDestroyRoundTrip(t *testing.T) {
	ep := newTestEndpoint(t, WithHandler(&closeOnceHandler{}))
	if err := ep.Init(); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := ep.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if ep.initialized {
		t.Fatal("initialized should be false after Destroy")
	}
	if ep.rootPool != nil {
		t.Fatal("rootPool should be nil after Destroy")
	}

	// A subsequent init/start/stop must successfully reopen the port.
	if err := ep.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if err := ep.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := ep.Destroy(); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
}

func TestEndpoint_DoubleInitRejected(t *testing.T) {
	ep := newTestEndpoint(t, WithHandler(&closeOnceHandler{}))
	if err := ep.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ep.Destroy()
	if err := ep.Init(); err != ErrAlreadyInitialized {
		t.Fatalf("second Init error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestEndpoint_PauseResumeIdempotent(t *testing.T) {
	ep := newTestEndpoint(t, WithHandler(&closeOnceHandler{}))
	if err := ep.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := ep.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ep.Destroy()

	ep.Pause()
	ep.Pause()
	if !ep.isPaused() {
		t.Fatal("expected paused after Pause;Pause")
	}
	ep.Resume()
	ep.Resume()
	if ep.isPaused() {
		t.Fatal("expected not paused after Resume;Resume")
	}
}

func TestEndpoint_SSLProtocolInitFails(t *testing.T) {
	ep := newTestEndpoint(t,
		WithHandler(&closeOnceHandler{}),
		WithTLS(tlsconfig.Spec{Protocols: "SSLv3+bogus"}),
	)
	err := ep.Init()
	if err == nil {
		t.Fatal("expected Init to fail for an invalid SSL protocol token")
	}
	if ep.rootPool == nil {
		t.Fatal("expected rootPool to remain set after a failed Init")
	}
	if err := ep.Init(); err != ErrPriorInitFailed {
		t.Fatalf("retry before Destroy: got %v, want ErrPriorInitFailed", err)
	}
	if err := ep.Destroy(); err != nil {
		t.Fatalf("Destroy after failed Init: %v", err)
	}
}

func TestEndpoint_MaxThreadsBlocksExcessDispatch(t *testing.T) {
	release := make(chan struct{})
	var inFlight int32
	var maxObserved int32

	h := handlerFunc(func(sock int) (api.HandlerSocketState, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxObserved)
			if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return api.StateClosed, nil
	})

	ep := newTestEndpoint(t, WithHandler(h), WithMaxThreads(2))
	if err := ep.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := ep.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ep.Destroy()

	addr := net.JoinHostPort("127.0.0.1", itoa(ep.actualPort))
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return
			}
			defer conn.Close()
			conn.Write([]byte("x"))
			buf := make([]byte, 1)
			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			conn.Read(buf)
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&maxObserved) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&maxObserved); got > 2 {
		t.Fatalf("observed %d concurrent handler calls, want <= maxThreads(2)", got)
	}
	close(release)
	wg.Wait()
}

// handlerFunc adapts a plain func to api.Handler for single-purpose tests.
type handlerFunc func(sock int) (api.HandlerSocketState, error)

func (f handlerFunc) Process(sock int) (api.HandlerSocketState, error) { return f(sock) }
func (f handlerFunc) Event(sock int, status api.SocketStatus) (api.HandlerSocketState, error) {
	return api.StateClosed, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		digits[i] = '-'
	}
	return string(digits[i:])
}

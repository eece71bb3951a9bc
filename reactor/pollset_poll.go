//go:build unix && !linux

// File: reactor/pollset_poll.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// poll(2)-backed PollSet for non-Linux unix platforms. poll(2) is POSIX and
// available via golang.org/x/sys/unix.Poll on every BSD this module's unix
// build constraint covers, unlike epoll or kqueue which would need a third
// backend each. Capacity and semantics match pollset_linux.go exactly; only
// the syscall differs.

package reactor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type pollfdSet struct {
	mu        sync.Mutex
	fds       []unix.PollFd
	interest  map[int]Interest
	capacity  int
	deadlines *deadlineTracker
}

// newNative creates a poll(2)-backed PollSet bound to capacity sockets.
func newNative(capacity int) (PollSet, error) {
	return &pollfdSet{
		interest:  make(map[int]Interest),
		capacity:  capacity,
		deadlines: newDeadlineTracker(),
	}, nil
}

func (p *pollfdSet) Add(socket int, interest Interest, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fds) >= p.capacity {
		return ErrFull
	}
	events := int16(unix.POLLIN)
	if interest == InterestWrite {
		events = int16(unix.POLLOUT)
	}
	p.fds = append(p.fds, unix.PollFd{Fd: int32(socket), Events: events})
	p.interest[socket] = interest
	p.deadlines.set(socket, timeout)
	return nil
}

func (p *pollfdSet) Remove(socket int) {
	p.mu.Lock()
	for i, pfd := range p.fds {
		if int(pfd.Fd) == socket {
			p.fds = append(p.fds[:i], p.fds[i+1:]...)
			break
		}
	}
	delete(p.interest, socket)
	p.mu.Unlock()
	p.deadlines.clear(socket)
}

func (p *pollfdSet) Poll(pollTime time.Duration, events []Event) (int, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, len(p.fds))
	copy(fds, p.fds)
	p.mu.Unlock()

	timeoutMs := int(pollTime / time.Millisecond)
	if pollTime > 0 && timeoutMs == 0 {
		timeoutMs = 1
	}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("poll: %w", err)
	}
	written := 0
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		if written >= len(events) {
			break
		}
		events[written] = Event{
			Socket: int(pfd.Fd),
			Err:    pfd.Revents&unix.POLLERR != 0,
			Hup:    pfd.Revents&unix.POLLHUP != 0,
			Ready:  pfd.Revents&(unix.POLLIN|unix.POLLOUT) != 0,
		}
		written++
	}
	_ = n
	return written, nil
}

func (p *pollfdSet) Maintain() []int {
	expired := p.deadlines.expired(time.Now())
	for _, s := range expired {
		p.Remove(s)
	}
	return expired
}

func (p *pollfdSet) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fds)
}

func (p *pollfdSet) Close() error { return nil }

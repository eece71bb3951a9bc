//go:build linux

// File: reactor/pollset_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// epoll(7)-backed PollSet. Adapted from the teacher's reactor_linux.go,
// which already did EpollCreate1/EpollCtl/EpollWait over golang.org/x/sys/unix
// — extended here with a capacity bound and the deadlineTracker sweep.

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type epollSet struct {
	epfd      int
	capacity  int
	deadlines *deadlineTracker
	size      int
}

// newNative creates a PollSet bound to at most capacity sockets. The
// size-fallback ladder of spec.md §4.4 (capacity, then 1024, then 62) lives
// in New (pollset.go), not here.
func newNative(capacity int) (PollSet, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollSet{epfd: epfd, capacity: capacity, deadlines: newDeadlineTracker()}, nil
}

func (p *epollSet) Add(socket int, interest Interest, timeout time.Duration) error {
	if p.size >= p.capacity {
		return ErrFull
	}
	var events uint32 = unix.EPOLLIN
	if interest == InterestWrite {
		events = unix.EPOLLOUT
	}
	ev := &unix.EpollEvent{Events: events, Fd: int32(socket)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, socket, ev); err != nil {
		return fmt.Errorf("epoll_ctl add: %w", err)
	}
	p.size++
	p.deadlines.set(socket, timeout)
	return nil
}

func (p *epollSet) Remove(socket int) {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, socket, nil)
	p.deadlines.clear(socket)
	if err == nil && p.size > 0 {
		p.size--
	}
}

func (p *epollSet) Poll(pollTime time.Duration, events []Event) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	timeoutMs := int(pollTime / time.Millisecond)
	if pollTime > 0 && timeoutMs == 0 {
		timeoutMs = 1
	}
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		events[i] = Event{
			Socket: int(raw[i].Fd),
			Err:    raw[i].Events&unix.EPOLLERR != 0,
			Hup:    raw[i].Events&unix.EPOLLHUP != 0,
			Ready:  raw[i].Events&(unix.EPOLLIN|unix.EPOLLOUT) != 0,
		}
	}
	return n, nil
}

func (p *epollSet) Maintain() []int {
	expired := p.deadlines.expired(time.Now())
	for _, s := range expired {
		p.Remove(s)
	}
	return expired
}

func (p *epollSet) Size() int { return p.size }

func (p *epollSet) Close() error {
	return unix.Close(p.epfd)
}

//go:build unix

// File: internal/socket/socket_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared POSIX socket operations. Grounded on
// internal/transport/transport_linux.go (unix.Socket/SetsockoptInt) from the
// teacher repo, generalized to listen/accept/option-set/close.

package socket

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Listener owns a listening socket created per spec.md §4.1 steps 2-3.
type Listener struct {
	fd     int
	family Family
}

// Create builds, binds and starts listening on address:port. Address may be
// empty (wildcard). A backlog <= 0 is replaced by 100 (spec.md §6 default).
// SO_REUSEADDR is set before bind; there is no Windows variant here.
func Create(address string, port int, backlog int, family Family) (*Listener, error) {
	domain := unix.AF_INET
	if family == FamilyUnspecified {
		domain = unix.AF_INET6
	}
	// The listening socket itself stays blocking: Acceptor.run (spec.md §4.2)
	// blocks in accept() by design. Only the accepted connection fd below
	// gets SOCK_NONBLOCK, via Accept4.
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	l := &Listener{fd: fd, family: family}

	// SO_REUSEADDR before bind (spec.md §4.1 step 3).
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	// SO_KEEPALIVE always set (spec.md §4.1 step 3).
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_KEEPALIVE: %w", err)
	}
	if domain == unix.AF_INET6 {
		// Dual-stack: accept IPv4-mapped connections too (IPV6_V6ONLY off,
		// best effort, for every AF_INET6 listener).
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}

	sa, err := sockaddrFor(address, port, domain)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if backlog <= 0 {
		backlog = 100
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}
	return l, nil
}

func sockaddrFor(address string, port int, domain int) (unix.Sockaddr, error) {
	if domain == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: port}
		if address != "" && address != "::" {
			ip := net.ParseIP(address)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", address)
			}
			copy(sa.Addr[:], ip.To16())
		}
		return sa, nil
	}
	sa := &unix.SockaddrInet4{Port: port}
	if address != "" && address != "0.0.0.0" {
		ip := net.ParseIP(address)
		if ip == nil {
			return nil, fmt.Errorf("invalid address %q", address)
		}
		copy(sa.Addr[:], ip.To4())
	}
	return sa, nil
}

// Fd exposes the raw descriptor (used for getsockname and socket options).
func (l *Listener) Fd() int { return l.fd }

// Accept pulls one ready connection off the listening socket's accept queue.
// It blocks; spec.md §4.2 Acceptor calls this directly.
func (l *Listener) Accept() (Handle, error) {
	nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return 0, err
	}
	return Handle(nfd), nil
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// ShutdownRead forcibly shuts down the read half, used by the stop path
// (spec.md §4.1 stop, §7 "Shutdown stuck Acceptor") to unblock an Acceptor
// that refuses to join.
func (l *Listener) ShutdownRead() error {
	return unix.Shutdown(l.fd, unix.SHUT_RD)
}

// ApplyOptions sets SO_LINGER / TCP_NODELAY / SO_RCVTIMEO+SO_SNDTIMEO on an
// accepted socket, per spec.md §4.3 setSocketOptions.
func ApplyOptions(h Handle, o Options) error {
	fd := int(h)
	if o.SoLinger >= 0 {
		l := unix.Linger{Onoff: 1, Linger: int32(o.SoLinger)}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &l); err != nil {
			return fmt.Errorf("setsockopt SO_LINGER: %w", err)
		}
	}
	if o.TCPNoDelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return fmt.Errorf("setsockopt TCP_NODELAY: %w", err)
		}
	}
	if o.SoTimeoutMs > 0 {
		if err := TimeoutSet(h, o.SoTimeoutMs); err != nil {
			return err
		}
	}
	return nil
}

// TimeoutSet applies SO_RCVTIMEO/SO_SNDTIMEO in milliseconds. A value <= 0
// means "no timeout" and is a no-op: an existing timeout is left in place.
func TimeoutSet(h Handle, ms int) error {
	if ms <= 0 {
		return nil
	}
	tv := unix.NsecToTimeval(int64(ms) * int64(1_000_000))
	fd := int(h)
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("setsockopt SO_RCVTIMEO: %w", err)
	}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
		return fmt.Errorf("setsockopt SO_SNDTIMEO: %w", err)
	}
	return nil
}

// SetNonblocking toggles O_NONBLOCK, used by the Sendfile stage to switch a
// socket in and out of blocking mode around a transfer (spec.md §4.5).
func SetNonblocking(h Handle, nonblocking bool) error {
	return unix.SetNonblock(int(h), nonblocking)
}

// Destroy closes a socket. Per spec.md §9 open question, this is the
// general-purpose teardown path; it is a no-op-safe double-close guard is
// the caller's responsibility (each SocketHandle is owned by exactly one
// stage at a time, so double-destroy should not occur by construction).
func Destroy(h Handle) error {
	return unix.Close(int(h))
}

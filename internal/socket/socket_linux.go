//go:build linux

// File: internal/socket/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux-only extensions: TCP_DEFER_ACCEPT (spec.md §4.1 step 4) and
// non-blocking kernel sendfile(2) (spec.md §4.5). golang.org/x/sys/unix does
// not export a TCP_DEFER_ACCEPT constant; it is a stable ABI value on Linux.

package socket

import (
	"errors"

	"golang.org/x/sys/unix"
)

const tcpDeferAccept = 9 // TCP_DEFER_ACCEPT, include/uapi/linux/tcp.h

// HasSendfileSupport reports true: Linux always has sendfile(2).
func HasSendfileSupport() bool { return true }

// TryDeferAccept attempts to set TCP_DEFER_ACCEPT on the listening socket.
// Per spec.md §4.1 step 4, a platform that rejects the option with
// ENOPROTOOPT/EOPNOTSUPP should make the caller silently clear its
// deferAccept request rather than fail init.
func (l *Listener) TryDeferAccept() error {
	err := unix.SetsockoptInt(l.fd, unix.IPPROTO_TCP, tcpDeferAccept, 1)
	if err != nil {
		if errors.Is(err, unix.ENOPROTOOPT) || errors.Is(err, unix.EOPNOTSUPP) {
			return ErrNotImplemented
		}
		return err
	}
	return nil
}

// Sendfile performs one non-blocking sendfile(2) call, writing up to count
// bytes from infd starting at *offset into the stream socket out. It
// returns the number of bytes written and, when the socket would block, the
// kernel's EAGAIN errno, which the caller (the endpoint Sendfile stage)
// tests for with IsEAGAIN.
func Sendfile(out Handle, infd int, offset *int64, count int) (int, error) {
	return unix.Sendfile(int(out), infd, offset, count)
}

// IsEAGAIN reports whether err is the kernel's "would block" signal from a
// non-blocking sendfile call.
func IsEAGAIN(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// OpenFileForSendfile opens a regular file read-only for use as the infd of
// Sendfile. Returned fd must be closed by the caller once the transfer pool
// is destroyed.
func OpenFileForSendfile(path string) (int, error) {
	return unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
}

// CloseFile closes a raw fd opened by OpenFileForSendfile.
func CloseFile(fd int) error {
	return unix.Close(fd)
}

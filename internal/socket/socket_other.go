//go:build unix && !linux

// File: internal/socket/socket_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-Linux POSIX fallback: TCP_DEFER_ACCEPT has no portable equivalent and
// sendfile(2)'s signature differs per-BSD, so this file exercises the
// "runtime lacks sendfile"/"not implemented" clauses of spec.md §4.1 steps
// 4-5 instead of reimplementing a second native sendfile binding.

package socket

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// HasSendfileSupport reports false outside Linux: spec.md §4.1 step 5
// requires useSendfile to be cleared in that case.
func HasSendfileSupport() bool { return false }

// TryDeferAccept always reports ErrNotImplemented here; spec.md §4.1 step 4
// requires the caller to clear deferAccept silently when this happens.
func (l *Listener) TryDeferAccept() error {
	return ErrNotImplemented
}

// Sendfile performs one userspace pread+write copy of up to count bytes,
// since this platform's sendfile(2) is not wired. It never closes infd.
// HasSendfileSupport reports false here, so Init clears UseSendfile and the
// Sendfile stage does not call this function on this platform.
func Sendfile(out Handle, infd int, offset *int64, count int) (int, error) {
	buf := make([]byte, count)
	n, err := unix.Pread(infd, buf, *offset)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	written, werr := unix.Write(int(out), buf[:n])
	if written > 0 {
		*offset += int64(written)
	}
	return written, werr
}

// IsEAGAIN mirrors the Linux helper for call-site symmetry.
func IsEAGAIN(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func OpenFileForSendfile(path string) (int, error) {
	return unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
}

func CloseFile(fd int) error {
	return unix.Close(fd)
}

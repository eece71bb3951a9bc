// Package socket wraps the native socket/poll/sendfile primitives that
// spec.md §9 asks to be modeled as "typed capabilities exposing the
// enumerated operations used" rather than exposing a raw native library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on internal/transport/transport_linux.go from the retrieval pack's
// teacher repo, which already talks to golang.org/x/sys/unix directly for
// non-blocking TCP sockets; this package generalizes that to the full
// accept/bind/listen/optSet/sendfile surface spec.md §4 needs, across the
// `unix` build-tag family (linux, darwin, the BSDs) with a linux-only
// extension file for TCP_DEFER_ACCEPT and kernel sendfile.
package socket

import (
	"errors"
	"strings"
)

// Handle is an opaque native socket descriptor. 0 denotes "none" per
// spec.md §3, but on this implementation a valid fd can legitimately be 0
// (e.g. a reassigned stdin) only in exotic embeddings; within this module
// sockets are always created fresh so 0 is never handed out by Create.
type Handle int

// Family selects the address family to request from the kernel.
type Family int

const (
	FamilyUnspecified Family = iota // dual-stack, when the platform supports it
	FamilyInet4
)

// ErrNotImplemented mirrors the "runtime returns not implemented" case in
// spec.md §4.1 step 4 (TCP_DEFER_ACCEPT) and §4.1 step 5 (sendfile).
var ErrNotImplemented = errors.New("socket: not implemented on this platform")

// ResolveFamily applies the address-family selection rule from spec.md §4.1
// step 2: no address and not BSD/Windows -> unspecified (dual-stack); address
// containing ':' -> unspecified (IPv6 literal or wildcard); else IPv4.
func ResolveFamily(address string, platformIsBSDOrWindows bool) Family {
	if address == "" {
		if platformIsBSDOrWindows {
			return FamilyInet4
		}
		return FamilyUnspecified
	}
	if strings.Contains(address, ":") {
		return FamilyUnspecified
	}
	return FamilyInet4
}

// Options configures a freshly accepted or listening socket. A negative
// SoLinger skips SO_LINGER (zero is applied as linger-on with 0 seconds);
// TCPNoDelay false and SoTimeoutMs <= 0 leave the kernel default in place.
type Options struct {
	SoLinger    int // seconds; < 0 skips SO_LINGER entirely
	TCPNoDelay  bool
	SoTimeoutMs int // <= 0 means no timeout
}

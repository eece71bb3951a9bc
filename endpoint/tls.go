// File: endpoint/tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TLS handshake attachment. crypto/tls operates on a net.Conn, not a raw
// fd, so a handshake wraps the accepted socket in a net.FileConn. Per
// net.FileConn's own contract, that call dups the descriptor for its own
// use; f itself still refers to the ORIGINAL socket number and closing f
// closes that original fd, not a copy. Every caller must therefore switch
// to the fd tlsHandshake returns (and stops using the socket int it was
// given) — the Handler contract (spec.md §6) is socket-int based, so a
// TLS-aware Handler implementation looks its secure conn up via
// Endpoint.TLSConn(newSock) rather than this module changing the Handler
// interface itself.

package endpoint

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"syscall"
)

// TLSConn returns the secure connection established during the handshake
// for sock, if SSLEnabled and the handshake already completed. sock must be
// the value tlsHandshake (via setSocketOptions) returned, not the original
// pre-handshake socket int.
func (e *Endpoint) TLSConn(sock int) (*tls.Conn, bool) {
	e.tlsMu.Lock()
	defer e.tlsMu.Unlock()
	c, ok := e.tlsConns[sock]
	return c, ok
}

// tlsHandshake dups sock into a net.Conn, performs the server handshake, and
// returns the socket value every later stage (Poller registration,
// destroySocket, TLSConn lookups) must use instead of sock.
//
// On any error, tlsHandshake itself closes whichever descriptor it still
// owns at the point of failure and returns -1: the caller must not attempt
// to destroy sock (or anything else) a second time, since by then either
// the original fd or the dup is already gone and the kernel may have
// already handed that fd number to an unrelated new connection.
func (e *Endpoint) tlsHandshake(sock int) (int, error) {
	f := os.NewFile(uintptr(sock), "endpoint-tls-socket")
	conn, err := net.FileConn(f)
	if err != nil {
		_ = f.Close()
		return -1, fmt.Errorf("endpoint: wrap socket for TLS: %w", err)
	}
	// conn now owns an independent, dup'd descriptor; f (and the original
	// sock fd number) are done being useful. Close f now rather than let it
	// leak to a GC finalizer at an unpredictable time.
	_ = f.Close()

	newFd, err := connFd(conn)
	if err != nil {
		_ = conn.Close()
		return -1, err
	}

	tlsConn := tls.Server(conn, e.tlsCtx.TLSConfig())
	if err := tlsConn.Handshake(); err != nil {
		_ = tlsConn.Close()
		return -1, err
	}

	e.tlsMu.Lock()
	e.tlsConns[newFd] = tlsConn
	e.tlsMu.Unlock()
	return newFd, nil
}

// connFd extracts the raw descriptor backing conn without duplicating it
// again, via the syscall.Conn contract *net.TCPConn implements.
func connFd(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("endpoint: connection type %T exposes no raw descriptor", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	if err := raw.Control(func(p uintptr) { fd = int(p) }); err != nil {
		return 0, err
	}
	return fd, nil
}

func (e *Endpoint) forgetTLSConn(sock int) {
	e.tlsMu.Lock()
	c, ok := e.tlsConns[sock]
	delete(e.tlsConns, sock)
	e.tlsMu.Unlock()
	if ok {
		_ = c.Close()
	}
}

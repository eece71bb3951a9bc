// File: endpoint/unlock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The unlock protocol (spec.md §4.1 pause/stop, §6 "Unlock wire behavior"):
// a loopback connection used purely to wake a goroutine blocked in
// accept(2). This is a disposable client-side helper, not part of the
// SocketHandle/PollSet resource model, so it is built with net.Dial rather
// than the internal/socket capability surface.

package endpoint

import (
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// wakeupRequest is the exact byte sequence spec.md §6 mandates when
// deferAccept is enabled, so the woken Acceptor's accept() call returns a
// real (if throwaway) connection instead of hanging on TCP_DEFER_ACCEPT.
const wakeupRequest = "OPTIONS * HTTP/1.0\r\nUser-Agent: Tomcat wakeup connection\r\n\r\n"

const minUnlockSoTimeout = 60 * time.Second

// unlock opens a loopback connection to the listening socket to unblock a
// goroutine parked in Accept(). Failures are logged, not propagated: the
// caller (pause/stop) proceeds regardless, since the Acceptor will also
// notice running/paused going false/true on its next loop iteration.
func (e *Endpoint) unlock() {
	host := e.cfg.Address
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(e.actualPort))

	conn, err := net.DialTimeout("tcp", addr, e.cfg.UnlockTimeout)
	if err != nil {
		e.cfg.Logger.Warn("unlock connection failed", zap.String("addr", addr), zap.Error(err))
		return
	}
	defer conn.Close()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
	}

	soTimeout := e.cfg.SoTimeout
	if soTimeout < minUnlockSoTimeout {
		soTimeout = minUnlockSoTimeout
	}
	_ = conn.SetDeadline(time.Now().Add(soTimeout))

	if e.cfg.DeferAccept {
		_, _ = conn.Write([]byte(wakeupRequest))
	}
}

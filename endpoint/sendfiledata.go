// File: endpoint/sendfiledata.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import (
	"github.com/momentics/apr-endpoint/internal/socket"
	"github.com/momentics/apr-endpoint/pool"
)

// SendfileData describes one outstanding kernel-sendfile transfer, per
// spec.md §3. FilePool is a child of the server-socket pool (see
// NewSendfileData) and is released exactly once the transfer concludes, by
// success, failure, or abandonment.
type SendfileData struct {
	FileName string
	FileFD   int
	FilePool *pool.MemoryPool

	StartOffset   int64
	EndOffset     int64
	CurrentOffset int64

	Socket    socket.Handle
	KeepAlive bool
}

// done reports whether the transfer has delivered every requested byte.
func (d *SendfileData) done() bool {
	return d.CurrentOffset >= d.EndOffset
}

// remaining is the byte count left to send.
func (d *SendfileData) remaining() int {
	return int(d.EndOffset - d.CurrentOffset)
}

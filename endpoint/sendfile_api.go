// File: endpoint/sendfile_api.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Public entry points a Handler uses to hand off a static-file response to
// the Sendfile stage (spec.md §4.5 "Handler hands a SendfileData to
// Sendfile.add").

package endpoint

import (
	"fmt"

	"github.com/momentics/apr-endpoint/internal/socket"
)

// NewSendfileData opens fileName for kernel sendfile and builds the
// SendfileData descriptor, with filePool as a child of the server-socket
// pool (spec.md §3's per-socket pool is simplified here to the server pool,
// since sockets themselves are plain fds rather than pool-tracked handles
// in this rendering — see DESIGN.md).
func (e *Endpoint) NewSendfileData(fileName string, start, end int64, sock int, keepAlive bool) (*SendfileData, error) {
	if !e.cfg.UseSendfile {
		return nil, ErrSendfileDisabled
	}
	fd, err := socket.OpenFileForSendfile(fileName)
	if err != nil {
		return nil, fmt.Errorf("endpoint: open %s for sendfile: %w", fileName, err)
	}
	filePool := e.serverPool.NewChild()
	filePool.Track(func() { _ = socket.CloseFile(fd) })
	return &SendfileData{
		FileName:      fileName,
		FileFD:        fd,
		FilePool:      filePool,
		StartOffset:   start,
		EndOffset:     end,
		CurrentOffset: start,
		Socket:        socket.Handle(sock),
		KeepAlive:     keepAlive,
	}, nil
}

// SubmitSendfile hands data to the next Sendfile stage (round-robin fleet
// selection, spec.md §9). A true return means the file was sent to
// completion synchronously; a false return is ambiguous by design, mirroring
// the original add(): it means either the transfer was handed off to the
// poll loop (data.Socket is untouched; caller must NOT close the socket) or
// it failed outright (data.Socket is reset to 0; caller must close it). The
// caller distinguishes the two by checking data.Socket == 0.
func (e *Endpoint) SubmitSendfile(data *SendfileData) bool {
	if len(e.sendfiles) == 0 {
		data.FilePool.DestroyAndDetach()
		data.Socket = 0
		return false
	}
	idx := e.sendfileRR.Add(1) % uint64(len(e.sendfiles))
	return e.sendfiles[idx].add(data)
}

// File: api/handler.go
// Package api defines the pluggable request Handler contract dispatched to by
// the worker pool, and the tagged variants it exchanges with the endpoint.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// HandlerSocketState is the tagged variant a Handler returns after processing
// a socket. It tells the caller (a Worker) what to do with the socket next.
type HandlerSocketState int

const (
	// StateOpen: request handled, socket stays open; re-registration (if any)
	// is the Handler's own responsibility.
	StateOpen HandlerSocketState = iota
	// StateClosed: the caller must destroy the socket.
	StateClosed
	// StateLong: keep-alive. The caller must re-register the socket with a
	// Poller so the next request is detected via readiness.
	StateLong
)

func (s HandlerSocketState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	case StateLong:
		return "LONG"
	default:
		return "UNKNOWN"
	}
}

// SocketStatus is the tagged variant delivered to Handler.Event for the comet
// (long-poll/event) fleet.
type SocketStatus int

const (
	SocketOpen SocketStatus = iota
	SocketStop
	SocketTimeout
	SocketDisconnect
	SocketError
)

func (s SocketStatus) String() string {
	switch s {
	case SocketOpen:
		return "OPEN"
	case SocketStop:
		return "STOP"
	case SocketTimeout:
		return "TIMEOUT"
	case SocketDisconnect:
		return "DISCONNECT"
	case SocketError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Handler is the external collaborator that parses and answers an individual
// request. It is out of scope of this module (spec.md §1); only its contract
// matters to the worker pool and comet poller fleet.
type Handler interface {
	// Process handles a socket that is ready for a request (fresh accept or
	// keep-alive wakeup).
	Process(socket int) (HandlerSocketState, error)

	// Event delivers a socket lifecycle event to a Handler registered with the
	// comet poller fleet.
	Event(socket int, status SocketStatus) (HandlerSocketState, error)
}

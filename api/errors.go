// Package api
// Author: momentics <momentics@gmail.com>
//
// Generic sentinel errors of the api package. The socket, pool, reactor and
// endpoint packages do not use them; they declare their own sentinels.

package api

import "errors"

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrOperationTimeout  = errors.New("operation timeout")
	ErrNotSupported      = errors.New("operation not supported")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrNotFound          = errors.New("resource not found")
	ErrClosed            = errors.New("already closed")
)

// File: endpoint/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import "errors"

var (
	// ErrPriorInitFailed is returned by Init when a previous Init attempt
	// failed and left the root pool non-nil (spec.md §4.1 fault clause:
	// "if destroy() is ever called with a non-zero root pool after a failed
	// prior init(), init() refuses to proceed").
	ErrPriorInitFailed = errors.New("endpoint: prior init failed, call Destroy before retrying")

	// ErrAlreadyInitialized guards against double Init.
	ErrAlreadyInitialized = errors.New("endpoint: already initialized")

	// ErrNotInitialized is returned by Start before Init.
	ErrNotInitialized = errors.New("endpoint: not initialized")

	// ErrNotRunning reports an endpoint that is not running. No Endpoint
	// method returns it: Pause and Resume on a stopped endpoint are no-ops.
	ErrNotRunning = errors.New("endpoint: not running")

	// ErrBacklogInvalid enforces spec.md §6 "backlog must be > 0".
	ErrBacklogInvalid = errors.New("endpoint: backlog must be > 0")

	// ErrPollTimeInvalid enforces spec.md §6 "pollTime (>0 required)".
	ErrPollTimeInvalid = errors.New("endpoint: pollTime must be > 0")

	// ErrSendfileDisabled is returned by NewSendfileData when useSendfile
	// was never enabled, or was cleared during Init (no runtime support,
	// or forced off under TLS per spec.md §4.1 step 7).
	ErrSendfileDisabled = errors.New("endpoint: sendfile is disabled")
)

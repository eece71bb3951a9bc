// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package concurrency provides the Executor backing the endpoint's
// external-executor configuration path: a worker pool with per-worker
// lock-free local queues and a shared overflow channel, exposed through
// ThreadPool as the api.Executor implementation.
package concurrency

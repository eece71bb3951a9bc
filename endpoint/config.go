// File: endpoint/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Config and the functional-options constructors. Grounded on the teacher's
// server/types.go (a plain struct of tunables) plus server/options.go (a
// ServerOption func(*Config) applied left-to-right by NewServer) — this
// package keeps that exact shape under endpoint.Option/NewConfig.

package endpoint

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/apr-endpoint/api"
	"github.com/momentics/apr-endpoint/tlsconfig"
)

// Config collects every tunable listed in spec.md §6. Zero-value fields take
// the defaults documented per-field; construct with NewConfig(opts...) rather
// than a bare literal so defaults and validation run consistently.
type Config struct {
	Name    string
	Address string
	Port    int
	Backlog int

	AcceptorThreadCount int
	PollerThreadCount   int
	SendfileThreadCount int
	PollerSize          int
	SendfileSize        int

	// MaxThreads: <0 unbounded, 0 disables worker creation, >0 bounded.
	MaxThreads int

	PollTime         time.Duration // Poller/Sendfile poll quantum; >0 required
	SoTimeout        time.Duration // <=0 disables
	KeepAliveTimeout time.Duration // <=0 falls back to SoTimeout
	UnlockTimeout    time.Duration

	SoLinger   int // seconds; <0 skips SO_LINGER
	TCPNoDelay bool
	DeferAccept bool
	UseSendfile bool
	UseComet    bool

	Daemon         bool
	ThreadPriority int

	// Executor, if non-nil, replaces the internal WorkerStack entirely
	// (spec.md §6 "executor").
	Executor api.Executor

	SSLEnabled bool
	SSL        tlsconfig.Spec

	Handler api.Handler
	Logger  *zap.Logger
}

// Option mutates a Config under construction.
type Option func(*Config)

// NewConfig applies sane defaults, then every opt in order, matching the
// teacher's NewServer(opts ...ServerOption) pattern.
func NewConfig(opts ...Option) Config {
	cfg := Config{
		Name:             "endpoint",
		Backlog:          100,
		MaxThreads:       200,
		PollTime:         2000 * time.Microsecond,
		UnlockTimeout:    250 * time.Millisecond,
		SoLinger:         -1,
		Logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithName(name string) Option { return func(c *Config) { c.Name = name } }

func WithAddress(address string, port int) Option {
	return func(c *Config) { c.Address = address; c.Port = port }
}

func WithBacklog(n int) Option { return func(c *Config) { c.Backlog = n } }

func WithThreadCounts(acceptors, pollers, sendfiles int) Option {
	return func(c *Config) {
		c.AcceptorThreadCount = acceptors
		c.PollerThreadCount = pollers
		c.SendfileThreadCount = sendfiles
	}
}

func WithPollerSize(size int) Option { return func(c *Config) { c.PollerSize = size } }

func WithSendfileSize(size int) Option { return func(c *Config) { c.SendfileSize = size } }

func WithMaxThreads(n int) Option { return func(c *Config) { c.MaxThreads = n } }

func WithPollTime(d time.Duration) Option { return func(c *Config) { c.PollTime = d } }

func WithSoTimeout(d time.Duration) Option { return func(c *Config) { c.SoTimeout = d } }

func WithKeepAliveTimeout(d time.Duration) Option {
	return func(c *Config) { c.KeepAliveTimeout = d }
}

func WithUnlockTimeout(d time.Duration) Option {
	return func(c *Config) { c.UnlockTimeout = d }
}

func WithSoLinger(seconds int) Option { return func(c *Config) { c.SoLinger = seconds } }

func WithTCPNoDelay(v bool) Option { return func(c *Config) { c.TCPNoDelay = v } }

func WithDeferAccept(v bool) Option { return func(c *Config) { c.DeferAccept = v } }

func WithSendfile(v bool) Option { return func(c *Config) { c.UseSendfile = v } }

func WithComet(v bool) Option { return func(c *Config) { c.UseComet = v } }

func WithDaemon(v bool) Option { return func(c *Config) { c.Daemon = v } }

func WithThreadPriority(p int) Option { return func(c *Config) { c.ThreadPriority = p } }

func WithExecutor(e api.Executor) Option { return func(c *Config) { c.Executor = e } }

func WithTLS(spec tlsconfig.Spec) Option {
	return func(c *Config) { c.SSLEnabled = true; c.SSL = spec }
}

func WithHandler(h api.Handler) Option { return func(c *Config) { c.Handler = h } }

func WithLogger(log *zap.Logger) Option {
	return func(c *Config) {
		if log != nil {
			c.Logger = log
		}
	}
}

// effectiveKeepAliveTimeout applies spec.md §6's fallback rule.
func (c *Config) effectiveKeepAliveTimeout() time.Duration {
	if c.KeepAliveTimeout > 0 {
		return c.KeepAliveTimeout
	}
	return c.SoTimeout
}

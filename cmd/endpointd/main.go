// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// endpointd is a minimal demonstration of the endpoint package: an echo
// Handler served over a bounded worker pool, reachable on :9002.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/apr-endpoint/api"
	"github.com/momentics/apr-endpoint/endpoint"
)

// echoHandler reads one request and writes it back verbatim, then reports
// LONG so the socket is kept alive for the next request.
type echoHandler struct {
	log *zap.Logger
}

func (h *echoHandler) Process(sock int) (api.HandlerSocketState, error) {
	buf := make([]byte, 4096)
	n, err := unix.Read(sock, buf)
	if err != nil {
		return api.StateClosed, err
	}
	if n == 0 {
		return api.StateClosed, nil
	}
	h.log.Debug("echoing request", zap.Int("socket", sock), zap.Int("bytes", n))
	if _, err := unix.Write(sock, buf[:n]); err != nil {
		return api.StateClosed, err
	}
	return api.StateLong, nil
}

func (h *echoHandler) Event(sock int, status api.SocketStatus) (api.HandlerSocketState, error) {
	h.log.Debug("comet event", zap.Int("socket", sock), zap.String("status", status.String()))
	return api.StateClosed, nil
}

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := endpoint.NewConfig(
		endpoint.WithName("endpointd"),
		endpoint.WithAddress("", 9002),
		endpoint.WithBacklog(128),
		endpoint.WithMaxThreads(64),
		endpoint.WithPollTime(2000*time.Microsecond),
		endpoint.WithKeepAliveTimeout(30*time.Second),
		endpoint.WithSoTimeout(30*time.Second),
		endpoint.WithTCPNoDelay(true),
		endpoint.WithHandler(&echoHandler{log: log}),
		endpoint.WithLogger(log),
	)

	ep := endpoint.New(cfg)
	if err := ep.Init(); err != nil {
		log.Fatal("init failed", zap.Error(err))
	}
	if err := ep.Start(); err != nil {
		log.Fatal("start failed", zap.Error(err))
	}
	log.Info("endpoint listening", zap.Int("port", 9002))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	if err := ep.Destroy(); err != nil {
		log.Error("destroy failed", zap.Error(err))
	}
}

// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the TCP listener and dialer the protocol
// sessions run over. Sessions own framing and lifecycle; this layer
// only moves net.Conn values.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ConnHandler runs one accepted connection to completion. The session
// server's HandleConn satisfies it.
type ConnHandler func(ctx context.Context, conn net.Conn) error

// TCPListener accepts inbound TCP connections and runs each on its own
// goroutine.
type TCPListener struct {
	listener net.Listener
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewTCPListener listens on address (e.g. ":9841"; use ":0" for a
// random port). A nil logger discards.
func NewTCPListener(address string, logger *slog.Logger) (*TCPListener, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener, logger: logger}, nil
}

// Serve accepts connections and hands each to handler until ctx is
// canceled or Close is called. Handler errors are logged, never fatal
// to the accept loop.
func (l *TCPListener) Serve(ctx context.Context, handler ConnHandler) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	var handlers sync.WaitGroup
	defer handlers.Wait()
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			if err := handler(ctx, conn); err != nil {
				l.logger.Warn("connection handler failed",
					"remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// Address returns the bound address in "host:port" form.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close stops accepting. Connections already handed off keep running
// until their sessions end.
func (l *TCPListener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return l.listener.Close()
}

func (l *TCPListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// TCPDialer opens connections to a drillstream server. Used by clients
// and tests.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}

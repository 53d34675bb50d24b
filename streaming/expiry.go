// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"context"
	"log/slog"
	"time"

	"github.com/drillstream/drillstream/lib/clock"
)

// InactivityMarker flips channels inactive once their last append
// falls behind a cutoff. *chunk.Store implements it.
type InactivityMarker interface {
	MarkInactiveSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiryConfig configures the growing-object expiry monitor.
type ExpiryConfig struct {
	// Channels is the store to sweep. Required.
	Channels InactivityMarker

	// Timeout is how long a channel may go without an append before it
	// stops counting as growing. Required.
	Timeout time.Duration

	// CheckInterval is the sweep tick. Defaults to Timeout / 4.
	CheckInterval time.Duration

	// Clock drives the sweep. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives sweep results. Nil means discard.
	Logger *slog.Logger
}

// ExpiryMonitor periodically marks channels inactive once they stop
// growing, so discovery and description reflect which objects are
// still live.
type ExpiryMonitor struct {
	channels InactivityMarker
	timeout  time.Duration
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewExpiryMonitor builds a monitor from cfg.
func NewExpiryMonitor(cfg ExpiryConfig) *ExpiryMonitor {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = cfg.Timeout / 4
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ExpiryMonitor{
		channels: cfg.Channels,
		timeout:  cfg.Timeout,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

// Run sweeps until ctx is canceled.
func (m *ExpiryMonitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cutoff := m.clock.Now().Add(-m.timeout)
		changed, err := m.channels.MarkInactiveSince(ctx, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("expiry sweep failed", "error", err)
			continue
		}
		if changed > 0 {
			m.logger.Info("channels expired", "count", changed, "cutoff", cutoff)
		}
	}
}

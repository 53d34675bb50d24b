// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// drillstreamd is the channel streaming server: it serves the Core,
// Discovery, Store, Channel-Streaming, and Channel-Data-Frame
// protocols over TCP, backed by a SQLite chunk store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/drillstream/drillstream/chunk"
	"github.com/drillstream/drillstream/discovery"
	"github.com/drillstream/drillstream/lib/clock"
	"github.com/drillstream/drillstream/lib/config"
	"github.com/drillstream/drillstream/session"
	"github.com/drillstream/drillstream/store"
	"github.com/drillstream/drillstream/streaming"
	"github.com/drillstream/drillstream/transport"
	"github.com/drillstream/drillstream/wire"
)

const serverVersion = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "drillstreamd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to the configuration file (defaults to $"+config.EnvVar+")")
	pflag.Parse()

	if configPath == "" {
		configPath = os.Getenv(config.EnvVar)
	}
	if configPath == "" {
		return fmt.Errorf("no configuration file: pass --config or set %s", config.EnvVar)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	clk := clock.Real()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chunkStore, err := chunk.OpenStore(chunk.StoreConfig{
		Path:     cfg.ChunkDBPath,
		PoolSize: cfg.ChunkDBPoolSize,
		Clock:    clk,
		Logger:   logger.With("component", "chunkstore"),
	})
	if err != nil {
		return err
	}
	defer chunkStore.Close()

	streamingConfig := streaming.Config{
		Channels:           chunkStore,
		Clock:              clk,
		MaxMessageInterval: cfg.MaxMessageInterval,
		Logger:             logger.With("component", "streaming"),
	}

	registry := session.NewRegistry()
	registry.Register(discovery.NewFactory(discovery.Config{
		Resolvers: []discovery.ObjectResolver{
			&discovery.ChannelResolver{Store: chunkStore, Version: 1},
		},
		Roots: []wire.Resource{{
			URI:          "eml://witsml14",
			Name:         "WITSML 1.4 store",
			ResourceType: wire.ResourceTypeURIProtocol,
			HasChildren:  wire.HasChildrenUnknown,
		}},
		MaxResponseCount: cfg.MaxResponseCount,
		Logger:           logger.With("component", "discovery"),
	}))
	registry.Register(store.NewFactory(store.Config{
		Objects: store.NewMemoryStore(),
		Clock:   clk,
		Logger:  logger.With("component", "store"),
	}))
	registry.Register(streaming.NewFactory(streamingConfig))
	registry.Register(streaming.NewFrameFactory(streamingConfig))

	server := session.NewServer(session.ServerConfig{
		Registry:           registry,
		Gate:               session.AllowAll{},
		Logger:             logger.With("component", "session"),
		ApplicationName:    "drillstreamd",
		ApplicationVersion: serverVersion,
	})

	listener, err := transport.NewTCPListener(cfg.ListenAddress, logger.With("component", "transport"))
	if err != nil {
		return err
	}

	monitor := streaming.NewExpiryMonitor(streaming.ExpiryConfig{
		Channels: chunkStore,
		Timeout:  cfg.GrowingTimeout,
		Clock:    clk,
		Logger:   logger.With("component", "expiry"),
	})

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		monitor.Run(ctx)
	}()

	logger.Info("drillstreamd running",
		"address", listener.Address(),
		"chunkDB", cfg.ChunkDBPath)

	serveErr := listener.Serve(ctx, server.HandleConn)

	logger.Info("shutting down")
	background.Wait()
	return serveErr
}

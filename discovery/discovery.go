// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// Package discovery implements the store role of the Discovery
// protocol: resource browsing over the server's object tree.
package discovery

import (
	"context"
	"log/slog"
	"sort"

	"github.com/drillstream/drillstream/lib/codec"
	"github.com/drillstream/drillstream/session"
	"github.com/drillstream/drillstream/wire"
)

// ObjectResolver lists the children of a uri for one schema version.
// Resolvers are consulted in descending schema-version order; the
// first non-empty result answers the request, so a newer schema
// shadows an older one for the uris it covers.
type ObjectResolver interface {
	SchemaVersion() int
	Resolve(ctx context.Context, uri string) ([]wire.Resource, error)
}

// Config configures the discovery handler.
type Config struct {
	// Resolvers answer non-root uris. Order does not matter; the
	// handler sorts by schema version.
	Resolvers []ObjectResolver

	// Roots are the protocol root folders returned for the uri "/".
	Roots []wire.Resource

	// MaxResponseCount caps one response's resource count. Whole
	// resources beyond the cap are dropped, never truncated
	// mid-resource. Zero or negative means unlimited.
	MaxResponseCount int

	// Logger receives per-request messages. Nil means discard.
	Logger *slog.Logger
}

// NewFactory returns the handler factory for the Discovery protocol in
// the store role.
func NewFactory(cfg Config) session.HandlerFactory {
	return session.HandlerFactory{
		Protocol: wire.ProtocolDiscovery,
		Role:     wire.RoleStore,
		Version:  "1.0",
		New: func(s *session.Session) session.Handler {
			return newHandler(cfg, s)
		},
	}
}

type handler struct {
	out       session.Responder
	resolvers []ObjectResolver
	roots     []wire.Resource
	max       int
	logger    *slog.Logger
}

func newHandler(cfg Config, out session.Responder) *handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	resolvers := append([]ObjectResolver(nil), cfg.Resolvers...)
	sort.SliceStable(resolvers, func(i, j int) bool {
		return resolvers[i].SchemaVersion() > resolvers[j].SchemaVersion()
	})
	return &handler{
		out:       out,
		resolvers: resolvers,
		roots:     cfg.Roots,
		max:       cfg.MaxResponseCount,
		logger:    logger,
	}
}

func (h *handler) Handle(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	if header.MessageType != wire.MsgGetResources {
		return wire.Errorf(wire.CodeUnexpectedMessageType,
			"discovery does not accept message type %d", header.MessageType)
	}
	var request wire.GetResources
	if err := codec.Unmarshal(payload, &request); err != nil {
		return wire.Errorf(wire.CodeMalformedMessage, "decode GetResources: %v", err)
	}

	resources, err := h.resolve(ctx, request.URI)
	if err != nil {
		return err
	}
	if h.max > 0 && len(resources) > h.max {
		h.logger.Debug("resource list capped",
			"uri", request.URI, "resolved", len(resources), "cap", h.max)
		resources = resources[:h.max]
	}

	payloads := make([]any, len(resources))
	for i, resource := range resources {
		payloads[i] = wire.GetResourcesResponse{Resource: resource}
	}
	return h.out.SendMultipart(wire.ProtocolDiscovery, wire.MsgGetResourcesResponse, header.MessageID, payloads)
}

// resolve answers "/" from the configured roots and everything else
// from the resolver chain, newest schema first.
func (h *handler) resolve(ctx context.Context, uri string) ([]wire.Resource, error) {
	if uri == "" {
		return nil, wire.Errorf(wire.CodeInvalidArgument, "empty uri")
	}
	if uri == "/" {
		return h.roots, nil
	}
	for _, resolver := range h.resolvers {
		resources, err := resolver.Resolve(ctx, uri)
		if err != nil {
			return nil, err
		}
		if len(resources) > 0 {
			return resources, nil
		}
	}
	return nil, nil
}

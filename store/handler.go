// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/drillstream/drillstream/lib/clock"
	"github.com/drillstream/drillstream/lib/codec"
	"github.com/drillstream/drillstream/session"
	"github.com/drillstream/drillstream/wire"
)

// Config configures the Store protocol handler.
type Config struct {
	// Objects is the persistence collaborator. Required.
	Objects ObjectStore

	// Clock stamps LastChanged on puts that omit it. Defaults to the
	// real clock.
	Clock clock.Clock

	// Logger receives per-request messages. Nil means discard.
	Logger *slog.Logger
}

// NewFactory returns the handler factory for the Store protocol in the
// store role.
func NewFactory(cfg Config) session.HandlerFactory {
	return session.HandlerFactory{
		Protocol: wire.ProtocolStore,
		Role:     wire.RoleStore,
		Version:  "1.0",
		New: func(s *session.Session) session.Handler {
			return newHandler(cfg, s)
		},
	}
}

type handler struct {
	out     session.Responder
	objects ObjectStore
	clock   clock.Clock
	logger  *slog.Logger
}

func newHandler(cfg Config, out session.Responder) *handler {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &handler{out: out, objects: cfg.Objects, clock: clk, logger: logger}
}

func (h *handler) Handle(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	switch header.MessageType {
	case wire.MsgGetObject:
		return h.getObject(ctx, header, payload)
	case wire.MsgPutObject:
		return h.putObject(ctx, header, payload)
	case wire.MsgDeleteObject:
		return h.deleteObject(ctx, header, payload)
	default:
		return wire.Errorf(wire.CodeUnexpectedMessageType,
			"store does not accept message type %d", header.MessageType)
	}
}

func (h *handler) getObject(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	var request wire.GetObject
	if err := codec.Unmarshal(payload, &request); err != nil {
		return wire.Errorf(wire.CodeMalformedMessage, "decode GetObject: %v", err)
	}
	q, err := parseQuery(request.URI)
	if err != nil {
		return err
	}

	object, err := h.lookup(ctx, q)
	if err != nil {
		return err
	}
	return h.out.Send(wire.ProtocolStore, wire.MsgObject, header.MessageID,
		wire.FlagFinalPart, wire.Object{DataObject: object})
}

// lookup resolves a query: a direct get without a predicate, otherwise
// the first (uri-ordered) candidate under the base that the predicate
// accepts.
func (h *handler) lookup(ctx context.Context, q query) (wire.DataObject, error) {
	if q.predicate == nil {
		object, err := h.objects.Get(ctx, q.base)
		if errors.Is(err, ErrNotFound) {
			return wire.DataObject{}, wire.Errorf(wire.CodeNotFound, "no object at %q", q.base)
		}
		return object, err
	}

	candidates, err := h.objects.List(ctx, q.base)
	if err != nil {
		return wire.DataObject{}, err
	}
	for _, candidate := range candidates {
		matched, err := q.matches(candidate)
		if err != nil {
			return wire.DataObject{}, err
		}
		if matched {
			return candidate, nil
		}
	}
	return wire.DataObject{}, wire.Errorf(wire.CodeNotFound, "no object under %q matches the predicate", q.base)
}

func (h *handler) putObject(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	var request wire.PutObject
	if err := codec.Unmarshal(payload, &request); err != nil {
		return wire.Errorf(wire.CodeMalformedMessage, "decode PutObject: %v", err)
	}
	object := request.DataObject
	if object.URI == "" {
		return wire.Errorf(wire.CodeInvalidArgument, "PutObject without a uri")
	}
	if object.LastChanged == 0 {
		object.LastChanged = h.clock.Now().Unix()
	}
	if err := h.objects.Put(ctx, object); err != nil {
		return err
	}
	h.logger.Debug("object stored", "uri", object.URI, "bytes", len(object.Data))
	return h.out.Send(wire.ProtocolStore, wire.MsgAcknowledge, header.MessageID,
		wire.FlagFinalPart, wire.Acknowledge{})
}

func (h *handler) deleteObject(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	var request wire.DeleteObject
	if err := codec.Unmarshal(payload, &request); err != nil {
		return wire.Errorf(wire.CodeMalformedMessage, "decode DeleteObject: %v", err)
	}
	if len(request.URIs) == 0 {
		return wire.Errorf(wire.CodeInvalidArgument, "DeleteObject without uris")
	}
	for _, uri := range request.URIs {
		err := h.objects.Delete(ctx, uri)
		if errors.Is(err, ErrNotFound) {
			return wire.Errorf(wire.CodeNotFound, "no object at %q", uri)
		}
		if err != nil {
			return err
		}
	}
	return h.out.Send(wire.ProtocolStore, wire.MsgAcknowledge, header.MessageID,
		wire.FlagFinalPart, wire.Acknowledge{})
}

// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/drillstream/drillstream/lib/codec"
	"github.com/drillstream/drillstream/wire"
)

// Handler processes the inbound messages of one protocol within one
// session. Handle is called serially from the session's inbound
// goroutine; a returned *wire.ProtocolError is sent back as a
// ProtocolException on the message's correlation, any other error
// becomes a CodeInternalError exception. Handler errors never close
// the session.
type Handler interface {
	Handle(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error
}

// Responder is the outbound surface handlers send through. *Session
// implements it; tests substitute a recording fake.
type Responder interface {
	Send(protocol wire.ProtocolID, messageType wire.MessageType, correlationID int64, flags uint32, payload any) error
	SendMultipart(protocol wire.ProtocolID, messageType wire.MessageType, correlationID int64, payloads []any) error
	AcknowledgeNoData(protocol wire.ProtocolID, correlationID int64) error
	SendException(protocol wire.ProtocolID, correlationID int64, protocolErr *wire.ProtocolError) error
}

// HandlerFactory binds a protocol id and the role this server plays in
// it to a constructor. New runs once per session at negotiation time;
// the handler it returns holds all per-session protocol state.
type HandlerFactory struct {
	Protocol wire.ProtocolID
	Role     wire.Role
	Version  string
	New      func(s *Session) Handler
}

// SessionInfo is one row of Registry.ActiveSessions.
type SessionInfo struct {
	ID          string
	Application string
	Protocols   []wire.SupportedProtocol
}

// Registry holds the handler factory table, built once at startup, and
// tracks live sessions. The factory table is immutable after the first
// session is served; the session table is mutated as sessions open and
// close.
type Registry struct {
	mu        sync.Mutex
	factories map[wire.ProtocolID]HandlerFactory
	sessions  map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[wire.ProtocolID]HandlerFactory),
		sessions:  make(map[string]*Session),
	}
}

// Register adds a factory. Registering the same protocol id twice is a
// wiring bug and panics at startup rather than serving ambiguously.
func (r *Registry) Register(factory HandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[factory.Protocol]; ok {
		panic(fmt.Sprintf("session: duplicate handler for protocol %s", factory.Protocol))
	}
	r.factories[factory.Protocol] = factory
}

// factory returns the registered factory for a protocol id.
func (r *Registry) factory(protocol wire.ProtocolID) (HandlerFactory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[protocol]
	return f, ok
}

// negotiate intersects the requested (protocol, role) pairs with the
// factory table. A requested pair is accepted when a factory exists
// for the protocol and its role is the complement of the requested
// one; the returned pairs carry this server's roles.
func (r *Registry) negotiate(requested []wire.SupportedProtocol) []wire.SupportedProtocol {
	var accepted []wire.SupportedProtocol
	for _, want := range requested {
		factory, ok := r.factory(want.Protocol)
		if !ok || factory.Role != want.Role.Complement() {
			continue
		}
		accepted = append(accepted, wire.SupportedProtocol{
			Protocol: factory.Protocol,
			Role:     factory.Role,
			Version:  factory.Version,
		})
	}
	return accepted
}

func (r *Registry) addSession(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry) removeSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ActiveSessions lists the open sessions for admin inspection.
func (r *Registry) ActiveSessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, SessionInfo{
			ID:          s.ID(),
			Application: s.Application(),
			Protocols:   s.NegotiatedProtocols(),
		})
	}
	return infos
}

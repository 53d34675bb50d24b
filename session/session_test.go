// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/drillstream/drillstream/lib/codec"
	"github.com/drillstream/drillstream/wire"
)

// ackHandler answers every request with a final Acknowledge.
type ackHandler struct{ s *Session }

func (h *ackHandler) Handle(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	return h.s.Send(header.Protocol, wire.MsgAcknowledge, header.MessageID, wire.FlagFinalPart, wire.Acknowledge{})
}

// failingHandler returns a typed protocol error for every request.
type failingHandler struct{}

func (failingHandler) Handle(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	return wire.Errorf(wire.CodeNotFound, "no such object")
}

func discoveryFactory() HandlerFactory {
	return HandlerFactory{
		Protocol: wire.ProtocolDiscovery,
		Role:     wire.RoleStore,
		Version:  "1.0",
		New:      func(s *Session) Handler { return &ackHandler{s: s} },
	}
}

type serverHarness struct {
	registry *Registry
	server   *Server
	client   net.Conn
	result   chan error
}

func startServer(t *testing.T, gate AuthorizationGate, factories ...HandlerFactory) *serverHarness {
	t.Helper()
	registry := NewRegistry()
	for _, factory := range factories {
		registry.Register(factory)
	}
	server := NewServer(ServerConfig{
		Registry:           registry,
		Gate:               gate,
		ApplicationName:    "drillstreamd-test",
		ApplicationVersion: "0.0.0",
	})

	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close() })

	h := &serverHarness{
		registry: registry,
		server:   server,
		client:   clientConn,
		result:   make(chan error, 1),
	}
	go func() { h.result <- server.HandleConn(context.Background(), serverConn) }()
	return h
}

type testClient struct {
	t         *testing.T
	conn      net.Conn
	messageID int64
}

func (c *testClient) send(protocol wire.ProtocolID, messageType wire.MessageType, payload any) int64 {
	c.t.Helper()
	c.messageID++
	err := wire.WriteMessage(c.conn, wire.MessageHeader{
		Protocol:    protocol,
		MessageType: messageType,
		MessageID:   c.messageID,
	}, payload)
	if err != nil {
		c.t.Fatalf("client write: %v", err)
	}
	return c.messageID
}

func (c *testClient) read() (wire.MessageHeader, codec.RawMessage) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	header, payload, err := wire.ReadMessage(c.conn)
	if err != nil {
		c.t.Fatalf("client read: %v", err)
	}
	return header, payload
}

func (c *testClient) readException() (wire.MessageHeader, wire.ProtocolError) {
	c.t.Helper()
	header, payload := c.read()
	if header.MessageType != wire.MsgProtocolException {
		c.t.Fatalf("got message type %d, want ProtocolException", header.MessageType)
	}
	var protocolErr wire.ProtocolError
	if err := codec.Unmarshal(payload, &protocolErr); err != nil {
		c.t.Fatalf("decode exception: %v", err)
	}
	return header, protocolErr
}

// open performs the handshake requesting the given pairs and returns
// the OpenSession reply.
func (c *testClient) open(requested ...wire.SupportedProtocol) wire.OpenSession {
	c.t.Helper()
	requestID := c.send(wire.ProtocolCore, wire.MsgRequestSession, wire.RequestSession{
		ApplicationName:    "test-client",
		ApplicationVersion: "0.0.0",
		RequestedProtocols: requested,
	})
	header, payload := c.read()
	if header.MessageType != wire.MsgOpenSession {
		c.t.Fatalf("got message type %d, want OpenSession", header.MessageType)
	}
	if header.CorrelationID != requestID {
		c.t.Errorf("OpenSession correlation: got %d, want %d", header.CorrelationID, requestID)
	}
	var open wire.OpenSession
	if err := codec.Unmarshal(payload, &open); err != nil {
		c.t.Fatalf("decode OpenSession: %v", err)
	}
	return open
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNegotiationIntersection(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil,
		discoveryFactory(),
		HandlerFactory{
			Protocol: wire.ProtocolChannelStreaming,
			Role:     wire.RoleProducer,
			Version:  "1.0",
			New:      func(s *Session) Handler { return &ackHandler{s: s} },
		},
	)
	client := &testClient{t: t, conn: h.client}

	// Discovery is requested in the complementary role and supported;
	// Store is requested but not registered at all.
	open := client.open(
		wire.SupportedProtocol{Protocol: wire.ProtocolDiscovery, Role: wire.RoleCustomer, Version: "1.0"},
		wire.SupportedProtocol{Protocol: wire.ProtocolStore, Role: wire.RoleCustomer, Version: "1.0"},
	)
	if open.SessionID == "" {
		t.Error("OpenSession without a session id")
	}
	if len(open.SupportedProtocols) != 1 {
		t.Fatalf("accepted %d protocols, want 1", len(open.SupportedProtocols))
	}
	accepted := open.SupportedProtocols[0]
	if accepted.Protocol != wire.ProtocolDiscovery || accepted.Role != wire.RoleStore {
		t.Errorf("accepted %s as %s, want discovery as store", accepted.Protocol, accepted.Role)
	}
}

func TestNegotiationRejectsNonComplementaryRole(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil, discoveryFactory())
	client := &testClient{t: t, conn: h.client}

	// Requesting the same role the server holds must not intersect.
	client.send(wire.ProtocolCore, wire.MsgRequestSession, wire.RequestSession{
		ApplicationName: "test-client",
		RequestedProtocols: []wire.SupportedProtocol{
			{Protocol: wire.ProtocolDiscovery, Role: wire.RoleStore, Version: "1.0"},
		},
	})
	_, protocolErr := client.readException()
	if protocolErr.Code != wire.CodeNoSupportedProtocols {
		t.Errorf("exception code: got %d, want NoSupportedProtocols", protocolErr.Code)
	}
	if err := <-h.result; err == nil {
		t.Error("HandleConn returned nil after failed negotiation")
	}
}

func TestFirstMessageMustBeRequestSession(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil, discoveryFactory())
	client := &testClient{t: t, conn: h.client}

	client.send(wire.ProtocolDiscovery, wire.MsgGetResources, wire.GetResources{URI: "/"})
	_, protocolErr := client.readException()
	if protocolErr.Code != wire.CodeUnexpectedMessageType {
		t.Errorf("exception code: got %d, want UnexpectedMessageType", protocolErr.Code)
	}
	if err := <-h.result; err == nil {
		t.Error("HandleConn returned nil for a connection that never negotiated")
	}
}

func TestDispatchRoutesToHandler(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil, discoveryFactory())
	client := &testClient{t: t, conn: h.client}
	client.open(wire.SupportedProtocol{Protocol: wire.ProtocolDiscovery, Role: wire.RoleCustomer, Version: "1.0"})

	requestID := client.send(wire.ProtocolDiscovery, wire.MsgGetResources, wire.GetResources{URI: "/"})
	header, _ := client.read()
	if header.MessageType != wire.MsgAcknowledge {
		t.Fatalf("got message type %d, want Acknowledge", header.MessageType)
	}
	if header.CorrelationID != requestID {
		t.Errorf("correlation: got %d, want %d", header.CorrelationID, requestID)
	}
	if !header.IsFinal() {
		t.Error("single-message response missing FinalPart")
	}
}

func TestHandlerErrorBecomesExceptionSessionSurvives(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil,
		HandlerFactory{
			Protocol: wire.ProtocolStore,
			Role:     wire.RoleStore,
			Version:  "1.0",
			New:      func(s *Session) Handler { return failingHandler{} },
		},
	)
	client := &testClient{t: t, conn: h.client}
	client.open(wire.SupportedProtocol{Protocol: wire.ProtocolStore, Role: wire.RoleCustomer, Version: "1.0"})

	requestID := client.send(wire.ProtocolStore, wire.MsgGetObject, wire.GetObject{URI: "eml://nope"})
	header, protocolErr := client.readException()
	if protocolErr.Code != wire.CodeNotFound {
		t.Errorf("exception code: got %d, want NotFound", protocolErr.Code)
	}
	if header.CorrelationID != requestID {
		t.Errorf("correlation: got %d, want %d", header.CorrelationID, requestID)
	}

	// The failure was answered, not fatal: the next request still
	// reaches the handler.
	client.send(wire.ProtocolStore, wire.MsgGetObject, wire.GetObject{URI: "eml://still-nope"})
	if _, protocolErr := client.readException(); protocolErr.Code != wire.CodeNotFound {
		t.Errorf("second request: got code %d, want NotFound", protocolErr.Code)
	}
}

func TestUnroutableProtocolClosesSession(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil, discoveryFactory())
	client := &testClient{t: t, conn: h.client}
	client.open(wire.SupportedProtocol{Protocol: wire.ProtocolDiscovery, Role: wire.RoleCustomer, Version: "1.0"})

	client.send(wire.ProtocolStore, wire.MsgGetObject, wire.GetObject{URI: "eml://x"})
	_, protocolErr := client.readException()
	if protocolErr.Code != wire.CodeUnsupportedProtocol {
		t.Errorf("exception code: got %d, want UnsupportedProtocol", protocolErr.Code)
	}
	if err := <-h.result; err == nil {
		t.Error("HandleConn returned nil after an unnegotiated protocol message")
	}
	if got := len(h.registry.ActiveSessions()); got != 0 {
		t.Errorf("active sessions after close: got %d, want 0", got)
	}
}

// batchHandler answers every request with a fixed number of
// GetResourcesResponse parts, exercising the multi-part send path.
type batchHandler struct {
	s     *Session
	parts int
}

func (h *batchHandler) Handle(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	batches := make([]any, h.parts)
	for i := range batches {
		batches[i] = wire.GetResourcesResponse{Resource: wire.Resource{URI: "eml://part"}}
	}
	return h.s.SendMultipart(header.Protocol, wire.MsgGetResourcesResponse, header.MessageID, batches)
}

func TestMultipartResponseReassembles(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil, HandlerFactory{
		Protocol: wire.ProtocolDiscovery,
		Role:     wire.RoleStore,
		Version:  "1.0",
		New:      func(s *Session) Handler { return &batchHandler{s: s, parts: 3} },
	})
	client := &testClient{t: t, conn: h.client}
	client.open(wire.SupportedProtocol{Protocol: wire.ProtocolDiscovery, Role: wire.RoleCustomer, Version: "1.0"})

	requestID := client.send(wire.ProtocolDiscovery, wire.MsgGetResources, wire.GetResources{URI: "/"})
	collector := wire.NewCollector()
	var parts []codec.RawMessage
	for {
		header, payload := client.read()
		if header.CorrelationID != requestID {
			t.Fatalf("part correlation: got %d, want %d", header.CorrelationID, requestID)
		}
		done := false
		if parts, done = collector.Add(header, payload); done {
			break
		}
	}
	if len(parts) != 3 {
		t.Fatalf("reassembled %d parts, want 3", len(parts))
	}
	if got := collector.PendingSequences(); got != 0 {
		t.Errorf("pending sequences after completion: got %d, want 0", got)
	}
	for i, part := range parts {
		var response wire.GetResourcesResponse
		if err := codec.Unmarshal(part, &response); err != nil {
			t.Fatalf("decode part %d: %v", i, err)
		}
		if response.Resource.URI != "eml://part" {
			t.Errorf("part %d resource: %+v", i, response.Resource)
		}
	}
}

func TestEmptyMultipartIsNoDataAcknowledge(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil, HandlerFactory{
		Protocol: wire.ProtocolDiscovery,
		Role:     wire.RoleStore,
		Version:  "1.0",
		New:      func(s *Session) Handler { return &batchHandler{s: s, parts: 0} },
	})
	client := &testClient{t: t, conn: h.client}
	client.open(wire.SupportedProtocol{Protocol: wire.ProtocolDiscovery, Role: wire.RoleCustomer, Version: "1.0"})

	client.send(wire.ProtocolDiscovery, wire.MsgGetResources, wire.GetResources{URI: "/"})
	header, payload := client.read()
	if header.MessageType != wire.MsgAcknowledge || !header.IsNoData() {
		t.Fatalf("empty result reply: type %d flags %#x", header.MessageType, header.Flags)
	}
	parts, done := wire.NewCollector().Add(header, payload)
	if !done || len(parts) != 0 {
		t.Errorf("collector on NoData ack: parts %d done %v, want 0 true", len(parts), done)
	}
}

// denyStore rejects every Store protocol request.
type denyStore struct{}

func (denyStore) Check(ctx context.Context, sessionID string, header wire.MessageHeader) error {
	if header.Protocol == wire.ProtocolStore {
		return errors.New("store access not permitted")
	}
	return nil
}

func TestGateDenialAnswersWithoutClosing(t *testing.T) {
	t.Parallel()
	h := startServer(t, denyStore{},
		discoveryFactory(),
		HandlerFactory{
			Protocol: wire.ProtocolStore,
			Role:     wire.RoleStore,
			Version:  "1.0",
			New:      func(s *Session) Handler { return &ackHandler{s: s} },
		},
	)
	client := &testClient{t: t, conn: h.client}
	client.open(
		wire.SupportedProtocol{Protocol: wire.ProtocolDiscovery, Role: wire.RoleCustomer, Version: "1.0"},
		wire.SupportedProtocol{Protocol: wire.ProtocolStore, Role: wire.RoleCustomer, Version: "1.0"},
	)

	client.send(wire.ProtocolStore, wire.MsgGetObject, wire.GetObject{URI: "eml://x"})
	_, protocolErr := client.readException()
	if protocolErr.Code != wire.CodeRequestDenied {
		t.Errorf("exception code: got %d, want RequestDenied", protocolErr.Code)
	}

	// Denial is per-request; the discovery protocol still dispatches.
	client.send(wire.ProtocolDiscovery, wire.MsgGetResources, wire.GetResources{URI: "/"})
	header, _ := client.read()
	if header.MessageType != wire.MsgAcknowledge {
		t.Errorf("after denial: got message type %d, want Acknowledge", header.MessageType)
	}
}

func TestCloseSessionEndsAndDeregisters(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil, discoveryFactory())
	client := &testClient{t: t, conn: h.client}
	open := client.open(wire.SupportedProtocol{Protocol: wire.ProtocolDiscovery, Role: wire.RoleCustomer, Version: "1.0"})

	waitFor(t, "session registration", func() bool {
		return len(h.registry.ActiveSessions()) == 1
	})
	info := h.registry.ActiveSessions()[0]
	if info.ID != open.SessionID || info.Application != "test-client" {
		t.Errorf("session info: %+v", info)
	}

	client.send(wire.ProtocolCore, wire.MsgCloseSession, wire.CloseSession{Reason: "done"})
	if err := <-h.result; err != nil {
		t.Errorf("clean close: HandleConn returned %v", err)
	}
	if got := len(h.registry.ActiveSessions()); got != 0 {
		t.Errorf("active sessions after close: got %d, want 0", got)
	}
}

func TestTransportDropIsCleanClose(t *testing.T) {
	t.Parallel()
	h := startServer(t, nil, discoveryFactory())
	client := &testClient{t: t, conn: h.client}
	client.open(wire.SupportedProtocol{Protocol: wire.ProtocolDiscovery, Role: wire.RoleCustomer, Version: "1.0"})

	h.client.Close()
	if err := <-h.result; err != nil {
		t.Errorf("transport drop: HandleConn returned %v", err)
	}
}

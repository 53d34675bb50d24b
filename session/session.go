// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drillstream/drillstream/lib/codec"
	"github.com/drillstream/drillstream/wire"
)

// State is the session lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateNegotiating
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// sendQueueDepth bounds outbound backlog per session. Push loops block
// on a full queue, which backpressures them to the connection's pace.
const sendQueueDepth = 64

// closeFlushTimeout bounds how long teardown waits for queued outbound
// messages (a final exception, a CloseSession) to reach a slow peer.
const closeFlushTimeout = 5 * time.Second

var errSessionClosed = errors.New("session closed")

// ServerConfig configures the session acceptor.
type ServerConfig struct {
	// Registry holds the handler factories and tracks live sessions.
	// Required.
	Registry *Registry

	// Gate authorizes inbound requests. Nil means AllowAll.
	Gate AuthorizationGate

	// Logger receives session lifecycle and dispatch messages. Nil
	// means discard.
	Logger *slog.Logger

	// ApplicationName and ApplicationVersion identify this server in
	// OpenSession replies.
	ApplicationName    string
	ApplicationVersion string

	// SupportedObjects lists the object content types the Store
	// protocol accepts, echoed in OpenSession.
	SupportedObjects []string
}

// Server accepts connections and runs each as a session.
type Server struct {
	registry         *Registry
	gate             AuthorizationGate
	logger           *slog.Logger
	appName          string
	appVersion       string
	supportedObjects []string
}

// NewServer builds a Server from cfg.
func NewServer(cfg ServerConfig) *Server {
	gate := cfg.Gate
	if gate == nil {
		gate = AllowAll{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		registry:         cfg.Registry,
		gate:             gate,
		logger:           logger,
		appName:          cfg.ApplicationName,
		appVersion:       cfg.ApplicationVersion,
		supportedObjects: cfg.SupportedObjects,
	}
}

// HandleConn runs one connection as a session, blocking until the
// session ends. The connection is closed before return.
func (srv *Server) HandleConn(ctx context.Context, conn net.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     uuid.NewString(),
		conn:   conn,
		server: srv,
		ctx:    ctx,
		cancel: cancel,
		sendCh: make(chan outbound, sendQueueDepth),
		done:   make(chan struct{}),
		state:  StateConnecting,
	}
	s.logger = srv.logger.With("session", s.id)
	defer s.teardown()

	go s.writeLoop()

	s.setState(StateNegotiating)
	if err := s.negotiate(); err != nil {
		return err
	}
	s.setState(StateOpen)
	srv.registry.addSession(s)
	s.logger.Info("session open",
		"application", s.Application(),
		"protocols", len(s.NegotiatedProtocols()))

	return s.readLoop()
}

var _ Responder = (*Session)(nil)

type outbound struct {
	header  wire.MessageHeader
	payload any
}

// Session is one live connection after accept. Handlers receive the
// session at construction and use its Send methods; all sends funnel
// through the outbound goroutine.
type Session struct {
	id     string
	conn   net.Conn
	logger *slog.Logger
	server *Server

	ctx    context.Context
	cancel context.CancelFunc

	sendCh chan outbound
	done   chan struct{} // closed when the write loop exits

	mu         sync.Mutex
	state      State
	appName    string
	negotiated []wire.SupportedProtocol
	handlers   map[wire.ProtocolID]Handler
}

// ID returns the server-assigned session id.
func (s *Session) ID() string { return s.id }

// Context is canceled when the session closes; push loops derive from
// it so a close stops them within one tick.
func (s *Session) Context() context.Context { return s.ctx }

// Logger returns the session-scoped logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
}

// Application returns the peer's application name from negotiation.
func (s *Session) Application() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appName
}

// NegotiatedProtocols returns the accepted (protocol, role) pairs in
// this server's roles. Immutable for the session's life.
func (s *Session) NegotiatedProtocols() []wire.SupportedProtocol {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.SupportedProtocol(nil), s.negotiated...)
}

// negotiate runs the acceptor side: the first inbound message must be
// RequestSession, and the intersection of its requested pairs with the
// factory table must be non-empty.
func (s *Session) negotiate() error {
	header, payload, err := wire.ReadMessage(s.conn)
	if err != nil {
		return fmt.Errorf("session %s: negotiation read: %w", s.id, err)
	}
	if header.Protocol != wire.ProtocolCore || header.MessageType != wire.MsgRequestSession {
		s.sendException(header.Protocol, header.MessageID, wire.Errorf(wire.CodeUnexpectedMessageType,
			"expected RequestSession, got protocol %s message type %d", header.Protocol, header.MessageType))
		return fmt.Errorf("session %s: first message is protocol %s type %d, not RequestSession",
			s.id, header.Protocol, header.MessageType)
	}

	var request wire.RequestSession
	if err := codec.Unmarshal(payload, &request); err != nil {
		s.sendException(wire.ProtocolCore, header.MessageID,
			wire.Errorf(wire.CodeMalformedMessage, "decode RequestSession: %v", err))
		return fmt.Errorf("session %s: decode RequestSession: %w", s.id, err)
	}

	accepted := s.server.registry.negotiate(request.RequestedProtocols)
	if len(accepted) == 0 {
		s.sendException(wire.ProtocolCore, header.MessageID,
			wire.Errorf(wire.CodeNoSupportedProtocols, "none of the %d requested protocols is supported", len(request.RequestedProtocols)))
		return fmt.Errorf("session %s: no supported protocols for %q", s.id, request.ApplicationName)
	}

	handlers := make(map[wire.ProtocolID]Handler, len(accepted))
	for _, pair := range accepted {
		factory, _ := s.server.registry.factory(pair.Protocol)
		handlers[pair.Protocol] = factory.New(s)
	}

	s.mu.Lock()
	s.appName = request.ApplicationName
	s.negotiated = accepted
	s.handlers = handlers
	s.mu.Unlock()

	return s.enqueue(wire.MessageHeader{
		Protocol:      wire.ProtocolCore,
		MessageType:   wire.MsgOpenSession,
		CorrelationID: header.MessageID,
		Flags:         wire.FlagFinalPart,
	}, wire.OpenSession{
		SessionID:          s.id,
		ApplicationName:    s.server.appName,
		ApplicationVersion: s.server.appVersion,
		SupportedProtocols: accepted,
		SupportedObjects:   s.server.supportedObjects,
	})
}

// readLoop reads frames and dispatches them serially until the session
// ends. Only transport faults and unroutable protocol ids end the
// session from here; handler errors are answered and iteration
// continues.
func (s *Session) readLoop() error {
	for {
		header, payload, err := wire.ReadMessage(s.conn)
		if err != nil {
			if s.State() == StateClosing || s.ctx.Err() != nil {
				return nil
			}
			s.setState(StateClosing)
			s.logger.Info("session closed by transport", "error", err)
			return nil
		}

		if header.MessageType.IsShared() {
			s.handleShared(header, payload)
			continue
		}
		if header.Protocol == wire.ProtocolCore {
			if closed := s.handleCore(header, payload); closed {
				return nil
			}
			continue
		}

		s.mu.Lock()
		handler, ok := s.handlers[header.Protocol]
		s.mu.Unlock()
		if !ok {
			s.sendException(header.Protocol, header.MessageID,
				wire.Errorf(wire.CodeUnsupportedProtocol, "protocol %s was not negotiated for this session", header.Protocol))
			s.setState(StateClosing)
			return fmt.Errorf("session %s: message on unnegotiated protocol %s", s.id, header.Protocol)
		}

		if err := s.server.gate.Check(s.ctx, s.id, header); err != nil {
			s.logger.Warn("request denied",
				"protocol", header.Protocol.String(),
				"messageType", int32(header.MessageType),
				"error", err)
			s.sendException(header.Protocol, header.MessageID,
				wire.Errorf(wire.CodeRequestDenied, "request denied"))
			continue
		}

		if err := handler.Handle(s.ctx, header, payload); err != nil {
			var protocolErr *wire.ProtocolError
			if !errors.As(err, &protocolErr) {
				s.logger.Error("handler failure",
					"protocol", header.Protocol.String(),
					"messageType", int32(header.MessageType),
					"error", err)
				protocolErr = wire.Errorf(wire.CodeInternalError, "internal error")
			}
			s.sendException(header.Protocol, header.MessageID, protocolErr)
		}
	}
}

// handleShared consumes exception and acknowledge messages from the
// peer. They are informational inbound; neither ends the session.
func (s *Session) handleShared(header wire.MessageHeader, payload codec.RawMessage) {
	switch header.MessageType {
	case wire.MsgProtocolException:
		var protocolErr wire.ProtocolError
		if err := codec.Unmarshal(payload, &protocolErr); err != nil {
			s.logger.Warn("undecodable peer exception", "protocol", header.Protocol.String(), "error", err)
			return
		}
		s.logger.Warn("peer exception",
			"protocol", header.Protocol.String(),
			"code", int32(protocolErr.Code),
			"message", protocolErr.Message,
			"correlation", header.CorrelationID)
	case wire.MsgAcknowledge:
		// No action; acknowledges matter to requesters, not acceptors.
	default:
		s.sendException(header.Protocol, header.MessageID,
			wire.Errorf(wire.CodeUnexpectedMessageType, "unknown shared message type %d", header.MessageType))
	}
}

// handleCore processes Core messages after negotiation, reporting
// whether the session should end.
func (s *Session) handleCore(header wire.MessageHeader, payload codec.RawMessage) bool {
	switch header.MessageType {
	case wire.MsgCloseSession:
		var closeMsg wire.CloseSession
		if err := codec.Unmarshal(payload, &closeMsg); err != nil {
			closeMsg.Reason = "undecodable close reason"
		}
		s.setState(StateClosing)
		s.logger.Info("session closed by peer", "reason", closeMsg.Reason)
		return true
	case wire.MsgRequestSession:
		s.sendException(wire.ProtocolCore, header.MessageID,
			wire.Errorf(wire.CodeUnexpectedMessageType, "session already open"))
	default:
		s.sendException(wire.ProtocolCore, header.MessageID,
			wire.Errorf(wire.CodeUnexpectedMessageType, "unknown core message type %d", header.MessageType))
	}
	return false
}

// Close sends CloseSession with reason and tears the session down.
// Safe from any goroutine.
func (s *Session) Close(reason string) {
	s.setState(StateClosing)
	// Best effort; the peer may already be gone.
	_ = s.enqueue(wire.MessageHeader{
		Protocol:    wire.ProtocolCore,
		MessageType: wire.MsgCloseSession,
	}, wire.CloseSession{Reason: reason})
	s.cancel()
}

// Send enqueues one message. The outbound goroutine assigns the
// message id before writing, so ids are monotonic per session no
// matter which goroutine sends.
func (s *Session) Send(protocol wire.ProtocolID, messageType wire.MessageType, correlationID int64, flags uint32, payload any) error {
	return s.enqueue(wire.MessageHeader{
		Protocol:      protocol,
		MessageType:   messageType,
		CorrelationID: correlationID,
		Flags:         flags,
	}, payload)
}

// SendMultipart sends payloads as one response sequence: every part
// except the last flagged MultiPart, the last FinalPart. Zero payloads
// sends the empty-result acknowledge instead.
func (s *Session) SendMultipart(protocol wire.ProtocolID, messageType wire.MessageType, correlationID int64, payloads []any) error {
	if len(payloads) == 0 {
		return s.AcknowledgeNoData(protocol, correlationID)
	}
	for i, payload := range payloads {
		err := s.Send(protocol, messageType, correlationID, wire.PartFlags(i, len(payloads)), payload)
		if err != nil {
			return err
		}
	}
	return nil
}

// AcknowledgeNoData answers correlationID with the empty-result
// acknowledge.
func (s *Session) AcknowledgeNoData(protocol wire.ProtocolID, correlationID int64) error {
	return s.Send(protocol, wire.MsgAcknowledge, correlationID,
		wire.FlagFinalPart|wire.FlagNoData, wire.Acknowledge{})
}

// SendException answers correlationID with a ProtocolException.
func (s *Session) SendException(protocol wire.ProtocolID, correlationID int64, protocolErr *wire.ProtocolError) error {
	return s.Send(protocol, wire.MsgProtocolException, correlationID, wire.FlagFinalPart, protocolErr)
}

func (s *Session) sendException(protocol wire.ProtocolID, correlationID int64, protocolErr *wire.ProtocolError) {
	if err := s.SendException(protocol, correlationID, protocolErr); err != nil {
		s.logger.Debug("exception not sent", "error", err)
	}
}

func (s *Session) enqueue(header wire.MessageHeader, payload any) error {
	select {
	case s.sendCh <- outbound{header: header, payload: payload}:
		return nil
	case <-s.ctx.Done():
		return errSessionClosed
	}
}

// writeLoop is the single writer: it owns the message id counter and
// the connection's write side. After cancellation it drains messages
// already queued so a final exception or close reaches the peer.
func (s *Session) writeLoop() {
	defer close(s.done)
	var messageID int64

	write := func(msg outbound) bool {
		messageID++
		msg.header.MessageID = messageID
		if err := wire.WriteMessage(s.conn, msg.header, msg.payload); err != nil {
			s.logger.Info("session write failed", "error", err)
			s.conn.Close() // unblock the read loop
			return false
		}
		return true
	}

	for {
		select {
		case msg := <-s.sendCh:
			if !write(msg) {
				return
			}
		case <-s.ctx.Done():
			for {
				select {
				case msg := <-s.sendCh:
					if !write(msg) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// teardown ends the session: cancel push loops, flush the outbound
// queue within a deadline, close the connection, drop the registry
// entry.
func (s *Session) teardown() {
	s.cancel()
	_ = s.conn.SetWriteDeadline(time.Now().Add(closeFlushTimeout))
	<-s.done
	s.conn.Close()
	s.server.registry.removeSession(s.id)
	s.setState(StateClosed)
}

// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the connection lifecycle: negotiation of
// the protocol set, per-session handler instantiation, and the inbound
// dispatch and outbound write loops.
//
// Each accepted connection becomes one Session. The session reads
// frames on a single inbound goroutine and routes them serially to the
// handler registered for the frame's protocol id; a single outbound
// goroutine owns the connection writes and the message id counter, so
// handlers and push loops enqueue rather than write. All mutable
// per-connection state (handler instances, channel id assignment)
// lives on the session; nothing protocol-visible is shared between
// sessions.
package session

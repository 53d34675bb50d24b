// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the Drillstream wire protocol: the message
// header, frame layout, protocol and role tables, per-message payload
// schemas, and the error codes that form the wire contract.
//
// Every message is one frame:
//
//	[4 bytes header length] [4 bytes payload length] [header] [payload]
//
// with big-endian lengths. Header and payload are independently
// CBOR-encoded (lib/codec, deterministic encoding); the header schema
// is fixed, the payload schema is selected by (Protocol, MessageType).
// Payload decoding is deferred to the protocol handler that owns the
// message, which is the only place that knows which message types are
// legal for its role.
//
// # Multi-part responses
//
// A logical response of N items is emitted as N messages sharing the
// request's correlation id. Every part except the last sets
// FlagMultiPart; the last part sets FlagFinalPart only. A single-item
// response therefore carries FlagFinalPart alone, and receivers treat
// FlagFinalPart, not flag absence, as completion. An empty result is
// never an empty multi-part sequence: it is a single Acknowledge
// message with FlagNoData set.
package wire

// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Drillstream's standard CBOR encoding.
//
// Every wire payload and every persisted chunk header goes through this
// package. Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so
// the same logical message always produces identical bytes, which the
// wire contract tests and content comparison of stored chunk headers
// rely on. Decoding accepts standard CBOR and ignores unknown
// fields, which is how message schemas stay forward-compatible: new
// optional fields can be added to a payload struct without breaking
// older peers.
//
// Message and chunk structs use integer field keys (`cbor:"n,keyasint"`)
// rather than text keys. Integer keys are the versioned part of the
// schema: a field number, once assigned, is never reused for a
// different meaning.
package codec

// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "github.com/drillstream/drillstream/lib/codec"

// Collector reassembles multi-part response sequences on the receiving
// side. Parts arrive in send order within one correlation id; the
// collector buffers them until the part carrying FlagFinalPart, then
// releases the whole sequence.
//
// Collector is not safe for concurrent use. Each session's inbound
// path is single-threaded, so one collector per consumer is enough.
type Collector struct {
	pending map[int64][]codec.RawMessage
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{pending: make(map[int64][]codec.RawMessage)}
}

// Add buffers one part. When the part completes its sequence, Add
// returns every buffered payload in send order and done=true. A
// FlagNoData acknowledgement completes immediately with zero payloads:
// callers must treat that as a valid empty result, not an error.
func (c *Collector) Add(header MessageHeader, payload codec.RawMessage) (parts []codec.RawMessage, done bool) {
	key := header.CorrelationID

	if header.IsNoData() {
		delete(c.pending, key)
		return nil, true
	}

	c.pending[key] = append(c.pending[key], payload)
	if !header.IsFinal() {
		return nil, false
	}
	parts = c.pending[key]
	delete(c.pending, key)
	return parts, true
}

// Abandon drops any buffered parts for a correlation id. Used when a
// request is cancelled or its session is closing mid-response.
func (c *Collector) Abandon(correlationID int64) {
	delete(c.pending, correlationID)
}

// PendingSequences returns the number of incomplete sequences held.
func (c *Collector) PendingSequences() int {
	return len(c.pending)
}

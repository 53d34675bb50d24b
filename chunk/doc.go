// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk implements the at-rest format for channel data and the
// merge engine that answers range queries over it.
//
// A channel's records are stored as a series of chunks per parent
// object. Each chunk covers a contiguous primary-index range and holds
// its records as a compressed, row-major CBOR array: one entry per
// record, each entry the record's index tuple followed by its value
// columns. Chunks are immutable once written, except the growing tail
// chunk, which the ingest path may extend in place. Chunks of one
// parent never overlap except at their shared boundary record.
//
// The merge engine (Merge) reconstructs an ordered record sequence
// across chunks for a query range, in ascending or descending primary
// index order, decoding at most one chunk at a time. Range filtering is
// incremental and the high-bound check aborts the whole multi-chunk
// walk, which is what makes "read the last N meters of a long log"
// cheap. The duplicate record shared by two adjacent chunks is dropped
// during the merge, in both directions.
package chunk

// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"sort"
)

// Merge answers a range query over parentURI's chunks: an ordered,
// boundary-deduplicated sequence of records whose primary index falls
// within r (both bounds inclusive). With descending set, both the
// chunk order and the within-chunk record order are flipped.
//
// The returned cursor is lazy: it decodes one chunk at a time and
// stops the entire multi-chunk walk as soon as the terminating bound
// is reached, rather than scanning remaining chunks. Iterate with:
//
//	cursor, err := chunk.Merge(ctx, source, uri, r, false)
//	if err != nil { ... }
//	for cursor.Next() {
//	    record := cursor.Record()
//	    ...
//	}
//	if err := cursor.Err(); err != nil { ... }
func Merge(ctx context.Context, source Source, parentURI string, r Range, descending bool) (*Cursor, error) {
	if r.Empty() {
		return &Cursor{done: true}, nil
	}

	chunks, err := source.GetChunks(ctx, parentURI, r)
	if err != nil {
		return nil, err
	}
	// Sources return ascending StartIndex order; sort anyway so a
	// misbehaving source cannot reorder the merge.
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].StartIndex < chunks[j].StartIndex
	})
	if descending {
		for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
			chunks[i], chunks[j] = chunks[j], chunks[i]
		}
	}

	low, high := r.Bounds()
	return &Cursor{
		chunks:     chunks,
		descending: descending,
		low:        low,
		high:       high,
	}, nil
}

// Cursor iterates the merged record sequence. Not safe for concurrent
// use.
type Cursor struct {
	chunks     []*Chunk
	descending bool
	low, high  float64

	next    int // next chunk to decode
	records []Record
	columns []string
	offset  int

	// lastPrimary tracks the previous emitted record's primary index
	// for boundary deduplication; atBoundary is set while positioned
	// at the leading records of a freshly loaded chunk.
	lastPrimary float64
	hasLast     bool
	atBoundary  bool

	current Record
	err     error
	done    bool
}

// Next advances to the next record, reporting false at the end of the
// sequence or on error.
func (c *Cursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	for {
		if c.offset >= len(c.records) {
			if !c.loadNextChunk() {
				return false
			}
			continue
		}
		record := c.records[c.offset]
		c.offset++
		primary := record.Primary()

		// Adjacent chunks share their boundary record; the copy at
		// the head of the newly loaded chunk is the duplicate and is
		// dropped. The rule is direction-agnostic: in either
		// direction the duplicate leads the next chunk.
		if c.atBoundary && c.hasLast && primary == c.lastPrimary {
			continue
		}
		c.atBoundary = false

		if c.before(primary) {
			continue
		}
		if c.beyond(primary) {
			// Terminating bound crossed: abort the whole walk, not
			// just this chunk.
			c.done = true
			return false
		}

		c.current = record
		c.lastPrimary = primary
		c.hasLast = true
		if c.atTerminalBound(primary) {
			c.done = true
		}
		return true
	}
}

// before reports whether primary precedes the range in iteration
// order.
func (c *Cursor) before(primary float64) bool {
	if c.descending {
		return primary > c.high
	}
	return primary < c.low
}

// beyond reports whether primary has crossed the terminating bound.
func (c *Cursor) beyond(primary float64) bool {
	if c.descending {
		return primary < c.low
	}
	return primary > c.high
}

// atTerminalBound reports whether primary sits exactly on the
// terminating bound, after which no further record can qualify.
func (c *Cursor) atTerminalBound(primary float64) bool {
	if c.descending {
		return primary == c.low
	}
	return primary == c.high
}

func (c *Cursor) loadNextChunk() bool {
	for c.next < len(c.chunks) {
		loaded := c.chunks[c.next]
		c.next++

		records, err := loaded.Records()
		if err != nil {
			c.err = err
			return false
		}
		if loaded.Descending() != c.descending {
			for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
				records[i], records[j] = records[j], records[i]
			}
		}
		if len(records) == 0 {
			continue
		}
		c.records = records
		c.columns = loaded.Mnemonics
		c.offset = 0
		c.atBoundary = c.hasLast
		return true
	}
	c.done = true
	return false
}

// Record returns the record Next positioned on. Only valid after a
// true Next.
func (c *Cursor) Record() Record { return c.current }

// Columns returns the value-column mnemonics of the chunk that
// produced the current record. Chunks of one parent may differ in
// column order, so callers mapping values to channels consult this per
// record.
func (c *Cursor) Columns() []string { return c.columns }

// Err returns the data error that terminated iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Collect drains the cursor into a slice. Intended for tests and for
// bounded replays where the caller already limited the range.
func (c *Cursor) Collect() ([]Record, error) {
	var records []Record
	for c.Next() {
		records = append(records, c.Record())
	}
	return records, c.Err()
}

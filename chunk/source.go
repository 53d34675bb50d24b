// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"sort"
)

// Source supplies the stored chunks of a parent object. The canonical
// implementation is the SQLite Store; tests and embedders may use
// SliceSource.
type Source interface {
	// GetChunks returns the chunks of parentURI whose primary-index
	// span overlaps r, in ascending StartIndex order. Open range
	// bounds select from the first chunk or through the growing tail
	// chunk. Each returned chunk carries a RecordCount snapshot taken
	// at read time.
	GetChunks(ctx context.Context, parentURI string, r Range) ([]*Chunk, error)
}

// SliceSource is an in-memory Source over a fixed chunk list.
type SliceSource struct {
	Chunks []*Chunk
}

// GetChunks returns the overlapping chunks for parentURI in ascending
// StartIndex order.
func (s *SliceSource) GetChunks(_ context.Context, parentURI string, r Range) ([]*Chunk, error) {
	var matched []*Chunk
	for _, c := range s.Chunks {
		if c.ParentURI != parentURI {
			continue
		}
		if !r.Overlaps(c.StartIndex, c.EndIndex) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartIndex < matched[j].StartIndex
	})
	return matched, nil
}

// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import "math"

// Range bounds a query on the primary index. Start is the low bound
// and End the high bound regardless of iteration direction; a nil
// bound leaves that side open. Both bounds are inclusive.
type Range struct {
	Start *float64
	End   *float64
}

// Bounds resolves the range to concrete values, with open sides
// mapped to ±Inf.
func (r Range) Bounds() (low, high float64) {
	low, high = math.Inf(-1), math.Inf(1)
	if r.Start != nil {
		low = *r.Start
	}
	if r.End != nil {
		high = *r.End
	}
	return low, high
}

// Empty reports whether the normalized range selects nothing
// (low > high). An empty range is a valid query yielding an empty
// sequence, not an error.
func (r Range) Empty() bool {
	low, high := r.Bounds()
	return low > high
}

// Overlaps reports whether the range intersects a chunk covering
// [chunkStart, chunkEnd] on the primary index.
func (r Range) Overlaps(chunkStart, chunkEnd float64) bool {
	low, high := r.Bounds()
	return chunkEnd >= low && chunkStart <= high
}

// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"testing"

	"github.com/drillstream/drillstream/lib/codec"
)

func TestPartFlagsExactlyOneFinal(t *testing.T) {
	t.Parallel()

	for _, total := range []int{1, 2, 3, 10} {
		finals := 0
		lastFinal := false
		for i := 0; i < total; i++ {
			flags := PartFlags(i, total)
			if flags&FlagFinalPart != 0 {
				finals++
				lastFinal = i == total-1
			}
			if i < total-1 && flags&FlagMultiPart == 0 {
				t.Errorf("total=%d part=%d: missing FlagMultiPart", total, i)
			}
		}
		if finals != 1 || !lastFinal {
			t.Errorf("total=%d: got %d final parts (last=%v), want exactly 1 on the last part", total, finals, lastFinal)
		}
	}
}

func TestPartFlagsSingleItemConvention(t *testing.T) {
	t.Parallel()

	// N=1 sets FlagFinalPart only. MultiPart on a lone message would
	// leave receivers waiting for more parts.
	if got := PartFlags(0, 1); got != FlagFinalPart {
		t.Errorf("PartFlags(0, 1): got %#x, want FlagFinalPart only", got)
	}
}

func TestCollectorReassemblesInOrder(t *testing.T) {
	t.Parallel()
	collector := NewCollector()

	payloads := make([]codec.RawMessage, 3)
	for i := range payloads {
		data, err := codec.Marshal(GetResourcesResponse{Resource: Resource{Name: string(rune('a' + i))}})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		payloads[i] = data
	}

	for i, payload := range payloads {
		header := MessageHeader{CorrelationID: 99, Flags: PartFlags(i, len(payloads))}
		parts, done := collector.Add(header, payload)
		if i < len(payloads)-1 {
			if done {
				t.Fatalf("part %d: done before final part", i)
			}
			continue
		}
		if !done {
			t.Fatal("final part did not complete the sequence")
		}
		if len(parts) != 3 {
			t.Fatalf("parts: got %d, want 3", len(parts))
		}
		for j, part := range parts {
			var decoded GetResourcesResponse
			if err := codec.Unmarshal(part, &decoded); err != nil {
				t.Fatalf("decode part %d: %v", j, err)
			}
			if want := string(rune('a' + j)); decoded.Resource.Name != want {
				t.Errorf("part %d out of order: got %q, want %q", j, decoded.Resource.Name, want)
			}
		}
	}
	if collector.PendingSequences() != 0 {
		t.Errorf("pending sequences after completion: %d", collector.PendingSequences())
	}
}

func TestCollectorInterleavedCorrelations(t *testing.T) {
	t.Parallel()
	collector := NewCollector()

	// Two sequences interleave on different correlation ids; each must
	// complete independently.
	add := func(correlation int64, index, total int) ([]codec.RawMessage, bool) {
		return collector.Add(MessageHeader{CorrelationID: correlation, Flags: PartFlags(index, total)}, codec.RawMessage{0x01})
	}

	add(1, 0, 2)
	add(2, 0, 3)
	if _, done := add(1, 1, 2); !done {
		t.Error("correlation 1 did not complete")
	}
	add(2, 1, 3)
	parts, done := add(2, 2, 3)
	if !done || len(parts) != 3 {
		t.Errorf("correlation 2: done=%v parts=%d, want done with 3 parts", done, len(parts))
	}
}

func TestCollectorNoDataCompletesEmpty(t *testing.T) {
	t.Parallel()
	collector := NewCollector()

	header := MessageHeader{CorrelationID: 5, Flags: FlagFinalPart | FlagNoData}
	parts, done := collector.Add(header, nil)
	if !done {
		t.Fatal("NoData acknowledgement did not complete")
	}
	if len(parts) != 0 {
		t.Errorf("NoData parts: got %d, want 0", len(parts))
	}
}

func TestCollectorAbandon(t *testing.T) {
	t.Parallel()
	collector := NewCollector()

	collector.Add(MessageHeader{CorrelationID: 7, Flags: PartFlags(0, 2)}, codec.RawMessage{0x01})
	collector.Abandon(7)
	if collector.PendingSequences() != 0 {
		t.Errorf("pending after abandon: %d", collector.PendingSequences())
	}
}

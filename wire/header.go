// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Message flags carried in MessageHeader.Flags.
const (
	// FlagMultiPart marks every part of a multi-part response except
	// the last.
	FlagMultiPart uint32 = 0x1

	// FlagFinalPart marks the last (or only) part of a response.
	FlagFinalPart uint32 = 0x2

	// FlagNoData marks an Acknowledge standing in for an empty result
	// set.
	FlagNoData uint32 = 0x4
)

// MessageHeader precedes every payload on the wire. MessageID is
// assigned monotonically by the sending session; CorrelationID ties a
// response (and all its parts) back to the request's MessageID, and is
// zero on unsolicited messages.
type MessageHeader struct {
	Protocol      ProtocolID  `cbor:"1,keyasint"`
	MessageType   MessageType `cbor:"2,keyasint"`
	MessageID     int64       `cbor:"3,keyasint"`
	CorrelationID int64       `cbor:"4,keyasint"`
	Flags         uint32      `cbor:"5,keyasint,omitempty"`
}

// IsFinal reports whether this message completes its correlation id's
// response sequence.
func (h MessageHeader) IsFinal() bool {
	return h.Flags&FlagFinalPart != 0
}

// IsNoData reports whether this message is an empty-result
// acknowledgement.
func (h MessageHeader) IsNoData() bool {
	return h.Flags&FlagNoData != 0
}

// PartFlags returns the flags for part index of a total-part response
// sequence. The last part gets FlagFinalPart only; every earlier part
// gets FlagMultiPart only.
func PartFlags(index, total int) uint32 {
	if index == total-1 {
		return FlagFinalPart
	}
	return FlagMultiPart
}

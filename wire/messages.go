// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Payload schemas, one struct per (protocol, message type). Field
// numbers are the versioned schema: once assigned, a number is never
// reused with a different meaning. New fields get new numbers and must
// be optional.

// SupportedProtocol names one (protocol, role) pair a peer offers or
// accepts, with the protocol schema version it speaks.
type SupportedProtocol struct {
	Protocol ProtocolID `cbor:"1,keyasint"`
	Role     Role       `cbor:"2,keyasint"`
	Version  string     `cbor:"3,keyasint"`
}

// RequestSession opens negotiation. The requester proposes the
// (protocol, role) pairs it wants to act as; the acceptor answers with
// OpenSession carrying the subset it supports in the complementary
// roles.
type RequestSession struct {
	ApplicationName    string              `cbor:"1,keyasint"`
	ApplicationVersion string              `cbor:"2,keyasint"`
	RequestedProtocols []SupportedProtocol `cbor:"3,keyasint"`
}

// OpenSession completes negotiation. SupportedProtocols holds the
// accepted pairs in the acceptor's (complementary) roles; anything
// absent is rejected for the session's life.
type OpenSession struct {
	SessionID          string              `cbor:"1,keyasint"`
	ApplicationName    string              `cbor:"2,keyasint"`
	ApplicationVersion string              `cbor:"3,keyasint"`
	SupportedProtocols []SupportedProtocol `cbor:"4,keyasint"`
	SupportedObjects   []string            `cbor:"5,keyasint,omitempty"`
}

// CloseSession ends the session. Either side may send it; transport
// disconnect is treated as an abrupt close with a synthesized reason.
type CloseSession struct {
	Reason string `cbor:"1,keyasint"`
}

// Acknowledge is the generic completion message. With FlagNoData set
// it stands in for an empty result set.
type Acknowledge struct{}

// Resource type labels for Resource.ResourceType.
const (
	ResourceTypeObject      = "object"
	ResourceTypeURIProtocol = "uriProtocol"
	ResourceTypeFolder      = "folder"
)

// HasChildrenUnknown is the Resource.HasChildren value meaning the
// child count was not computed. Zero means a known leaf.
const HasChildrenUnknown int32 = -1

// Resource is one browsable node returned by Discovery. It is an
// immutable snapshot, not a live handle.
type Resource struct {
	URI          string `cbor:"1,keyasint"`
	Name         string `cbor:"2,keyasint"`
	ContentType  string `cbor:"3,keyasint,omitempty"`
	ResourceType string `cbor:"4,keyasint"`
	HasChildren  int32  `cbor:"5,keyasint"`
	LastChanged  int64  `cbor:"6,keyasint,omitempty"`
}

// GetResources asks for the children of uri. The root uri "/" returns
// the protocol roots.
type GetResources struct {
	URI string `cbor:"1,keyasint"`
}

// GetResourcesResponse carries one resource; a result set of N is a
// multi-part sequence of N of these.
type GetResourcesResponse struct {
	Resource Resource `cbor:"1,keyasint"`
}

// DataObject is an opaque business object addressed by uri. Data holds
// the object body in whatever encoding its content type names; the
// protocol layer never inspects it.
type DataObject struct {
	URI         string `cbor:"1,keyasint"`
	Name        string `cbor:"2,keyasint,omitempty"`
	ContentType string `cbor:"3,keyasint,omitempty"`
	Data        []byte `cbor:"4,keyasint,omitempty"`
	LastChanged int64  `cbor:"5,keyasint,omitempty"`
}

// GetObject fetches one object by uri. The uri may carry a
// "?where=<predicate>" query selecting among candidates; an
// unparseable predicate fails the request with CodeInvalidArgument.
type GetObject struct {
	URI string `cbor:"1,keyasint"`
}

// Object is the GetObject response.
type Object struct {
	DataObject DataObject `cbor:"1,keyasint"`
}

// PutObject upserts an object keyed by its uri identity: insert with
// defaults when absent, replace preserving identity when present.
type PutObject struct {
	DataObject DataObject `cbor:"1,keyasint"`
}

// DeleteObject removes the named objects.
type DeleteObject struct {
	URIs []string `cbor:"1,keyasint"`
}

// Index kind and direction labels for IndexMetadata.
const (
	IndexKindTime  = "time"
	IndexKindDepth = "depth"

	IndexIncreasing = "increasing"
	IndexDecreasing = "decreasing"
)

// IndexMetadata describes one index dimension of a channel. Index
// values travel as float64 on the wire regardless of kind; time
// indexes are epoch seconds.
type IndexMetadata struct {
	Mnemonic  string `cbor:"1,keyasint"`
	IndexKind string `cbor:"2,keyasint"`
	Direction string `cbor:"3,keyasint"`
	UOM       string `cbor:"4,keyasint,omitempty"`
}

// ChannelMetadataRecord describes one channel. ChannelID is assigned
// by the producer the first time a uri is described within a session
// and is stable for that session only.
type ChannelMetadataRecord struct {
	ChannelID  int64           `cbor:"1,keyasint"`
	URI        string          `cbor:"2,keyasint"`
	Mnemonic   string          `cbor:"3,keyasint"`
	UOM        string          `cbor:"4,keyasint,omitempty"`
	DataType   string          `cbor:"5,keyasint,omitempty"`
	Indexes    []IndexMetadata `cbor:"6,keyasint"`
	Active     bool            `cbor:"7,keyasint"`
	StartIndex *float64        `cbor:"8,keyasint,omitempty"`
	EndIndex   *float64        `cbor:"9,keyasint,omitempty"`
}

// ChannelDescribe asks the producer to describe channels by uri,
// assigning channel ids as needed.
type ChannelDescribe struct {
	URIs []string `cbor:"1,keyasint"`
}

// ChannelMetadata is the ChannelDescribe response: one record per
// requested channel, in one message.
type ChannelMetadata struct {
	Channels []ChannelMetadataRecord `cbor:"1,keyasint"`
}

// ChannelStreamingInfo selects one channel for streaming. StartIndex,
// when set, replays from that primary-index value before going live;
// nil means new data only.
type ChannelStreamingInfo struct {
	ChannelID  int64    `cbor:"1,keyasint"`
	StartIndex *float64 `cbor:"2,keyasint,omitempty"`
}

// ChannelStreamingStart begins the push loop for the listed channels.
type ChannelStreamingStart struct {
	Channels []ChannelStreamingInfo `cbor:"1,keyasint"`
}

// ChannelStreamingStop cancels streaming for the listed channels; an
// empty list stops every streaming channel of the session.
type ChannelStreamingStop struct {
	ChannelIDs []int64 `cbor:"1,keyasint,omitempty"`
}

// ChannelRangeRequest replays a bounded historical range as a
// multi-part ChannelData sequence.
type ChannelRangeRequest struct {
	ChannelID int64    `cbor:"1,keyasint"`
	Start     *float64 `cbor:"2,keyasint,omitempty"`
	End       *float64 `cbor:"3,keyasint,omitempty"`
}

// DataItem is one record of one channel. Indexes carries the ordered
// index tuple (primary first); Value is the channel value at that
// index, typed per the channel's DataType.
type DataItem struct {
	ChannelID int64     `cbor:"1,keyasint"`
	Indexes   []float64 `cbor:"2,keyasint"`
	Value     any       `cbor:"3,keyasint"`
}

// ChannelData carries a batch of records pushed by the streaming
// producer or replayed for a range request.
type ChannelData struct {
	Items []DataItem `cbor:"1,keyasint"`
}

// RequestChannelData asks for a frame-oriented bulk read of every
// channel under a parent uri, bounded to an index range.
type RequestChannelData struct {
	URI   string   `cbor:"1,keyasint"`
	Start *float64 `cbor:"2,keyasint,omitempty"`
	End   *float64 `cbor:"3,keyasint,omitempty"`
}

// ChannelDataFrameSetMetadata precedes the frame rows: index
// descriptors plus the channel list, in column order.
type ChannelDataFrameSetMetadata struct {
	URI      string                  `cbor:"1,keyasint"`
	Indexes  []IndexMetadata         `cbor:"2,keyasint"`
	Channels []ChannelMetadataRecord `cbor:"3,keyasint"`
}

// FrameRow is one frame-set row: the index tuple plus one value per
// channel, aligned with the metadata's channel order. A channel with
// no value at this index carries nil.
type FrameRow struct {
	Indexes []float64 `cbor:"1,keyasint"`
	Values  []any     `cbor:"2,keyasint"`
}

// ChannelDataFrameSet carries a batch of frame rows; a full response
// is a multi-part sequence of these.
type ChannelDataFrameSet struct {
	Rows []FrameRow `cbor:"1,keyasint"`
}

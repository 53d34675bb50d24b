// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// ProtocolID identifies a logical protocol multiplexed over one
// session. The id space is part of the wire contract.
type ProtocolID int32

const (
	// ProtocolCore carries session open/close and the cross-protocol
	// exception and acknowledge messages.
	ProtocolCore ProtocolID = 0

	// ProtocolChannelStreaming carries channel description, metadata,
	// and the live data push.
	ProtocolChannelStreaming ProtocolID = 1

	// ProtocolChannelDataFrame carries bulk frame-oriented reads of
	// channel data.
	ProtocolChannelDataFrame ProtocolID = 2

	// ProtocolDiscovery carries resource browsing.
	ProtocolDiscovery ProtocolID = 3

	// ProtocolStore carries data-object get/put/delete.
	ProtocolStore ProtocolID = 4
)

// String returns the protocol's conventional name.
func (p ProtocolID) String() string {
	switch p {
	case ProtocolCore:
		return "core"
	case ProtocolChannelStreaming:
		return "channelStreaming"
	case ProtocolChannelDataFrame:
		return "channelDataFrame"
	case ProtocolDiscovery:
		return "discovery"
	case ProtocolStore:
		return "store"
	default:
		return "unknown"
	}
}

// Role is one side of a protocol pairing. Roles come in fixed
// complementary pairs; a requester asking for one role is answered by
// a peer holding the complement.
type Role string

const (
	RoleClient   Role = "client"
	RoleServer   Role = "server"
	RoleCustomer Role = "customer"
	RoleStore    Role = "store"
	RoleConsumer Role = "consumer"
	RoleProducer Role = "producer"
)

// Complement returns the fixed counterpart of a role, or "" for an
// unknown role.
func (r Role) Complement() Role {
	switch r {
	case RoleClient:
		return RoleServer
	case RoleServer:
		return RoleClient
	case RoleCustomer:
		return RoleStore
	case RoleStore:
		return RoleCustomer
	case RoleConsumer:
		return RoleProducer
	case RoleProducer:
		return RoleConsumer
	default:
		return ""
	}
}

// MessageType selects the payload schema within a protocol.
type MessageType int32

// Core protocol message types. ProtocolException and Acknowledge sit
// in the shared range (>= 1000) and may appear under any protocol id.
const (
	MsgRequestSession    MessageType = 1
	MsgOpenSession       MessageType = 2
	MsgCloseSession      MessageType = 3
	MsgProtocolException MessageType = 1000
	MsgAcknowledge       MessageType = 1001
)

// ChannelStreaming protocol message types.
const (
	MsgChannelDescribe       MessageType = 1
	MsgChannelMetadata       MessageType = 2
	MsgChannelData           MessageType = 3
	MsgChannelStreamingStart MessageType = 4
	MsgChannelStreamingStop  MessageType = 5
	MsgChannelRangeRequest   MessageType = 6
)

// ChannelDataFrame protocol message types.
const (
	MsgRequestChannelData          MessageType = 1
	MsgChannelDataFrameSetMetadata MessageType = 2
	MsgChannelDataFrameSet         MessageType = 3
)

// Discovery protocol message types.
const (
	MsgGetResources         MessageType = 1
	MsgGetResourcesResponse MessageType = 2
)

// Store protocol message types.
const (
	MsgGetObject    MessageType = 1
	MsgObject       MessageType = 2
	MsgPutObject    MessageType = 3
	MsgDeleteObject MessageType = 4
)

// IsShared reports whether t belongs to the shared message-type range
// legal under every protocol id (exceptions and acknowledges).
func (t MessageType) IsShared() bool {
	return t >= 1000
}

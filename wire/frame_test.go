// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/drillstream/drillstream/lib/codec"
)

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	header := MessageHeader{
		Protocol:      ProtocolDiscovery,
		MessageType:   MsgGetResources,
		MessageID:     42,
		CorrelationID: 7,
		Flags:         FlagFinalPart,
	}
	payload := GetResources{URI: "eml://witsml14/well(w1)"}

	var buf bytes.Buffer
	if err := WriteMessage(&buf, header, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	gotHeader, rawPayload, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if gotHeader != header {
		t.Errorf("header: got %+v, want %+v", gotHeader, header)
	}
	var gotPayload GetResources
	if err := codec.Unmarshal(rawPayload, &gotPayload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if gotPayload != payload {
		t.Errorf("payload: got %+v, want %+v", gotPayload, payload)
	}
}

// Every payload schema must survive encode→decode unchanged through a
// frame, per protocol and message type.
func TestPayloadSchemasRoundTrip(t *testing.T) {
	t.Parallel()

	start := 120.5
	end := 240.0
	cases := []struct {
		name     string
		protocol ProtocolID
		msgType  MessageType
		payload  any
		decoded  any
	}{
		{
			"RequestSession", ProtocolCore, MsgRequestSession,
			&RequestSession{
				ApplicationName:    "witslog-desktop",
				ApplicationVersion: "3.1.0",
				RequestedProtocols: []SupportedProtocol{
					{Protocol: ProtocolChannelStreaming, Role: RoleConsumer, Version: "1.0"},
					{Protocol: ProtocolDiscovery, Role: RoleCustomer, Version: "1.0"},
				},
			},
			&RequestSession{},
		},
		{
			"OpenSession", ProtocolCore, MsgOpenSession,
			&OpenSession{
				SessionID:          "0e6e7b1c-0000-4000-8000-1234567890ab",
				ApplicationName:    "drillstreamd",
				ApplicationVersion: "1.0.0",
				SupportedProtocols: []SupportedProtocol{
					{Protocol: ProtocolChannelStreaming, Role: RoleProducer, Version: "1.0"},
				},
				SupportedObjects: []string{"well", "wellbore", "log"},
			},
			&OpenSession{},
		},
		{
			"CloseSession", ProtocolCore, MsgCloseSession,
			&CloseSession{Reason: "client shutdown"},
			&CloseSession{},
		},
		{
			"ProtocolException", ProtocolCore, MsgProtocolException,
			&ProtocolError{Code: CodeUnsupportedProtocol, Message: "protocol 9 not negotiated"},
			&ProtocolError{},
		},
		{
			"GetResourcesResponse", ProtocolDiscovery, MsgGetResourcesResponse,
			&GetResourcesResponse{Resource: Resource{
				URI:          "eml://witsml14/well(w1)",
				Name:         "w1",
				ContentType:  "application/x-witsml+xml;type=well",
				ResourceType: ResourceTypeObject,
				HasChildren:  HasChildrenUnknown,
				LastChanged:  1760000000,
			}},
			&GetResourcesResponse{},
		},
		{
			"Object", ProtocolStore, MsgObject,
			&Object{DataObject: DataObject{
				URI:         "eml://witsml14/well(w1)",
				Name:        "w1",
				ContentType: "application/x-witsml+xml;type=well",
				Data:        []byte("<well/>"),
				LastChanged: 1760000100,
			}},
			&Object{},
		},
		{
			"ChannelMetadata", ProtocolChannelStreaming, MsgChannelMetadata,
			&ChannelMetadata{Channels: []ChannelMetadataRecord{{
				ChannelID: 3,
				URI:       "eml://witsml14/log(l1)/channel(GR)",
				Mnemonic:  "GR",
				UOM:       "gAPI",
				DataType:  "double",
				Indexes: []IndexMetadata{
					{Mnemonic: "DEPTH", IndexKind: IndexKindDepth, Direction: IndexIncreasing, UOM: "m"},
				},
				Active:     true,
				StartIndex: &start,
				EndIndex:   &end,
			}}},
			&ChannelMetadata{},
		},
		{
			"ChannelRangeRequest", ProtocolChannelStreaming, MsgChannelRangeRequest,
			&ChannelRangeRequest{ChannelID: 3, Start: &start, End: &end},
			&ChannelRangeRequest{},
		},
		{
			"ChannelData", ProtocolChannelStreaming, MsgChannelData,
			&ChannelData{Items: []DataItem{
				{ChannelID: 3, Indexes: []float64{120.5}, Value: 88.25},
				{ChannelID: 3, Indexes: []float64{121.0}, Value: 90.5},
			}},
			&ChannelData{},
		},
		{
			"ChannelDataFrameSet", ProtocolChannelDataFrame, MsgChannelDataFrameSet,
			&ChannelDataFrameSet{Rows: []FrameRow{
				{Indexes: []float64{120.5}, Values: []any{88.25, nil}},
			}},
			&ChannelDataFrameSet{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			header := MessageHeader{Protocol: tc.protocol, MessageType: tc.msgType, MessageID: 1}
			var buf bytes.Buffer
			if err := WriteMessage(&buf, header, tc.payload); err != nil {
				t.Fatalf("WriteMessage: %v", err)
			}
			gotHeader, rawPayload, err := ReadMessage(&buf)
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			if gotHeader != header {
				t.Errorf("header: got %+v, want %+v", gotHeader, header)
			}
			if err := codec.Unmarshal(rawPayload, tc.decoded); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			// Encoded forms must match even when decoded Go values hold
			// numerics as different concrete types (CBOR any decoding).
			wantBytes, err := codec.Marshal(tc.payload)
			if err != nil {
				t.Fatalf("re-encode want: %v", err)
			}
			gotBytes, err := codec.Marshal(tc.decoded)
			if err != nil {
				t.Fatalf("re-encode got: %v", err)
			}
			if !bytes.Equal(gotBytes, wantBytes) {
				t.Errorf("round trip mismatch:\n got %x\nwant %x", gotBytes, wantBytes)
			}
		})
	}
}

func TestReadMessageRejectsMalformedHeader(t *testing.T) {
	t.Parallel()

	// Preamble declares a 4-byte header that is not valid CBOR for
	// MessageHeader.
	frame := []byte{0, 0, 0, 4, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}
	_, _, err := ReadMessage(bytes.NewReader(frame))
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) || protocolErr.Code != CodeMalformedMessage {
		t.Fatalf("malformed header: got %v, want CodeMalformedMessage", err)
	}
}

func TestReadMessageRejectsOversizedDeclaredPayload(t *testing.T) {
	t.Parallel()

	frame := make([]byte, frameHeaderLength)
	frame[0], frame[1], frame[2], frame[3] = 0, 0, 0, 1
	frame[4], frame[5], frame[6], frame[7] = 0xff, 0xff, 0xff, 0xff
	_, _, err := ReadMessage(bytes.NewReader(frame))
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) || protocolErr.Code != CodeMalformedMessage {
		t.Fatalf("oversized payload: got %v, want CodeMalformedMessage", err)
	}
}

func TestReadMessageTruncatedStream(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	header := MessageHeader{Protocol: ProtocolCore, MessageType: MsgCloseSession, MessageID: 9}
	if err := WriteMessage(&buf, header, CloseSession{Reason: "bye"}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]

	_, _, err := ReadMessage(bytes.NewReader(truncated))
	if err == nil {
		t.Fatal("truncated frame decoded without error")
	}
	var protocolErr *ProtocolError
	if errors.As(err, &protocolErr) {
		t.Errorf("truncation is a transport fault, got protocol error %v", protocolErr)
	}
}

func TestNilPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	header := MessageHeader{Protocol: ProtocolCore, MessageType: MsgAcknowledge, MessageID: 5, Flags: FlagNoData | FlagFinalPart}
	if err := WriteMessage(&buf, header, nil); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	gotHeader, rawPayload, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !gotHeader.IsNoData() || !gotHeader.IsFinal() {
		t.Errorf("flags lost: %+v", gotHeader)
	}
	if len(rawPayload) != 0 {
		t.Errorf("payload: got %d bytes, want 0", len(rawPayload))
	}
}

func TestRoleComplements(t *testing.T) {
	t.Parallel()
	pairs := map[Role]Role{
		RoleClient:   RoleServer,
		RoleServer:   RoleClient,
		RoleCustomer: RoleStore,
		RoleStore:    RoleCustomer,
		RoleConsumer: RoleProducer,
		RoleProducer: RoleConsumer,
	}
	for role, want := range pairs {
		if got := role.Complement(); got != want {
			t.Errorf("Complement(%s): got %s, want %s", role, got, want)
		}
		if back := want.Complement(); back != role {
			t.Errorf("Complement(%s): got %s, want %s", want, back, role)
		}
	}
	if got := Role("referee").Complement(); got != "" {
		t.Errorf("Complement(unknown): got %q, want empty", got)
	}
}

func TestHeaderEncodingDeterministic(t *testing.T) {
	t.Parallel()
	header := MessageHeader{Protocol: ProtocolStore, MessageType: MsgPutObject, MessageID: 11, CorrelationID: 3}
	first, err := codec.Marshal(header)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := codec.Marshal(header)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("non-deterministic header encoding")
	}
}

// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/drillstream/drillstream/lib/codec"
)

// frameHeaderLength is the fixed frame preamble: two big-endian uint32
// lengths (header bytes, payload bytes).
const frameHeaderLength = 8

// maxHeaderLength bounds the encoded MessageHeader. The header schema
// is five small integers; 1 KiB leaves room for schema growth.
const maxHeaderLength = 1024

// maxPayloadLength bounds a single payload. Large channel replays are
// split into multi-part sequences well below this.
const maxPayloadLength = 16 * 1024 * 1024

// WriteMessage encodes header and payload and writes one frame to w.
// A nil payload writes a zero-length payload section.
func WriteMessage(w io.Writer, header MessageHeader, payload any) error {
	headerBytes, err := codec.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	var payloadBytes []byte
	if payload != nil {
		payloadBytes, err = codec.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}
	if len(payloadBytes) > maxPayloadLength {
		return fmt.Errorf("payload length %d exceeds maximum %d", len(payloadBytes), maxPayloadLength)
	}

	var preamble [frameHeaderLength]byte
	binary.BigEndian.PutUint32(preamble[0:4], uint32(len(headerBytes)))
	binary.BigEndian.PutUint32(preamble[4:8], uint32(len(payloadBytes)))
	if _, err := w.Write(preamble[:]); err != nil {
		return fmt.Errorf("write frame preamble: %w", err)
	}
	if _, err := w.Write(headerBytes); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payloadBytes) > 0 {
		if _, err := w.Write(payloadBytes); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadMessage reads one frame from r and decodes its header. The
// payload is returned raw; decoding it belongs to the protocol handler
// that owns the message type. A header that cannot be parsed is a
// CodeMalformedMessage protocol error; transport-level read failures
// pass through unwrapped in code.
func ReadMessage(r io.Reader) (MessageHeader, codec.RawMessage, error) {
	var preamble [frameHeaderLength]byte
	if _, err := io.ReadFull(r, preamble[:]); err != nil {
		return MessageHeader{}, nil, fmt.Errorf("read frame preamble: %w", err)
	}
	headerLength := binary.BigEndian.Uint32(preamble[0:4])
	payloadLength := binary.BigEndian.Uint32(preamble[4:8])

	if headerLength == 0 || headerLength > maxHeaderLength {
		return MessageHeader{}, nil, Errorf(CodeMalformedMessage, "frame header length %d outside (0, %d]", headerLength, maxHeaderLength)
	}
	if payloadLength > maxPayloadLength {
		return MessageHeader{}, nil, Errorf(CodeMalformedMessage, "frame payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}

	headerBytes := make([]byte, headerLength)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return MessageHeader{}, nil, fmt.Errorf("read frame header: %w", err)
	}
	var header MessageHeader
	if err := codec.Unmarshal(headerBytes, &header); err != nil {
		return MessageHeader{}, nil, Errorf(CodeMalformedMessage, "decode header: %v", err)
	}

	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return MessageHeader{}, nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return header, payload, nil
}

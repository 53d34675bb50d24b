// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"context"
	"log/slog"

	"github.com/drillstream/drillstream/chunk"
	"github.com/drillstream/drillstream/lib/codec"
	"github.com/drillstream/drillstream/session"
	"github.com/drillstream/drillstream/wire"
)

// NewFrameFactory returns the handler factory for the
// Channel-Data-Frame protocol in the producer role.
func NewFrameFactory(cfg Config) session.HandlerFactory {
	cfg = cfg.withDefaults()
	return session.HandlerFactory{
		Protocol: wire.ProtocolChannelDataFrame,
		Role:     wire.RoleProducer,
		Version:  "1.0",
		New: func(s *session.Session) session.Handler {
			return &frameHandler{out: s, channels: cfg.Channels, logger: cfg.Logger}
		},
	}
}

// frameHandler serves frame-oriented bulk reads: all channels of a
// parent uri as aligned rows.
type frameHandler struct {
	out      session.Responder
	channels ChannelStore
	logger   *slog.Logger
}

func (h *frameHandler) Handle(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	if header.MessageType != wire.MsgRequestChannelData {
		return wire.Errorf(wire.CodeUnexpectedMessageType,
			"channel data frame does not accept message type %d", header.MessageType)
	}
	var request wire.RequestChannelData
	if err := codec.Unmarshal(payload, &request); err != nil {
		return wire.Errorf(wire.CodeMalformedMessage, "decode RequestChannelData: %v", err)
	}

	records, err := h.channels.ChannelsByParent(ctx, request.URI)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return wire.Errorf(wire.CodeNotFound, "no channels under %q", request.URI)
	}

	cursor, err := chunk.Merge(ctx, h.channels, request.URI,
		chunk.Range{Start: request.Start, End: request.End}, false)
	if err != nil {
		return err
	}
	rows, err := frameRows(cursor, records)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return h.out.AcknowledgeNoData(wire.ProtocolChannelDataFrame, header.MessageID)
	}

	// The metadata message leads the response sequence; the frame sets
	// follow, the last one final.
	totalParts := 1 + (len(rows)+batchSize-1)/batchSize
	err = h.out.Send(wire.ProtocolChannelDataFrame, wire.MsgChannelDataFrameSetMetadata,
		header.MessageID, wire.PartFlags(0, totalParts), wire.ChannelDataFrameSetMetadata{
			URI:      request.URI,
			Indexes:  indexMetadata(records[0].Indexes),
			Channels: frameChannels(records),
		})
	if err != nil {
		return err
	}
	part := 1
	for offset := 0; offset < len(rows); offset += batchSize {
		end := min(offset+batchSize, len(rows))
		err := h.out.Send(wire.ProtocolChannelDataFrame, wire.MsgChannelDataFrameSet,
			header.MessageID, wire.PartFlags(part, totalParts), wire.ChannelDataFrameSet{Rows: rows[offset:end]})
		if err != nil {
			return err
		}
		part++
	}
	return nil
}

// frameChannels numbers the frame's channels positionally, in the
// store's mnemonic order. Frame channel ids are scoped to this one
// response.
func frameChannels(records []chunk.ChannelRecord) []wire.ChannelMetadataRecord {
	channels := make([]wire.ChannelMetadataRecord, len(records))
	for i, record := range records {
		channels[i] = metadataRecord(int64(i+1), record)
	}
	return channels
}

// frameRows drains the cursor into rows with one value slot per
// channel, aligned to the metadata order. A channel absent from a
// record's chunk columns gets nil.
func frameRows(cursor *chunk.Cursor, records []chunk.ChannelRecord) ([]wire.FrameRow, error) {
	var rows []wire.FrameRow
	for cursor.Next() {
		rec := cursor.Record()
		columns := cursor.Columns()
		values := make([]any, len(records))
		for i, record := range records {
			for j, column := range columns {
				if column == record.Mnemonic && j < len(rec.Values) {
					values[i] = rec.Values[j]
					break
				}
			}
		}
		rows = append(rows, wire.FrameRow{Indexes: rec.Indexes, Values: values})
	}
	return rows, cursor.Err()
}

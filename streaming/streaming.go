// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// Package streaming implements the producer role of the
// Channel-Streaming and Channel-Data-Frame protocols: channel
// description, the live push loop, historical range replay, and
// frame-oriented bulk reads, all backed by the chunk merge engine.
package streaming

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/drillstream/drillstream/chunk"
	"github.com/drillstream/drillstream/lib/clock"
	"github.com/drillstream/drillstream/lib/codec"
	"github.com/drillstream/drillstream/session"
	"github.com/drillstream/drillstream/wire"
)

// ChannelStore is the chunk-layer surface the streaming handlers read
// from. *chunk.Store implements it.
type ChannelStore interface {
	chunk.Source
	DescribeChannels(ctx context.Context, uris []string) ([]chunk.ChannelRecord, error)
	ChannelsByParent(ctx context.Context, parentURI string) ([]chunk.ChannelRecord, error)
}

// batchSize bounds the records per ChannelData or ChannelDataFrameSet
// message in replays.
const batchSize = 100

// Config configures the streaming handlers.
type Config struct {
	// Channels is the chunk-layer collaborator. Required.
	Channels ChannelStore

	// Clock drives push loop ticks. Defaults to the real clock.
	Clock clock.Clock

	// MaxMessageInterval is the push loop tick: at most one ChannelData
	// message per channel per interval. Defaults to one second.
	MaxMessageInterval time.Duration

	// Logger receives per-channel messages. Nil means discard.
	Logger *slog.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.MaxMessageInterval <= 0 {
		cfg.MaxMessageInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return cfg
}

// NewFactory returns the handler factory for the Channel-Streaming
// protocol in the producer role.
func NewFactory(cfg Config) session.HandlerFactory {
	cfg = cfg.withDefaults()
	return session.HandlerFactory{
		Protocol: wire.ProtocolChannelStreaming,
		Role:     wire.RoleProducer,
		Version:  "1.0",
		New: func(s *session.Session) session.Handler {
			return newHandler(cfg, s)
		},
	}
}

// stream is one channel's live push loop.
type stream struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type handler struct {
	out      session.Responder
	channels ChannelStore
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	nextID  int64
	idByURI map[string]int64
	byID    map[int64]chunk.ChannelRecord
	streams map[int64]*stream
}

func newHandler(cfg Config, out session.Responder) *handler {
	return &handler{
		out:      out,
		channels: cfg.Channels,
		clock:    cfg.Clock,
		interval: cfg.MaxMessageInterval,
		logger:   cfg.Logger,
		idByURI:  make(map[string]int64),
		byID:     make(map[int64]chunk.ChannelRecord),
		streams:  make(map[int64]*stream),
	}
}

func (h *handler) Handle(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	switch header.MessageType {
	case wire.MsgChannelDescribe:
		return h.describe(ctx, header, payload)
	case wire.MsgChannelStreamingStart:
		return h.start(ctx, header, payload)
	case wire.MsgChannelStreamingStop:
		return h.stop(header, payload)
	case wire.MsgChannelRangeRequest:
		return h.rangeRequest(ctx, header, payload)
	default:
		return wire.Errorf(wire.CodeUnexpectedMessageType,
			"channel streaming does not accept message type %d", header.MessageType)
	}
}

// describe answers ChannelDescribe with one ChannelMetadata message.
// Channel ids are assigned on first description of a uri and stay
// stable for the session; unknown uris are omitted from the reply.
func (h *handler) describe(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	var request wire.ChannelDescribe
	if err := codec.Unmarshal(payload, &request); err != nil {
		return wire.Errorf(wire.CodeMalformedMessage, "decode ChannelDescribe: %v", err)
	}
	if len(request.URIs) == 0 {
		return wire.Errorf(wire.CodeInvalidArgument, "ChannelDescribe without uris")
	}

	records, err := h.channels.DescribeChannels(ctx, request.URIs)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return wire.Errorf(wire.CodeNotFound, "none of the %d uris names a stored channel", len(request.URIs))
	}

	metadata := make([]wire.ChannelMetadataRecord, len(records))
	h.mu.Lock()
	for i, record := range records {
		id, ok := h.idByURI[record.URI]
		if !ok {
			h.nextID++
			id = h.nextID
			h.idByURI[record.URI] = id
		}
		h.byID[id] = record
		metadata[i] = metadataRecord(id, record)
	}
	h.mu.Unlock()

	return h.out.Send(wire.ProtocolChannelStreaming, wire.MsgChannelMetadata,
		header.MessageID, wire.FlagFinalPart, wire.ChannelMetadata{Channels: metadata})
}

func metadataRecord(id int64, record chunk.ChannelRecord) wire.ChannelMetadataRecord {
	return wire.ChannelMetadataRecord{
		ChannelID:  id,
		URI:        record.URI,
		Mnemonic:   record.Mnemonic,
		UOM:        record.UOM,
		DataType:   record.DataType,
		Indexes:    indexMetadata(record.Indexes),
		Active:     record.Active,
		StartIndex: record.StartIndex,
		EndIndex:   record.EndIndex,
	}
}

func indexMetadata(descriptors []chunk.IndexDescriptor) []wire.IndexMetadata {
	indexes := make([]wire.IndexMetadata, len(descriptors))
	for i, d := range descriptors {
		indexes[i] = wire.IndexMetadata{
			Mnemonic:  d.Mnemonic,
			IndexKind: d.Kind,
			Direction: d.Direction,
			UOM:       d.UOM,
		}
	}
	return indexes
}

// start launches one push loop per requested channel. Every channel
// must be described and idle; a bad id fails the whole request before
// any loop starts.
func (h *handler) start(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	var request wire.ChannelStreamingStart
	if err := codec.Unmarshal(payload, &request); err != nil {
		return wire.Errorf(wire.CodeMalformedMessage, "decode ChannelStreamingStart: %v", err)
	}
	if len(request.Channels) == 0 {
		return wire.Errorf(wire.CodeInvalidArgument, "ChannelStreamingStart without channels")
	}

	h.mu.Lock()
	for _, info := range request.Channels {
		if _, ok := h.byID[info.ChannelID]; !ok {
			h.mu.Unlock()
			return wire.Errorf(wire.CodeInvalidArgument, "channel id %d was never described", info.ChannelID)
		}
		if _, ok := h.streams[info.ChannelID]; ok {
			h.mu.Unlock()
			return wire.Errorf(wire.CodeInvalidArgument, "channel id %d is already streaming", info.ChannelID)
		}
	}
	for _, info := range request.Channels {
		record := h.byID[info.ChannelID]
		streamCtx, cancel := context.WithCancel(ctx)
		st := &stream{cancel: cancel, done: make(chan struct{})}
		h.streams[info.ChannelID] = st
		go h.run(streamCtx, info.ChannelID, record, info.StartIndex, st.done)
	}
	h.mu.Unlock()

	return h.out.Send(wire.ProtocolChannelStreaming, wire.MsgAcknowledge,
		header.MessageID, wire.FlagFinalPart, wire.Acknowledge{})
}

// run is one channel's push loop: once per tick, pull the records past
// the last pushed index and send them as a single ChannelData. A pull
// error ends this channel's stream only.
func (h *handler) run(ctx context.Context, id int64, record chunk.ChannelRecord, replayFrom *float64, done chan struct{}) {
	defer close(done)
	defer h.clearStream(id)

	// The high-water mark. A replay start pulls history from that
	// index inclusive on the first tick; otherwise only records past
	// the channel's current end are pushed.
	var lastPushed float64
	hasLast := false
	var firstPull *float64
	switch {
	case replayFrom != nil:
		firstPull = replayFrom
	case record.EndIndex != nil:
		lastPushed = *record.EndIndex
		hasLast = true
	}

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		items, err := h.pull(ctx, id, record, firstPull, &lastPushed, &hasLast)
		firstPull = nil
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Error("channel stream ended",
				"channelId", id, "uri", record.URI, "error", err)
			return
		}
		if len(items) == 0 {
			continue
		}
		err = h.out.Send(wire.ProtocolChannelStreaming, wire.MsgChannelData, 0, 0,
			wire.ChannelData{Items: items})
		if err != nil {
			return
		}
	}
}

// pull reads the records newer than the high-water mark (or from
// firstPull on a replaying first tick) and advances the mark.
func (h *handler) pull(ctx context.Context, id int64, record chunk.ChannelRecord, firstPull *float64, lastPushed *float64, hasLast *bool) ([]wire.DataItem, error) {
	var r chunk.Range
	switch {
	case *hasLast:
		// Inclusive bound; the equal record was already pushed and is
		// filtered below.
		start := *lastPushed
		r.Start = &start
	case firstPull != nil:
		r.Start = firstPull
	}

	cursor, err := chunk.Merge(ctx, h.channels, record.ParentURI, r, false)
	if err != nil {
		return nil, err
	}
	var items []wire.DataItem
	for cursor.Next() {
		rec := cursor.Record()
		primary := rec.Primary()
		if *hasLast && primary <= *lastPushed {
			continue
		}
		*lastPushed = primary
		*hasLast = true
		if item, ok := channelItem(id, record.Mnemonic, rec, cursor.Columns()); ok {
			items = append(items, item)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// channelItem projects one merged record onto a single channel's
// column. Records from chunks without that column are skipped.
func channelItem(id int64, mnemonic string, rec chunk.Record, columns []string) (wire.DataItem, bool) {
	for i, column := range columns {
		if column == mnemonic && i < len(rec.Values) {
			return wire.DataItem{ChannelID: id, Indexes: rec.Indexes, Value: rec.Values[i]}, true
		}
	}
	return wire.DataItem{}, false
}

func (h *handler) clearStream(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams, id)
}

// stop cancels push loops. An empty id list stops every streaming
// channel; ids that are not streaming are ignored. The reply waits for
// the loops to finish, so no ChannelData follows the acknowledge.
func (h *handler) stop(header wire.MessageHeader, payload codec.RawMessage) error {
	var request wire.ChannelStreamingStop
	if err := codec.Unmarshal(payload, &request); err != nil {
		return wire.Errorf(wire.CodeMalformedMessage, "decode ChannelStreamingStop: %v", err)
	}

	h.mu.Lock()
	var stopping []*stream
	if len(request.ChannelIDs) == 0 {
		for _, st := range h.streams {
			stopping = append(stopping, st)
		}
	} else {
		for _, id := range request.ChannelIDs {
			if st, ok := h.streams[id]; ok {
				stopping = append(stopping, st)
			}
		}
	}
	h.mu.Unlock()

	for _, st := range stopping {
		st.cancel()
	}
	for _, st := range stopping {
		<-st.done
	}

	return h.out.Send(wire.ProtocolChannelStreaming, wire.MsgAcknowledge,
		header.MessageID, wire.FlagFinalPart, wire.Acknowledge{})
}

// rangeRequest replays a bounded historical range as a multi-part
// ChannelData sequence. Start above End requests a descending replay.
func (h *handler) rangeRequest(ctx context.Context, header wire.MessageHeader, payload codec.RawMessage) error {
	var request wire.ChannelRangeRequest
	if err := codec.Unmarshal(payload, &request); err != nil {
		return wire.Errorf(wire.CodeMalformedMessage, "decode ChannelRangeRequest: %v", err)
	}

	h.mu.Lock()
	record, ok := h.byID[request.ChannelID]
	h.mu.Unlock()
	if !ok {
		return wire.Errorf(wire.CodeInvalidArgument, "channel id %d was never described", request.ChannelID)
	}

	r := chunk.Range{Start: request.Start, End: request.End}
	descending := false
	if request.Start != nil && request.End != nil && *request.Start > *request.End {
		r = chunk.Range{Start: request.End, End: request.Start}
		descending = true
	}

	cursor, err := chunk.Merge(ctx, h.channels, record.ParentURI, r, descending)
	if err != nil {
		return err
	}
	var batches []any
	var batch []wire.DataItem
	for cursor.Next() {
		item, ok := channelItem(request.ChannelID, record.Mnemonic, cursor.Record(), cursor.Columns())
		if !ok {
			continue
		}
		batch = append(batch, item)
		if len(batch) == batchSize {
			batches = append(batches, wire.ChannelData{Items: batch})
			batch = nil
		}
	}
	if err := cursor.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		batches = append(batches, wire.ChannelData{Items: batch})
	}
	return h.out.SendMultipart(wire.ProtocolChannelStreaming, wire.MsgChannelData,
		header.MessageID, batches)
}

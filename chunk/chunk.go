// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"fmt"

	"github.com/drillstream/drillstream/lib/codec"
)

// Index kind and direction labels for IndexDescriptor. Values match
// the wire protocol's labels; the chunk store persists them as-is.
const (
	KindTime  = "time"
	KindDepth = "depth"

	Increasing = "increasing"
	Decreasing = "decreasing"
)

// IndexDescriptor describes one index dimension of a chunk's records.
// The first descriptor is the primary index; range filtering and chunk
// ordering use it exclusively. Index values are float64 throughout,
// with time indexes as epoch seconds, so depth and time share one
// comparison path.
type IndexDescriptor struct {
	Mnemonic  string `cbor:"1,keyasint"`
	Kind      string `cbor:"2,keyasint"`
	Direction string `cbor:"3,keyasint"`
	UOM       string `cbor:"4,keyasint,omitempty"`
}

// Record is one row of channel data: the ordered index tuple (primary
// first) and one value per value column. A value may be nil where the
// column's null value applies.
type Record struct {
	_       struct{} `cbor:",toarray"`
	Indexes []float64
	Values  []any
}

// Primary returns the record's primary index value.
func (r Record) Primary() float64 { return r.Indexes[0] }

// Chunk is one stored slice of a parent object's channel data.
// StartIndex and EndIndex are the minimum and maximum primary index in
// the chunk regardless of the index direction. Data holds the
// compressed row-major record array; RecordCount is the row count at
// the time the chunk row was read, and readers must not re-read it
// mid-iteration (the tail chunk may grow concurrently).
type Chunk struct {
	ParentURI string
	UID       string

	Indexes    []IndexDescriptor
	Mnemonics  []string
	Units      []string
	NullValues []string

	RecordCount int
	StartIndex  float64
	EndIndex    float64

	Compression      CompressionTag
	UncompressedSize int
	Data             []byte
}

// header is the CBOR shape of the chunk's column metadata persisted
// alongside the record data.
type header struct {
	Indexes    []IndexDescriptor `cbor:"1,keyasint"`
	Mnemonics  []string          `cbor:"2,keyasint"`
	Units      []string          `cbor:"3,keyasint,omitempty"`
	NullValues []string          `cbor:"4,keyasint,omitempty"`
}

// EncodeHeader serializes the chunk's column metadata.
func (c *Chunk) EncodeHeader() ([]byte, error) {
	return codec.Marshal(header{
		Indexes:    c.Indexes,
		Mnemonics:  c.Mnemonics,
		Units:      c.Units,
		NullValues: c.NullValues,
	})
}

// DecodeHeader fills the chunk's column metadata from data.
func (c *Chunk) DecodeHeader(data []byte) error {
	var decoded header
	if err := codec.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("chunk %s: decode header: %w", c.UID, err)
	}
	c.Indexes = decoded.Indexes
	c.Mnemonics = decoded.Mnemonics
	c.Units = decoded.Units
	c.NullValues = decoded.NullValues
	return nil
}

// Descending reports whether the chunk's primary index runs high to
// low in storage order.
func (c *Chunk) Descending() bool {
	return len(c.Indexes) > 0 && c.Indexes[0].Direction == Decreasing
}

// EncodeRecords serializes and compresses records for storage,
// returning the data block, the tag actually used (Compress may fall
// back to CompressionNone), and the uncompressed size.
func EncodeRecords(records []Record, tag CompressionTag) (data []byte, used CompressionTag, uncompressedSize int, err error) {
	raw, err := codec.Marshal(records)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode records: %w", err)
	}
	data, used, err = Compress(raw, tag)
	if err != nil {
		return nil, 0, 0, err
	}
	return data, used, len(raw), nil
}

// Records decompresses and decodes the chunk's record array. The
// returned slice is truncated to the chunk's RecordCount snapshot: a
// tail chunk extended after this chunk row was read may hold more
// rows, and those belong to a later read.
func (c *Chunk) Records() ([]Record, error) {
	raw, err := Decompress(c.Data, c.Compression, c.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", c.UID, err)
	}
	var records []Record
	if err := codec.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("chunk %s: decode records: %w", c.UID, err)
	}
	if c.RecordCount < len(records) {
		records = records[:c.RecordCount]
	}
	return records, nil
}

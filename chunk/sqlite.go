// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/drillstream/drillstream/lib/clock"
	"github.com/drillstream/drillstream/lib/codec"
	"github.com/drillstream/drillstream/lib/sqlitepool"
)

// storeSchema creates the chunk and channel tables. Chunks hold the
// record data; channels hold the per-channel metadata records the
// streaming and frame protocols describe to consumers.
const storeSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	uid               TEXT PRIMARY KEY,
	parent_uri        TEXT NOT NULL,
	start_index       REAL NOT NULL,
	end_index         REAL NOT NULL,
	record_count      INTEGER NOT NULL,
	compression       INTEGER NOT NULL,
	uncompressed_size INTEGER NOT NULL,
	header            BLOB NOT NULL,
	data              BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_parent_start ON chunks (parent_uri, start_index);

CREATE TABLE IF NOT EXISTS channels (
	uri         TEXT PRIMARY KEY,
	parent_uri  TEXT NOT NULL,
	mnemonic    TEXT NOT NULL,
	uom         TEXT NOT NULL DEFAULT '',
	data_type   TEXT NOT NULL DEFAULT '',
	indexes     BLOB NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1,
	start_index REAL,
	end_index   REAL,
	last_append INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS channels_parent ON channels (parent_uri);
`

// ChannelRecord is the stored metadata of one channel. The ingest path
// creates it on first description and updates (never replaces) it as
// the channel grows; the expiry monitor flips Active off once
// LastAppend falls behind the growing timeout.
type ChannelRecord struct {
	URI        string
	ParentURI  string
	Mnemonic   string
	UOM        string
	DataType   string
	Indexes    []IndexDescriptor
	Active     bool
	StartIndex *float64
	EndIndex   *float64
	LastAppend time.Time
}

// StoreConfig holds the parameters for opening a chunk store.
type StoreConfig struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Clock provides the time recorded on channel appends. Defaults
	// to the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Store is the SQLite-backed chunk and channel-metadata store. Reads
// run concurrently across sessions; chunk writes belong to the ingest
// path, which serializes per parent object. Store implements Source.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

var _ Source = (*Store)(nil)

// OpenStore opens (creating if needed) the chunk database.
func OpenStore(cfg StoreConfig) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, storeSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chunk store: %w", err)
	}
	return &Store{pool: pool, clock: clk, logger: logger}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// PutChunk inserts a new chunk, assigning a UID when the chunk has
// none. The chunk's Data, Compression, and UncompressedSize must
// already be populated (EncodeRecords).
func (s *Store) PutChunk(ctx context.Context, c *Chunk) error {
	if c.UID == "" {
		c.UID = uuid.NewString()
	}
	headerBytes, err := c.EncodeHeader()
	if err != nil {
		return fmt.Errorf("chunk store: put %s: %w", c.UID, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("chunk store: put: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO chunks
		(uid, parent_uri, start_index, end_index, record_count,
		 compression, uncompressed_size, header, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			c.UID, c.ParentURI, c.StartIndex, c.EndIndex, c.RecordCount,
			int64(c.Compression), c.UncompressedSize, headerBytes, c.Data,
		},
	})
	if err != nil {
		return fmt.Errorf("chunk store: put %s: %w", c.UID, err)
	}
	return nil
}

// ExtendTail appends records to the growing tail chunk identified by
// uid, rewriting its data block and bounds in one transaction. The
// tail keeps LZ4 compression: it is rewritten on every append, so
// encode speed wins over ratio until the chunk is sealed.
func (s *Store) ExtendTail(ctx context.Context, uid string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("chunk store: extend: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("chunk store: extend %s: begin: %w", uid, err)
	}
	defer endTransaction(&err)

	tail, err := loadChunk(conn, uid)
	if err != nil {
		return err
	}
	existing, err := tail.Records()
	if err != nil {
		return fmt.Errorf("chunk store: extend %s: %w", uid, err)
	}

	combined := append(existing, records...)
	start, end := tail.StartIndex, tail.EndIndex
	for _, record := range records {
		primary := record.Primary()
		start = min(start, primary)
		end = max(end, primary)
	}

	data, used, uncompressedSize, err := EncodeRecords(combined, CompressionLZ4)
	if err != nil {
		return fmt.Errorf("chunk store: extend %s: %w", uid, err)
	}

	err = sqlitex.Execute(conn, `UPDATE chunks
		SET start_index = ?, end_index = ?, record_count = ?,
		    compression = ?, uncompressed_size = ?, data = ?
		WHERE uid = ?`, &sqlitex.ExecOptions{
		Args: []any{start, end, len(combined), int64(used), uncompressedSize, data, uid},
	})
	if err != nil {
		return fmt.Errorf("chunk store: extend %s: %w", uid, err)
	}
	return nil
}

// GetChunks implements Source: the chunks of parentURI overlapping r,
// ascending by start index. Each chunk's RecordCount is the snapshot
// read here; callers iterate against it even if the tail grows
// afterwards.
func (s *Store) GetChunks(ctx context.Context, parentURI string, r Range) ([]*Chunk, error) {
	if r.Empty() {
		return nil, nil
	}
	low, high := r.Bounds()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("chunk store: get chunks: %w", err)
	}
	defer s.pool.Put(conn)

	query := `SELECT uid, parent_uri, start_index, end_index, record_count,
		compression, uncompressed_size, header, data
		FROM chunks WHERE parent_uri = ?`
	args := []any{parentURI}
	if r.Start != nil {
		query += " AND end_index >= ?"
		args = append(args, low)
	}
	if r.End != nil {
		query += " AND start_index <= ?"
		args = append(args, high)
	}
	query += " ORDER BY start_index"

	var chunks []*Chunk
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			loaded, err := scanChunk(stmt)
			if err != nil {
				return err
			}
			chunks = append(chunks, loaded)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chunk store: get chunks for %s: %w", parentURI, err)
	}
	return chunks, nil
}

// loadChunk fetches one chunk row by uid on an already-held
// connection.
func loadChunk(conn *sqlite.Conn, uid string) (*Chunk, error) {
	var loaded *Chunk
	err := sqlitex.Execute(conn, `SELECT uid, parent_uri, start_index, end_index,
		record_count, compression, uncompressed_size, header, data
		FROM chunks WHERE uid = ?`, &sqlitex.ExecOptions{
		Args: []any{uid},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			scanned, err := scanChunk(stmt)
			if err != nil {
				return err
			}
			loaded = scanned
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chunk store: load %s: %w", uid, err)
	}
	if loaded == nil {
		return nil, fmt.Errorf("chunk store: no chunk with uid %s", uid)
	}
	return loaded, nil
}

// scanChunk builds a Chunk from the standard nine-column projection.
func scanChunk(stmt *sqlite.Stmt) (*Chunk, error) {
	scanned := &Chunk{
		UID:              stmt.ColumnText(0),
		ParentURI:        stmt.ColumnText(1),
		StartIndex:       stmt.ColumnFloat(2),
		EndIndex:         stmt.ColumnFloat(3),
		RecordCount:      int(stmt.ColumnInt64(4)),
		Compression:      CompressionTag(stmt.ColumnInt64(5)),
		UncompressedSize: int(stmt.ColumnInt64(6)),
	}
	headerBytes := make([]byte, stmt.ColumnLen(7))
	stmt.ColumnBytes(7, headerBytes)
	if err := scanned.DecodeHeader(headerBytes); err != nil {
		return nil, err
	}
	scanned.Data = make([]byte, stmt.ColumnLen(8))
	stmt.ColumnBytes(8, scanned.Data)
	return scanned, nil
}

// UpsertChannel creates or updates a channel metadata record, stamping
// LastAppend with the store clock.
func (s *Store) UpsertChannel(ctx context.Context, record ChannelRecord) error {
	indexesBytes, err := codec.Marshal(record.Indexes)
	if err != nil {
		return fmt.Errorf("chunk store: upsert channel %s: %w", record.URI, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("chunk store: upsert channel: %w", err)
	}
	defer s.pool.Put(conn)

	var startIndex, endIndex any
	if record.StartIndex != nil {
		startIndex = *record.StartIndex
	}
	if record.EndIndex != nil {
		endIndex = *record.EndIndex
	}
	active := 0
	if record.Active {
		active = 1
	}

	err = sqlitex.Execute(conn, `INSERT INTO channels
		(uri, parent_uri, mnemonic, uom, data_type, indexes, active,
		 start_index, end_index, last_append)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
		 uom = excluded.uom, data_type = excluded.data_type,
		 indexes = excluded.indexes, active = excluded.active,
		 start_index = excluded.start_index, end_index = excluded.end_index,
		 last_append = excluded.last_append`, &sqlitex.ExecOptions{
		Args: []any{
			record.URI, record.ParentURI, record.Mnemonic, record.UOM,
			record.DataType, indexesBytes, active, startIndex, endIndex,
			s.clock.Now().Unix(),
		},
	})
	if err != nil {
		return fmt.Errorf("chunk store: upsert channel %s: %w", record.URI, err)
	}
	return nil
}

// DescribeChannels returns the stored records for the given uris, in
// request order. Unknown uris are simply absent from the result; the
// protocol layer decides whether that is an error.
func (s *Store) DescribeChannels(ctx context.Context, uris []string) ([]ChannelRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("chunk store: describe channels: %w", err)
	}
	defer s.pool.Put(conn)

	var records []ChannelRecord
	for _, uri := range uris {
		err := sqlitex.Execute(conn, `SELECT uri, parent_uri, mnemonic, uom,
			data_type, indexes, active, start_index, end_index, last_append
			FROM channels WHERE uri = ?`, &sqlitex.ExecOptions{
			Args: []any{uri},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanChannel(stmt)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("chunk store: describe channel %s: %w", uri, err)
		}
	}
	return records, nil
}

// ChannelsByParent returns every channel under a parent uri, ordered
// by mnemonic for stable frame column order.
func (s *Store) ChannelsByParent(ctx context.Context, parentURI string) ([]ChannelRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("chunk store: channels by parent: %w", err)
	}
	defer s.pool.Put(conn)

	var records []ChannelRecord
	err = sqlitex.Execute(conn, `SELECT uri, parent_uri, mnemonic, uom,
		data_type, indexes, active, start_index, end_index, last_append
		FROM channels WHERE parent_uri = ? ORDER BY mnemonic`, &sqlitex.ExecOptions{
		Args: []any{parentURI},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := scanChannel(stmt)
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chunk store: channels by parent %s: %w", parentURI, err)
	}
	return records, nil
}

// MarkInactiveSince flips Active off on every channel whose last
// append is strictly before cutoff, returning how many changed. The
// growing-object expiry monitor calls this on its tick.
func (s *Store) MarkInactiveSince(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("chunk store: mark inactive: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `UPDATE channels SET active = 0
		WHERE active = 1 AND last_append < ?`, &sqlitex.ExecOptions{
		Args: []any{cutoff.Unix()},
	})
	if err != nil {
		return 0, fmt.Errorf("chunk store: mark inactive: %w", err)
	}
	return int64(conn.Changes()), nil
}

func scanChannel(stmt *sqlite.Stmt) (ChannelRecord, error) {
	record := ChannelRecord{
		URI:        stmt.ColumnText(0),
		ParentURI:  stmt.ColumnText(1),
		Mnemonic:   stmt.ColumnText(2),
		UOM:        stmt.ColumnText(3),
		DataType:   stmt.ColumnText(4),
		Active:     stmt.ColumnInt64(6) != 0,
		LastAppend: time.Unix(stmt.ColumnInt64(9), 0).UTC(),
	}
	indexesBytes := make([]byte, stmt.ColumnLen(5))
	stmt.ColumnBytes(5, indexesBytes)
	if err := codec.Unmarshal(indexesBytes, &record.Indexes); err != nil {
		return ChannelRecord{}, fmt.Errorf("chunk store: decode indexes for %s: %w", record.URI, err)
	}
	if stmt.ColumnType(7) != sqlite.TypeNull {
		start := stmt.ColumnFloat(7)
		record.StartIndex = &start
	}
	if stmt.ColumnType(8) != sqlite.TypeNull {
		end := stmt.ColumnFloat(8)
		record.EndIndex = &end
	}
	return record, nil
}

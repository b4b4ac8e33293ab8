package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/nicktill/toptalkers/pkg/storage"
)

// Key layout, 32 bytes, all big-endian so keys sort by length then time:
//
//	[collection hash 8][bucket length 8][time 8][identity hash 8]
const (
	keySize       = 32
	lengthOffset  = 8
	timeOffset    = 16
	idOffset      = 24
	ctxCheckEvery = 1000
)

// Store implements storage.Store using BadgerDB (LSM tree)
type Store struct {
	db *badger.DB
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly default)
	MaxMemoryMB int64
}

// New creates a BadgerDB store
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)

	// Disk-less mode refuses a directory
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	// BadgerDB has several unbounded memory consumers; cap them all
	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2). // badger's minimum
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db}, nil
}

// Write stores records in a single write batch
func (s *Store) Write(ctx context.Context, c storage.Collection, records []storage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i, rec := range records {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("write operation cancelled: %w", err)
			}
		}

		value, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		if err := wb.Set(makeKey(c, rec), value); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}
	return nil
}

// Query opens a read transaction and returns a cursor positioned before the
// first matching record. With a fixed length the scan seeks straight to
// Start and stops at End.
func (s *Store) Query(ctx context.Context, q storage.Query) (storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 100

	cur := &cursor{txn: txn, q: q}
	if q.Length > 0 {
		cur.prefix = lengthPrefix(q.Collection, q.Length)
		cur.seek = timeKey(cur.prefix, q.Start)
	} else {
		cur.prefix = collectionPrefix(q.Collection)
		cur.seek = cur.prefix
	}
	opts.Prefix = cur.prefix
	cur.it = txn.NewIterator(opts)

	return cur, nil
}

// Bounds scans a collection's keys for the earliest and latest times
func (s *Store) Bounds(ctx context.Context, c storage.Collection) (storage.Span, error) {
	var span storage.Span
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = collectionPrefix(c)

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Rewind(); it.Valid(); it.Next() {
			iterCount++
			if iterCount%ctxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			ts := keyTime(it.Item().Key())
			if !found || ts.Before(span.Oldest) {
				span.Oldest = ts
			}
			if !found || ts.After(span.Newest) {
				span.Newest = ts
			}
			found = true
		}
		return nil
	})
	if err != nil {
		return storage.Span{}, fmt.Errorf("bounds scan failed: %w", err)
	}
	if !found {
		return storage.Span{}, storage.ErrEmpty
	}
	return span, nil
}

// Close shuts down BadgerDB cleanly
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
// discardRatio: run GC if this fraction of a file can be discarded (0.5 = 50%)
func (s *Store) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats counts records per collection from keys only
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{Records: make(map[storage.Collection]uint64)}

	byHash := make(map[uint64]storage.Collection, len(storage.Collections))
	for _, c := range storage.Collections {
		byHash[collectionHash(c)] = c
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Rewind(); it.Valid(); it.Next() {
			iterCount++
			if iterCount%ctxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			key := it.Item().Key()
			if len(key) != keySize {
				continue
			}
			if c, ok := byHash[binary.BigEndian.Uint64(key[:lengthOffset])]; ok {
				stats.Records[c]++
			}

			ts := keyTime(key)
			if stats.OldestRecord.IsZero() || ts.Before(stats.OldestRecord) {
				stats.OldestRecord = ts
			}
			if ts.After(stats.NewestRecord) {
				stats.NewestRecord = ts
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stats scan failed: %w", err)
	}

	lsmSize, vlogSize := s.db.Size()
	stats.SizeBytes = uint64(lsmSize + vlogSize)

	return stats, nil
}

// cursor walks a badger iterator inside a read-only transaction
type cursor struct {
	txn    *badger.Txn
	it     *badger.Iterator
	q      storage.Query
	prefix []byte
	seek   []byte

	started bool
	done    bool
	current storage.Record
	count   int
	iters   int
	err     error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.done || c.err != nil {
		return false
	}
	if c.q.Limit > 0 && c.count >= c.q.Limit {
		return false
	}

	for {
		if c.started {
			c.it.Next()
		} else {
			c.it.Seek(c.seek)
			c.started = true
		}
		if !c.it.Valid() {
			c.done = true
			return false
		}

		c.iters++
		if c.iters%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				c.err = fmt.Errorf("query operation cancelled: %w", err)
				return false
			}
		}

		item := c.it.Item()
		ts := keyTime(item.Key())
		if c.q.Length > 0 && !ts.Before(c.q.End) {
			c.done = true
			return false
		}

		var rec storage.Record
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			c.err = fmt.Errorf("failed to decode record: %w", err)
			return false
		}

		if !c.q.Matches(rec) {
			continue
		}

		c.current = rec
		c.count++
		return true
	}
}

func (c *cursor) Record() storage.Record { return c.current }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	if c.it != nil {
		c.it.Close()
		c.it = nil
	}
	c.txn.Discard()
	c.done = true
	return nil
}

func collectionHash(c storage.Collection) uint64 {
	return xxhash.Sum64String(string(c))
}

func collectionPrefix(c storage.Collection) []byte {
	prefix := make([]byte, lengthOffset)
	binary.BigEndian.PutUint64(prefix, collectionHash(c))
	return prefix
}

func lengthPrefix(c storage.Collection, length time.Duration) []byte {
	prefix := make([]byte, timeOffset)
	binary.BigEndian.PutUint64(prefix[:lengthOffset], collectionHash(c))
	binary.BigEndian.PutUint64(prefix[lengthOffset:], uint64(length))
	return prefix
}

func timeKey(prefix []byte, t time.Time) []byte {
	key := make([]byte, idOffset)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[timeOffset:], encodeTime(t))
	return key
}

// makeKey builds the full key for a record
func makeKey(c storage.Collection, rec storage.Record) []byte {
	key := make([]byte, keySize)
	copy(key, lengthPrefix(c, rec.Length))
	binary.BigEndian.PutUint64(key[timeOffset:idOffset], encodeTime(rec.Time))
	binary.BigEndian.PutUint64(key[idOffset:], xxhash.Sum64String(rec.Identity()))
	return key
}

// encodeTime flips the sign bit so pre-1970 times still sort first
func encodeTime(t time.Time) uint64 {
	return uint64(t.UnixNano()) ^ (1 << 63)
}

func keyTime(key []byte) time.Time {
	nanos := int64(binary.BigEndian.Uint64(key[timeOffset:idOffset]) ^ (1 << 63))
	return time.Unix(0, nanos).UTC()
}

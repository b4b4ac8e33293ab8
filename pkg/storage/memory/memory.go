package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nicktill/toptalkers/pkg/storage"
)

// Store keeps records in memory. Data is lost on restart.
// Useful for testing and development.
type Store struct {
	collections map[storage.Collection]*collection
	mu          sync.RWMutex
}

type collection struct {
	records []storage.Record
	index   map[identity]int
}

type identity struct {
	length time.Duration
	nanos  int64
	key    string
}

func identityOf(rec storage.Record) identity {
	return identity{length: rec.Length, nanos: rec.Time.UnixNano(), key: rec.Identity()}
}

// New creates an in-memory store
func New() *Store {
	return &Store{
		collections: make(map[storage.Collection]*collection),
	}
}

// Write stores records in memory
func (s *Store) Write(ctx context.Context, c storage.Collection, records []storage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[c]
	if !ok {
		col = &collection{index: make(map[identity]int)}
		s.collections[c] = col
	}

	for _, rec := range records {
		id := identityOf(rec)
		if i, exists := col.index[id]; exists {
			col.records[i] = rec
			continue
		}
		col.index[id] = len(col.records)
		col.records = append(col.records, rec)
	}
	return nil
}

// Query returns a cursor over a sorted snapshot of the matching records
func (s *Store) Query(ctx context.Context, q storage.Query) (storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []storage.Record
	if col, ok := s.collections[q.Collection]; ok {
		for _, rec := range col.records {
			if q.Matches(rec) {
				results = append(results, rec)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Length != results[j].Length {
			return results[i].Length < results[j].Length
		}
		return results[i].Time.Before(results[j].Time)
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	return storage.NewSliceCursor(results), nil
}

// Bounds returns the earliest and latest record times in a collection
func (s *Store) Bounds(ctx context.Context, c storage.Collection) (storage.Span, error) {
	if err := ctx.Err(); err != nil {
		return storage.Span{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[c]
	if !ok || len(col.records) == 0 {
		return storage.Span{}, storage.ErrEmpty
	}

	span := storage.Span{Oldest: col.records[0].Time, Newest: col.records[0].Time}
	for _, rec := range col.records[1:] {
		if rec.Time.Before(span.Oldest) {
			span.Oldest = rec.Time
		}
		if rec.Time.After(span.Newest) {
			span.Newest = rec.Time
		}
	}
	return span, nil
}

// Close is a no-op for memory storage
func (s *Store) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{Records: make(map[storage.Collection]uint64)}

	var total uint64
	for name, col := range s.collections {
		stats.Records[name] = uint64(len(col.records))
		total += uint64(len(col.records))

		for _, rec := range col.records {
			if stats.OldestRecord.IsZero() || rec.Time.Before(stats.OldestRecord) {
				stats.OldestRecord = rec.Time
			}
			if rec.Time.After(stats.NewestRecord) {
				stats.NewestRecord = rec.Time
			}
		}
	}

	// Rough size estimate (each record ~100 bytes)
	stats.SizeBytes = total * 100

	return stats, nil
}

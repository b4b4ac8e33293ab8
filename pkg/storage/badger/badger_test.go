package badger

import (
	"context"
	"testing"
	"time"

	"github.com/nicktill/toptalkers/pkg/storage"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2013, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Use in-memory mode for tests
	store, err := New(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew_Opens(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"in memory", Config{InMemory: true}},
		{"in memory ignores path", Config{InMemory: true, Path: t.TempDir()}},
		{"on disk", Config{Path: t.TempDir()}},
		{"on disk with memory cap", Config{Path: t.TempDir(), MaxMemoryMB: 48}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.cfg)
			require.NoError(t, err)
			require.NoError(t, store.Write(context.Background(), storage.Talkers, []storage.Record{
				{Time: base, Length: 5 * time.Second, Bytes: 1, ClientAddress: "a", ServerAddress: "b"},
			}))
			require.NoError(t, store.Close())
		})
	}
}

func TestBadgerStore_WriteAndQueryByLength(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{
		{Time: base.Add(5 * time.Second), Length: 5 * time.Second, Bytes: 20, ClientAddress: "a", ServerAddress: "b"},
		{Time: base, Length: 5 * time.Second, Bytes: 10, ClientAddress: "a", ServerAddress: "b"},
		{Time: base, Length: time.Hour, Bytes: 999, ClientAddress: "a", ServerAddress: "b"},
		{Time: base.Add(time.Hour), Length: 5 * time.Second, Bytes: 30, ClientAddress: "a", ServerAddress: "b"},
	}))

	cur, err := store.Query(ctx, storage.Query{
		Collection: storage.Talkers,
		Start:      base,
		End:        base.Add(time.Hour),
		Length:     5 * time.Second,
	})
	require.NoError(t, err)

	records, err := storage.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(10), records[0].Bytes)
	require.Equal(t, int64(20), records[1].Bytes)
	require.Equal(t, 5*time.Second, records[0].Length)
	require.Equal(t, "a", records[0].ClientAddress)
}

func TestBadgerStore_CollectionsAreSeparate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{
		{Time: base, Length: 5 * time.Second, Bytes: 1, ClientAddress: "a", ServerAddress: "b"},
	}))
	require.NoError(t, store.Write(ctx, storage.Protocols, []storage.Record{
		{Time: base, Length: 5 * time.Second, Bytes: 2, Application: "DNS"},
	}))

	cur, err := store.Query(ctx, storage.Query{
		Collection: storage.Protocols,
		Start:      base,
		End:        base.Add(time.Minute),
	})
	require.NoError(t, err)
	records, err := storage.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "DNS", records[0].Application)
}

func TestBadgerStore_WriteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := storage.Record{Time: base, Length: time.Hour, Bytes: 1, Application: "HTTP"}
	require.NoError(t, store.Write(ctx, storage.Protocols, []storage.Record{rec}))
	rec.Bytes = 7
	require.NoError(t, store.Write(ctx, storage.Protocols, []storage.Record{rec}))

	cur, err := store.Query(ctx, storage.Query{
		Collection: storage.Protocols,
		Start:      base,
		End:        base.Add(time.Hour),
		Length:     time.Hour,
	})
	require.NoError(t, err)
	records, err := storage.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(7), records[0].Bytes)
}

func TestBadgerStore_EarlyClose(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var records []storage.Record
	for i := 0; i < 50; i++ {
		records = append(records, storage.Record{
			Time:   base.Add(time.Duration(i) * 5 * time.Second),
			Length: 5 * time.Second,
			Bytes:  int64(i),
		})
	}
	require.NoError(t, store.Write(ctx, storage.TimeSeries, records))

	cur, err := store.Query(ctx, storage.Query{
		Collection: storage.TimeSeries,
		Start:      base,
		End:        base.Add(time.Hour),
		Length:     5 * time.Second,
	})
	require.NoError(t, err)

	require.True(t, cur.Next(ctx))
	require.Equal(t, int64(0), cur.Record().Bytes)
	require.True(t, cur.Next(ctx))
	require.Equal(t, int64(1), cur.Record().Bytes)
	require.NoError(t, cur.Close())
	require.False(t, cur.Next(ctx))
}

func TestBadgerStore_Bounds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Bounds(ctx, storage.Talkers)
	require.ErrorIs(t, err, storage.ErrEmpty)

	require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{
		{Time: base.Add(2 * time.Hour), Length: 5 * time.Second, Bytes: 1, ClientAddress: "a", ServerAddress: "b"},
		{Time: base, Length: time.Hour, Bytes: 1, ClientAddress: "a", ServerAddress: "b"},
	}))

	span, err := store.Bounds(ctx, storage.Talkers)
	require.NoError(t, err)
	require.True(t, span.Oldest.Equal(base))
	require.True(t, span.Newest.Equal(base.Add(2*time.Hour)))
}

func TestBadgerStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{
		{Time: base, Length: 5 * time.Second, Bytes: 1, ClientAddress: "a", ServerAddress: "b"},
		{Time: base, Length: 5 * time.Second, Bytes: 1, ClientAddress: "a", ServerAddress: "c"},
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.Records[storage.Talkers])
}

func TestBadgerStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// Write to first instance
	{
		store, err := New(Config{Path: dir})
		require.NoError(t, err)
		require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{
			{Time: base, Length: 5 * time.Second, Bytes: 42, ClientAddress: "a", ServerAddress: "b"},
		}))
		require.NoError(t, store.Close())
	}

	// Read from second instance
	store, err := New(Config{Path: dir})
	require.NoError(t, err)
	defer store.Close()

	span, err := store.Bounds(ctx, storage.Talkers)
	require.NoError(t, err)
	require.True(t, span.Oldest.Equal(base))
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nicktill/toptalkers/pkg/storage"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2013, 5, 1, 10, 0, 0, 0, time.UTC)

func talker(client, server string, at time.Time, length time.Duration, bytes int64) storage.Record {
	return storage.Record{
		Time:          at,
		Length:        length,
		Bytes:         bytes,
		ClientAddress: client,
		ServerAddress: server,
	}
}

func TestMemoryStore_WriteAndQuery(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	err := store.Write(ctx, storage.Talkers, []storage.Record{
		talker("10.0.0.1", "10.0.0.2", base.Add(10*time.Second), 5*time.Second, 100),
		talker("10.0.0.1", "10.0.0.3", base, 5*time.Second, 50),
		talker("10.0.0.1", "10.0.0.2", base, time.Hour, 9000),
	})
	require.NoError(t, err)

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

	// Ascending time order regardless of write order
	require.Equal(t, int64(50), records[0].Bytes)
	require.Equal(t, int64(100), records[1].Bytes)
}

func TestMemoryStore_HalfOpenRange(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, storage.TimeSeries, []storage.Record{
		{Time: base, Length: 5 * time.Second, Bytes: 1},
		{Time: base.Add(5 * time.Second), Length: 5 * time.Second, Bytes: 2},
		{Time: base.Add(10 * time.Second), Length: 5 * time.Second, Bytes: 3},
	}))

	cur, err := store.Query(ctx, storage.Query{
		Collection: storage.TimeSeries,
		Start:      base,
		End:        base.Add(10 * time.Second),
		Length:     5 * time.Second,
	})
	require.NoError(t, err)

	records, err := storage.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, records, 2, "end bound is exclusive")
}

func TestMemoryStore_WriteReplacesSameIdentity(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec := talker("a", "b", base, time.Hour, 10)
	require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{rec}))

	rec.Bytes = 25
	require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{rec}))

	cur, err := store.Query(ctx, storage.Query{
		Collection: storage.Talkers,
		Start:      base,
		End:        base.Add(time.Hour),
	})
	require.NoError(t, err)
	records, err := storage.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(25), records[0].Bytes)
}

func TestMemoryStore_Bounds(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Bounds(ctx, storage.Talkers)
	require.ErrorIs(t, err, storage.ErrEmpty)

	require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{
		talker("a", "b", base.Add(time.Hour), 5*time.Second, 1),
		talker("a", "b", base, 5*time.Second, 1),
		talker("a", "c", base.Add(30*time.Minute), 5*time.Second, 1),
	}))

	span, err := store.Bounds(ctx, storage.Talkers)
	require.NoError(t, err)
	require.True(t, span.Oldest.Equal(base))
	require.True(t, span.Newest.Equal(base.Add(time.Hour)))
}

func TestMemoryStore_QueryLimit(t *testing.T) {
	store := New()
	ctx := context.Background()

	var records []storage.Record
	for i := 0; i < 10; i++ {
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
		Limit:      3,
	})
	require.NoError(t, err)
	got, err := storage.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Query(ctx, storage.Query{Collection: storage.Talkers, Start: base, End: base.Add(time.Hour)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_Stats(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{
		talker("a", "b", base, 5*time.Second, 1),
		talker("a", "c", base.Add(time.Minute), 5*time.Second, 1),
	}))
	require.NoError(t, store.Write(ctx, storage.Protocols, []storage.Record{
		{Time: base, Length: 5 * time.Second, Bytes: 1, Application: "HTTP"},
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.Records[storage.Talkers])
	require.Equal(t, uint64(1), stats.Records[storage.Protocols])
	require.True(t, stats.OldestRecord.Equal(base))
	require.True(t, stats.NewestRecord.Equal(base.Add(time.Minute)))
}

package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/toptalkers/pkg/aggregate"
	"github.com/nicktill/toptalkers/pkg/service"
	"github.com/nicktill/toptalkers/pkg/storage"
	"github.com/nicktill/toptalkers/pkg/storage/memory"
)

var hour = time.Date(2013, 5, 1, 10, 0, 0, 0, time.UTC)

func fine(client, server string, at time.Time, bytes int64) storage.Record {
	return storage.Record{Time: at, Length: FineLength, Bytes: bytes, ClientAddress: client, ServerAddress: server}
}

func query(t *testing.T, store storage.Store, c storage.Collection, length time.Duration) []storage.Record {
	t.Helper()
	cur, err := store.Query(context.Background(), storage.Query{
		Collection: c,
		Start:      hour.Add(-time.Hour),
		End:        hour.Add(2 * time.Hour),
		Length:     length,
	})
	require.NoError(t, err)
	records, err := storage.Drain(context.Background(), cur)
	require.NoError(t, err)
	return records
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, storage.Talkers, []storage.Record{
		fine("A", "B", hour, 100),
		fine("A", "C", hour, 50),
		fine("A", "B", hour.Add(5*time.Second), 20),
		fine("B", "A", hour.Add(7*time.Minute), 25),
		// Next hour, untouched by this rollup
		fine("A", "B", hour.Add(time.Hour), 1),
	}))
	require.NoError(t, store.Write(ctx, storage.Protocols, []storage.Record{
		{Time: hour, Length: FineLength, Bytes: 150, Application: "HTTP"},
		{Time: hour.Add(7 * time.Minute), Length: FineLength, Bytes: 45, Application: "HTTP"},
	}))
	return store
}

func TestRollupHour(t *testing.T) {
	store := seed(t)
	roller := New(store)

	res, err := roller.RollupHour(context.Background(), hour.Add(30*time.Minute))
	require.NoError(t, err)
	require.True(t, res.Hour.Equal(hour))
	require.Equal(t, 3, res.Talkers)
	require.Equal(t, 1, res.Protocols)
	require.Equal(t, 3, res.FineSeries)
	require.Equal(t, 2, res.CoarseSeries)

	talkers := query(t, store, storage.Talkers, CoarseLength)
	require.Len(t, talkers, 3)
	require.Equal(t, int64(120), talkers[0].Bytes)
	require.Equal(t, "B", talkers[2].ClientAddress)

	protocols := query(t, store, storage.Protocols, CoarseLength)
	require.Len(t, protocols, 1)
	require.Equal(t, int64(195), protocols[0].Bytes)

	series := query(t, store, storage.TimeSeries, FineLength)
	require.Equal(t, []int64{150, 20, 25}, bytesOf(series))

	windows := query(t, store, storage.TimeSeries, SeriesLength)
	require.Equal(t, []int64{170, 25}, bytesOf(windows))
	require.True(t, windows[1].Time.Equal(hour.Add(5*time.Minute)))
}

func TestRollupHour_Idempotent(t *testing.T) {
	store := seed(t)
	roller := New(store)

	_, err := roller.RollupHour(context.Background(), hour)
	require.NoError(t, err)
	_, err = roller.RollupHour(context.Background(), hour)
	require.NoError(t, err)

	talkers := query(t, store, storage.Talkers, CoarseLength)
	require.Len(t, talkers, 3)
	require.Equal(t, int64(120), talkers[0].Bytes)
}

func TestRollupHour_Empty(t *testing.T) {
	res, err := New(memory.New()).RollupHour(context.Background(), hour)
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestRollupRange(t *testing.T) {
	store := seed(t)
	roller := New(store)

	// Only complete hours inside the range are rolled
	results, err := roller.RollupRange(context.Background(), hour.Add(-30*time.Minute), hour.Add(2*time.Hour+10*time.Minute))
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, results[0].Hour.Equal(hour))
	require.True(t, results[1].Hour.Equal(hour.Add(time.Hour)))
}

func TestRollupPrevious(t *testing.T) {
	store := seed(t)
	roller := New(store)

	res, err := roller.RollupPrevious(context.Background(), hour.Add(time.Hour+10*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	require.True(t, res.Hour.Equal(hour))

	// Too early: the grace period pushes back another hour
	res, err = roller.RollupPrevious(context.Background(), hour.Add(time.Hour+2*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	require.True(t, res.Hour.Equal(hour.Add(-time.Hour)))
}

func TestRollupFeedsPlannedQueries(t *testing.T) {
	store := seed(t)
	_, err := New(store).RollupHour(context.Background(), hour)
	require.NoError(t, err)

	// A range spanning the full hour now reads the coarse bucket
	svc := service.New(store, service.DefaultConfig)
	got, err := svc.Conversations(context.Background(), hour, hour.Add(time.Hour), aggregate.NoLimit)
	require.NoError(t, err)
	require.Equal(t, []aggregate.Conversation{
		{ClientAddress: "A", ServerAddress: "B", Bytes: 120},
		{ClientAddress: "A", ServerAddress: "C", Bytes: 50},
		{ClientAddress: "B", ServerAddress: "A", Bytes: 25},
	}, got)
}

func bytesOf(records []storage.Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Bytes)
	}
	return out
}

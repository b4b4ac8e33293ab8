package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/nicktill/toptalkers/pkg/aggregate"
	"github.com/nicktill/toptalkers/pkg/storage"
)

// Bucket lengths read and written by the roller
const (
	FineLength   = 5 * time.Second
	SeriesLength = 5 * time.Minute
	CoarseLength = time.Hour
)

// Roller writes coarse buckets derived from fine samples
type Roller struct {
	storage storage.Store
}

// New creates a new roller
func New(store storage.Store) *Roller {
	return &Roller{storage: store}
}

// Result counts what one hour's rollup wrote
type Result struct {
	Hour         time.Time
	Talkers      int
	Protocols    int
	FineSeries   int
	CoarseSeries int
}

// Empty reports whether the hour had no fine samples
func (r Result) Empty() bool {
	return r.Talkers == 0 && r.Protocols == 0
}

// RollupHour rolls up the hour containing hour
func (r *Roller) RollupHour(ctx context.Context, hour time.Time) (Result, error) {
	start := hour.UTC().Truncate(CoarseLength)
	end := start.Add(CoarseLength)
	res := Result{Hour: start}

	talkers, err := r.fine(ctx, storage.Talkers, start, end)
	if err != nil {
		return res, err
	}

	conversations := aggregate.New(aggregate.ByConversation, aggregate.NoLimit)
	fineTotals := make(map[time.Time]int64)
	var fineOrder []time.Time
	for _, rec := range talkers {
		conversations.Sample(rec)

		if _, ok := fineTotals[rec.Time]; !ok {
			fineOrder = append(fineOrder, rec.Time)
		}
		fineTotals[rec.Time] += rec.Bytes
	}

	coarseTalkers := make([]storage.Record, 0, conversations.Len())
	for _, total := range conversations.Results() {
		coarseTalkers = append(coarseTalkers, storage.Record{
			Time:          start,
			Length:        CoarseLength,
			Bytes:         total.Bytes,
			ClientAddress: total.Key.ClientAddress,
			ServerAddress: total.Key.ServerAddress,
		})
	}
	if err := r.write(ctx, storage.Talkers, coarseTalkers); err != nil {
		return res, err
	}
	res.Talkers = len(coarseTalkers)

	fineSeries := make([]storage.Record, 0, len(fineOrder))
	seriesTotals := make(map[time.Time]int64)
	var seriesOrder []time.Time
	for _, ts := range fineOrder {
		fineSeries = append(fineSeries, storage.Record{Time: ts, Length: FineLength, Bytes: fineTotals[ts]})

		window := ts.Truncate(SeriesLength)
		if _, ok := seriesTotals[window]; !ok {
			seriesOrder = append(seriesOrder, window)
		}
		seriesTotals[window] += fineTotals[ts]
	}
	coarseSeries := make([]storage.Record, 0, len(seriesOrder))
	for _, ts := range seriesOrder {
		coarseSeries = append(coarseSeries, storage.Record{Time: ts, Length: SeriesLength, Bytes: seriesTotals[ts]})
	}
	if err := r.write(ctx, storage.TimeSeries, append(fineSeries, coarseSeries...)); err != nil {
		return res, err
	}
	res.FineSeries = len(fineSeries)
	res.CoarseSeries = len(coarseSeries)

	protocols, err := r.fine(ctx, storage.Protocols, start, end)
	if err != nil {
		return res, err
	}
	apps := aggregate.New(aggregate.ByProtocol, aggregate.NoLimit)
	for _, rec := range protocols {
		apps.Sample(rec)
	}
	coarseProtocols := make([]storage.Record, 0, apps.Len())
	for _, total := range apps.Results() {
		coarseProtocols = append(coarseProtocols, storage.Record{
			Time:        start,
			Length:      CoarseLength,
			Bytes:       total.Bytes,
			Application: total.Key.Application,
		})
	}
	if err := r.write(ctx, storage.Protocols, coarseProtocols); err != nil {
		return res, err
	}
	res.Protocols = len(coarseProtocols)

	return res, nil
}

// RollupRange rolls up every complete hour in [start, end)
func (r *Roller) RollupRange(ctx context.Context, start, end time.Time) ([]Result, error) {
	first := start.UTC().Truncate(CoarseLength)
	if first.Before(start) {
		first = first.Add(CoarseLength)
	}

	var results []Result
	for h := first; !h.Add(CoarseLength).After(end); h = h.Add(CoarseLength) {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.RollupHour(ctx, h)
		if err != nil {
			return results, fmt.Errorf("rollup of %s failed: %w", h.Format(time.RFC3339), err)
		}
		results = append(results, res)
	}
	return results, nil
}

// RollupPrevious rolls up the last hour that ended at least delay before now
func (r *Roller) RollupPrevious(ctx context.Context, now time.Time, delay time.Duration) (Result, error) {
	hour := now.Add(-delay).UTC().Truncate(CoarseLength).Add(-CoarseLength)
	return r.RollupHour(ctx, hour)
}

func (r *Roller) fine(ctx context.Context, c storage.Collection, start, end time.Time) ([]storage.Record, error) {
	cur, err := r.storage.Query(ctx, storage.Query{
		Collection: c,
		Start:      start,
		End:        end,
		Length:     FineLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query fine %s: %w", c, err)
	}
	records, err := storage.Drain(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("failed to read fine %s: %w", c, err)
	}
	return records, nil
}

func (r *Roller) write(ctx context.Context, c storage.Collection, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := r.storage.Write(ctx, c, records); err != nil {
		return fmt.Errorf("failed to write %s rollup: %w", c, err)
	}
	return nil
}

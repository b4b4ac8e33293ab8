// Package service answers the top-talkers queries by planning bucket
// queries, streaming them from the store and aggregating the records.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nicktill/toptalkers/pkg/aggregate"
	"github.com/nicktill/toptalkers/pkg/plan"
	"github.com/nicktill/toptalkers/pkg/resample"
	"github.com/nicktill/toptalkers/pkg/storage"
)

var (
	// ErrNoData is returned by Bounds when no talkers are stored
	ErrNoData = errors.New("no data")

	// ErrInvalidRange is returned when start is not before end
	ErrInvalidRange = errors.New("start must be before end")
)

// Config selects the bucket lengths the service reads
type Config struct {
	Catalog  plan.Catalog
	Resample resample.Config
}

// DefaultConfig matches the rollup loader's output
var DefaultConfig = Config{
	Catalog:  plan.DefaultCatalog,
	Resample: resample.DefaultConfig,
}

// Bounds is the time span covered by stored talkers
type Bounds struct {
	Start time.Time
	End   time.Time
}

// Service is safe for concurrent use; every call owns its aggregator.
type Service struct {
	store storage.Store
	cfg   Config
}

// New creates a service over store
func New(store storage.Store, cfg Config) *Service {
	return &Service{store: store, cfg: cfg}
}

// Conversations ranks client/server pairs by bytes over [start, end)
func (s *Service) Conversations(ctx context.Context, start, end time.Time, limit aggregate.Limit) ([]aggregate.Conversation, error) {
	agg := aggregate.New(aggregate.ByConversation, limit)
	if err := run(ctx, s, storage.Talkers, start, end, agg); err != nil {
		return nil, err
	}
	return aggregate.Conversations(agg.Results()), nil
}

// Protocols ranks applications by bytes over [start, end)
func (s *Service) Protocols(ctx context.Context, start, end time.Time, limit aggregate.Limit) ([]aggregate.Protocol, error) {
	agg := aggregate.New(aggregate.ByProtocol, limit)
	if err := run(ctx, s, storage.Protocols, start, end, agg); err != nil {
		return nil, err
	}
	return aggregate.Protocols(agg.Results()), nil
}

// run executes the plan for [start, end) in order, feeding one aggregator
func run[K comparable](ctx context.Context, s *Service, c storage.Collection, start, end time.Time, agg *aggregate.Aggregator[K]) error {
	if !start.Before(end) {
		return ErrInvalidRange
	}

	for _, q := range plan.Plan(start, end, s.cfg.Catalog) {
		cur, err := s.store.Query(ctx, storage.Query{
			Collection: c,
			Start:      q.Start,
			End:        q.End,
			Length:     q.Length,
		})
		if err != nil {
			return fmt.Errorf("query %s %s: %w", c, q, err)
		}
		if err := agg.Drain(ctx, cur); err != nil {
			return fmt.Errorf("read %s %s: %w", c, q, err)
		}
	}
	return nil
}

// Bounds returns the earliest and latest talker times
func (s *Service) Bounds(ctx context.Context) (Bounds, error) {
	span, err := s.store.Bounds(ctx, storage.Talkers)
	if errors.Is(err, storage.ErrEmpty) {
		return Bounds{}, ErrNoData
	}
	if err != nil {
		return Bounds{}, fmt.Errorf("bounds: %w", err)
	}
	return Bounds{Start: span.Oldest, End: span.Newest}, nil
}

// TimeSeries resamples total traffic over [start, end) into at most points
// bytes-per-second values. Bad inputs give an empty series, not an error.
func (s *Service) TimeSeries(ctx context.Context, start, end time.Time, points int) ([]resample.Point, error) {
	w := resample.NewWindow(start, end, points, s.cfg.Resample)
	if w.Empty() {
		return []resample.Point{}, nil
	}

	cur, err := s.store.Query(ctx, storage.Query{
		Collection: storage.TimeSeries,
		Start:      start,
		End:        end,
		Length:     w.Source(),
	})
	if err != nil {
		return nil, fmt.Errorf("query timeseries: %w", err)
	}
	defer cur.Close()

	for cur.Next(ctx) {
		w.Add(cur.Record())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("read timeseries: %w", err)
	}
	return w.Points(), nil
}

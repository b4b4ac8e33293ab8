// Package aggregate groups a stream of bucket records by a typed key and
// sums their bytes, optionally ranking the totals.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nicktill/toptalkers/pkg/storage"
)

// ErrNegativeLimit is returned for a ranked limit below zero
var ErrNegativeLimit = errors.New("limit must not be negative")

// Limit controls ranking and truncation of results.
// The zero value is NoLimit.
type Limit struct {
	n      int
	ranked bool
}

// NoLimit returns every key, unranked, in first-seen order
var NoLimit = Limit{}

// Top ranks totals by bytes and keeps the n largest.
// Top(0) is a valid limit that yields no results.
func Top(n int) (Limit, error) {
	if n < 0 {
		return Limit{}, fmt.Errorf("%w: %d", ErrNegativeLimit, n)
	}
	return Limit{n: n, ranked: true}, nil
}

// Ranked reports whether results are sorted and truncated
func (l Limit) Ranked() bool { return l.ranked }

// N returns the result cap; meaningful only when Ranked
func (l Limit) N() int { return l.n }

func (l Limit) String() string {
	if !l.ranked {
		return "none"
	}
	return fmt.Sprintf("top %d", l.n)
}

// Total is the summed bytes for one key
type Total[K comparable] struct {
	Key   K
	Bytes int64
}

// Aggregator accumulates bytes per key for a single pass.
// It is not safe for concurrent use; each request owns one.
type Aggregator[K comparable] struct {
	project func(storage.Record) K
	limit   Limit

	index  map[K]int
	totals []Total[K] // first-seen order
}

// New creates an aggregator keyed by project
func New[K comparable](project func(storage.Record) K, limit Limit) *Aggregator[K] {
	return &Aggregator[K]{
		project: project,
		limit:   limit,
		index:   make(map[K]int),
	}
}

// Sample adds one record's bytes to its key
func (a *Aggregator[K]) Sample(rec storage.Record) {
	key := a.project(rec)

	i, ok := a.index[key]
	if !ok {
		i = len(a.totals)
		a.index[key] = i
		a.totals = append(a.totals, Total[K]{Key: key})
	}
	a.totals[i].Bytes += rec.Bytes
}

// Drain samples every record from cur and closes it.
// On a cursor error the aggregator holds partial state and should be dropped.
func (a *Aggregator[K]) Drain(ctx context.Context, cur storage.Cursor) error {
	defer cur.Close()

	for cur.Next(ctx) {
		a.Sample(cur.Record())
	}
	return cur.Err()
}

// Len returns the number of distinct keys seen
func (a *Aggregator[K]) Len() int { return len(a.totals) }

// Results returns the totals. Ranked results are sorted by descending bytes;
// equal totals keep first-seen order.
func (a *Aggregator[K]) Results() []Total[K] {
	out := make([]Total[K], len(a.totals))
	copy(out, a.totals)

	if !a.limit.ranked {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Bytes > out[j].Bytes
	})
	if len(out) > a.limit.n {
		out = out[:a.limit.n]
	}
	return out
}

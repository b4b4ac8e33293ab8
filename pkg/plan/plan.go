// Package plan splits a time range into range queries against a store that
// holds the same records pre-bucketed at several granularities.
//
// A range is served with as few coarse rows as possible: the hour-aligned
// middle comes from the coarse buckets and only the ragged edges are read
// at fine resolution.
//
//	start        coarseStart                    coarseEnd        end
//	  |--- fine ---|============ coarse ============|--- fine ---|
package plan

import (
	"fmt"
	"time"
)

// Catalog lists the bucket lengths available in the store
type Catalog struct {
	Fine   time.Duration
	Coarse time.Duration
}

// DefaultCatalog matches the rollup loader: 5-second and 1-hour buckets
var DefaultCatalog = Catalog{
	Fine:   5 * time.Second,
	Coarse: time.Hour,
}

// BucketQuery requests every record in [Start, End) stored at Length
type BucketQuery struct {
	Start  time.Time
	End    time.Time
	Length time.Duration
}

func (q BucketQuery) String() string {
	return fmt.Sprintf("[%s, %s) @%s", q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339), q.Length)
}

// Plan returns the ordered queries covering [start, end).
// Concatenated, their ranges cover the input exactly with no gaps or
// overlaps. An empty or inverted range yields no queries.
func Plan(start, end time.Time, c Catalog) []BucketQuery {
	if !start.Before(end) {
		return nil
	}

	coarseStart := start.Truncate(c.Coarse)
	if coarseStart.Before(start) {
		coarseStart = coarseStart.Add(c.Coarse)
	}
	coarseEnd := end.Truncate(c.Coarse)

	if !coarseEnd.After(coarseStart) {
		return []BucketQuery{{Start: start, End: end, Length: c.Fine}}
	}

	queries := make([]BucketQuery, 0, 3)
	if coarseStart.After(start) {
		queries = append(queries, BucketQuery{Start: start, End: coarseStart, Length: c.Fine})
	}
	queries = append(queries, BucketQuery{Start: coarseStart, End: coarseEnd, Length: c.Coarse})
	if end.After(coarseEnd) {
		queries = append(queries, BucketQuery{Start: coarseEnd, End: end, Length: c.Fine})
	}
	return queries
}

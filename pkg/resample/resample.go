// Package resample turns bucketed byte totals into a fixed number of evenly
// spaced bytes-per-second points.
package resample

import (
	"time"

	"github.com/nicktill/toptalkers/pkg/storage"
)

// Config lists the bucket lengths the timeseries collection is stored at
type Config struct {
	Fine   time.Duration
	Coarse time.Duration
}

// DefaultConfig matches the rollup loader: 5-second and 5-minute totals
var DefaultConfig = Config{
	Fine:   5 * time.Second,
	Coarse: 5 * time.Minute,
}

// Point is one output sample; Y is in bytes per second
type Point struct {
	Time time.Time `json:"time"`
	Y    float64   `json:"y"`
}

// Window accumulates source buckets into output points
type Window struct {
	start  time.Time
	end    time.Time
	step   time.Duration
	source time.Duration
	points []Point
}

// NewWindow sizes the output for [start, end) and the requested point count.
// points is clamped to the fine resolution and the window covers
// points*Step(), which may stop short of end by less than one step. A
// non-positive count, an empty range or a range shorter than one fine
// bucket gives an empty window.
func NewWindow(start, end time.Time, points int, cfg Config) *Window {
	w := &Window{start: start, end: end}
	if points <= 0 || !end.After(start) || cfg.Fine <= 0 {
		return w
	}

	span := end.Sub(start)
	if max := int(span / cfg.Fine); points > max {
		points = max
	}
	if points == 0 {
		return w
	}

	// Whole number of fine buckets per output point
	w.step = span / time.Duration(points) / cfg.Fine * cfg.Fine

	w.source = cfg.Fine
	if cfg.Coarse > 0 && w.step > cfg.Coarse {
		w.source = cfg.Coarse
	}

	// Exactly points windows; the remainder past points*step is not covered
	w.points = make([]Point, points)
	for i := range w.points {
		w.points[i].Time = start.Add(time.Duration(i) * w.step)
	}
	return w
}

// Empty reports whether the window produces no points
func (w *Window) Empty() bool { return len(w.points) == 0 }

// Step returns the width of each output point
func (w *Window) Step() time.Duration { return w.step }

// Source returns the bucket length to read records at
func (w *Window) Source() time.Duration { return w.source }

// Range returns the window's [start, end)
func (w *Window) Range() (time.Time, time.Time) { return w.start, w.end }

// Add folds one source bucket into the point it falls in.
// Records outside the covered span are dropped.
func (w *Window) Add(rec storage.Record) {
	if w.Empty() || rec.Time.Before(w.start) || !rec.Time.Before(w.end) {
		return
	}
	i := int(rec.Time.Sub(w.start) / w.step)
	if i >= len(w.points) {
		return
	}
	w.points[i].Y += float64(rec.Bytes) / w.step.Seconds()
}

// Points returns the accumulated output
func (w *Window) Points() []Point {
	out := make([]Point, len(w.points))
	copy(out, w.points)
	return out
}

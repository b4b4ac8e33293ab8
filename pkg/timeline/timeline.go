// Package timeline models the drill-down strip under the network view: a
// byte-rate thumbnail over a time range with a brush for picking a
// sub-range, and the stack of such strips the user has drilled through.
package timeline

import (
	"sync"
	"time"

	"github.com/nicktill/toptalkers/pkg/resample"
)

// Space reserved for the axes, in pixels.
const (
	axisWidth  = 50
	axisHeight = 30
)

// Timeline is one level of the drill-down. Start and End are fixed; the
// samples arrive later from a timeseries query.
type Timeline struct {
	Start, End    time.Time
	Width, Height float64

	mu      sync.Mutex
	samples []resample.Point

	onSelect  func(tl *Timeline, start, end time.Time)
	onDismiss func(tl *Timeline)
}

// New creates a timeline that reports brush selections to onSelect and
// cleared brushes to onDismiss.
func New(start, end time.Time, width, height float64, onSelect func(*Timeline, time.Time, time.Time), onDismiss func(*Timeline)) *Timeline {
	return &Timeline{
		Start:     start,
		End:       end,
		Width:     width,
		Height:    height,
		onSelect:  onSelect,
		onDismiss: onDismiss,
	}
}

// SetSamples replaces the thumbnail data.
func (t *Timeline) SetSamples(points []resample.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = points
}

// Samples returns the thumbnail data, nil until SetSamples.
func (t *Timeline) Samples() []resample.Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples
}

// Points is the sample count to request for this timeline: one per pixel.
func (t *Timeline) Points() int {
	return int(t.Width)
}

// X maps a time onto the axis.
func (t *Timeline) X(at time.Time) float64 {
	span := t.End.Sub(t.Start)
	if span <= 0 {
		return 0
	}
	return float64(at.Sub(t.Start)) / float64(span) * (t.Width - axisWidth)
}

// TimeAt maps an axis position back to a time, clamped to the range.
func (t *Timeline) TimeAt(x float64) time.Time {
	w := t.Width - axisWidth
	if w <= 0 || x <= 0 {
		return t.Start
	}
	if x >= w {
		return t.End
	}
	return t.Start.Add(time.Duration(x / w * float64(t.End.Sub(t.Start))))
}

// YMax is the top of the y axis: the largest sample.
func (t *Timeline) YMax() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var top float64
	for _, p := range t.samples {
		top = max(top, p.Y)
	}
	return top
}

// Y maps a rate onto the plot, 0 at the bottom.
func (t *Timeline) Y(v float64) float64 {
	bottom := t.Height - axisHeight
	top := t.YMax()
	if top == 0 {
		return bottom
	}
	return bottom - v/top*bottom
}

// Select ends a brush over [start, end), clamped to the timeline. An
// empty brush counts as a dismissal.
func (t *Timeline) Select(start, end time.Time) {
	if start.Before(t.Start) {
		start = t.Start
	}
	if end.After(t.End) {
		end = t.End
	}
	if !start.Before(end) {
		t.Dismiss()
		return
	}
	if t.onSelect != nil {
		t.onSelect(t, start, end)
	}
}

// Brush ends a brush given in axis pixels.
func (t *Timeline) Brush(x0, x1 float64) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	t.Select(t.TimeAt(x0), t.TimeAt(x1))
}

// Dismiss reports a click outside any brushed region.
func (t *Timeline) Dismiss() {
	if t.onDismiss != nil {
		t.onDismiss(t)
	}
}

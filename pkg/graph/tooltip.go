package graph

import (
	"sync"
	"time"
)

// Tooltip delays, so sweeping the pointer across the graph doesn't flicker.
const (
	ShowDelay = 50 * time.Millisecond
	HideDelay = 250 * time.Millisecond
)

// Tip is what the renderer should show.
type Tip struct {
	Owner string
	X, Y  float64
	Text  string
}

// Tooltip debounces hover events into a single visible tip. Each owner (a
// node address or link name) has its own pending timer; a hide only takes
// effect if that owner is still the one showing.
type Tooltip struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	current string
	show    func(Tip)
	hide    func()
}

// NewTooltip calls show and hide from timer goroutines; they must not call
// back into the Tooltip.
func NewTooltip(show func(Tip), hide func()) *Tooltip {
	return &Tooltip{
		timers: make(map[string]*time.Timer),
		show:   show,
		hide:   hide,
	}
}

// Display shows tip after ShowDelay unless its owner acts again first.
func (t *Tooltip) Display(tip Tip) {
	t.schedule(tip.Owner, ShowDelay, func() {
		t.current = tip.Owner
		// Keep the tip box on screen
		tip.X = max(0, tip.X)
		tip.Y = max(0, tip.Y)
		t.show(tip)
	})
}

// Undisplay hides owner's tip after HideDelay.
func (t *Tooltip) Undisplay(owner string) {
	t.schedule(owner, HideDelay, func() {
		if t.current != owner {
			return
		}
		t.current = ""
		t.hide()
	})
}

// Stop cancels all pending timers.
func (t *Tooltip) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for owner, timer := range t.timers {
		timer.Stop()
		delete(t.timers, owner)
	}
}

func (t *Tooltip) schedule(owner string, delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[owner]; ok {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.timers[owner] != timer {
			return
		}
		delete(t.timers, owner)
		fn()
	})
	t.timers[owner] = timer
}

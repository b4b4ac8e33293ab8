package timeline

import (
	"errors"
	"sync"
	"time"
)

// MaxVisible is how many levels are on screen: the newest and its parent.
const MaxVisible = 2

// ErrUnknownLevel is returned for a timeline that is not one of the
// visible levels.
var ErrUnknownLevel = errors.New("timeline is not a visible level")

// Op is the kind of change a Transition made.
type Op int

const (
	// Ignored means the event changed nothing.
	Ignored Op = iota
	// Pushed: a selection on the newest level drilled into it.
	Pushed
	// Replaced: a selection on the parent swapped out the newest level.
	Replaced
	// Popped: a cleared brush on the parent closed the newest level.
	Popped
)

func (o Op) String() string {
	switch o {
	case Pushed:
		return "pushed"
	case Replaced:
		return "replaced"
	case Popped:
		return "popped"
	default:
		return "ignored"
	}
}

// Transition describes a stack change. Top is the newest level afterwards;
// the graph should be re-queried over its range.
type Transition struct {
	Op  Op
	Top *Timeline
}

// Stack is the drill-down history, newest first. Only the newest two
// levels are shown; older ones come back into view as levels are popped.
type Stack struct {
	mu     sync.Mutex
	levels []*Timeline

	width, height float64
	onSelect      func(*Timeline, time.Time, time.Time)
	onDismiss     func(*Timeline)
}

// NewStack creates a stack holding the root timeline over [start, end).
// Every timeline it creates reports to onSelect and onDismiss.
func NewStack(start, end time.Time, width, height float64, onSelect func(*Timeline, time.Time, time.Time), onDismiss func(*Timeline)) *Stack {
	s := &Stack{
		width:     width,
		height:    height,
		onSelect:  onSelect,
		onDismiss: onDismiss,
	}
	s.levels = []*Timeline{s.newTimeline(start, end)}
	return s
}

func (s *Stack) newTimeline(start, end time.Time) *Timeline {
	return New(start, end, s.width, s.height, s.onSelect, s.onDismiss)
}

// Top returns the newest level.
func (s *Stack) Top() *Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[0]
}

// Visible returns the levels on screen, newest first.
func (s *Stack) Visible() []*Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(len(s.levels), MaxVisible)
	return append([]*Timeline(nil), s.levels[:n]...)
}

// Level returns visible level i, 0 being the newest.
func (s *Stack) Level(i int) (*Timeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= min(len(s.levels), MaxVisible) {
		return nil, false
	}
	return s.levels[i], true
}

// Depth is the total number of levels including hidden ancestors.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.levels)
}

// Select applies a brush selection made on tl. On the newest level it
// drills in, pushing a new level; on the parent it replaces the newest
// level with one over the new range.
func (s *Stack) Select(tl *Timeline, start, end time.Time) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.newTimeline(start, end)
	switch {
	case tl == s.levels[0]:
		s.levels = append([]*Timeline{next}, s.levels...)
		return Transition{Op: Pushed, Top: next}, nil
	case len(s.levels) > 1 && tl == s.levels[1]:
		s.levels[0] = next
		return Transition{Op: Replaced, Top: next}, nil
	default:
		return Transition{}, ErrUnknownLevel
	}
}

// Dismiss applies a cleared brush on tl. On the parent it pops the newest
// level; on the newest level it does nothing, so the root can't be popped.
func (s *Stack) Dismiss(tl *Timeline) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case tl == s.levels[0]:
		return Transition{Op: Ignored, Top: s.levels[0]}, nil
	case len(s.levels) > 1 && tl == s.levels[1]:
		s.levels = s.levels[1:]
		return Transition{Op: Popped, Top: s.levels[0]}, nil
	default:
		return Transition{}, ErrUnknownLevel
	}
}

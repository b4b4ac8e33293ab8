package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newStack() *Stack {
	return NewStack(base, base.Add(24*time.Hour), 850, 150, nil, nil)
}

func TestStack_SelectOnNewestPushes(t *testing.T) {
	s := newStack()
	root := s.Top()

	tr, err := s.Select(root, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, Pushed, tr.Op)
	require.Same(t, tr.Top, s.Top())
	require.Equal(t, base.Add(time.Hour), tr.Top.End)
	require.Equal(t, []*Timeline{tr.Top, root}, s.Visible())
}

func TestStack_SelectOnParentReplaces(t *testing.T) {
	s := newStack()
	root := s.Top()
	_, err := s.Select(root, base, base.Add(time.Hour))
	require.NoError(t, err)

	tr, err := s.Select(root, base.Add(2*time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Equal(t, Replaced, tr.Op)
	require.Equal(t, 2, s.Depth())
	require.Equal(t, base.Add(2*time.Hour), s.Top().Start)
}

func TestStack_DismissOnParentPops(t *testing.T) {
	s := newStack()
	root := s.Top()
	first, _ := s.Select(root, base, base.Add(time.Hour))
	second, _ := s.Select(first.Top, base, base.Add(10*time.Minute))
	require.Equal(t, 3, s.Depth())
	require.Len(t, s.Visible(), MaxVisible)

	// The root is hidden now
	_, err := s.Select(root, base, base.Add(time.Minute))
	require.ErrorIs(t, err, ErrUnknownLevel)

	tr, err := s.Dismiss(first.Top)
	require.NoError(t, err)
	require.Equal(t, Popped, tr.Op)
	require.Same(t, first.Top, tr.Top)
	require.Equal(t, []*Timeline{first.Top, root}, s.Visible())

	_, err = s.Dismiss(second.Top)
	require.ErrorIs(t, err, ErrUnknownLevel, "popped levels are gone")

	tr, err = s.Dismiss(root)
	require.NoError(t, err)
	require.Equal(t, Popped, tr.Op)
	require.Same(t, root, s.Top())
}

func TestStack_DismissOnNewestIgnored(t *testing.T) {
	s := newStack()
	root := s.Top()

	tr, err := s.Dismiss(root)
	require.NoError(t, err)
	require.Equal(t, Ignored, tr.Op)
	require.Equal(t, 1, s.Depth())

	pushed, _ := s.Select(root, base, base.Add(time.Hour))
	tr, err = s.Dismiss(pushed.Top)
	require.NoError(t, err)
	require.Equal(t, Ignored, tr.Op)
	require.Equal(t, 2, s.Depth())
}

func TestStack_Level(t *testing.T) {
	s := newStack()
	root := s.Top()

	got, ok := s.Level(0)
	require.True(t, ok)
	require.Same(t, root, got)
	_, ok = s.Level(1)
	require.False(t, ok)

	s.Select(root, base, base.Add(time.Hour))
	got, ok = s.Level(1)
	require.True(t, ok)
	require.Same(t, root, got)
}

func TestStack_TimelinesReportToStackCallbacks(t *testing.T) {
	var selected, dismissed []*Timeline
	s := NewStack(base, base.Add(time.Hour), 850, 150,
		func(tl *Timeline, _, _ time.Time) { selected = append(selected, tl) },
		func(tl *Timeline) { dismissed = append(dismissed, tl) })

	root := s.Top()
	tr, _ := s.Select(root, base, base.Add(time.Minute))
	tr.Top.Select(base, base.Add(time.Second))
	tr.Top.Dismiss()

	require.Equal(t, []*Timeline{tr.Top}, selected)
	require.Equal(t, []*Timeline{tr.Top}, dismissed)
}

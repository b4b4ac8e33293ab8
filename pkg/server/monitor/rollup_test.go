package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var hour = time.Date(2013, 5, 1, 10, 0, 0, 0, time.UTC)

func TestRollupMonitor_RecordSuccess(t *testing.T) {
	rm := &RollupMonitor{}
	rm.RecordFailure(errors.New("disk full"))
	rm.RecordSuccess(hour)

	status := rm.Status()
	require.True(t, status.Healthy)
	require.Zero(t, status.ConsecutiveErrors)
	require.Empty(t, status.LastError)
	require.Equal(t, "2013-05-01T10:00:00Z", status.LastHour)
}

func TestRollupMonitor_RecordFailure(t *testing.T) {
	rm := &RollupMonitor{}
	rm.RecordFailure(errors.New("disk full"))

	status := rm.Status()
	require.False(t, status.Healthy)
	require.Equal(t, 1, status.ConsecutiveErrors)
	require.Equal(t, "disk full", status.LastError)
}

func TestRollupMonitor_LastHourOnlyMovesForward(t *testing.T) {
	rm := &RollupMonitor{}
	rm.RecordSuccess(hour)
	rm.RecordSuccess(hour.Add(-5 * time.Hour)) // backfill

	require.Equal(t, "2013-05-01T10:00:00Z", rm.Status().LastHour)
}

func TestRollupMonitor_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*RollupMonitor)
		expected bool
	}{
		{
			name:     "never succeeded",
			setup:    func(*RollupMonitor) {},
			expected: false,
		},
		{
			name: "recent success",
			setup: func(rm *RollupMonitor) {
				rm.RecordSuccess(hour)
			},
			expected: true,
		},
		{
			name: "stale success",
			setup: func(rm *RollupMonitor) {
				rm.RecordSuccess(hour)
				rm.mu.Lock()
				rm.lastSuccess = time.Now().Add(-3 * time.Hour)
				rm.mu.Unlock()
			},
			expected: false,
		},
		{
			name: "too many failures",
			setup: func(rm *RollupMonitor) {
				rm.RecordSuccess(hour)
				for i := 0; i < 4; i++ {
					rm.RecordFailure(errors.New("boom"))
				}
			},
			expected: false,
		},
		{
			name: "a few failures after success",
			setup: func(rm *RollupMonitor) {
				rm.RecordSuccess(hour)
				rm.RecordFailure(errors.New("boom"))
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := &RollupMonitor{}
			tt.setup(rm)
			require.Equal(t, tt.expected, rm.IsHealthy())
		})
	}
}

package monitor

import (
	"sync"
	"time"
)

// staleAfter is how long the rollup may go without a success before the
// server reports itself degraded. Two missed hourly runs is the threshold.
const staleAfter = 2 * time.Hour

// RollupMonitor tracks rollup health and failures.
type RollupMonitor struct {
	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	lastHour          time.Time
	consecutiveErrors int
	lastError         string
}

// RecordSuccess records a successful rollup of hour.
func (rm *RollupMonitor) RecordSuccess(hour time.Time) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	now := time.Now()
	rm.lastSuccess = now
	rm.lastAttempt = now
	if hour.After(rm.lastHour) {
		rm.lastHour = hour
	}
	rm.consecutiveErrors = 0
	rm.lastError = ""
}

// RecordFailure records a failed rollup.
func (rm *RollupMonitor) RecordFailure(err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.lastAttempt = time.Now()
	rm.consecutiveErrors++
	if err != nil {
		rm.lastError = err.Error()
	}
}

// IsHealthy returns true if the rollup is keeping up.
// Unhealthy conditions:
//   - Never succeeded
//   - No success within staleAfter
//   - More than 3 consecutive failures
func (rm *RollupMonitor) IsHealthy() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.healthyLocked()
}

func (rm *RollupMonitor) healthyLocked() bool {
	if rm.lastSuccess.IsZero() {
		return false
	}
	if time.Since(rm.lastSuccess) > staleAfter {
		return false
	}
	return rm.consecutiveErrors <= 3
}

// RollupStatus is the rollup section of the health response.
type RollupStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastHour          string `json:"last_hour,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current rollup status for health checks.
func (rm *RollupMonitor) Status() RollupStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	status := RollupStatus{
		Healthy: rm.healthyLocked(),
	}

	if !rm.lastSuccess.IsZero() {
		status.LastSuccess = rm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(rm.lastSuccess).Round(time.Second).String()
	}
	if !rm.lastHour.IsZero() {
		status.LastHour = rm.lastHour.Format(time.RFC3339)
	}
	if !rm.lastAttempt.IsZero() {
		status.LastAttempt = rm.lastAttempt.Format(time.RFC3339)
	}
	if rm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = rm.consecutiveErrors
		status.LastError = rm.lastError
	}

	return status
}

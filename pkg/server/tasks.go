package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/httpx"
	"github.com/nicktill/toptalkers/pkg/ingest"
	"github.com/nicktill/toptalkers/pkg/rollup"
	"github.com/nicktill/toptalkers/pkg/server/monitor"
	"github.com/nicktill/toptalkers/pkg/storage"
	"github.com/nicktill/toptalkers/pkg/storage/badger"
)

var (
	rollupMaxRetries = 3
	rollupRetryDelay = 30 * time.Second
	boundsInterval   = 5 * time.Second
)

// nextRollup returns the first hour boundary plus config.RollupDelay after
// now. Rolling the previous hour at that instant picks the hour that just
// closed.
func nextRollup(now time.Time) time.Time {
	next := now.Truncate(config.RollupInterval).Add(config.RollupDelay)
	if !next.After(now) {
		next = next.Add(config.RollupInterval)
	}
	return next
}

// RunRollup backfills the last backfillHours complete hours, then rolls the
// previous hour config.RollupDelay after every hour boundary.
func RunRollup(roller *rollup.Roller, monitor *monitor.RollupMonitor, backfillHours int, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	// Run a job with retry and exponential backoff
	runWithRetry := func(name string, job func(ctx context.Context) (time.Time, error)) {
		for attempt := 0; attempt <= rollupMaxRetries; attempt++ {
			if attempt > 0 {
				delay := rollupRetryDelay * time.Duration(1<<(attempt-1)) // 30s, 60s, 120s
				log.Printf("Retrying %s in %v (attempt %d/%d)...", name, delay, attempt+1, rollupMaxRetries+1)
				select {
				case <-time.After(delay):
				case <-stop:
					return
				}
			}

			start := time.Now()
			hour, err := job(context.Background())
			if err == nil {
				monitor.RecordSuccess(hour)
				log.Printf("%s completed in %v", name, time.Since(start).Round(time.Millisecond))
				return
			}

			monitor.RecordFailure(err)
			log.Printf("%s failed (attempt %d/%d): %v", name, attempt+1, rollupMaxRetries+1, err)

			if status := monitor.Status(); status.ConsecutiveErrors > 3 {
				log.Printf("ALERT: Rollup has been failing! Consecutive errors: %d", status.ConsecutiveErrors)
			}
		}

		log.Printf("%s failed after %d attempts, will retry on next schedule", name, rollupMaxRetries+1)
	}

	backfill := func(ctx context.Context) (time.Time, error) {
		end := time.Now().Add(-config.RollupDelay).UTC().Truncate(rollup.CoarseLength)
		start := end.Add(-time.Duration(backfillHours) * rollup.CoarseLength)
		results, err := roller.RollupRange(ctx, start, end)
		if err != nil {
			return time.Time{}, err
		}
		var rolled int
		for _, res := range results {
			if !res.Empty() {
				rolled++
			}
		}
		log.Printf("Backfilled %d of %d hours", rolled, len(results))
		return end.Add(-rollup.CoarseLength), nil
	}

	previous := func(ctx context.Context) (time.Time, error) {
		res, err := roller.RollupPrevious(ctx, time.Now(), config.RollupDelay)
		if err != nil {
			return time.Time{}, err
		}
		log.Printf("Rolled up %s: %d talkers, %d protocols", res.Hour.Format(time.RFC3339), res.Talkers, res.Protocols)
		return res.Hour, nil
	}

	// Backfill runs inline so the first scheduled run never overlaps it
	log.Printf("Running startup rollup backfill (%d hours)...", backfillHours)
	runWithRetry("Rollup backfill", backfill)

	timer := time.NewTimer(time.Until(nextRollup(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			runWithRetry("Scheduled rollup", previous)
			timer.Reset(time.Until(nextRollup(time.Now())))
		case <-stop:
			log.Println("Stopping rollup scheduler")
			return
		}
	}
}

// BroadcastBounds polls the data bounds for WebSocket clients, which covers
// data arriving by import or rollup. The hub drops unchanged spans.
// Uses exponential backoff on errors to prevent log spam during outages.
func BroadcastBounds(ctx context.Context, store storage.Store, hub *ingest.Hub) {
	ticker := time.NewTicker(boundsInterval)
	defer ticker.Stop()

	var (
		consecutiveErrors int
		lastErrorTime     time.Time
	)
	const maxBackoff = 5 * time.Minute

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Skip querying if no clients connected
			if !hub.HasClients() {
				continue
			}

			queryCtx, cancel := context.WithTimeout(ctx, config.BoundsTimeout)
			span, err := store.Bounds(queryCtx, storage.Talkers)
			cancel()
			if errors.Is(err, storage.ErrEmpty) {
				continue
			}
			if err != nil {
				consecutiveErrors++
				now := time.Now()

				backoff := time.Duration(1<<uint(min(consecutiveErrors-1, 8))) * time.Second
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				if lastErrorTime.IsZero() || now.Sub(lastErrorTime) >= backoff {
					log.Printf("Failed to read bounds for broadcast (error #%d, backoff %v): %v",
						consecutiveErrors, backoff, err)
					lastErrorTime = now
				}
				continue
			}

			if consecutiveErrors > 0 {
				log.Printf("Bounds broadcast recovered after %d errors", consecutiveErrors)
				consecutiveErrors = 0
			}

			if _, err := hub.Publish(span); err != nil {
				log.Printf("Failed to broadcast bounds: %v", err)
			}
		}
	}
}

// RunBadgerGC runs BadgerDB garbage collection periodically to reclaim disk space.
func RunBadgerGC(store storage.Store, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	badgerStore, ok := store.(*badger.Store)
	if !ok {
		log.Println("Storage is not BadgerDB, skipping GC")
		return
	}

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()

	log.Printf("BadgerDB GC scheduler started (runs every %v)", config.BadgerGCInterval)

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			// Rewrite a value log file if at least half of it is garbage
			if err := badgerStore.RunGC(0.5); err != nil {
				log.Printf("GC completed in %v (no rewrite needed)", time.Since(start).Round(time.Millisecond))
			} else {
				log.Printf("GC completed in %v (disk space reclaimed)", time.Since(start).Round(time.Millisecond))
			}
		case <-stop:
			log.Println("Stopping BadgerDB GC scheduler")
			return
		}
	}
}

// SweepLimiters drops idle per-client rate limiters every interval.
func SweepLimiters(ctx context.Context, limiter *httpx.RateLimiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

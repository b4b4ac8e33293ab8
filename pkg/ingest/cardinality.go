package ingest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/storage"
)

// ErrCardinalityLimit is returned when a request would push the number of
// distinct conversations or applications past its limit
var ErrCardinalityLimit = errors.New("cardinality limit exceeded")

const cleanupInterval = time.Hour

// CardinalityLimits caps the distinct keys tracked per collection
type CardinalityLimits struct {
	Conversations int
	Applications  int
}

// DefaultCardinalityLimits are the server's ingest limits
var DefaultCardinalityLimits = CardinalityLimits{
	Conversations: config.IngestMaxConversations,
	Applications:  config.IngestMaxApplications,
}

// CardinalityTracker counts the distinct client/server pairs and
// application labels ingested recently. Keys not seen within
// config.CardinalityRetention are forgotten so the count follows the
// live network rather than its whole history.
type CardinalityTracker struct {
	mu     sync.Mutex
	limits CardinalityLimits

	// collection -> key hash -> last seen
	seen map[storage.Collection]map[uint64]time.Time

	lastCleanup time.Time
	now         func() time.Time
}

// NewCardinalityTracker creates a tracker enforcing limits
func NewCardinalityTracker(limits CardinalityLimits) *CardinalityTracker {
	return &CardinalityTracker{
		limits: limits,
		seen: map[storage.Collection]map[uint64]time.Time{
			storage.Talkers:   make(map[uint64]time.Time),
			storage.Protocols: make(map[uint64]time.Time),
		},
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func cardinalityKey(c storage.Collection, rec storage.Record) uint64 {
	if c == storage.Talkers {
		return xxhash.Sum64String(rec.ClientAddress + "\x00" + rec.ServerAddress)
	}
	return xxhash.Sum64String(rec.Application)
}

// Check reports whether req fits under the limits. Call Record once the
// samples are stored.
func (c *CardinalityTracker) Check(req *IngestRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()

	if err := c.checkLocked(storage.Talkers, req.Talkers, c.limits.Conversations); err != nil {
		return err
	}
	return c.checkLocked(storage.Protocols, req.Protocols, c.limits.Applications)
}

func (c *CardinalityTracker) checkLocked(coll storage.Collection, records []storage.Record, limit int) error {
	seen := c.seen[coll]
	fresh := make(map[uint64]struct{})
	for _, rec := range records {
		key := cardinalityKey(coll, rec)
		if _, ok := seen[key]; ok {
			continue
		}
		fresh[key] = struct{}{}
	}
	if len(seen)+len(fresh) > limit {
		return fmt.Errorf("%w: %d new %s keys on top of %d (max %d)", ErrCardinalityLimit, len(fresh), coll, len(seen), limit)
	}
	return nil
}

// Record marks every key in req as seen now
func (c *CardinalityTracker) Record(req *IngestRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, rec := range req.Talkers {
		c.seen[storage.Talkers][cardinalityKey(storage.Talkers, rec)] = now
	}
	for _, rec := range req.Protocols {
		c.seen[storage.Protocols][cardinalityKey(storage.Protocols, rec)] = now
	}
}

// cleanupLocked drops keys older than the retention period, at most once
// per cleanupInterval. MUST be called with lock held
func (c *CardinalityTracker) cleanupLocked() {
	now := c.now()
	if now.Sub(c.lastCleanup) < cleanupInterval {
		return
	}
	c.lastCleanup = now

	cutoff := now.Add(-config.CardinalityRetention)
	for _, seen := range c.seen {
		for key, last := range seen {
			if last.Before(cutoff) {
				delete(seen, key)
			}
		}
	}
}

// CardinalityStats provides cardinality usage information
type CardinalityStats struct {
	Conversations     int     `json:"conversations"`
	Applications      int     `json:"applications"`
	ConversationLimit int     `json:"conversation_limit"`
	ApplicationLimit  int     `json:"application_limit"`
	UtilizationPct    float64 `json:"utilization_percent"`
}

// Stats returns current cardinality statistics. Utilization is that of
// whichever collection is closer to its limit.
func (c *CardinalityTracker) Stats() CardinalityStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CardinalityStats{
		Conversations:     len(c.seen[storage.Talkers]),
		Applications:      len(c.seen[storage.Protocols]),
		ConversationLimit: c.limits.Conversations,
		ApplicationLimit:  c.limits.Applications,
	}
	if c.limits.Conversations > 0 {
		stats.UtilizationPct = float64(stats.Conversations) / float64(c.limits.Conversations) * 100
	}
	if c.limits.Applications > 0 {
		stats.UtilizationPct = max(stats.UtilizationPct, float64(stats.Applications)/float64(c.limits.Applications)*100)
	}
	return stats
}

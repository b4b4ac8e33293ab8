package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nicktill/toptalkers/pkg/ingest"
	"github.com/nicktill/toptalkers/pkg/storage"
)

// Sender delivers a batch of samples; *Client implements it.
type Sender interface {
	Ingest(ctx context.Context, req ingest.IngestRequest) (*ingest.IngestResponse, error)
}

// BatchConfig holds configuration for the batcher
type BatchConfig struct {
	MaxBatchSize int
	FlushEvery   time.Duration
}

// DefaultBatchConfig flushes once per sample interval.
var DefaultBatchConfig = BatchConfig{
	MaxBatchSize: 1000,
	FlushEvery:   ingest.SampleLength,
}

// Batcher buffers talker and protocol samples and sends them periodically
type Batcher struct {
	config BatchConfig
	sender Sender

	pending ingest.IngestRequest
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	flushing atomic.Bool // at most one background flush at a time
	sent     atomic.Int64
	failed   atomic.Int64
}

// NewBatcher creates a new batcher
func NewBatcher(sender Sender, config BatchConfig) *Batcher {
	return &Batcher{
		config: config,
		sender: sender,
		done:   make(chan struct{}),
	}
}

// Start starts the periodic flush loop
func (b *Batcher) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	go b.flushLoop()
}

// Add queues a sample for collection c
func (b *Batcher) Add(c storage.Collection, rec storage.Record) error {
	b.mu.Lock()
	switch c {
	case storage.Talkers:
		b.pending.Talkers = append(b.pending.Talkers, rec)
	case storage.Protocols:
		b.pending.Protocols = append(b.pending.Protocols, rec)
	default:
		b.mu.Unlock()
		return fmt.Errorf("cannot ingest into collection %q", c)
	}
	shouldFlush := len(b.pending.Talkers)+len(b.pending.Protocols) >= b.config.MaxBatchSize
	b.mu.Unlock()

	// Flush if batch is full AND no flush is already running
	if shouldFlush && b.flushing.CompareAndSwap(false, true) {
		go func() {
			b.flush()
			b.flushing.Store(false)
		}()
	}
	return nil
}

// Flush sends all pending samples and waits for the result
func (b *Batcher) Flush() error {
	batch, ok := b.take()
	if !ok {
		return nil
	}
	return b.send(batch)
}

// Stop stops the flush loop and flushes what is left
func (b *Batcher) Stop() error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	return b.Flush()
}

// Stats returns how many samples were delivered and how many were lost.
func (b *Batcher) Stats() (sent, failed int64) {
	return b.sent.Load(), b.failed.Load()
}

func (b *Batcher) flushLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.config.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if b.flushing.CompareAndSwap(false, true) {
				b.flush()
				b.flushing.Store(false)
			}
		}
	}
}

func (b *Batcher) flush() {
	batch, ok := b.take()
	if !ok {
		return
	}
	if err := b.send(batch); err != nil {
		log.Printf("Failed to send %d samples: %v", len(batch.Talkers)+len(batch.Protocols), err)
	}
}

func (b *Batcher) take() (ingest.IngestRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.pending
	b.pending = ingest.IngestRequest{}
	return batch, len(batch.Talkers)+len(batch.Protocols) > 0
}

func (b *Batcher) send(batch ingest.IngestRequest) error {
	parent := b.ctx
	if parent == nil || parent.Err() != nil {
		// Stopped: the final flush still gets its own deadline
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()

	n := int64(len(batch.Talkers) + len(batch.Protocols))
	if _, err := b.sender.Ingest(ctx, batch); err != nil {
		b.failed.Add(n)
		return err
	}
	b.sent.Add(n)
	return nil
}

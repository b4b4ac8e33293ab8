package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nicktill/toptalkers/pkg/aggregate"
)

// Fetcher keeps at most one conversations request in flight. Starting a
// new one cancels the previous request, and a response is only applied if
// no newer request has started since.
type Fetcher struct {
	client *Client

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFetcher creates a fetcher backed by c.
func NewFetcher(c *Client) *Fetcher {
	return &Fetcher{client: c}
}

// Fetch starts a request for the top conversations over [start, end) and
// returns its generation. apply runs with the results if the request is
// still current when it completes; it runs with the fetcher locked, so a
// newer Fetch waits for it rather than interleaving. Failures are logged.
func (f *Fetcher) Fetch(ctx context.Context, start, end time.Time, limit aggregate.Limit, apply func([]aggregate.Conversation)) uint64 {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.gen++
	gen := f.gen
	reqCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer cancel()

		results, err := f.client.Conversations(reqCtx, start, end, limit)

		f.mu.Lock()
		defer f.mu.Unlock()
		if gen != f.gen {
			return
		}
		f.cancel = nil
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("Conversations fetch for %s to %s failed: %v",
					start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), err)
			}
			return
		}
		apply(results)
	}()

	return gen
}

// Generation returns the number of the latest request.
func (f *Fetcher) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

// Cancel aborts the pending request, if any. Its results are dropped.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.gen++
}

// Wait blocks until every started request has finished or been dropped.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/toptalkers/pkg/ingest"
	"github.com/nicktill/toptalkers/pkg/storage"
)

type fakeSender struct {
	mu      sync.Mutex
	batches []ingest.IngestRequest
	err     error
}

func (s *fakeSender) Ingest(_ context.Context, req ingest.IngestRequest) (*ingest.IngestResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, req)
	return &ingest.IngestResponse{Status: "success", Talkers: len(req.Talkers), Protocols: len(req.Protocols)}, nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func sample(i int) storage.Record {
	return storage.Record{Time: base.Add(time.Duration(i) * 5 * time.Second), Bytes: 1, ClientAddress: "A", ServerAddress: "B"}
}

func TestBatcher_FlushesWhenFull(t *testing.T) {
	sender := &fakeSender{}
	b := NewBatcher(sender, BatchConfig{MaxBatchSize: 3, FlushEvery: time.Hour})
	b.Start(context.Background())

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Add(storage.Talkers, sample(i)))
	}
	require.Eventually(t, func() bool {
		sent, _ := b.Stats()
		return sent == 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Stop())

	require.Equal(t, 1, sender.count())
	_, failed := b.Stats()
	require.Zero(t, failed)
}

func TestBatcher_StopFlushesRemainder(t *testing.T) {
	sender := &fakeSender{}
	b := NewBatcher(sender, BatchConfig{MaxBatchSize: 100, FlushEvery: time.Hour})
	b.Start(context.Background())

	require.NoError(t, b.Add(storage.Talkers, sample(0)))
	require.NoError(t, b.Add(storage.Protocols, storage.Record{Time: base, Bytes: 1, Application: "DNS"}))
	require.NoError(t, b.Stop())

	require.Equal(t, 1, sender.count())
	require.Len(t, sender.batches[0].Talkers, 1)
	require.Len(t, sender.batches[0].Protocols, 1)
}

func TestBatcher_PeriodicFlush(t *testing.T) {
	sender := &fakeSender{}
	b := NewBatcher(sender, BatchConfig{MaxBatchSize: 100, FlushEvery: 10 * time.Millisecond})
	b.Start(context.Background())
	defer b.Stop()

	require.NoError(t, b.Add(storage.Talkers, sample(0)))
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_RejectsTimeSeries(t *testing.T) {
	b := NewBatcher(&fakeSender{}, DefaultBatchConfig)
	require.Error(t, b.Add(storage.TimeSeries, sample(0)))
}

func TestBatcher_CountsFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("server down")}
	b := NewBatcher(sender, DefaultBatchConfig)

	require.NoError(t, b.Add(storage.Talkers, sample(0)))
	require.Error(t, b.Flush())

	sent, failed := b.Stats()
	require.Zero(t, sent)
	require.Equal(t, int64(1), failed)
}

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/toptalkers/pkg/ingest"
	"github.com/nicktill/toptalkers/pkg/storage"
)

func TestSampleIsValidForIngest(t *testing.T) {
	sim := newSimulator(20, 50, 7)
	at := time.Date(2024, 1, 1, 12, 0, 5, 0, time.UTC)

	talkers, protocols := sim.sample(at)
	require.NotEmpty(t, talkers)
	require.NotEmpty(t, protocols)

	var talkerBytes, protocolBytes int64
	for i := range talkers {
		require.NoError(t, ingest.ValidateSample(storage.Talkers, &talkers[i]))
		require.NotEqual(t, talkers[i].ClientAddress, talkers[i].ServerAddress)
		talkerBytes += talkers[i].Bytes
	}
	for i := range protocols {
		require.NoError(t, ingest.ValidateSample(storage.Protocols, &protocols[i]))
		protocolBytes += protocols[i].Bytes
	}
	require.Equal(t, talkerBytes, protocolBytes)
}

func TestSimulatorIsDeterministic(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a, _ := newSimulator(10, 5, 3).sample(at)
	b, _ := newSimulator(10, 5, 3).sample(at)
	require.Equal(t, a, b)
}

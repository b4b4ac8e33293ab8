package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/nicktill/toptalkers/pkg/ingest"
	"github.com/nicktill/toptalkers/pkg/storage"
)

var applications = []string{"HTTP", "HTTPS", "DNS", "SSH", "SMTP", "NTP", "LDAP", "SMB"}

// simulator produces a skewed mix of conversations: low-numbered hosts
// talk far more than the rest, so the graph has a clear set of top talkers.
type simulator struct {
	hosts     []string
	perSample int
	rng       *rand.Rand
}

func newSimulator(hosts, perSample int, seed int64) *simulator {
	s := &simulator{perSample: perSample, rng: rand.New(rand.NewSource(seed))}
	for i := 0; i < hosts; i++ {
		s.hosts = append(s.hosts, fmt.Sprintf("10.0.%d.%d", i/250, i%250+1))
	}
	return s
}

// host picks an address with a roughly Zipf-shaped preference.
func (s *simulator) host() string {
	i := int(float64(len(s.hosts)) * s.rng.Float64() * s.rng.Float64())
	return s.hosts[i]
}

// sample generates the records for the 5-second bucket starting at at.
func (s *simulator) sample(at time.Time) (talkers, protocols []storage.Record) {
	perApp := make(map[string]int64)
	for i := 0; i < s.perSample; i++ {
		client, server := s.host(), s.host()
		if client == server {
			continue
		}
		bytes := int64(s.rng.ExpFloat64()*50_000) + 64
		talkers = append(talkers, storage.Record{
			Time:          at,
			Length:        ingest.SampleLength,
			Bytes:         bytes,
			ClientAddress: client,
			ServerAddress: server,
		})
		perApp[applications[s.rng.Intn(len(applications))]] += bytes
	}
	for app, bytes := range perApp {
		protocols = append(protocols, storage.Record{
			Time:        at,
			Length:      ingest.SampleLength,
			Bytes:       bytes,
			Application: app,
		})
	}
	return talkers, protocols
}

type sink interface {
	Add(c storage.Collection, rec storage.Record) error
}

// run emits one sample per interval until ctx is done.
func (s *simulator) run(ctx context.Context, out sink) {
	ticker := time.NewTicker(ingest.SampleLength)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// Report the bucket that just closed
			at := now.UTC().Truncate(ingest.SampleLength).Add(-ingest.SampleLength)
			talkers, protocols := s.sample(at)
			for _, rec := range talkers {
				if err := out.Add(storage.Talkers, rec); err != nil {
					log.Printf("Dropping talker sample: %v", err)
				}
			}
			for _, rec := range protocols {
				if err := out.Add(storage.Protocols, rec); err != nil {
					log.Printf("Dropping protocol sample: %v", err)
				}
			}
			count++
			if count%12 == 0 {
				log.Printf("Generated %d samples, latest at %s", count, at.Format(time.RFC3339))
			}
		}
	}
}

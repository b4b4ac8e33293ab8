package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/toptalkers/pkg/aggregate"
	"github.com/nicktill/toptalkers/pkg/api"
)

// slowServer answers /conversations with one row named after the start
// parameter, holding any request whose start is in block until the client
// goes away.
func slowServer(t *testing.T, block map[string]bool) (*Client, chan struct{}) {
	t.Helper()
	blocked := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		if block[start] {
			blocked <- struct{}{}
			<-r.Context().Done()
			return
		}
		json.NewEncoder(w).Encode([]aggregate.Conversation{{ClientAddress: start, ServerAddress: "S", Bytes: 1}})
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)
	return c, blocked
}

func TestFetcher_NewRequestCancelsPending(t *testing.T) {
	first := base
	second := base.Add(time.Hour)
	c, blocked := slowServer(t, map[string]bool{api.FormatTime(first): true})
	f := NewFetcher(c)

	var mu sync.Mutex
	var applied []string
	apply := func(convs []aggregate.Conversation) {
		mu.Lock()
		defer mu.Unlock()
		for _, conv := range convs {
			applied = append(applied, conv.ClientAddress)
		}
	}

	g1 := f.Fetch(context.Background(), first, first.Add(time.Minute), aggregate.NoLimit, apply)
	<-blocked
	g2 := f.Fetch(context.Background(), second, second.Add(time.Minute), aggregate.NoLimit, apply)
	require.Greater(t, g2, g1)

	f.Wait()
	require.Equal(t, []string{api.FormatTime(second)}, applied)
	require.Equal(t, g2, f.Generation())
}

func TestFetcher_CancelDropsResult(t *testing.T) {
	c, blocked := slowServer(t, map[string]bool{api.FormatTime(base): true})
	f := NewFetcher(c)

	called := false
	f.Fetch(context.Background(), base, base.Add(time.Minute), aggregate.NoLimit, func([]aggregate.Conversation) { called = true })
	<-blocked
	f.Cancel()
	f.Wait()
	require.False(t, called)
}

func TestFetcher_SequentialRequestsAllApply(t *testing.T) {
	c, _ := slowServer(t, nil)
	f := NewFetcher(c)

	var applied int
	for i := 0; i < 3; i++ {
		f.Fetch(context.Background(), base, base.Add(time.Minute), aggregate.NoLimit, func([]aggregate.Conversation) { applied++ })
		f.Wait()
	}
	require.Equal(t, 3, applied)
}

func TestFetcher_ErrorIsNotApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c, err := New(srv.URL)
	require.NoError(t, err)

	f := NewFetcher(c)
	called := false
	f.Fetch(context.Background(), base, base.Add(time.Minute), aggregate.NoLimit, func([]aggregate.Conversation) { called = true })
	f.Wait()
	require.False(t, called)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/toptalkers/pkg/aggregate"
	"github.com/nicktill/toptalkers/pkg/api"
	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/ingest"
	"github.com/nicktill/toptalkers/pkg/server"
	"github.com/nicktill/toptalkers/pkg/storage"
	"github.com/nicktill/toptalkers/pkg/storage/badger"
)

var base = time.Date(2013, 5, 1, 10, 0, 0, 0, time.UTC)

type testServer struct {
	store  *badger.Store
	router *mux.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.InMemory = true

	store, err := server.InitializeStorage(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	storageMonitor := server.InitializeStorageMonitor(cfg, store)
	router := mux.NewRouter()
	server.SetupRoutes(router, server.InitializeHandlers(store, storageMonitor), storageMonitor, nil, nil, cfg.Port)
	return &testServer{store: store, router: router}
}

func (s *testServer) do(t *testing.T, method, target string, payload interface{}, out interface{}) int {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if out != nil && rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out), rr.Body.String())
	}
	return rr.Code
}

func talker(client, server string, at time.Time, bytes int64) storage.Record {
	return storage.Record{Time: at, Bytes: bytes, ClientAddress: client, ServerAddress: server}
}

// seed ingests fine samples on both sides of two complete hours and rolls
// those hours up.
func seed(t *testing.T, s *testServer) {
	t.Helper()
	status := s.do(t, http.MethodPost, "/v1/ingest", ingest.IngestRequest{
		Talkers: []storage.Record{
			talker("A", "B", base.Add(-5*time.Minute), 10),
			talker("A", "B", base.Add(30*time.Minute), 100),
			talker("B", "A", base.Add(90*time.Minute), 25),
			talker("A", "C", base.Add(2*time.Hour+5*time.Minute), 40),
		},
		Protocols: []storage.Record{
			{Time: base.Add(30 * time.Minute), Bytes: 100, Application: "HTTP"},
			{Time: base.Add(90 * time.Minute), Bytes: 25, Application: "DNS"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, status)

	roller, _ := server.InitializeRoller(s.store)
	results, err := roller.RollupRange(context.Background(), base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestE2E_Times(t *testing.T) {
	s := newTestServer(t)

	// An empty store is an invariant failure
	require.Equal(t, http.StatusInternalServerError, s.do(t, http.MethodGet, "/times", nil, nil))

	seed(t, s)

	var times api.TimesResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/times", nil, &times))
	require.Equal(t, "2013-05-01T09:55:00.000Z", times.Start)
}

func TestE2E_ConversationsAcrossResolutions(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	// 09:50 to 12:10 plans fine, coarse, fine
	var convs []aggregate.Conversation
	status := s.do(t, http.MethodGet,
		"/conversations?start=2013-05-01T09:50:00Z&end=2013-05-01T12:10:00Z", nil, &convs)
	require.Equal(t, http.StatusOK, status)
	// Unranked results come in store order
	require.ElementsMatch(t, []aggregate.Conversation{
		{ClientAddress: "A", ServerAddress: "B", Bytes: 110},
		{ClientAddress: "A", ServerAddress: "C", Bytes: 40},
		{ClientAddress: "B", ServerAddress: "A", Bytes: 25},
	}, convs)

	status = s.do(t, http.MethodGet,
		"/conversations?start=2013-05-01T09:50:00Z&end=2013-05-01T12:10:00Z&count=3", nil, &convs)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []aggregate.Conversation{
		{ClientAddress: "A", ServerAddress: "B", Bytes: 110},
		{ClientAddress: "A", ServerAddress: "C", Bytes: 40},
		{ClientAddress: "B", ServerAddress: "A", Bytes: 25},
	}, convs)

	status = s.do(t, http.MethodGet,
		"/conversations?start=2013-05-01T09:50:00Z&end=2013-05-01T12:10:00Z&count=1", nil, &convs)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, convs, 1)
	require.Equal(t, int64(110), convs[0].Bytes)
}

func TestE2E_Protocols(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	var protocols []aggregate.Protocol
	status := s.do(t, http.MethodGet,
		"/protocols?start=2013-05-01T10:00:00Z&end=2013-05-01T12:00:00Z", nil, &protocols)
	require.Equal(t, http.StatusOK, status)
	require.ElementsMatch(t, []aggregate.Protocol{
		{Application: "HTTP", Bytes: 100},
		{Application: "DNS", Bytes: 25},
	}, protocols)
}

func TestE2E_TimeSeries(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	var points []api.SeriesPoint
	status := s.do(t, http.MethodGet,
		"/timeseries?start=2013-05-01T10:00:00Z&end=2013-05-01T11:00:00Z&points=12", nil, &points)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, points, 12)
	require.Equal(t, "2013-05-01T10:30:00.000Z", points[6].Time)
	require.InDelta(t, 100.0/300, points[6].Y, 1e-9)
	require.Zero(t, points[0].Y)
}

func TestE2E_InvalidRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"missing start", http.MethodGet, "/conversations?end=2013-05-01T10:00:00Z", http.StatusBadRequest},
		{"negative count", http.MethodGet, "/conversations?start=2013-05-01T09:00:00Z&end=2013-05-01T10:00:00Z&count=-1", http.StatusBadRequest},
		{"bad count", http.MethodGet, "/protocols?start=2013-05-01T09:00:00Z&end=2013-05-01T10:00:00Z&count=ten", http.StatusBadRequest},
		{"bad date", http.MethodGet, "/protocols?start=yesterday&end=2013-05-01T10:00:00Z", http.StatusBadRequest},
		{"missing points", http.MethodGet, "/timeseries?start=2013-05-01T09:00:00Z&end=2013-05-01T10:00:00Z", http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/v1/query", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantStatus, s.do(t, tt.method, tt.path, nil, nil))
		})
	}
}

func TestE2E_ExportImport(t *testing.T) {
	src := newTestServer(t)
	seed(t, src)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/export?collection=talkers&start=2013-05-01T09:00:00Z&end=2013-05-01T13:00:00Z", nil)
	rr := httptest.NewRecorder()
	src.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	dst := newTestServer(t)
	req = httptest.NewRequest(http.MethodPost, "/v1/import", bytes.NewReader(rr.Body.Bytes()))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	dst.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var convs []aggregate.Conversation
	status := dst.do(t, http.MethodGet,
		"/conversations?start=2013-05-01T09:50:00Z&end=2013-05-01T12:10:00Z", nil, &convs)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, convs, 3)
}

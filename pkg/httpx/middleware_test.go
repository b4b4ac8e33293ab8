package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRequestID_Generated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/times", nil))

	require.Equal(t, http.StatusTeapot, rr.Code)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	require.Equal(t, seen, rr.Header().Get(RequestIDHeader))
}

func TestRequestID_ReusesValidIncoming(t *testing.T) {
	incoming := uuid.NewString()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/times", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, incoming, rr.Header().Get(RequestIDHeader))

	// Garbage ids are replaced
	req = httptest.NewRequest(http.MethodGet, "/times", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.NotEqual(t, "<script>", rr.Header().Get(RequestIDHeader))
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, send("10.0.0.1:5000"))
	require.Equal(t, http.StatusOK, send("10.0.0.1:5001"))
	require.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5002"))

	// A different client has its own bucket
	require.Equal(t, http.StatusOK, send("10.0.0.2:5000"))
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	rl.ttl = -time.Second
	rl.Allow("a")
	rl.Allow("b")
	require.Equal(t, 0, rl.Sweep())
}

// Package api serves the top-talkers queries over HTTP.
//
//	GET /times                               -> {start, end}
//	GET /conversations?start&end[&count]     -> [{client_address, server_address, bytes}]
//	GET /protocols?start&end[&count]         -> [{application, bytes}]
//	GET /timeseries?start&end&points         -> [{time, y}]
//
// Parameters are validated before the store is touched. A missing count
// means every key, unranked; count=0 means a ranked, empty list.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/toptalkers/pkg/aggregate"
	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/httpx"
	"github.com/nicktill/toptalkers/pkg/service"
)

// TimeLayout is how timestamps are written in responses
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// accepted request layouts, tried in order
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// Handler serves the query endpoints
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new query handler
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the query routes on router
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/times", h.HandleTimes).Methods("GET")
	router.HandleFunc("/conversations", h.HandleConversations).Methods("GET")
	router.HandleFunc("/protocols", h.HandleProtocols).Methods("GET")
	router.HandleFunc("/timeseries", h.HandleTimeSeries).Methods("GET")
}

// TimesResponse is the body of /times
type TimesResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SeriesPoint is one element of the /timeseries body
type SeriesPoint struct {
	Time string  `json:"time"`
	Y    float64 `json:"y"`
}

// HandleTimes returns the span of stored talker data
func (h *Handler) HandleTimes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.BoundsTimeout)
	defer cancel()

	bounds, err := h.svc.Bounds(ctx)
	if err != nil {
		// No data is an invariant failure for a deployed store; don't leak details
		log.Printf("Bounds query failed: %v", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "unable to determine data bounds")
		return
	}

	httpx.RespondJSON(w, http.StatusOK, TimesResponse{
		Start: FormatTime(bounds.Start),
		End:   FormatTime(bounds.End),
	})
}

// HandleConversations ranks client/server pairs over a range
func (h *Handler) HandleConversations(w http.ResponseWriter, r *http.Request) {
	start, end, limit, ok := parseRankedQuery(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.svc.Conversations(ctx, start, end, limit)
	if err != nil {
		respondQueryError(w, "conversations", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, results)
}

// HandleProtocols ranks applications over a range
func (h *Handler) HandleProtocols(w http.ResponseWriter, r *http.Request) {
	start, end, limit, ok := parseRankedQuery(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.svc.Protocols(ctx, start, end, limit)
	if err != nil {
		respondQueryError(w, "protocols", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, results)
}

// HandleTimeSeries returns evenly spaced bytes-per-second samples
func (h *Handler) HandleTimeSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	raw := q.Get("points")
	if raw == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "points parameter is required")
		return
	}
	points, err := strconv.Atoi(raw)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid points: %w", err))
		return
	}
	if points > config.MaxSeriesPoints {
		points = config.MaxSeriesPoints
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	series, err := h.svc.TimeSeries(ctx, start, end, points)
	if err != nil {
		respondQueryError(w, "timeseries", err)
		return
	}

	out := make([]SeriesPoint, 0, len(series))
	for _, p := range series {
		out = append(out, SeriesPoint{Time: FormatTime(p.Time), Y: p.Y})
	}
	httpx.RespondJSON(w, http.StatusOK, out)
}

// parseRankedQuery reads start, end and count, writing a 400 on failure
func parseRankedQuery(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, aggregate.Limit, bool) {
	q := r.URL.Query()

	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return time.Time{}, time.Time{}, aggregate.Limit{}, false
	}
	if !start.Before(end) {
		httpx.RespondErrorString(w, http.StatusBadRequest, "start must be before end")
		return time.Time{}, time.Time{}, aggregate.Limit{}, false
	}

	limit, err := ParseLimit(q.Get("count"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return time.Time{}, time.Time{}, aggregate.Limit{}, false
	}
	return start, end, limit, true
}

// ParseLimit maps the count parameter to a limit: empty is NoLimit
func ParseLimit(raw string) (aggregate.Limit, error) {
	if raw == "" {
		return aggregate.NoLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return aggregate.Limit{}, fmt.Errorf("invalid count: %w", err)
	}
	return aggregate.Top(n)
}

func parseRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, errors.New("start and end parameters are required")
	}
	start, err := ParseTime(rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := ParseTime(rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
	}
	if end.Sub(start) > config.MaxQueryWindow {
		return time.Time{}, time.Time{}, fmt.Errorf("time range exceeds maximum of %v", config.MaxQueryWindow)
	}
	return start, end, nil
}

// ParseTime accepts RFC 3339 with or without fractional seconds, or a bare
// local timestamp which is read as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as ISO-8601 time", s)
}

// FormatTime writes t in UTC with millisecond precision
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func respondQueryError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, service.ErrInvalidRange) {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	log.Printf("%s query failed: %v", what, err)
	httpx.RespondErrorString(w, http.StatusInternalServerError, what+" query failed")
}

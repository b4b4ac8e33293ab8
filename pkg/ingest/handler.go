package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/nicktill/toptalkers/pkg/api"
	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/httpx"
	"github.com/nicktill/toptalkers/pkg/rollup"
	"github.com/nicktill/toptalkers/pkg/storage"
)

// StorageChecker reports disk usage against the configured limit
type StorageChecker interface {
	GetUsage() (int64, error)
	GetLimit() int64
}

// Handler accepts 5-second talker and protocol samples
type Handler struct {
	store          storage.Store
	storageChecker StorageChecker
	cardinality    *CardinalityTracker
	hub            *Hub

	// seriesMu orders series refreshes so an older total never lands last
	seriesMu sync.Mutex
}

// NewHandler creates a new ingest handler
func NewHandler(store storage.Store) *Handler {
	return &Handler{store: store}
}

// SetStorageChecker enables storage limit enforcement
func (h *Handler) SetStorageChecker(checker StorageChecker) {
	h.storageChecker = checker
}

// SetCardinalityTracker enables limits on distinct conversations and applications
func (h *Handler) SetCardinalityTracker(tracker *CardinalityTracker) {
	h.cardinality = tracker
}

// SetHub makes successful ingests push the new data bounds to hub
func (h *Handler) SetHub(hub *Hub) {
	h.hub = hub
}

// IngestRequest represents the request payload
type IngestRequest struct {
	Talkers   []storage.Record `json:"talkers"`
	Protocols []storage.Record `json:"protocols"`
}

// IngestResponse represents the response payload
type IngestResponse struct {
	Status    string `json:"status"`
	Talkers   int    `json:"talkers"`
	Protocols int    `json:"protocols"`
}

// HandleIngest handles POST /v1/ingest
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.IngestMaxRequestSize)

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	if err := req.validate(); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	if h.storageChecker != nil {
		used, err := h.storageChecker.GetUsage()
		if err != nil {
			log.Printf("Failed to check storage usage: %v", err)
		} else if used >= h.storageChecker.GetLimit() {
			httpx.RespondErrorString(w, http.StatusInsufficientStorage,
				fmt.Sprintf("storage limit reached (%d of %d bytes)", used, h.storageChecker.GetLimit()))
			return
		}
	}

	if h.cardinality != nil {
		if err := h.cardinality.Check(&req); err != nil {
			httpx.RespondError(w, http.StatusTooManyRequests, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	if err := h.write(ctx, storage.Talkers, req.Talkers); err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.write(ctx, storage.Protocols, req.Protocols); err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.refreshSeries(ctx, req.Talkers); err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	if h.cardinality != nil {
		h.cardinality.Record(&req)
	}

	if h.hub != nil && len(req.Talkers) > 0 {
		h.publishBounds(ctx)
	}

	httpx.RespondJSON(w, http.StatusOK, IngestResponse{
		Status:    "success",
		Talkers:   len(req.Talkers),
		Protocols: len(req.Protocols),
	})
}

// HandleCardinalityStats handles GET /v1/cardinality
func (h *Handler) HandleCardinalityStats(w http.ResponseWriter, r *http.Request) {
	if h.cardinality == nil {
		httpx.RespondErrorString(w, http.StatusNotFound, "cardinality tracking disabled")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, h.cardinality.Stats())
}

func (req *IngestRequest) validate() error {
	total := len(req.Talkers) + len(req.Protocols)
	if total == 0 {
		return ErrEmptyRequest
	}
	if total > config.IngestMaxRecords {
		return fmt.Errorf("%w: got %d", ErrTooManyRecords, total)
	}
	for i := range req.Talkers {
		if err := ValidateSample(storage.Talkers, &req.Talkers[i]); err != nil {
			return fmt.Errorf("invalid talker %d: %w", i, err)
		}
	}
	for i := range req.Protocols {
		if err := ValidateSample(storage.Protocols, &req.Protocols[i]); err != nil {
			return fmt.Errorf("invalid protocol %d: %w", i, err)
		}
	}
	return nil
}

func (h *Handler) write(ctx context.Context, c storage.Collection, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := h.store.Write(ctx, c, records); err != nil {
		return fmt.Errorf("failed to store %s: %w", c, err)
	}
	return nil
}

// refreshSeries recomputes the traffic totals for every 5-minute window the
// talkers fall in, at both 5s and 5m, from the stored samples. The hour
// being filled then resamples before the rollup reaches it; the rollup
// later rewrites the same records with the same values.
func (h *Handler) refreshSeries(ctx context.Context, talkers []storage.Record) error {
	if len(talkers) == 0 {
		return nil
	}

	windows := make(map[int64]bool)
	first, last := talkers[0].Time, talkers[0].Time
	for _, rec := range talkers {
		windows[rec.Time.Truncate(rollup.SeriesLength).UnixNano()] = true
		if rec.Time.Before(first) {
			first = rec.Time
		}
		if rec.Time.After(last) {
			last = rec.Time
		}
	}

	h.seriesMu.Lock()
	defer h.seriesMu.Unlock()

	cur, err := h.store.Query(ctx, storage.Query{
		Collection: storage.Talkers,
		Start:      first.Truncate(rollup.SeriesLength),
		End:        last.Truncate(rollup.SeriesLength).Add(rollup.SeriesLength),
		Length:     SampleLength,
	})
	if err != nil {
		return fmt.Errorf("failed to read samples for series: %w", err)
	}
	samples, err := storage.Drain(ctx, cur)
	if err != nil {
		return fmt.Errorf("failed to read samples for series: %w", err)
	}

	fine := make(map[int64]int64)
	coarse := make(map[int64]int64)
	for _, rec := range samples {
		window := rec.Time.Truncate(rollup.SeriesLength).UnixNano()
		if !windows[window] {
			continue
		}
		fine[rec.Time.UnixNano()] += rec.Bytes
		coarse[window] += rec.Bytes
	}

	series := make([]storage.Record, 0, len(fine)+len(coarse))
	for ts, bytes := range fine {
		series = append(series, storage.Record{Time: time.Unix(0, ts).UTC(), Length: SampleLength, Bytes: bytes})
	}
	for ts, bytes := range coarse {
		series = append(series, storage.Record{Time: time.Unix(0, ts).UTC(), Length: rollup.SeriesLength, Bytes: bytes})
	}
	return h.write(ctx, storage.TimeSeries, series)
}

func (h *Handler) publishBounds(ctx context.Context) {
	span, err := h.store.Bounds(ctx, storage.Talkers)
	if errors.Is(err, storage.ErrEmpty) {
		return
	}
	if err != nil {
		log.Printf("Failed to read bounds for broadcast: %v", err)
		return
	}
	if _, err := h.hub.Publish(span); err != nil {
		log.Printf("Failed to broadcast bounds: %v", err)
	}
}

// BoundsUpdate is pushed to websocket clients when the data span grows
type BoundsUpdate struct {
	Type  string `json:"type"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewBoundsUpdate formats span the way /times does
func NewBoundsUpdate(span storage.Span) BoundsUpdate {
	return BoundsUpdate{
		Type:  "bounds",
		Start: api.FormatTime(span.Oldest),
		End:   api.FormatTime(span.Newest),
	}
}

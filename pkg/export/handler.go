package export

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nicktill/toptalkers/pkg/api"
	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/httpx"
	"github.com/nicktill/toptalkers/pkg/storage"
)

// Handler handles export/import HTTP endpoints
type Handler struct {
	exporter *Exporter
	importer *Importer
}

// NewHandler creates a new export/import handler
func NewHandler(store storage.Store) *Handler {
	return &Handler{
		exporter: NewExporter(store),
		importer: NewImporter(store),
	}
}

// HandleExport handles GET /v1/export
// Query params:
//   - collection: talkers, protocols or timeseries (default: talkers)
//   - format: "json" or "csv" (default: json)
//   - start, end: ISO-8601 timestamps (default: last 24h)
//   - length: bucket length such as 5s or 1h (optional)
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid format, must be 'json' or 'csv'")
		return
	}

	collection := storage.Talkers
	if c := query.Get("collection"); c != "" {
		collection = storage.Collection(c)
	}
	if !collection.Valid() {
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("unknown collection %q", collection))
		return
	}

	end := parseTimeParam(query.Get("end"), time.Now())
	start := parseTimeParam(query.Get("start"), end.Add(-config.DefaultExportWindow))
	if !start.Before(end) {
		httpx.RespondErrorString(w, http.StatusBadRequest, "start must be before end")
		return
	}
	if end.Sub(start) > config.MaxExportWindow {
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("time range too large, maximum is %v", config.MaxExportWindow))
		return
	}

	opts := ExportOptions{Collection: collection, Start: start, End: end, Format: format}
	if raw := query.Get("length"); raw != "" {
		length, err := time.ParseDuration(raw)
		if err != nil || length <= 0 {
			httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid length %q", raw))
			return
		}
		opts.Length = length
	}

	timestamp := time.Now().Format("20060102-150405")
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=toptalkers-%s-%s.json", collection, timestamp))
	} else {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=toptalkers-%s-%s.csv", collection, timestamp))
	}

	ctx := r.Context()
	var result *ExportResult
	var err error
	if format == "json" {
		result, err = h.exporter.ExportToJSON(ctx, w, opts)
	} else {
		result, err = h.exporter.ExportToCSV(ctx, w, opts)
	}
	if err != nil {
		log.Printf("Export failed: %v", err)
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("export failed: %w", err))
		return
	}

	log.Printf("Exported %d %s records (%s) from %s", result.RecordsExported, collection, format, result.TimeRange)
}

// HandleImport handles POST /v1/import
// Accepts JSON backup files and writes their records into storage
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	result, err := h.importer.ImportFromJSON(r.Context(), r.Body)
	if err != nil {
		log.Printf("Import failed: %v", err)
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("import failed: %w", err))
		return
	}

	if len(result.Errors) > 0 {
		log.Printf("Import completed with %d validation errors", len(result.Errors))
		for i, err := range result.Errors {
			if i < 10 {
				log.Printf("   - %s", err)
			}
		}
		if len(result.Errors) > 10 {
			log.Printf("   ... and %d more errors", len(result.Errors)-10)
		}
	}

	log.Printf("Imported %d %s records in %d batches from %s", result.RecordsImported, result.Collection, result.BatchesWritten, result.TimeRange)
	httpx.RespondJSON(w, http.StatusOK, result)
}

// parseTimeParam parses a time parameter or returns default
func parseTimeParam(param string, defaultTime time.Time) time.Time {
	if param == "" {
		return defaultTime
	}
	if t, err := api.ParseTime(param); err == nil {
		return t
	}
	return defaultTime
}

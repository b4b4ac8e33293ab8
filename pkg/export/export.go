package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nicktill/toptalkers/pkg/storage"
)

// Exporter handles exporting bucket records to various formats
type Exporter struct {
	storage storage.Store
}

// NewExporter creates a new exporter
func NewExporter(store storage.Store) *Exporter {
	return &Exporter{storage: store}
}

// ExportOptions configures the export operation
type ExportOptions struct {
	Collection storage.Collection

	// Time range to export
	Start time.Time
	End   time.Time

	// Bucket length filter (0 = every length)
	Length time.Duration

	// Format: "json" or "csv"
	Format string
}

// ExportResult contains stats about the export
type ExportResult struct {
	RecordsExported int       `json:"records_exported"`
	Collection      string    `json:"collection"`
	TimeRange       string    `json:"time_range"`
	Format          string    `json:"format"`
	ExportedAt      time.Time `json:"exported_at"`
}

// Metadata heads a JSON backup
type Metadata struct {
	ExportedAt  time.Time          `json:"exported_at"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
	RecordCount int                `json:"record_count"`
	Collection  storage.Collection `json:"collection"`
	Format      string             `json:"format"`
	Version     string             `json:"version"`
}

// csvHeader is the fixed column set; unused key columns are left empty
var csvHeader = []string{"time", "length_ms", "bytes", "client_address", "server_address", "application"}

func (e *Exporter) query(ctx context.Context, opts ExportOptions) ([]storage.Record, error) {
	cur, err := e.storage.Query(ctx, storage.Query{
		Collection: opts.Collection,
		Start:      opts.Start,
		End:        opts.End,
		Length:     opts.Length,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	records, err := storage.Drain(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}

// ExportToJSON exports records as JSON to the given writer
func (e *Exporter) ExportToJSON(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	records, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []storage.Record{}
	}

	exportData := ImportData{
		Metadata: Metadata{
			ExportedAt:  time.Now(),
			StartTime:   opts.Start,
			EndTime:     opts.End,
			RecordCount: len(records),
			Collection:  opts.Collection,
			Format:      "json",
			Version:     "1.0",
		},
		Records: records,
	}

	// Encode as pretty JSON
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(exportData); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return &ExportResult{
		RecordsExported: len(records),
		Collection:      string(opts.Collection),
		TimeRange:       timeRange(opts.Start, opts.End),
		Format:          "json",
		ExportedAt:      exportData.Metadata.ExportedAt,
	}, nil
}

// ExportToCSV exports records as CSV to the given writer
func (e *Exporter) ExportToCSV(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	records, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.Time.UTC().Format(time.RFC3339),
			strconv.FormatInt(rec.Length.Milliseconds(), 10),
			strconv.FormatInt(rec.Bytes, 10),
			rec.ClientAddress,
			rec.ServerAddress,
			rec.Application,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return &ExportResult{
		RecordsExported: len(records),
		Collection:      string(opts.Collection),
		TimeRange:       timeRange(opts.Start, opts.End),
		Format:          "csv",
		ExportedAt:      time.Now(),
	}, nil
}

func timeRange(start, end time.Time) string {
	return fmt.Sprintf("%s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
}

package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nicktill/toptalkers/pkg/storage"
)

const (
	// MaxImportBatchSize is the maximum number of records to write at once
	MaxImportBatchSize = 5000
)

// Importer handles importing records from backup files
type Importer struct {
	storage storage.Store
}

// NewImporter creates a new importer
func NewImporter(store storage.Store) *Importer {
	return &Importer{storage: store}
}

// ImportResult contains stats about the import operation
type ImportResult struct {
	RecordsImported int       `json:"records_imported"`
	BatchesWritten  int       `json:"batches_written"`
	Collection      string    `json:"collection"`
	TimeRange       string    `json:"time_range"`
	ImportedAt      time.Time `json:"imported_at"`
	Errors          []string  `json:"errors,omitempty"`
}

// ImportData represents the structure of a JSON backup
type ImportData struct {
	Metadata Metadata         `json:"metadata"`
	Records  []storage.Record `json:"records"`
}

// ImportFromJSON imports records from a JSON backup file
func (im *Importer) ImportFromJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var importData ImportData
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&importData); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	collection := importData.Metadata.Collection
	if !collection.Valid() {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}

	if len(importData.Records) == 0 {
		return &ImportResult{
			Collection: string(collection),
			TimeRange:  "empty",
			ImportedAt: time.Now(),
		}, nil
	}

	var validationErrors []string
	valid := make([]storage.Record, 0, len(importData.Records))
	for i, rec := range importData.Records {
		if err := validateImportedRecord(collection, rec); err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		valid = append(valid, rec)
	}

	// Write records in batches to avoid overwhelming storage
	batchCount := 0
	for i := 0; i < len(valid); i += MaxImportBatchSize {
		end := i + MaxImportBatchSize
		if end > len(valid) {
			end = len(valid)
		}
		if err := im.storage.Write(ctx, collection, valid[i:end]); err != nil {
			return nil, fmt.Errorf("failed to write batch %d: %w", batchCount, err)
		}
		batchCount++
	}

	var minTime, maxTime time.Time
	for i, rec := range valid {
		if i == 0 || rec.Time.Before(minTime) {
			minTime = rec.Time
		}
		if i == 0 || rec.Time.After(maxTime) {
			maxTime = rec.Time
		}
	}

	return &ImportResult{
		RecordsImported: len(valid),
		BatchesWritten:  batchCount,
		Collection:      string(collection),
		TimeRange:       timeRange(minTime, maxTime),
		ImportedAt:      time.Now(),
		Errors:          validationErrors,
	}, nil
}

// validateImportedRecord checks a record carries the keys of its collection
func validateImportedRecord(c storage.Collection, rec storage.Record) error {
	if rec.Time.IsZero() {
		return fmt.Errorf("record time cannot be zero")
	}
	if rec.Length <= 0 {
		return fmt.Errorf("bucket length must be positive")
	}
	if rec.Bytes < 0 {
		return fmt.Errorf("bytes cannot be negative")
	}

	switch c {
	case storage.Talkers:
		if rec.ClientAddress == "" || rec.ServerAddress == "" {
			return fmt.Errorf("talker record needs client and server addresses")
		}
	case storage.Protocols:
		if rec.Application == "" {
			return fmt.Errorf("protocol record needs an application")
		}
	}
	return nil
}

// Package export backs up and restores bucket records.
//
// # Formats
//
// JSON backups carry a metadata header and the records of one collection;
// they can be re-imported. CSV is export-only with fixed columns:
//
//	time,length_ms,bytes,client_address,server_address,application
//
// # HTTP API
//
// Export endpoint: GET /v1/export
// Query parameters:
//   - collection: talkers, protocols or timeseries (default: talkers)
//   - format: "json" or "csv" (default: json)
//   - start, end: ISO-8601 timestamps (default: last 24h)
//   - length: bucket length filter, e.g. 5s or 1h (optional)
//
// Example:
//
//	curl "http://localhost:8080/v1/export?collection=protocols&length=1h" -o protocols.json
//
// Import endpoint: POST /v1/import
// Content-Type: application/json
//
//	curl -X POST "http://localhost:8080/v1/import" \
//	  -H "Content-Type: application/json" \
//	  -d @protocols.json
//
// # Data Format
//
//	{
//	  "metadata": {
//	    "exported_at": "2013-05-02T00:00:00Z",
//	    "start_time": "2013-05-01T00:00:00Z",
//	    "end_time": "2013-05-02T00:00:00Z",
//	    "record_count": 1,
//	    "collection": "protocols",
//	    "format": "json",
//	    "version": "1.0"
//	  },
//	  "records": [
//	    {"time": "2013-05-01T10:00:00Z", "length": 3600000, "bytes": 42, "application": "HTTP"}
//	  ]
//	}
//
// # Error Handling
//
// Import validates each record against its collection and skips invalid
// ones; skipped records are reported in ImportResult.Errors. Re-importing a
// backup is safe because writes replace records with the same identity.
package export

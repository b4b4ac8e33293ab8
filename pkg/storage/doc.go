/*
Package storage provides the pluggable record store behind the talkers API.

# Store Interface

Backends implement Store:

	type Store interface {
	    Write(ctx context.Context, c Collection, records []Record) error
	    Query(ctx context.Context, q Query) (Cursor, error)
	    Bounds(ctx context.Context, c Collection) (Span, error)
	    Stats(ctx context.Context) (*Stats, error)
	    Close() error
	}

  - memory: in-memory store for tests and ephemeral runs
  - badger: BadgerDB (LSM tree + Snappy compression) for persistent storage

# Collections and Bucket Lengths

Records live in three collections:

  - talkers: client_address/server_address byte counts
  - protocols: application byte counts
  - timeseries: total bytes per bucket

Every record carries a bucket length tag. The loader writes fine 5s
buckets, hourly rollups of talkers and protocols, and 5-minute rollups of
the time series. A Query selects one tag exactly:

	cur, err := store.Query(ctx, storage.Query{
	    Collection: storage.Talkers,
	    Start:      hourStart,
	    End:        hourEnd,
	    Length:     time.Hour,
	})
	if err != nil {
	    return err
	}
	defer cur.Close()

	for cur.Next(ctx) {
	    rec := cur.Record()
	    ...
	}
	if err := cur.Err(); err != nil {
	    return err
	}

Cursors yield records in ascending time order and may be closed early.

# Identity

A record's identity is its collection, length, time and key fields.
Writing a record with an existing identity replaces it, so rollups can be
re-run safely.
*/
package storage

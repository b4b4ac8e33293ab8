package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Collection names a group of records sharing one document shape.
type Collection string

const (
	Talkers    Collection = "talkers"    // client/server byte counts
	Protocols  Collection = "protocols"  // per-application byte counts
	TimeSeries Collection = "timeseries" // total bytes per bucket
)

// Collections lists every known collection in a stable order.
var Collections = []Collection{Talkers, Protocols, TimeSeries}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// ErrEmpty is returned by Bounds when a collection holds no records.
var ErrEmpty = errors.New("collection is empty")

// Record is one pre-aggregated bucket. Length is the bucket length tag the
// record was rolled up at; only the key fields of its collection are set.
type Record struct {
	Time          time.Time
	Length        time.Duration
	Bytes         int64
	ClientAddress string
	ServerAddress string
	Application   string
}

// recordJSON is the wire shape of a Record (length in milliseconds).
type recordJSON struct {
	Time          time.Time `json:"time"`
	Length        int64     `json:"length"`
	Bytes         int64     `json:"bytes"`
	ClientAddress string    `json:"client_address,omitempty"`
	ServerAddress string    `json:"server_address,omitempty"`
	Application   string    `json:"application,omitempty"`
}

// MarshalJSON encodes the record with its length in milliseconds.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Time:          r.Time,
		Length:        r.Length.Milliseconds(),
		Bytes:         r.Bytes,
		ClientAddress: r.ClientAddress,
		ServerAddress: r.ServerAddress,
		Application:   r.Application,
	})
}

// UnmarshalJSON decodes a record whose length is in milliseconds.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{
		Time:          raw.Time,
		Length:        time.Duration(raw.Length) * time.Millisecond,
		Bytes:         raw.Bytes,
		ClientAddress: raw.ClientAddress,
		ServerAddress: raw.ServerAddress,
		Application:   raw.Application,
	}
	return nil
}

// Identity returns the fields that make a record unique within a collection.
// Writing a record with the same identity replaces the stored one.
func (r Record) Identity() string {
	return r.ClientAddress + "\x00" + r.ServerAddress + "\x00" + r.Application
}

// Store defines the interface for bucket record backends.
// Implementations: memory (testing), badger (production)
type Store interface {
	// Write stores records, replacing any with the same identity
	Write(ctx context.Context, c Collection, records []Record) error

	// Query opens a cursor over the records matching q
	Query(ctx context.Context, q Query) (Cursor, error)

	// Bounds returns the earliest and latest record times in a collection
	Bounds(ctx context.Context, c Collection) (Span, error)

	// Close cleanly shuts down the store
	Close() error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// Query specifies which records to retrieve.
type Query struct {
	Collection Collection

	// Half-open time range [Start, End)
	Start time.Time
	End   time.Time

	// Exact bucket length tag (0 = any length)
	Length time.Duration

	// Limit number of results (0 = no limit)
	Limit int
}

// Matches reports whether rec falls inside the query's range and length.
func (q Query) Matches(rec Record) bool {
	if rec.Time.Before(q.Start) || !rec.Time.Before(q.End) {
		return false
	}
	return q.Length == 0 || rec.Length == q.Length
}

// Cursor iterates query results in ascending time order within one length.
// Callers may stop early; Close must always be called.
type Cursor interface {
	// Next advances to the next record and reports whether one is available
	Next(ctx context.Context) bool

	// Record returns the current record
	Record() Record

	// Err returns the error that stopped iteration, if any
	Err() error

	Close() error
}

// Span is a closed time interval covered by stored records.
type Span struct {
	Oldest time.Time
	Newest time.Time
}

// Stats provides storage health and usage info
type Stats struct {
	// Records stored per collection
	Records map[Collection]uint64

	// Storage size in bytes
	SizeBytes uint64

	// Oldest record timestamp
	OldestRecord time.Time

	// Newest record timestamp
	NewestRecord time.Time
}

// Drain reads every remaining record from a cursor into a slice and closes it.
func Drain(ctx context.Context, cur Cursor) ([]Record, error) {
	defer cur.Close()

	var out []Record
	for cur.Next(ctx) {
		out = append(out, cur.Record())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SliceCursor is a Cursor over records already in memory.
type SliceCursor struct {
	records []Record
	pos     int
	err     error
}

// NewSliceCursor returns a cursor over records in their given order.
func NewSliceCursor(records []Record) *SliceCursor {
	return &SliceCursor{records: records, pos: -1}
}

// Next advances the cursor, stopping with ctx.Err() if ctx is done.
func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos+1 >= len(c.records) {
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Record() Record { return c.records[c.pos] }

func (c *SliceCursor) Err() error { return c.err }

func (c *SliceCursor) Close() error {
	c.records = nil
	return nil
}

package ingest

import (
	"fmt"
	"time"

	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/storage"
)

// SampleLength is the only bucket length accepted on ingest; coarser
// buckets are produced by the rollup.
const SampleLength = 5 * time.Second

var (
	// ErrTooManyRecords is returned when an ingest request carries too many samples
	ErrTooManyRecords = fmt.Errorf("too many records in request (max %d)", config.IngestMaxRecords)

	// ErrEmptyRequest is returned when an ingest request carries no samples
	ErrEmptyRequest = fmt.Errorf("request contains no records")

	// ErrZeroTime is returned for a sample without a timestamp
	ErrZeroTime = fmt.Errorf("sample time cannot be zero")

	// ErrUnaligned is returned for a sample not on a bucket boundary
	ErrUnaligned = fmt.Errorf("sample time must be aligned to %v", SampleLength)

	// ErrBadLength is returned for a sample tagged with a non-fine bucket length
	ErrBadLength = fmt.Errorf("sample length must be %v", SampleLength)

	// ErrNonPositiveBytes is returned for a sample with no traffic
	ErrNonPositiveBytes = fmt.Errorf("sample bytes must be positive")

	// ErrAddressMissing is returned for a talker without both endpoints
	ErrAddressMissing = fmt.Errorf("client and server addresses are required")

	// ErrAddressTooLong is returned when an address is too long
	ErrAddressTooLong = fmt.Errorf("address too long (max %d chars)", config.IngestMaxAddressLen)

	// ErrApplicationMissing is returned for a protocol sample without a label
	ErrApplicationMissing = fmt.Errorf("application is required")

	// ErrApplicationTooLong is returned when an application label is too long
	ErrApplicationTooLong = fmt.Errorf("application too long (max %d chars)", config.IngestMaxAppLen)
)

// ValidateSample checks one sample for collection c and fills in its length
func ValidateSample(c storage.Collection, rec *storage.Record) error {
	if rec.Time.IsZero() {
		return ErrZeroTime
	}
	if !rec.Time.Truncate(SampleLength).Equal(rec.Time) {
		return fmt.Errorf("%w: %s", ErrUnaligned, rec.Time.Format(time.RFC3339Nano))
	}
	switch rec.Length {
	case 0:
		rec.Length = SampleLength
	case SampleLength:
	default:
		return fmt.Errorf("%w: got %v", ErrBadLength, rec.Length)
	}
	if rec.Bytes <= 0 {
		return ErrNonPositiveBytes
	}

	switch c {
	case storage.Talkers:
		if rec.ClientAddress == "" || rec.ServerAddress == "" {
			return ErrAddressMissing
		}
		if len(rec.ClientAddress) > config.IngestMaxAddressLen || len(rec.ServerAddress) > config.IngestMaxAddressLen {
			return ErrAddressTooLong
		}
		rec.Application = ""
	case storage.Protocols:
		if rec.Application == "" {
			return ErrApplicationMissing
		}
		if len(rec.Application) > config.IngestMaxAppLen {
			return fmt.Errorf("%w: %q", ErrApplicationTooLong, rec.Application)
		}
		rec.ClientAddress, rec.ServerAddress = "", ""
	}
	return nil
}

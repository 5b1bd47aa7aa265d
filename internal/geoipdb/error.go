package geoipdb

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// Ingest error kinds. These are sentinel values so that callers can compare
// with [errors.Is]; message-carrying variants wrap one of them.
const (
	// ErrNotEnoughColumns signals that a CSV record had fewer than the
	// required number of fields.
	ErrNotEnoughColumns errors.Error = "geoipdb: not enough columns"

	// ErrCoordinateParse signals that a CSV record's latitude or longitude
	// field did not parse as a float.
	ErrCoordinateParse errors.Error = "geoipdb: coordinate parse error"

	// ErrIPStrParse signals that a textual IP address field did not parse.
	ErrIPStrParse errors.Error = "geoipdb: ip string parse error"

	// ErrIPNumParse signals that a numeric IP address field did not parse.
	ErrIPNumParse errors.Error = "geoipdb: ip numeric parse error"

	// ErrNoRecords signals that a CSV source produced no detectable
	// records during format detection.
	ErrNoRecords errors.Error = "geoipdb: no records"

	// ErrMaxMindDB signals a failure opening or reading an MMDB file.
	ErrMaxMindDB errors.Error = "geoipdb: maxmind db error"

	// ErrMalformedMaxMindDB signals that an MMDB file's metadata or record
	// shape did not match what ingest expects.
	ErrMalformedMaxMindDB errors.Error = "geoipdb: malformed maxmind db"

	// ErrInvalidFormat signals that automatic format detection could not
	// classify the input as CSV or MMDB.
	ErrInvalidFormat errors.Error = "geoipdb: invalid format"

	// ErrDatabaseMetadataOverflow signals that a database accumulated more
	// than math.MaxUint32-1 unique strings.
	ErrDatabaseMetadataOverflow errors.Error = "geoipdb: database metadata overflow"
)

// columnError annotates one of the sentinel kinds above with the record
// index at which it occurred.
type columnError struct {
	kind   error
	record int
}

// Error implements the error interface for *columnError.
func (err *columnError) Error() (msg string) {
	return fmt.Sprintf("%s: record %d", err.kind, err.record)
}

// Unwrap implements the [errors.Wrapper] interface for *columnError.
func (err *columnError) Unwrap() (unwrapped error) {
	return err.kind
}

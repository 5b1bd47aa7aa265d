package geoipdb

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/netip"
	"strconv"

	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/ipmap/core/internal/locstore"
)

// CSV field indices, matching the ip-location-db "city" CSV format:
// https://github.com/sapics/ip-location-db#city-csv-format
const (
	csvIPRangeStartIdx = 0
	csvIPRangeEndIdx   = 1
	csvCountryCodeIdx  = 2
	csvRegionIdx       = 3
	csvCityIdx         = 5
	csvLatitudeIdx     = 7
	csvLongitudeIdx    = 8

	csvMinColumns = 9
)

// ReadCSV ingests CSV rows from r into db, one CIDR-split range per row.
// family selects how address fields are interpreted; isNum selects numeric
// vs. textual address fields. r is read in full; gzip unwrapping, if
// needed, must already have been applied by the caller (see [Detect]).
func ReadCSV(r io.Reader, family ipaddr.Family, isNum bool, db *SingleDatabase) (err error) {
	return readCSV[*locstore.StringDict](r, family, isNum, db.insert)
}

// ReadCSVCombined is [ReadCSV] for a [CombinedDatabase], ingesting rows of
// a single family into it (call once per family file).
func ReadCSVCombined(r io.Reader, family ipaddr.Family, isNum bool, db *CombinedDatabase) (err error) {
	return readCSV[*locstore.StringDict](r, family, isNum, db.insert)
}

// ReadCSVConcurrent is [ReadCSV] for a [ConcurrentBuilder]: it feeds the
// shared [locstore.ConcurrentLocationStore] directly, so it is safe to call
// from a goroutine ingesting the other address family in parallel.
func ReadCSVConcurrent(r io.Reader, family ipaddr.Family, isNum bool, b *ConcurrentBuilder) (err error) {
	return readCSV[*locstore.ConcurrentStringDict](r, family, isNum, b.insert)
}

// stringDict is the subset of [locstore.StringDict] and
// [locstore.ConcurrentStringDict] that row ingest needs. Parameterizing
// [readCSV]/[readMMDB] over it lets the same parsing loop feed either the
// single-threaded or the lock-protected dictionary without duplication.
type stringDict interface {
	Insert(s string) (key uint32)
}

// insertFunc records one (prefix, coordinate, location-builder) triple
// parsed from a row. D is whichever string-dict type the destination
// database's location store expects.
type insertFunc[D stringDict] func(prefix netip.Prefix, coord geocoord.Coordinate, build func(D) locstore.LocationIndices)

func readCSV[D stringDict](
	r io.Reader,
	family ipaddr.Family,
	isNum bool,
	insert insertFunc[D],
) (err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	recordIdx := 0

	for {
		record, rerr := cr.Read()
		if rerr == io.EOF {
			return nil
		} else if rerr != nil {
			return fmt.Errorf("geoipdb: reading csv record %d: %w", recordIdx, rerr)
		}

		if len(record) < csvMinColumns {
			return &columnError{kind: ErrNotEnoughColumns, record: recordIdx}
		}

		lo, err := ipaddr.ParseField(family, []byte(record[csvIPRangeStartIdx]), isNum)
		if err != nil {
			return &columnError{kind: parseErrKind(isNum), record: recordIdx}
		}

		hi, err := ipaddr.ParseField(family, []byte(record[csvIPRangeEndIdx]), isNum)
		if err != nil {
			return &columnError{kind: parseErrKind(isNum), record: recordIdx}
		}

		lat, lerr := strconv.ParseFloat(record[csvLatitudeIdx], 32)
		lng, nerr := strconv.ParseFloat(record[csvLongitudeIdx], 32)
		if lerr != nil || nerr != nil {
			return &columnError{kind: ErrCoordinateParse, record: recordIdx}
		}

		coord := geocoord.Coordinate{Lat: float32(lat), Lng: float32(lng)}

		city := record[csvCityIdx]
		region := record[csvRegionIdx]
		country := geocoord.NewCountryCode([]byte(record[csvCountryCodeIdx]))

		build := func(d D) locstore.LocationIndices {
			return locstore.LocationIndices{
				City:        d.Insert(city),
				Region:      d.Insert(region),
				CountryCode: country,
			}
		}

		for _, prefix := range ipaddr.RangeSubnets(lo, hi) {
			insert(prefix, coord, build)
		}

		recordIdx++
	}
}

// parseErrKind selects the taxonomy kind matching isNum.
func parseErrKind(isNum bool) (kind error) {
	if isNum {
		return ErrIPNumParse
	}

	return ErrIPStrParse
}

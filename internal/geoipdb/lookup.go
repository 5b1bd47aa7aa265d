// Package geoipdb ingests IP-geolocation databases from CSV and MMDB
// sources into a [triebitmap.Trie]-backed lookup structure, deduplicating
// city/region/country metadata through a [locstore.LocationStore].
package geoipdb

import "github.com/ipmap/core/internal/geocoord"

// LookupInfo is the result of resolving an IP address: its coordinate and
// the fully resolved location metadata for that coordinate.
type LookupInfo struct {
	Coordinate geocoord.Coordinate
	City       string
	Region     string
	HasCity    bool
	HasRegion  bool
	Country    string
}

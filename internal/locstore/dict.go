// Package locstore deduplicates the city/region strings and coordinates
// that back a geolocation database, mapping each distinct coordinate to a
// compact [LocationIndices] value. See [LocationStore] for the
// single-threaded form and [ConcurrentLocationStore] for the variant safe
// for concurrent CSV ingest.
package locstore

import "strings"

// StringDict is an insertion-ordered set of lowercase strings, keyed by
// 1-based indices so that 0 can encode "absent." The zero value is not
// usable; use [NewStringDict].
type StringDict struct {
	// byIndex holds the stored strings, already lowercased, with byIndex[0]
	// unused as a placeholder so that index i lives at byIndex[i].
	byIndex []string
	byValue map[string]uint32
}

// NewStringDict returns an empty dictionary.
func NewStringDict() (d *StringDict) {
	return &StringDict{
		byIndex: []string{""},
		byValue: map[string]uint32{},
	}
}

// Insert lowercases s and inserts it if not already present, returning its
// 1-based key. An empty s returns 0 ("absent") without inserting anything.
func (d *StringDict) Insert(s string) (key uint32) {
	if s == "" {
		return 0
	}

	lower := strings.ToLower(s)
	if key, ok := d.byValue[lower]; ok {
		return key
	}

	key = uint32(len(d.byIndex))
	d.byIndex = append(d.byIndex, lower)
	d.byValue[lower] = key

	return key
}

// Get returns the string stored at key, title-cased for display. key 0
// ("absent") returns ok == false.
func (d *StringDict) Get(key uint32) (s string, ok bool) {
	if key == 0 || int(key) >= len(d.byIndex) {
		return "", false
	}

	return strings.Title(d.byIndex[key]), true //nolint:staticcheck // matches source display convention, not Unicode-aware casing
}

// Len returns the number of distinct non-empty strings stored.
func (d *StringDict) Len() (n int) {
	return len(d.byIndex) - 1
}

package locstore

import "github.com/ipmap/core/internal/geocoord"

// LocationKey indexes a [LocationIndices] within a [LocationStore].
type LocationKey uint32

// LocationStore deduplicates coordinates against an insertion-ordered set
// of [LocationIndices], backed by a shared [StringDict]. The zero value is
// not usable; use [NewLocationStore].
type LocationStore struct {
	strings     *StringDict
	coordinates map[uint64]LocationKey
	locations   []LocationIndices
}

// NewLocationStore returns an empty store.
func NewLocationStore() (s *LocationStore) {
	return &LocationStore{
		strings:     NewStringDict(),
		coordinates: map[uint64]LocationKey{},
	}
}

// Insert records coord if it is not already present, invoking build to
// produce its [LocationIndices]. build may insert strings into the store's
// dictionary; it is not called at all if coord was already inserted, which
// is the common case on repeat coordinates during ingest. It returns the
// coordinate's key and whether this call performed the insertion.
func (s *LocationStore) Insert(
	coord geocoord.Coordinate,
	build func(d *StringDict) LocationIndices,
) (key LocationKey, inserted bool) {
	k := coord.Key()
	if existing, ok := s.coordinates[k]; ok {
		return existing, false
	}

	li := build(s.strings)

	key = LocationKey(len(s.locations))
	s.locations = append(s.locations, li)
	s.coordinates[k] = key

	return key, true
}

// Get returns the resolved [Location] for coord, if one has been inserted.
func (s *LocationStore) Get(coord geocoord.Coordinate) (loc Location, ok bool) {
	key, ok := s.coordinates[coord.Key()]
	if !ok {
		return loc, false
	}

	return s.locations[key].Resolve(s.strings), true
}

// GetByKey returns the resolved [Location] stored at key.
func (s *LocationStore) GetByKey(key LocationKey) (loc Location, ok bool) {
	if int(key) >= len(s.locations) {
		return loc, false
	}

	return s.locations[key].Resolve(s.strings), true
}

// Len returns the number of distinct coordinates stored.
func (s *LocationStore) Len() (n int) {
	return len(s.locations)
}

package locstore

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ipmap/core/internal/geocoord"
)

// Serialization is a plain, stable binary encoding of a [LocationStore],
// used by the archive format (internal/archive) to persist the city/region
// dictionary and coordinate-to-location map alongside a [triebitmap]
// archive. Unlike the trie's archived form, this encoding is decoded
// eagerly into ordinary Go maps and slices on [DecodeLocationStore]: the
// spec's zero-copy requirement binds the trie specifically, not the whole
// on-disk archive.
const (
	serializeMagic   uint32 = 0x6c6f6373 // "locs"
	serializeVersion uint32 = 1
)

// Encode writes s to w in the stable binary layout read back by
// [DecodeLocationStore].
func (s *LocationStore) Encode(w io.Writer) (err error) {
	bw := &binWriter{w: w}

	bw.uint32(serializeMagic)
	bw.uint32(serializeVersion)

	bw.uint32(uint32(len(s.strings.byIndex)))
	for _, str := range s.strings.byIndex {
		bw.string(str)
	}

	bw.uint32(uint32(len(s.coordinates)))
	for k, v := range s.coordinates {
		bw.uint64(k)
		bw.uint32(uint32(v))
	}

	bw.uint32(uint32(len(s.locations)))
	for _, li := range s.locations {
		bw.uint32(li.City)
		bw.uint32(li.Region)
		bw.uint16(uint16(li.CountryCode))
	}

	return bw.err
}

// DecodeLocationStore parses data in the layout written by
// [LocationStore.Encode].
func DecodeLocationStore(data []byte) (s *LocationStore, err error) {
	br := &binReader{b: data}

	if magic := br.uint32(); magic != serializeMagic {
		return nil, fmt.Errorf("locstore: bad magic %#x", magic)
	}

	if version := br.uint32(); version != serializeVersion {
		return nil, fmt.Errorf("locstore: unsupported version %d", version)
	}

	stringCount := br.uint32()
	byIndex := make([]string, stringCount)
	byValue := make(map[string]uint32, stringCount)

	for i := range byIndex {
		byIndex[i] = br.string()
		if i > 0 {
			byValue[byIndex[i]] = uint32(i)
		}
	}

	coordCount := br.uint32()
	coordinates := make(map[uint64]LocationKey, coordCount)

	for range coordCount {
		k := br.uint64()
		v := br.uint32()
		coordinates[k] = LocationKey(v)
	}

	locCount := br.uint32()
	locations := make([]LocationIndices, locCount)

	for i := range locations {
		city := br.uint32()
		region := br.uint32()
		country := br.uint16()

		locations[i] = LocationIndices{
			City:        city,
			Region:      region,
			CountryCode: geocoord.CountryCode(country),
		}
	}

	if br.err != nil {
		return nil, fmt.Errorf("locstore: decoding: %w", br.err)
	}

	return &LocationStore{
		strings: &StringDict{
			byIndex: byIndex,
			byValue: byValue,
		},
		coordinates: coordinates,
		locations:   locations,
	}, nil
}

// binWriter accumulates write errors so call sites can ignore them inline
// and check once at the end, matching [encoding/binary]'s own style of
// leaving error handling to the caller without cluttering every write.
type binWriter struct {
	w   io.Writer
	err error
}

func (bw *binWriter) uint16(v uint16) {
	if bw.err != nil {
		return
	}

	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, bw.err = bw.w.Write(buf[:])
}

func (bw *binWriter) uint32(v uint32) {
	if bw.err != nil {
		return
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, bw.err = bw.w.Write(buf[:])
}

func (bw *binWriter) uint64(v uint64) {
	if bw.err != nil {
		return
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, bw.err = bw.w.Write(buf[:])
}

func (bw *binWriter) string(s string) {
	bw.uint32(uint32(len(s)))

	if bw.err != nil {
		return
	}

	_, bw.err = io.WriteString(bw.w, s)
}

// binReader reads sequentially out of an in-memory buffer, recording the
// first error encountered and turning every subsequent read into a no-op.
type binReader struct {
	b   []byte
	err error
}

func (br *binReader) take(n int) (p []byte) {
	if br.err != nil {
		return nil
	}

	if len(br.b) < n {
		br.err = fmt.Errorf("locstore: unexpected end of data")

		return nil
	}

	p, br.b = br.b[:n], br.b[n:]

	return p
}

func (br *binReader) uint16() (v uint16) {
	p := br.take(2)
	if p == nil {
		return 0
	}

	return binary.LittleEndian.Uint16(p)
}

func (br *binReader) uint32() (v uint32) {
	p := br.take(4)
	if p == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(p)
}

func (br *binReader) uint64() (v uint64) {
	p := br.take(8)
	if p == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(p)
}

func (br *binReader) string() (s string) {
	n := br.uint32()
	p := br.take(int(n))
	if p == nil {
		return ""
	}

	return string(p)
}

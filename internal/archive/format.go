package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ipmap/core/internal/geoipdb"
	"github.com/ipmap/core/internal/ipaddr"
	"github.com/ipmap/core/internal/locstore"
	"github.com/ipmap/core/internal/triebitmap"
)

// On-disk layout of a DiskArchive's data region (everything but the
// trailing 8-byte checksum appended by [FileResource] create):
//
//	magic        uint32
//	version      uint32
//	sourceKind   uint8
//	sourcePathLen uint32
//	sourcePath   [sourcePathLen]byte
//	dynamicKind  uint8
//	# dynamicKind == kindGeneric:
//	family       uint8 (4 or 6)
//	trieLen      uint64
//	trie         [trieLen]byte   (triebitmap.WriteArchive output)
//	locLen       uint64
//	locations    [locLen]byte    (locstore.LocationStore.Encode output)
//	# dynamicKind == kindCombined:
//	ipv4Len      uint64
//	ipv4         [ipv4Len]byte
//	ipv6Len      uint64
//	ipv6         [ipv6Len]byte
//	locLen       uint64
//	locations    [locLen]byte
const (
	diskArchiveMagic   uint32 = 0x61647069 // "ipda" (little-endian)
	diskArchiveVersion uint32 = 1
)

type dynamicKind uint8

const (
	kindGeneric dynamicKind = iota
	kindCombined
)

// encodeGeneric serializes db's trie and location store into a
// single-family DiskArchive data region.
func encodeGeneric(source Source, db *geoipdb.SingleDatabase) (data []byte, err error) {
	var buf bytes.Buffer

	writeHeader(&buf, source, kindGeneric)
	buf.WriteByte(byte(db.Family()))

	if err = writeSection(&buf, func(w *bytes.Buffer) error {
		return triebitmap.WriteArchive(w, db.Trie())
	}); err != nil {
		return nil, fmt.Errorf("archive: writing trie: %w", err)
	}

	if err = writeSection(&buf, func(w *bytes.Buffer) error {
		return db.Locations().Encode(w)
	}); err != nil {
		return nil, fmt.Errorf("archive: writing locations: %w", err)
	}

	return buf.Bytes(), nil
}

// encodeCombined is [encodeGeneric] for a combined database.
func encodeCombined(source Source, db *geoipdb.CombinedDatabase) (data []byte, err error) {
	var buf bytes.Buffer

	writeHeader(&buf, source, kindCombined)

	if err = writeSection(&buf, func(w *bytes.Buffer) error {
		return triebitmap.WriteArchive(w, db.IPv4Trie())
	}); err != nil {
		return nil, fmt.Errorf("archive: writing ipv4 trie: %w", err)
	}

	if err = writeSection(&buf, func(w *bytes.Buffer) error {
		return triebitmap.WriteArchive(w, db.IPv6Trie())
	}); err != nil {
		return nil, fmt.Errorf("archive: writing ipv6 trie: %w", err)
	}

	if err = writeSection(&buf, func(w *bytes.Buffer) error {
		return db.Locations().Encode(w)
	}); err != nil {
		return nil, fmt.Errorf("archive: writing locations: %w", err)
	}

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, source Source, kind dynamicKind) {
	putUint32(buf, diskArchiveMagic)
	putUint32(buf, diskArchiveVersion)
	buf.WriteByte(byte(source.Kind))
	putUint32(buf, uint32(len(source.Path)))
	buf.WriteString(source.Path)
	buf.WriteByte(byte(kind))
}

// writeSection writes a uint64 length prefix followed by the bytes encode
// produces, so the reader can carve out the exact sub-slice for each
// section (a trie section's sub-slice stays a view into the caller's
// backing array, preserving zero-copy access once it's read back from an
// mmap; see [decode]).
func writeSection(buf *bytes.Buffer, encode func(w *bytes.Buffer) error) (err error) {
	lenOff := buf.Len()
	putUint64(buf, 0)

	start := buf.Len()
	if err = encode(buf); err != nil {
		return err
	}

	n := uint64(buf.Len() - start)
	binary.LittleEndian.PutUint64(buf.Bytes()[lenOff:lenOff+8], n)

	return nil
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// cursor reads sequentially out of a byte slice, recording the first
// out-of-bounds or malformed read.
type cursor struct {
	b   []byte
	err error
}

func (c *cursor) take(n int) (p []byte) {
	if c.err != nil {
		return nil
	}

	if n < 0 || len(c.b) < n {
		c.err = fmt.Errorf("archive: unexpected end of data")

		return nil
	}

	p, c.b = c.b[:n], c.b[n:]

	return p
}

func (c *cursor) u8() (v uint8) {
	p := c.take(1)
	if p == nil {
		return 0
	}

	return p[0]
}

func (c *cursor) u32() (v uint32) {
	p := c.take(4)
	if p == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(p)
}

func (c *cursor) u64() (v uint64) {
	p := c.take(8)
	if p == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(p)
}

func (c *cursor) section() (p []byte) {
	n := c.u64()

	return c.take(int(n))
}

// decodedHeader is the common prefix every DiskArchive data region shares.
type decodedHeader struct {
	source Source
	kind   dynamicKind
	rest   []byte
}

func decodeHeader(data []byte) (h decodedHeader, err error) {
	c := &cursor{b: data}

	if magic := c.u32(); magic != diskArchiveMagic {
		return h, fmt.Errorf("archive: bad magic %#x", magic)
	}

	if version := c.u32(); version != diskArchiveVersion {
		return h, fmt.Errorf("archive: unsupported version %d", version)
	}

	sourceKind := SourceKind(c.u8())
	pathLen := c.u32()
	path := string(c.take(int(pathLen)))
	kind := dynamicKind(c.u8())

	if c.err != nil {
		return h, fmt.Errorf("archive: decoding header: %w", c.err)
	}

	return decodedHeader{
		source: Source{Kind: sourceKind, Path: path},
		kind:   kind,
		rest:   c.b,
	}, nil
}

// decode opens data (a view into a FileResource's mmap) and returns a
// queryable [Database]. The returned Database borrows data and any
// sub-slices of it for its trie section(s); it must not outlive data.
func decode(data []byte) (source Source, db Database, err error) {
	h, err := decodeHeader(data)
	if err != nil {
		return source, nil, err
	}

	c := &cursor{b: h.rest}

	switch h.kind {
	case kindGeneric:
		family := ipaddr.Family(c.u8())
		trieBytes := c.section()
		locBytes := c.section()

		if c.err != nil {
			return source, nil, fmt.Errorf("archive: decoding generic body: %w", c.err)
		}

		trie, terr := triebitmap.OpenArchive(trieBytes)
		if terr != nil {
			return source, nil, fmt.Errorf("archive: opening trie: %w", terr)
		}

		locs, lerr := locstore.DecodeLocationStore(locBytes)
		if lerr != nil {
			return source, nil, fmt.Errorf("archive: decoding locations: %w", lerr)
		}

		return h.source, &GenericView{
			family:    family,
			trie:      trie,
			locations: locs,
			locCache:  newArchiveLocationCache(),
		}, nil

	case kindCombined:
		ipv4Bytes := c.section()
		ipv6Bytes := c.section()
		locBytes := c.section()

		if c.err != nil {
			return source, nil, fmt.Errorf("archive: decoding combined body: %w", c.err)
		}

		ipv4, terr := triebitmap.OpenArchive(ipv4Bytes)
		if terr != nil {
			return source, nil, fmt.Errorf("archive: opening ipv4 trie: %w", terr)
		}

		ipv6, terr := triebitmap.OpenArchive(ipv6Bytes)
		if terr != nil {
			return source, nil, fmt.Errorf("archive: opening ipv6 trie: %w", terr)
		}

		locs, lerr := locstore.DecodeLocationStore(locBytes)
		if lerr != nil {
			return source, nil, fmt.Errorf("archive: decoding locations: %w", lerr)
		}

		return h.source, &CombinedView{
			ipv4:      ipv4,
			ipv6:      ipv6,
			locations: locs,
			locCache:  newArchiveLocationCache(),
		}, nil

	default:
		return source, nil, fmt.Errorf("archive: unknown dynamic kind %d", h.kind)
	}
}

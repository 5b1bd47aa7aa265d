package triebitmap

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"unsafe"

	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/ipaddr"
	"golang.org/x/sys/unix"
)

// archiveMagic identifies an encoded trie blob. archiveVersion lets a future
// layout change fail loudly instead of misreading old archives.
const (
	archiveMagic   uint64 = 0x65697274706d6902 // "\x02imptrie" (little-endian)
	archiveVersion uint32 = 1

	archiveHeaderLen = 8 + 4 + 1 + 3 + 4 + 4 + 4 + 8 + 8 + 8
)

// WriteArchive encodes t into the zero-copy, mmap-friendly layout read by
// [OpenArchive]. The layout is a fixed header followed by the raw children
// arena and the raw results arena, each a flat array of fixed-size structs
// that can be reinterpreted in place without a deserialization pass.
func WriteArchive(w io.Writer, t *Trie[geocoord.PackedCoordinate]) (err error) {
	header := make([]byte, archiveHeaderLen)

	binary.LittleEndian.PutUint64(header[0:8], archiveMagic)
	binary.LittleEndian.PutUint32(header[8:12], archiveVersion)
	header[12] = byte(t.family)
	binary.LittleEndian.PutUint32(header[16:20], t.root.bitmap)
	binary.LittleEndian.PutUint32(header[20:24], t.root.childOff)
	binary.LittleEndian.PutUint32(header[24:28], t.root.resultOff)
	binary.LittleEndian.PutUint64(header[28:36], uint64(t.size))
	binary.LittleEndian.PutUint64(header[36:44], uint64(len(t.children.arena)))
	binary.LittleEndian.PutUint64(header[44:52], uint64(len(t.results.arena)))

	if _, err = w.Write(header); err != nil {
		return fmt.Errorf("writing archive header: %w", err)
	}

	if err = writeNodes(w, t.children.arena); err != nil {
		return fmt.Errorf("writing children arena: %w", err)
	}

	if err = writeCoords(w, t.results.arena); err != nil {
		return fmt.Errorf("writing results arena: %w", err)
	}

	return nil
}

func writeNodes(w io.Writer, nodes []node) (err error) {
	buf := make([]byte, 12)
	for _, n := range nodes {
		binary.LittleEndian.PutUint32(buf[0:4], n.bitmap)
		binary.LittleEndian.PutUint32(buf[4:8], n.childOff)
		binary.LittleEndian.PutUint32(buf[8:12], n.resultOff)

		if _, err = w.Write(buf); err != nil {
			return err
		}
	}

	return nil
}

func writeCoords(w io.Writer, coords []geocoord.PackedCoordinate) (err error) {
	buf := make([]byte, 4)
	for _, c := range coords {
		binary.LittleEndian.PutUint16(buf[0:2], c.LatU)
		binary.LittleEndian.PutUint16(buf[2:4], c.LngU)

		if _, err = w.Write(buf); err != nil {
			return err
		}
	}

	return nil
}

// ArchivedTrie is the read-only, memory-mapped form of a
// Trie[geocoord.PackedCoordinate]. It supports only [ArchivedTrie.Len],
// [ArchivedTrie.ExactMatch], and [ArchivedTrie.LongestMatch]; mutation
// requires loading the archive back into a mutable [Trie].
type ArchivedTrie struct {
	family ipaddr.Family
	root   node
	size   int

	data     []byte
	mapped   bool
	children []node
	results  []geocoord.PackedCoordinate
}

// OpenArchive memory-maps data (the bytes of a file previously written by
// [WriteArchive]) and returns a read-only trie view over it. The returned
// ArchivedTrie borrows data until [ArchivedTrie.Close] is called; data must
// not be modified or unmapped out from under it.
func OpenArchive(data []byte) (at *ArchivedTrie, err error) {
	if len(data) < archiveHeaderLen {
		return nil, fmt.Errorf("archive: truncated header (%d bytes)", len(data))
	}

	if magic := binary.LittleEndian.Uint64(data[0:8]); magic != archiveMagic {
		return nil, fmt.Errorf("archive: bad magic %#x", magic)
	}

	if version := binary.LittleEndian.Uint32(data[8:12]); version != archiveVersion {
		return nil, fmt.Errorf("archive: unsupported version %d", version)
	}

	at = &ArchivedTrie{
		family: ipaddr.Family(data[12]),
		root: node{
			bitmap:    binary.LittleEndian.Uint32(data[16:20]),
			childOff:  binary.LittleEndian.Uint32(data[20:24]),
			resultOff: binary.LittleEndian.Uint32(data[24:28]),
		},
		size: int(binary.LittleEndian.Uint64(data[28:36])),
		data: data,
	}

	childrenLen := binary.LittleEndian.Uint64(data[36:44])
	resultsLen := binary.LittleEndian.Uint64(data[44:52])

	off := archiveHeaderLen
	childrenBytes := int(childrenLen) * 12
	resultsBytes := int(resultsLen) * 4

	if off+childrenBytes+resultsBytes > len(data) {
		return nil, fmt.Errorf("archive: body shorter than header declares")
	}

	if childrenLen > 0 {
		at.children = unsafe.Slice((*node)(unsafe.Pointer(&data[off])), childrenLen)
	}
	off += childrenBytes

	if resultsLen > 0 {
		at.results = unsafe.Slice((*geocoord.PackedCoordinate)(unsafe.Pointer(&data[off])), resultsLen)
	}

	return at, nil
}

// OpenArchiveFile mmaps the first size bytes of the open file fd and returns
// an ArchivedTrie backed by them. Call [ArchivedTrie.Close] to unmap.
func OpenArchiveFile(fd int, size int) (at *ArchivedTrie, err error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	at, err = OpenArchive(data)
	if err != nil {
		_ = unix.Munmap(data)

		return nil, err
	}

	at.mapped = true

	return at, nil
}

// Close unmaps the archive's backing memory, if it was opened via
// [OpenArchiveFile]. It is a no-op for archives built over a plain byte
// slice via [OpenArchive].
func (at *ArchivedTrie) Close() (err error) {
	if !at.mapped {
		return nil
	}

	return unix.Munmap(at.data)
}

// Len returns the number of (prefix, value) entries stored.
func (at *ArchivedTrie) Len() (n int) { return at.size }

func (at *ArchivedTrie) nodeAt(ref nodeRef) *node {
	if ref.isRoot {
		return &at.root
	}

	return &at.children[ref.offset]
}

// ExactMatch returns the value stored at exactly (addr, prefixLen), if any.
func (at *ArchivedTrie) ExactMatch(addr netip.Addr, prefixLen int) (value geocoord.PackedCoordinate, ok bool) {
	nibbles := ipaddr.Nibbles(addr)
	nibbleCount := prefixLen / 4
	remainder := prefixLen % 4

	cur := rootRef()

	for i := 0; i < nibbleCount; i++ {
		n := at.nodeAt(cur)
		nb := nibbles[i]

		if !n.hasChild(nb) {
			return value, false
		}

		pos := n.childOffset(nb)
		cur = nodeRef{offset: n.childOff + uint32(pos)}
	}

	var nextNibble byte
	if nibbleCount < len(nibbles) {
		nextNibble = nibbles[nibbleCount]
	}

	n := at.nodeAt(cur)
	idx := internalIndex(nextNibble, remainder)

	if !n.hasInternal(idx) {
		return value, false
	}

	pos := n.internalOffset(idx)

	return at.results[n.resultOff+uint32(pos)], true
}

// LongestMatch returns the most specific stored prefix that contains addr.
func (at *ArchivedTrie) LongestMatch(addr netip.Addr) (matched netip.Addr, matchedLen int, value geocoord.PackedCoordinate, ok bool) {
	nibbles := ipaddr.Nibbles(addr)

	cur := rootRef()
	depth := 0

	for {
		n := at.nodeAt(cur)

		var nextNibble byte
		if depth < len(nibbles) {
			nextNibble = nibbles[depth]
		}

		for length := 3; length >= 0; length-- {
			idx := internalIndex(nextNibble, length)
			if n.hasInternal(idx) {
				pos := n.internalOffset(idx)
				value = at.results[n.resultOff+uint32(pos)]
				matchedLen = depth*4 + length
				matched = ipaddr.Mask(addr, matchedLen)
				ok = true

				break
			}
		}

		if depth >= len(nibbles) {
			break
		}

		nb := nibbles[depth]
		if !n.hasChild(nb) {
			break
		}

		pos := n.childOffset(nb)
		cur = nodeRef{offset: n.childOff + uint32(pos)}
		depth++
	}

	return matched, matchedLen, value, ok
}

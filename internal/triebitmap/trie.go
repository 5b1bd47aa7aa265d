// Package triebitmap implements a stride-4 tree-bitmap longest-prefix-match
// trie, generic over a payload type V. It is the core lookup structure
// backing [github.com/ipmap/core/internal/geoipdb]'s per-family databases.
//
// Each node's results and children live in two arena-backed allocators
// ([allocator]) whose blocks are rounded up to one of a handful of size
// classes, so a node's storage grows or shrinks by single elements without
// per-insert arena churn. See node.go for the bitmap layout.
package triebitmap

import (
	"net/netip"

	"github.com/ipmap/core/internal/ipaddr"
)

// Trie is a longest-prefix-match trie over addresses of a single family.
// The zero value is not usable; use [New].
type Trie[V any] struct {
	family   ipaddr.Family
	root     node
	children *allocator[node]
	results  *allocator[V]
	size     int
}

// New returns an empty trie for addresses of family f.
func New[V any](f ipaddr.Family) (t *Trie[V]) {
	return &Trie[V]{
		family:   f,
		children: newAllocator[node](),
		results:  newAllocator[V](),
	}
}

// Len returns the number of distinct (prefix, length) entries stored.
func (t *Trie[V]) Len() (n int) {
	return t.size
}

// nodeRef identifies either the root node or a node living in the children
// arena. Pointers into the children arena are never held across a call that
// might grow the arena (which would invalidate them); callers re-resolve a
// nodeRef to a *node immediately before each read or write.
type nodeRef struct {
	offset uint32
	isRoot bool
}

func rootRef() nodeRef { return nodeRef{isRoot: true} }

func (t *Trie[V]) nodeAt(ref nodeRef) *node {
	if ref.isRoot {
		return &t.root
	}

	return &t.children.arena[ref.offset]
}

// descend walks createMissing down to the node that owns the internal
// result slot for (addr, prefixLen), allocating intermediate child nodes as
// needed when createMissing is true. It returns that node's ref, the
// internal bitmap index within it, and whether the full path already
// existed (relevant when createMissing is false).
func (t *Trie[V]) descend(addr netip.Addr, prefixLen int, createMissing bool) (ref nodeRef, idx int, ok bool) {
	nibbles := ipaddr.Nibbles(addr)
	nibbleCount := prefixLen / 4
	remainder := prefixLen % 4

	cur := rootRef()

	for i := 0; i < nibbleCount; i++ {
		nb := nibbles[i]
		n := t.nodeAt(cur)

		if n.hasChild(nb) {
			pos := n.childOffset(nb)
			cur = nodeRef{offset: n.childOff + uint32(pos)}

			continue
		}

		if !createMissing {
			return nodeRef{}, 0, false
		}

		cur = t.insertChildSlot(cur, nb)
	}

	var nextNibble byte
	if nibbleCount < len(nibbles) {
		nextNibble = nibbles[nibbleCount]
	}

	idx = internalIndex(nextNibble, remainder)

	return cur, idx, true
}

// insertChildSlot allocates a new, empty child node for nibble nb under the
// node at parent, inserting it at its sorted position, and returns a ref to
// the new child.
func (t *Trie[V]) insertChildSlot(parent nodeRef, nb byte) (child nodeRef) {
	n := t.nodeAt(parent)
	oldCount := n.childCount()
	oldOff := n.childOff
	pos := n.childOffset(nb)

	newOff := t.children.resize(oldOff, oldCount, oldCount+1)

	// Re-resolve n: resize may have grown the shared arena, invalidating any
	// pointer taken before the call.
	n = t.nodeAt(parent)

	block := t.children.slice(newOff, oldCount+1)
	copy(block[pos+1:], block[pos:oldCount])
	block[pos] = node{}

	n.childOff = newOff
	n.setChild(nb)

	return nodeRef{offset: newOff + uint32(pos)}
}

// Insert stores value at (addr masked to prefixLen, prefixLen), returning
// the previous value if one was present.
func (t *Trie[V]) Insert(addr netip.Addr, prefixLen int, value V) (old V, hadOld bool) {
	ref, idx, _ := t.descend(addr, prefixLen, true)
	n := t.nodeAt(ref)

	pos := n.internalOffset(idx)

	if n.hasInternal(idx) {
		block := t.results.slice(n.resultOff, n.internalCount())
		old, block[pos] = block[pos], value

		return old, true
	}

	oldCount := n.internalCount()
	oldOff := n.resultOff

	newOff := t.results.resize(oldOff, oldCount, oldCount+1)
	n = t.nodeAt(ref)

	block := t.results.slice(newOff, oldCount+1)
	copy(block[pos+1:], block[pos:oldCount])
	block[pos] = value

	n.resultOff = newOff
	n.setInternal(idx)

	t.size++

	var zero V

	return zero, false
}

// Remove deletes the entry at (addr masked to prefixLen, prefixLen),
// returning the removed value if one was present. It does not free
// now-empty child nodes (they remain as dead ends with zero children and
// zero results); this matches most tree-bitmap implementations, which
// favor insert/lookup speed over remove-triggered compaction.
func (t *Trie[V]) Remove(addr netip.Addr, prefixLen int) (old V, hadOld bool) {
	ref, idx, ok := t.descend(addr, prefixLen, false)
	if !ok {
		var zero V

		return zero, false
	}

	n := t.nodeAt(ref)
	if !n.hasInternal(idx) {
		var zero V

		return zero, false
	}

	oldCount := n.internalCount()
	pos := n.internalOffset(idx)

	block := t.results.slice(n.resultOff, oldCount)
	old = block[pos]
	copy(block[pos:oldCount-1], block[pos+1:oldCount])

	newOff := t.results.resize(n.resultOff, oldCount, oldCount-1)
	n = t.nodeAt(ref)
	n.resultOff = newOff
	n.clearInternal(idx)

	t.size--

	return old, true
}

// ExactMatch returns the value stored at exactly (addr, prefixLen), if any.
func (t *Trie[V]) ExactMatch(addr netip.Addr, prefixLen int) (value V, ok bool) {
	ref, idx, found := t.descend(addr, prefixLen, false)
	if !found {
		return value, false
	}

	n := t.nodeAt(ref)
	if !n.hasInternal(idx) {
		return value, false
	}

	pos := n.internalOffset(idx)

	return t.results.slice(n.resultOff, n.internalCount())[pos], true
}

// LongestMatch returns the most specific stored prefix that contains addr,
// along with its length and value.
func (t *Trie[V]) LongestMatch(addr netip.Addr) (matched netip.Addr, matchedLen int, value V, ok bool) {
	nibbles := ipaddr.Nibbles(addr)

	cur := rootRef()
	depth := 0

	for {
		n := t.nodeAt(cur)

		// Check internal slots for lengths 3..0 (most specific first)
		// within this node's nibble.
		var nextNibble byte
		if depth < len(nibbles) {
			nextNibble = nibbles[depth]
		}

		for length := 3; length >= 0; length-- {
			idx := internalIndex(nextNibble, length)
			if n.hasInternal(idx) {
				pos := n.internalOffset(idx)
				value = t.results.slice(n.resultOff, n.internalCount())[pos]
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

// Match is one entry yielded by [Trie.Matches].
type Match[V any] struct {
	Prefix netip.Prefix
	Value  V
}

// Matches returns every stored prefix matching addr, ordered from least to
// most specific.
func (t *Trie[V]) Matches(addr netip.Addr) (matches []Match[V]) {
	nibbles := ipaddr.Nibbles(addr)

	cur := rootRef()
	depth := 0

	for {
		n := t.nodeAt(cur)

		var nextNibble byte
		if depth < len(nibbles) {
			nextNibble = nibbles[depth]
		}

		for length := 0; length <= 3; length++ {
			idx := internalIndex(nextNibble, length)
			if n.hasInternal(idx) {
				pos := n.internalOffset(idx)
				value := t.results.slice(n.resultOff, n.internalCount())[pos]
				matchedLen := depth*4 + length

				matches = append(matches, Match[V]{
					Prefix: netip.PrefixFrom(ipaddr.Mask(addr, matchedLen), matchedLen),
					Value:  value,
				})
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

	return matches
}

// All returns an iterator over every stored (prefix, value) pair, in
// unspecified but deterministic tree order. Use with range-over-func:
//
//	for prefix, value := range t.All() {
//		...
//	}
func (t *Trie[V]) All() func(yield func(netip.Prefix, V) bool) {
	return func(yield func(netip.Prefix, V) bool) {
		t.walk(rootRef(), nil, yield)
	}
}

func (t *Trie[V]) walk(ref nodeRef, nibblesSoFar []byte, yield func(netip.Prefix, V) bool) (cont bool) {
	n := t.nodeAt(ref)

	depth := len(nibblesSoFar)

	results := t.results.slice(n.resultOff, n.internalCount())
	resultIdx := 0

	for length := 0; length <= 3; length++ {
		for top := 0; top < (1 << uint(length)); top++ {
			nb := byte(top << (4 - length))
			idx := internalIndex(nb, length)
			if !n.hasInternal(idx) {
				continue
			}

			prefixLen := depth*4 + length
			addrNibbles := append(append([]byte(nil), nibblesSoFar...), nb)
			addr := ipaddr.FromNibbles(t.family, addrNibbles)

			if !yield(netip.PrefixFrom(addr, prefixLen), results[resultIdx]) {
				return false
			}
			resultIdx++
		}
	}

	for nb := 0; nb < 16; nb++ {
		if !n.hasChild(byte(nb)) {
			continue
		}

		pos := n.childOffset(byte(nb))
		childRef := nodeRef{offset: n.childOff + uint32(pos)}

		if !t.walk(childRef, append(nibblesSoFar, byte(nb)), yield) {
			return false
		}
	}

	return true
}

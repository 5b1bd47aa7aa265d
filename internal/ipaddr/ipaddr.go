// Package ipaddr provides a family-agnostic view over IPv4 and IPv6
// addresses: nibble decomposition, masking, and inclusive-range-to-CIDR
// splitting.  It underlies the longest-prefix-match trie in
// [github.com/ipmap/core/internal/triebitmap]. The direction classifier in
// [github.com/ipmap/core/internal/capture] uses its own IsGlobal, not this
// package's.
package ipaddr

import (
	"fmt"
	"net/netip"
)

// Family identifies an address family.
type Family uint8

// Supported families.
const (
	V4 Family = iota
	V6
)

// String implements the [fmt.Stringer] interface for Family.
func (f Family) String() (s string) {
	switch f {
	case V4:
		return "ipv4"
	case V6:
		return "ipv6"
	default:
		return fmt.Sprintf("Family(%d)", uint8(f))
	}
}

// FamilyOf returns the family of a.  a must be valid and in its 4- or
// 16-byte form (not a 4-in-6 mapped address).
func FamilyOf(a netip.Addr) (f Family) {
	if a.Is4() {
		return V4
	}

	return V6
}

// BitLen returns the bit width of the family: 32 for V4, 128 for V6.
func (f Family) BitLen() (n int) {
	if f == V4 {
		return 32
	}

	return 128
}

// NibbleLen returns the number of 4-bit nibbles in the family: 8 for V4, 32
// for V6.
func (f Family) NibbleLen() (n int) {
	return f.BitLen() / 4
}

// Nibbles returns the 4-bit nibbles of a, most-significant first: 8 nibbles
// for an IPv4 address, 32 for an IPv6 one.
func Nibbles(a netip.Addr) (nibbles []byte) {
	b := a.AsSlice()
	nibbles = make([]byte, 0, len(b)*2)
	for _, by := range b {
		nibbles = append(nibbles, by>>4, by&0x0f)
	}

	return nibbles
}

// FromNibbles rebuilds an address of family f from nibbles, most-significant
// first.  Short input is padded with zero nibbles; excess trailing nibbles
// are ignored.
func FromNibbles(f Family, nibbles []byte) (a netip.Addr) {
	n := f.NibbleLen()
	buf := make([]byte, f.BitLen()/8)

	for i := 0; i < n; i++ {
		var nb byte
		if i < len(nibbles) {
			nb = nibbles[i] & 0x0f
		}

		byteIdx := i / 2
		if i%2 == 0 {
			buf[byteIdx] = nb << 4
		} else {
			buf[byteIdx] |= nb
		}
	}

	if f == V4 {
		return netip.AddrFrom4([4]byte(buf))
	}

	return netip.AddrFrom16([16]byte(buf))
}

// Mask clears all bits to the right of the top n bits of a.  n=0 yields the
// zero address; n=f.BitLen() is the identity.  Mask panics if n is negative
// or greater than the family's bit length.
func Mask(a netip.Addr, n int) (masked netip.Addr) {
	f := FamilyOf(a)
	bitLen := f.BitLen()
	if n < 0 || n > bitLen {
		panic(fmt.Sprintf("ipaddr: mask length %d out of range for %s", n, f))
	}

	prefix := netip.PrefixFrom(a, n)

	return prefix.Masked().Addr()
}

// RangeSubnets returns the minimal set of CIDR prefixes whose union is
// exactly the inclusive interval [lo, hi].  lo and hi must be the same
// family and lo must not be greater than hi.  The returned order is
// unspecified.
func RangeSubnets(lo, hi netip.Addr) (prefixes []netip.Prefix) {
	f := FamilyOf(lo)
	bitLen := f.BitLen()

	loInt := addrToBig(lo)
	hiInt := addrToBig(hi)

	for loInt.Cmp(hiInt) <= 0 {
		// The largest block size aligned at lo that does not overshoot hi.
		maxSizeByAlignment := trailingZeros(loInt, bitLen)

		blockLen := bitLen - maxSizeByAlignment
		for blockLen < bitLen {
			span := newBigPow2(bitLen - blockLen)
			span.Sub(span, bigOne)

			end := new(bigInt).Add(loInt, span)
			if end.Cmp(hiInt) <= 0 {
				break
			}

			blockLen++
		}

		prefixAddr := bigToAddr(loInt, f)
		prefixes = append(prefixes, netip.PrefixFrom(prefixAddr, blockLen))

		span := newBigPow2(bitLen - blockLen)
		loInt.Add(loInt, span)
	}

	return prefixes
}

// IsGlobal reports whether a is a routable public address: not RFC 1918,
// loopback, multicast, link-local, documentation, or unspecified.
func IsGlobal(a netip.Addr) (ok bool) {
	if !a.IsValid() {
		return false
	}

	unmapped := a.Unmap()

	return !(unmapped.IsPrivate() ||
		unmapped.IsLoopback() ||
		unmapped.IsMulticast() ||
		unmapped.IsLinkLocalUnicast() ||
		unmapped.IsLinkLocalMulticast() ||
		unmapped.IsUnspecified() ||
		unmapped.IsInterfaceLocalMulticast() ||
		isDocumentation(unmapped) ||
		isBroadcast(unmapped))
}

// isBroadcast reports whether a is the IPv4 limited-broadcast address.
func isBroadcast(a netip.Addr) (ok bool) {
	return a.Is4() && a == netip.AddrFrom4([4]byte{255, 255, 255, 255})
}

// documentationPrefixes are the ranges reserved for documentation and
// example use by RFC 5737 and RFC 3849.
var documentationPrefixes = []netip.Prefix{
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("2001:db8::/32"),
}

func isDocumentation(a netip.Addr) (ok bool) {
	for _, p := range documentationPrefixes {
		if p.Contains(a) {
			return true
		}
	}

	return false
}

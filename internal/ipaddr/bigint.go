package ipaddr

import (
	"math/big"
	"net/netip"
)

// bigInt is an alias used locally so the range-splitting arithmetic in
// RangeSubnets reads less verbosely.
type bigInt = big.Int

var bigOne = big.NewInt(1)

// newBigPow2 returns 2^n.
func newBigPow2(n int) (v *bigInt) {
	v = new(big.Int)
	v.Lsh(bigOne, uint(n))

	return v
}

// addrToBig converts a into its big-endian integer value.
func addrToBig(a netip.Addr) (v *bigInt) {
	v = new(big.Int)
	v.SetBytes(a.AsSlice())

	return v
}

// bigToAddr converts v back into an address of family f, truncating or
// zero-padding on the left as needed.
func bigToAddr(v *bigInt, f Family) (a netip.Addr) {
	byteLen := f.BitLen() / 8
	buf := make([]byte, byteLen)

	vb := v.Bytes()
	if len(vb) > byteLen {
		vb = vb[len(vb)-byteLen:]
	}

	copy(buf[byteLen-len(vb):], vb)

	if f == V4 {
		return netip.AddrFrom4([4]byte(buf))
	}

	return netip.AddrFrom16([16]byte(buf))
}

// trailingZeros returns the number of trailing zero bits in v, within a
// bitLen-bit field (so the zero value reports bitLen, not an unbounded
// count).
func trailingZeros(v *bigInt, bitLen int) (n int) {
	if v.Sign() == 0 {
		return bitLen
	}

	for i := 0; i < bitLen; i++ {
		if v.Bit(i) != 0 {
			return i
		}
	}

	return bitLen
}

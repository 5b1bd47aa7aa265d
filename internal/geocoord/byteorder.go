package geocoord

import (
	"encoding/binary"
	"unsafe"
)

// nativeOrder is the byte order used to pack a CountryCode into a uint16.
// It matches the host's native order so that archived databases round-trip
// through a memory-mapped region without a byte-swap pass.
var nativeOrder binary.ByteOrder = func() binary.ByteOrder {
	var x uint16 = 1
	if *(*byte)(unsafe.Pointer(&x)) == 1 {
		return binary.LittleEndian
	}

	return binary.BigEndian
}()

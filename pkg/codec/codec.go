// Package codec implements the XRCE serialization rules : fixed-size
// primitives aligned to their own size, length-prefixed sequences and
// strings, tagged unions. Alignment is always relative to an origin which
// is rewound at every submessage start.
package codec

import (
	"encoding/binary"
	"errors"
)

var (
	ErrShortBuffer   = errors.New("end of buffer reached while decoding")
	ErrCapacity      = errors.New("buffer capacity exceeded while encoding")
	ErrDiscriminator = errors.New("union discriminator out of range")
	ErrBadString     = errors.New("string is not NUL terminated")
)

// Endianness of a serialized payload, carried in submessage flags bit 0
type Endianness uint8

const (
	BigEndian    Endianness = 0
	LittleEndian Endianness = 1
)

func (e Endianness) order() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// padding returns the number of bytes needed to align pos (relative to
// origin) to a size boundary
func padding(pos int, origin int, size int) int {
	rel := pos - origin
	if rem := rel % size; rem != 0 {
		return size - rem
	}
	return 0
}

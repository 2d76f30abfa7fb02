package codec

import "math"

// Encoder is a write cursor over a fixed capacity message buffer.
// All writes fail with [ErrCapacity] once the buffer is full, the caller
// is expected to roll back to a previous position.
type Encoder struct {
	buf    []byte
	pos    int
	origin int
	end    Endianness
}

func NewEncoder(buf []byte, end Endianness) *Encoder {
	return &Encoder{buf: buf, end: end}
}

func (e *Encoder) SetEndianness(end Endianness) {
	e.end = end
}

func (e *Encoder) Endianness() Endianness {
	return e.end
}

// RewindOrigin makes the current position the new alignment origin
func (e *Encoder) RewindOrigin() {
	e.origin = e.pos
}

// SetOrigin moves the alignment origin to an absolute position
func (e *Encoder) SetOrigin(pos int) {
	e.origin = pos
}

func (e *Encoder) Pos() int {
	return e.pos
}

// Rollback moves the cursor back to a previously recorded position
func (e *Encoder) Rollback(pos int) {
	e.pos = pos
}

func (e *Encoder) Remaining() int {
	return len(e.buf) - e.pos
}

// Bytes returns the written part of the buffer
func (e *Encoder) Bytes() []byte {
	return e.buf[:e.pos]
}

// Align pads with zero bytes up to the next size boundary relative to origin
func (e *Encoder) Align(size int) error {
	pad := padding(e.pos, e.origin, size)
	if e.pos+pad > len(e.buf) {
		return ErrCapacity
	}
	for i := 0; i < pad; i++ {
		e.buf[e.pos+i] = 0
	}
	e.pos += pad
	return nil
}

func (e *Encoder) WriteUint8(v uint8) error {
	if e.pos+1 > len(e.buf) {
		return ErrCapacity
	}
	e.buf[e.pos] = v
	e.pos++
	return nil
}

func (e *Encoder) WriteUint16(v uint16) error {
	if err := e.Align(2); err != nil {
		return err
	}
	if e.pos+2 > len(e.buf) {
		return ErrCapacity
	}
	e.end.order().PutUint16(e.buf[e.pos:], v)
	e.pos += 2
	return nil
}

func (e *Encoder) WriteUint32(v uint32) error {
	if err := e.Align(4); err != nil {
		return err
	}
	if e.pos+4 > len(e.buf) {
		return ErrCapacity
	}
	e.end.order().PutUint32(e.buf[e.pos:], v)
	e.pos += 4
	return nil
}

func (e *Encoder) WriteUint64(v uint64) error {
	if err := e.Align(8); err != nil {
		return err
	}
	if e.pos+8 > len(e.buf) {
		return ErrCapacity
	}
	e.end.order().PutUint64(e.buf[e.pos:], v)
	e.pos += 8
	return nil
}

func (e *Encoder) WriteInt16(v int16) error {
	return e.WriteUint16(uint16(v))
}

func (e *Encoder) WriteInt32(v int32) error {
	return e.WriteUint32(uint32(v))
}

func (e *Encoder) WriteInt64(v int64) error {
	return e.WriteUint64(uint64(v))
}

func (e *Encoder) WriteFloat32(v float32) error {
	return e.WriteUint32(math.Float32bits(v))
}

func (e *Encoder) WriteFloat64(v float64) error {
	return e.WriteUint64(math.Float64bits(v))
}

func (e *Encoder) WriteBool(v bool) error {
	if v {
		return e.WriteUint8(1)
	}
	return e.WriteUint8(0)
}

// WriteArray writes raw bytes without a length prefix
func (e *Encoder) WriteArray(src []byte) error {
	if e.pos+len(src) > len(e.buf) {
		return ErrCapacity
	}
	copy(e.buf[e.pos:], src)
	e.pos += len(src)
	return nil
}

// WriteSequence writes a length-prefixed byte sequence
func (e *Encoder) WriteSequence(src []byte) error {
	if err := e.WriteUint32(uint32(len(src))); err != nil {
		return err
	}
	return e.WriteArray(src)
}

// WriteString writes a length-prefixed, NUL terminated string
func (e *Encoder) WriteString(s string) error {
	if err := e.WriteUint32(uint32(len(s) + 1)); err != nil {
		return err
	}
	if err := e.WriteArray([]byte(s)); err != nil {
		return err
	}
	return e.WriteUint8(0)
}

// PatchUint16 overwrites a previously written value in the encoder's byte order,
// used to fix up submessage lengths after serializing the payload
func (e *Encoder) PatchUint16(pos int, v uint16) {
	e.end.order().PutUint16(e.buf[pos:], v)
}

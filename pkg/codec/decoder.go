package codec

import "math"

// Decoder is a read cursor over a received message buffer
type Decoder struct {
	buf    []byte
	pos    int
	origin int
	limit  int
	end    Endianness
}

func NewDecoder(buf []byte, end Endianness) *Decoder {
	return &Decoder{buf: buf, limit: len(buf), end: end}
}

// SetEndianness switches the byte order for subsequent reads, it is
// called at every submessage header whose flags indicate the payload order
func (d *Decoder) SetEndianness(end Endianness) {
	d.end = end
}

func (d *Decoder) Endianness() Endianness {
	return d.end
}

// RewindOrigin makes the current position the new alignment origin.
// Called when entering a submessage payload.
func (d *Decoder) RewindOrigin() {
	d.origin = d.pos
}

// SetOrigin moves the alignment origin to an absolute position
func (d *Decoder) SetOrigin(pos int) {
	d.origin = pos
}

// SetLimit bounds reads to the given absolute position, used to confine
// payload reads to the current submessage length. Returns the previous limit.
func (d *Decoder) SetLimit(limit int) int {
	prev := d.limit
	if limit > len(d.buf) {
		limit = len(d.buf)
	}
	d.limit = limit
	return prev
}

func (d *Decoder) Pos() int {
	return d.pos
}

// Bytes returns the full underlying buffer
func (d *Decoder) Bytes() []byte {
	return d.buf
}

func (d *Decoder) Remaining() int {
	return d.limit - d.pos
}

// Skip advances the cursor by n bytes
func (d *Decoder) Skip(n int) error {
	if d.pos+n > d.limit {
		return ErrShortBuffer
	}
	d.pos += n
	return nil
}

// Align advances the cursor to the next size boundary relative to origin
func (d *Decoder) Align(size int) error {
	return d.Skip(padding(d.pos, d.origin, size))
}

func (d *Decoder) ReadUint8() (uint8, error) {
	if d.pos+1 > d.limit {
		return 0, ErrShortBuffer
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *Decoder) ReadUint16() (uint16, error) {
	if err := d.Align(2); err != nil {
		return 0, err
	}
	if d.pos+2 > d.limit {
		return 0, ErrShortBuffer
	}
	v := d.end.order().Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	if err := d.Align(4); err != nil {
		return 0, err
	}
	if d.pos+4 > d.limit {
		return 0, ErrShortBuffer
	}
	v := d.end.order().Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	if err := d.Align(8); err != nil {
		return 0, err
	}
	if d.pos+8 > d.limit {
		return 0, ErrShortBuffer
	}
	v := d.end.order().Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *Decoder) ReadInt16() (int16, error) {
	v, err := d.ReadUint16()
	return int16(v), err
}

func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

func (d *Decoder) ReadFloat32() (float32, error) {
	v, err := d.ReadUint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUint64()
	return math.Float64frombits(v), err
}

func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadUint8()
	return v != 0, err
}

// ReadArray reads exactly len(dst) raw bytes
func (d *Decoder) ReadArray(dst []byte) error {
	if d.pos+len(dst) > d.limit {
		return ErrShortBuffer
	}
	copy(dst, d.buf[d.pos:])
	d.pos += len(dst)
	return nil
}

// ReadSequence reads a length-prefixed byte sequence
func (d *Decoder) ReadSequence() ([]byte, error) {
	length, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int(length) > d.limit-d.pos {
		return nil, ErrShortBuffer
	}
	v := make([]byte, length)
	copy(v, d.buf[d.pos:])
	d.pos += int(length)
	return v, nil
}

// ReadString reads a length-prefixed, NUL terminated string. The length
// includes the terminator.
func (d *Decoder) ReadString() (string, error) {
	raw, err := d.ReadSequence()
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || raw[len(raw)-1] != 0 {
		return "", ErrBadString
	}
	return string(raw[:len(raw)-1]), nil
}

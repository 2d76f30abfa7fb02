package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	enc := NewEncoder(buf, LittleEndian)
	assert.Nil(t, enc.WriteUint8(0xAB))
	assert.Nil(t, enc.WriteUint16(0x1234))
	assert.Nil(t, enc.WriteUint32(0xDEADBEEF))
	assert.Nil(t, enc.WriteUint64(0x1122334455667788))
	assert.Nil(t, enc.WriteBool(true))

	dec := NewDecoder(enc.Bytes(), LittleEndian)
	v8, err := dec.ReadUint8()
	assert.Nil(t, err)
	assert.EqualValues(t, 0xAB, v8)
	v16, err := dec.ReadUint16()
	assert.Nil(t, err)
	assert.EqualValues(t, 0x1234, v16)
	v32, err := dec.ReadUint32()
	assert.Nil(t, err)
	assert.EqualValues(t, 0xDEADBEEF, v32)
	v64, err := dec.ReadUint64()
	assert.Nil(t, err)
	assert.EqualValues(t, uint64(0x1122334455667788), v64)
	b, err := dec.ReadBool()
	assert.Nil(t, err)
	assert.True(t, b)
}

func TestAlignmentIsRelativeToOrigin(t *testing.T) {
	buf := make([]byte, 32)
	enc := NewEncoder(buf, LittleEndian)
	// One byte then a u32 : three bytes of padding expected
	assert.Nil(t, enc.WriteUint8(1))
	assert.Nil(t, enc.WriteUint32(2))
	assert.Equal(t, 8, enc.Pos())

	// After rewinding the origin at an odd position, alignment restarts
	enc = NewEncoder(buf, LittleEndian)
	assert.Nil(t, enc.WriteUint8(1))
	enc.RewindOrigin()
	assert.Nil(t, enc.WriteUint32(2))
	assert.Equal(t, 5, enc.Pos())
}

func TestStringRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	enc := NewEncoder(buf, LittleEndian)
	assert.Nil(t, enc.WriteString("default_xrce_participant"))

	dec := NewDecoder(enc.Bytes(), LittleEndian)
	s, err := dec.ReadString()
	assert.Nil(t, err)
	assert.Equal(t, "default_xrce_participant", s)
	assert.Equal(t, 0, dec.Remaining())
}

func TestStringMissingTerminator(t *testing.T) {
	// Length says 3 but the last byte is not NUL
	raw := []byte{3, 0, 0, 0, 'a', 'b', 'c'}
	dec := NewDecoder(raw, LittleEndian)
	_, err := dec.ReadString()
	assert.Equal(t, ErrBadString, err)
}

func TestBigEndian(t *testing.T) {
	buf := make([]byte, 8)
	enc := NewEncoder(buf, BigEndian)
	assert.Nil(t, enc.WriteUint16(0x0102))
	assert.Equal(t, []byte{0x01, 0x02}, enc.Bytes())

	dec := NewDecoder(enc.Bytes(), BigEndian)
	v, err := dec.ReadUint16()
	assert.Nil(t, err)
	assert.EqualValues(t, 0x0102, v)
}

func TestShortBuffer(t *testing.T) {
	dec := NewDecoder([]byte{1, 2}, LittleEndian)
	_, err := dec.ReadUint32()
	assert.Equal(t, ErrShortBuffer, err)
}

func TestEncoderCapacity(t *testing.T) {
	enc := NewEncoder(make([]byte, 3), LittleEndian)
	assert.Nil(t, enc.WriteUint8(1))
	err := enc.WriteUint32(2)
	assert.Equal(t, ErrCapacity, err)
}

func TestDecoderLimit(t *testing.T) {
	dec := NewDecoder([]byte{1, 2, 3, 4, 5, 6}, LittleEndian)
	prev := dec.SetLimit(2)
	_, err := dec.ReadUint32()
	assert.Equal(t, ErrShortBuffer, err)
	dec.SetLimit(prev)
	assert.Equal(t, 6, dec.Remaining())
}

func TestSizerMatchesEncoder(t *testing.T) {
	buf := make([]byte, 128)
	enc := NewEncoder(buf, LittleEndian)
	assert.Nil(t, enc.WriteUint8(1))
	assert.Nil(t, enc.WriteUint16(2))
	assert.Nil(t, enc.WriteString("topic"))
	assert.Nil(t, enc.WriteUint64(3))
	assert.Nil(t, enc.WriteSequence([]byte{1, 2, 3}))

	size := NewSizer(0).Uint8().Uint16().String("topic").Uint64().Sequence(3).Size()
	assert.Equal(t, enc.Pos(), size)
}

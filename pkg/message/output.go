// Package message assembles outgoing XRCE messages and walks incoming
// ones submessage by submessage.
package message

import (
	"errors"

	"github.com/samsamfire/goxrce/pkg/codec"
	"github.com/samsamfire/goxrce/pkg/wire"
)

var (
	ErrCapacity  = errors.New("submessage does not fit in remaining message capacity")
	ErrNoHeader  = errors.New("message too short for header")
	ErrEmpty     = errors.New("message contains no submessage")
	ErrTruncated = errors.New("submessage length exceeds message bounds")
)

// Output builds one outgoing message around a fixed capacity buffer.
// The header is written at construction, submessages are appended at
// 4-byte boundaries relative to the message start. A failed append leaves
// the message exactly as it was.
type Output struct {
	enc    *codec.Encoder
	header wire.MessageHeader
	count  int
}

// NewOutput writes the message header into a fresh buffer of the given
// capacity. The header is always little-endian.
func NewOutput(header wire.MessageHeader, capacity int) *Output {
	enc := codec.NewEncoder(make([]byte, capacity), codec.LittleEndian)
	// Capacity below header size is a programming error, the minimum
	// usable MTU is checked at configuration time
	if err := header.Serialize(enc); err != nil {
		panic("message capacity below header size")
	}
	return &Output{enc: enc, header: header}
}

// Header returns the message header as written
func (m *Output) Header() wire.MessageHeader {
	return m.header
}

// SubmessageCount returns the number of successfully appended submessages
func (m *Output) SubmessageCount() int {
	return m.count
}

// Bytes returns the serialized message so far
func (m *Output) Bytes() []byte {
	return m.enc.Bytes()
}

// Append serializes one submessage. Flags bit 0 is forced to match the
// payload endianness (little). Returns [ErrCapacity] and leaves the
// message untouched when the submessage does not fit.
func (m *Output) Append(id wire.SubmessageId, flags uint8, payload wire.Payload) error {
	rollback := m.enc.Pos()
	err := m.append(id, flags, payload)
	if err != nil {
		m.enc.Rollback(rollback)
		m.enc.SetOrigin(0)
		return ErrCapacity
	}
	m.count++
	return nil
}

func (m *Output) append(id wire.SubmessageId, flags uint8, payload wire.Payload) error {
	m.enc.SetOrigin(0)
	m.enc.SetEndianness(codec.LittleEndian)
	if err := m.enc.Align(4); err != nil {
		return err
	}
	subHeader := wire.SubmessageHeader{Id: id, Flags: flags | wire.FlagEndianness}
	lengthPos := m.enc.Pos() + 2
	if err := subHeader.Serialize(m.enc); err != nil {
		return err
	}
	payloadStart := m.enc.Pos()
	m.enc.RewindOrigin()
	if err := payload.Serialize(m.enc); err != nil {
		return err
	}
	m.enc.PatchUint16(lengthPos, uint16(m.enc.Pos()-payloadStart))
	m.enc.SetOrigin(0)
	return nil
}

// AppendRaw appends a submessage whose payload is already serialized,
// used for FRAGMENT emission and verbatim DATA forwarding
func (m *Output) AppendRaw(id wire.SubmessageId, flags uint8, payload []byte) error {
	rollback := m.enc.Pos()
	err := m.appendRaw(id, flags, payload)
	if err != nil {
		m.enc.Rollback(rollback)
		m.enc.SetOrigin(0)
		return ErrCapacity
	}
	m.count++
	return nil
}

func (m *Output) appendRaw(id wire.SubmessageId, flags uint8, payload []byte) error {
	m.enc.SetOrigin(0)
	m.enc.SetEndianness(codec.LittleEndian)
	if err := m.enc.Align(4); err != nil {
		return err
	}
	subHeader := wire.SubmessageHeader{
		Id:     id,
		Flags:  flags | wire.FlagEndianness,
		Length: uint16(len(payload)),
	}
	if err := subHeader.Serialize(m.enc); err != nil {
		return err
	}
	return m.enc.WriteArray(payload)
}

// Remaining returns how many payload bytes the next submessage may carry,
// accounting for alignment and its submessage header
func (m *Output) Remaining() int {
	pos := m.enc.Pos()
	if pad := pos % 4; pad != 0 {
		pos += 4 - pad
	}
	free := m.capacity() - pos - wire.SubmessageHeaderSize
	if free < 0 {
		return 0
	}
	return free
}

func (m *Output) capacity() int {
	return m.enc.Pos() + m.enc.Remaining()
}

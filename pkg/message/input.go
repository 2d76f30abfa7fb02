package message

import (
	"github.com/samsamfire/goxrce/pkg/codec"
	"github.com/samsamfire/goxrce/pkg/wire"
)

// Input walks a received message : header first, then one submessage at a
// time through [Input.PrepareNext]
type Input struct {
	dec        *codec.Decoder
	header     wire.MessageHeader
	subHeader  wire.SubmessageHeader
	payloadEnd int
}

// Parse reads the message header. The remaining buffer is walked with
// [Input.PrepareNext].
func Parse(data []byte) (*Input, error) {
	if len(data) < wire.MessageHeaderSize {
		return nil, ErrNoHeader
	}
	// Header is always little-endian
	dec := codec.NewDecoder(data, codec.LittleEndian)
	m := &Input{dec: dec}
	if err := m.header.Deserialize(dec); err != nil {
		return nil, err
	}
	m.payloadEnd = dec.Pos()
	return m, nil
}

// ParseBody walks a bare submessage run with no message header, used for
// reassembled fragment buffers
func ParseBody(data []byte) *Input {
	return &Input{dec: codec.NewDecoder(data, codec.LittleEndian)}
}

// Header returns the parsed message header
func (m *Input) Header() wire.MessageHeader {
	return m.header
}

// SubmessageHeader returns the header read by the last PrepareNext
func (m *Input) SubmessageHeader() wire.SubmessageHeader {
	return m.subHeader
}

// PrepareNext advances to the next 4-byte boundary relative to the message
// start and reads a submessage header. Returns false at end of message.
func (m *Input) PrepareNext() bool {
	// Skip whatever is left of the previous payload
	m.dec.SetLimit(len(m.dec.Bytes()))
	if m.dec.Pos() < m.payloadEnd {
		if m.dec.Skip(m.payloadEnd-m.dec.Pos()) != nil {
			return false
		}
	}
	m.dec.SetOrigin(0)
	if m.dec.Align(4) != nil {
		return false
	}
	if m.dec.Remaining() < wire.SubmessageHeaderSize {
		return false
	}
	if m.subHeader.Deserialize(m.dec) != nil {
		return false
	}
	m.payloadEnd = m.dec.Pos() + int(m.subHeader.Length)
	return true
}

// Payload deserializes the current submessage payload into out, bounded
// by the submessage length
func (m *Input) Payload(out wire.Payload) error {
	if m.payloadEnd > len(m.dec.Bytes()) {
		return ErrTruncated
	}
	prev := m.dec.SetLimit(m.payloadEnd)
	m.dec.RewindOrigin()
	m.dec.SetEndianness(m.subHeader.Endianness())
	err := out.Deserialize(m.dec)
	m.dec.SetLimit(prev)
	return err
}

// RawPayload returns the current submessage payload bytes verbatim
func (m *Input) RawPayload() ([]byte, error) {
	if m.payloadEnd > len(m.dec.Bytes()) {
		return nil, ErrTruncated
	}
	start := m.dec.Pos()
	return m.dec.Bytes()[start:m.payloadEnd], nil
}

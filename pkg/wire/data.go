package wire

import (
	"github.com/samsamfire/goxrce/pkg/codec"
)

// SampleInfo describes one sample when the data format includes info
type SampleInfo struct {
	State             uint8
	SequenceNumber    uint64
	SessionTimeOffset uint32
}

func (i *SampleInfo) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteUint8(i.State); err != nil {
		return err
	}
	if err := enc.WriteUint64(i.SequenceNumber); err != nil {
		return err
	}
	return enc.WriteUint32(i.SessionTimeOffset)
}

func (i *SampleInfo) Deserialize(dec *codec.Decoder) error {
	var err error
	if i.State, err = dec.ReadUint8(); err != nil {
		return err
	}
	if i.SequenceNumber, err = dec.ReadUint64(); err != nil {
		return err
	}
	i.SessionTimeOffset, err = dec.ReadUint32()
	return err
}

func (i *SampleInfo) size(s *codec.Sizer) {
	s.Uint8().Uint64().Uint32()
}

// Sample is data together with its info
type Sample struct {
	Info SampleInfo
	Data []byte
}

func (sa *Sample) Serialize(enc *codec.Encoder) error {
	if err := sa.Info.Serialize(enc); err != nil {
		return err
	}
	return enc.WriteSequence(sa.Data)
}

func (sa *Sample) Deserialize(dec *codec.Decoder) error {
	if err := sa.Info.Deserialize(dec); err != nil {
		return err
	}
	var err error
	sa.Data, err = dec.ReadSequence()
	return err
}

func (sa *Sample) size(s *codec.Sizer) {
	sa.Info.size(s)
	s.Sequence(len(sa.Data))
}

// DataRepresentation is the variant body of DATA and WRITE_DATA, the
// discriminator travels in the submessage flag bits instead of the payload
type DataRepresentation struct {
	Format  DataFormat
	Data    []byte
	Sample  Sample
	DataSeq [][]byte
	Samples []Sample
}

func (d *DataRepresentation) Serialize(enc *codec.Encoder) error {
	switch d.Format {
	case FormatData:
		return enc.WriteSequence(d.Data)
	case FormatSample:
		return d.Sample.Serialize(enc)
	case FormatDataSeq:
		if err := enc.WriteUint32(uint32(len(d.DataSeq))); err != nil {
			return err
		}
		for _, data := range d.DataSeq {
			if err := enc.WriteSequence(data); err != nil {
				return err
			}
		}
		return nil
	case FormatSampleSeq, FormatPackedSamples:
		if err := enc.WriteUint32(uint32(len(d.Samples))); err != nil {
			return err
		}
		for i := range d.Samples {
			if err := d.Samples[i].Serialize(enc); err != nil {
				return err
			}
		}
		return nil
	default:
		return codec.ErrDiscriminator
	}
}

func (d *DataRepresentation) Deserialize(dec *codec.Decoder) error {
	var err error
	switch d.Format {
	case FormatData:
		d.Data, err = dec.ReadSequence()
		return err
	case FormatSample:
		return d.Sample.Deserialize(dec)
	case FormatDataSeq:
		length, err := dec.ReadUint32()
		if err != nil {
			return err
		}
		if int(length) > dec.Remaining() {
			return codec.ErrShortBuffer
		}
		d.DataSeq = make([][]byte, length)
		for i := range d.DataSeq {
			if d.DataSeq[i], err = dec.ReadSequence(); err != nil {
				return err
			}
		}
		return nil
	case FormatSampleSeq, FormatPackedSamples:
		length, err := dec.ReadUint32()
		if err != nil {
			return err
		}
		if int(length) > dec.Remaining() {
			return codec.ErrShortBuffer
		}
		d.Samples = make([]Sample, length)
		for i := range d.Samples {
			if err := d.Samples[i].Deserialize(dec); err != nil {
				return err
			}
		}
		return nil
	default:
		return codec.ErrDiscriminator
	}
}

func (d *DataRepresentation) size(s *codec.Sizer) {
	switch d.Format {
	case FormatData:
		s.Sequence(len(d.Data))
	case FormatSample:
		d.Sample.size(s)
	case FormatDataSeq:
		s.Uint32()
		for _, data := range d.DataSeq {
			s.Sequence(len(data))
		}
	case FormatSampleSeq, FormatPackedSamples:
		s.Uint32()
		for i := range d.Samples {
			d.Samples[i].size(s)
		}
	}
}

// WriteDataPayload carries samples from a client to a writer object
type WriteDataPayload struct {
	Request BaseObjectRequest
	Data    DataRepresentation
}

func (p *WriteDataPayload) Serialize(enc *codec.Encoder) error {
	if err := p.Request.Serialize(enc); err != nil {
		return err
	}
	return p.Data.Serialize(enc)
}

func (p *WriteDataPayload) Deserialize(dec *codec.Decoder) error {
	if err := p.Request.Deserialize(dec); err != nil {
		return err
	}
	return p.Data.Deserialize(dec)
}

func (p *WriteDataPayload) Size(currentAlignment int) int {
	s := codec.NewSizer(currentAlignment)
	s.Array(2).Array(2)
	p.Data.size(s)
	return s.Size()
}

// DataDeliveryControl bounds a read job
type DataDeliveryControl struct {
	MaxSamples        uint16
	MaxElapsedTime    uint16
	MaxBytesPerSecond uint16
	MinPacePeriod     uint16
}

func (c *DataDeliveryControl) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteUint16(c.MaxSamples); err != nil {
		return err
	}
	if err := enc.WriteUint16(c.MaxElapsedTime); err != nil {
		return err
	}
	if err := enc.WriteUint16(c.MaxBytesPerSecond); err != nil {
		return err
	}
	return enc.WriteUint16(c.MinPacePeriod)
}

func (c *DataDeliveryControl) Deserialize(dec *codec.Decoder) error {
	var err error
	if c.MaxSamples, err = dec.ReadUint16(); err != nil {
		return err
	}
	if c.MaxElapsedTime, err = dec.ReadUint16(); err != nil {
		return err
	}
	if c.MaxBytesPerSecond, err = dec.ReadUint16(); err != nil {
		return err
	}
	c.MinPacePeriod, err = dec.ReadUint16()
	return err
}

// ReadSpecification parameterizes a read job
type ReadSpecification struct {
	PreferredStreamId  uint8
	DataFormat         DataFormat
	HasContentFilter   bool
	ContentFilter      string
	HasDeliveryControl bool
	DeliveryControl    DataDeliveryControl
}

func (r *ReadSpecification) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteUint8(r.PreferredStreamId); err != nil {
		return err
	}
	if err := enc.WriteUint8(uint8(r.DataFormat)); err != nil {
		return err
	}
	if err := enc.WriteBool(r.HasContentFilter); err != nil {
		return err
	}
	if r.HasContentFilter {
		if err := enc.WriteString(r.ContentFilter); err != nil {
			return err
		}
	}
	if err := enc.WriteBool(r.HasDeliveryControl); err != nil {
		return err
	}
	if r.HasDeliveryControl {
		return r.DeliveryControl.Serialize(enc)
	}
	return nil
}

func (r *ReadSpecification) Deserialize(dec *codec.Decoder) error {
	var err error
	if r.PreferredStreamId, err = dec.ReadUint8(); err != nil {
		return err
	}
	format, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	r.DataFormat = DataFormat(format)
	if r.HasContentFilter, err = dec.ReadBool(); err != nil {
		return err
	}
	if r.HasContentFilter {
		if r.ContentFilter, err = dec.ReadString(); err != nil {
			return err
		}
	}
	if r.HasDeliveryControl, err = dec.ReadBool(); err != nil {
		return err
	}
	if r.HasDeliveryControl {
		return r.DeliveryControl.Deserialize(dec)
	}
	return nil
}

func (r *ReadSpecification) size(s *codec.Sizer) {
	s.Uint8().Uint8().Bool()
	if r.HasContentFilter {
		s.String(r.ContentFilter)
	}
	s.Bool()
	if r.HasDeliveryControl {
		s.Uint16().Uint16().Uint16().Uint16()
	}
}

// ReadDataPayload starts a read job on a reader object
type ReadDataPayload struct {
	Request BaseObjectRequest
	Spec    ReadSpecification
}

func (p *ReadDataPayload) Serialize(enc *codec.Encoder) error {
	if err := p.Request.Serialize(enc); err != nil {
		return err
	}
	return p.Spec.Serialize(enc)
}

func (p *ReadDataPayload) Deserialize(dec *codec.Decoder) error {
	if err := p.Request.Deserialize(dec); err != nil {
		return err
	}
	return p.Spec.Deserialize(dec)
}

func (p *ReadDataPayload) Size(currentAlignment int) int {
	s := codec.NewSizer(currentAlignment)
	s.Array(2).Array(2)
	p.Spec.size(s)
	return s.Size()
}

// DataPayload carries samples from the agent to a client
type DataPayload struct {
	Request BaseObjectRequest
	Data    DataRepresentation
}

func (p *DataPayload) Serialize(enc *codec.Encoder) error {
	if err := p.Request.Serialize(enc); err != nil {
		return err
	}
	return p.Data.Serialize(enc)
}

func (p *DataPayload) Deserialize(dec *codec.Decoder) error {
	if err := p.Request.Deserialize(dec); err != nil {
		return err
	}
	return p.Data.Deserialize(dec)
}

func (p *DataPayload) Size(currentAlignment int) int {
	s := codec.NewSizer(currentAlignment)
	s.Array(2).Array(2)
	p.Data.size(s)
	return s.Size()
}

// AckNackPayload acknowledges reliable stream reception and requests
// retransmission of the bitmap's set bits above FirstUnackedSeqNum
type AckNackPayload struct {
	FirstUnackedSeqNum uint16
	NackBitmap         uint16
	StreamId           uint8
}

func (p *AckNackPayload) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteUint16(p.FirstUnackedSeqNum); err != nil {
		return err
	}
	// Bitmap travels as two raw bytes, high byte first
	if err := enc.WriteArray([]byte{byte(p.NackBitmap >> 8), byte(p.NackBitmap)}); err != nil {
		return err
	}
	return enc.WriteUint8(p.StreamId)
}

func (p *AckNackPayload) Deserialize(dec *codec.Decoder) error {
	var err error
	if p.FirstUnackedSeqNum, err = dec.ReadUint16(); err != nil {
		return err
	}
	var bitmap [2]byte
	if err := dec.ReadArray(bitmap[:]); err != nil {
		return err
	}
	p.NackBitmap = uint16(bitmap[0])<<8 | uint16(bitmap[1])
	p.StreamId, err = dec.ReadUint8()
	return err
}

func (p *AckNackPayload) Size(currentAlignment int) int {
	return codec.NewSizer(currentAlignment).Uint16().Array(2).Uint8().Size()
}

// HeartbeatPayload announces the sender's retained reliable window
type HeartbeatPayload struct {
	FirstUnackedSeqNr uint16
	LastUnackedSeqNr  uint16
	StreamId          uint8
}

func (p *HeartbeatPayload) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteUint16(p.FirstUnackedSeqNr); err != nil {
		return err
	}
	if err := enc.WriteUint16(p.LastUnackedSeqNr); err != nil {
		return err
	}
	return enc.WriteUint8(p.StreamId)
}

func (p *HeartbeatPayload) Deserialize(dec *codec.Decoder) error {
	var err error
	if p.FirstUnackedSeqNr, err = dec.ReadUint16(); err != nil {
		return err
	}
	if p.LastUnackedSeqNr, err = dec.ReadUint16(); err != nil {
		return err
	}
	p.StreamId, err = dec.ReadUint8()
	return err
}

func (p *HeartbeatPayload) Size(currentAlignment int) int {
	return codec.NewSizer(currentAlignment).Uint16().Uint16().Uint8().Size()
}

// TimestampPayload requests a time exchange
type TimestampPayload struct {
	TransmitTimestamp Time
}

func (p *TimestampPayload) Serialize(enc *codec.Encoder) error {
	return p.TransmitTimestamp.Serialize(enc)
}

func (p *TimestampPayload) Deserialize(dec *codec.Decoder) error {
	return p.TransmitTimestamp.Deserialize(dec)
}

func (p *TimestampPayload) Size(currentAlignment int) int {
	return p.TransmitTimestamp.Size(currentAlignment)
}

// TimestampReplyPayload answers TIMESTAMP, echoing the sender's transmit
// time and adding the agent's receive and transmit times
type TimestampReplyPayload struct {
	TransmitTimestamp  Time
	ReceiveTimestamp   Time
	OriginateTimestamp Time
}

func (p *TimestampReplyPayload) Serialize(enc *codec.Encoder) error {
	if err := p.TransmitTimestamp.Serialize(enc); err != nil {
		return err
	}
	if err := p.ReceiveTimestamp.Serialize(enc); err != nil {
		return err
	}
	return p.OriginateTimestamp.Serialize(enc)
}

func (p *TimestampReplyPayload) Deserialize(dec *codec.Decoder) error {
	if err := p.TransmitTimestamp.Deserialize(dec); err != nil {
		return err
	}
	if err := p.ReceiveTimestamp.Deserialize(dec); err != nil {
		return err
	}
	return p.OriginateTimestamp.Deserialize(dec)
}

func (p *TimestampReplyPayload) Size(currentAlignment int) int {
	s := codec.NewSizer(currentAlignment)
	s.Uint32().Uint32().Uint32().Uint32().Uint32().Uint32()
	return s.Size()
}

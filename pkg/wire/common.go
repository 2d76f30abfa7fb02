package wire

import (
	"github.com/samsamfire/goxrce/pkg/codec"
)

// BaseObjectRequest correlates an operation with a target object
type BaseObjectRequest struct {
	RequestId RequestId
	ObjectId  ObjectId
}

func (b *BaseObjectRequest) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteArray(b.RequestId[:]); err != nil {
		return err
	}
	return enc.WriteArray(b.ObjectId[:])
}

func (b *BaseObjectRequest) Deserialize(dec *codec.Decoder) error {
	if err := dec.ReadArray(b.RequestId[:]); err != nil {
		return err
	}
	return dec.ReadArray(b.ObjectId[:])
}

func (b *BaseObjectRequest) Size(currentAlignment int) int {
	return codec.NewSizer(currentAlignment).Array(2).Array(2).Size()
}

// ResultStatus is the outcome of a requested operation
type ResultStatus struct {
	Status         StatusValue
	Implementation uint8
}

func (r *ResultStatus) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteUint8(uint8(r.Status)); err != nil {
		return err
	}
	return enc.WriteUint8(r.Implementation)
}

func (r *ResultStatus) Deserialize(dec *codec.Decoder) error {
	status, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	r.Status = StatusValue(status)
	r.Implementation, err = dec.ReadUint8()
	return err
}

func (r *ResultStatus) Size(currentAlignment int) int {
	return codec.NewSizer(currentAlignment).Uint8().Uint8().Size()
}

// BaseObjectReply echoes the request identification with its result
type BaseObjectReply struct {
	RelatedRequest BaseObjectRequest
	Result         ResultStatus
}

func (b *BaseObjectReply) Serialize(enc *codec.Encoder) error {
	if err := b.RelatedRequest.Serialize(enc); err != nil {
		return err
	}
	return b.Result.Serialize(enc)
}

func (b *BaseObjectReply) Deserialize(dec *codec.Decoder) error {
	if err := b.RelatedRequest.Deserialize(dec); err != nil {
		return err
	}
	return b.Result.Deserialize(dec)
}

func (b *BaseObjectReply) Size(currentAlignment int) int {
	s := codec.NewSizer(currentAlignment)
	s.Array(2).Array(2).Uint8().Uint8()
	return s.Size()
}

// Property is a key value pair attached to a client or agent
type Property struct {
	Name  string
	Value string
}

func (p *Property) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteString(p.Name); err != nil {
		return err
	}
	return enc.WriteString(p.Value)
}

func (p *Property) Deserialize(dec *codec.Decoder) error {
	var err error
	if p.Name, err = dec.ReadString(); err != nil {
		return err
	}
	p.Value, err = dec.ReadString()
	return err
}

func (p *Property) Size(currentAlignment int) int {
	return codec.NewSizer(currentAlignment).String(p.Name).String(p.Value).Size()
}

func serializeProperties(enc *codec.Encoder, props []Property) error {
	if err := enc.WriteUint32(uint32(len(props))); err != nil {
		return err
	}
	for i := range props {
		if err := props[i].Serialize(enc); err != nil {
			return err
		}
	}
	return nil
}

func deserializeProperties(dec *codec.Decoder) ([]Property, error) {
	length, err := dec.ReadUint32()
	if err != nil {
		return nil, err
	}
	// Each property is at least 2 empty strings, bound before allocating
	if int(length) > dec.Remaining()/10 {
		return nil, codec.ErrShortBuffer
	}
	props := make([]Property, length)
	for i := range props {
		if err := props[i].Deserialize(dec); err != nil {
			return nil, err
		}
	}
	return props, nil
}

func sizeProperties(s *codec.Sizer, props []Property) {
	s.Uint32()
	for i := range props {
		s.String(props[i].Name).String(props[i].Value)
	}
}

// Time is an epoch timestamp with nanosecond resolution
type Time struct {
	Seconds     int32
	Nanoseconds uint32
}

func (t *Time) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteInt32(t.Seconds); err != nil {
		return err
	}
	return enc.WriteUint32(t.Nanoseconds)
}

func (t *Time) Deserialize(dec *codec.Decoder) error {
	var err error
	if t.Seconds, err = dec.ReadInt32(); err != nil {
		return err
	}
	t.Nanoseconds, err = dec.ReadUint32()
	return err
}

func (t *Time) Size(currentAlignment int) int {
	return codec.NewSizer(currentAlignment).Uint32().Uint32().Size()
}

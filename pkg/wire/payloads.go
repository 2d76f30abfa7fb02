package wire

import (
	"github.com/samsamfire/goxrce/pkg/codec"
)

// ClientRepresentation is submitted by a client at session establishment
type ClientRepresentation struct {
	XrceCookie    [4]byte
	XrceVersion   [2]byte
	XrceVendorId  [2]byte
	ClientKey     ClientKey
	SessionId     uint8
	HasProperties bool
	Properties    []Property
}

func (c *ClientRepresentation) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteArray(c.XrceCookie[:]); err != nil {
		return err
	}
	if err := enc.WriteArray(c.XrceVersion[:]); err != nil {
		return err
	}
	if err := enc.WriteArray(c.XrceVendorId[:]); err != nil {
		return err
	}
	if err := enc.WriteArray(c.ClientKey[:]); err != nil {
		return err
	}
	if err := enc.WriteUint8(c.SessionId); err != nil {
		return err
	}
	if err := enc.WriteBool(c.HasProperties); err != nil {
		return err
	}
	if c.HasProperties {
		return serializeProperties(enc, c.Properties)
	}
	return nil
}

func (c *ClientRepresentation) Deserialize(dec *codec.Decoder) error {
	if err := dec.ReadArray(c.XrceCookie[:]); err != nil {
		return err
	}
	if err := dec.ReadArray(c.XrceVersion[:]); err != nil {
		return err
	}
	if err := dec.ReadArray(c.XrceVendorId[:]); err != nil {
		return err
	}
	if err := dec.ReadArray(c.ClientKey[:]); err != nil {
		return err
	}
	var err error
	if c.SessionId, err = dec.ReadUint8(); err != nil {
		return err
	}
	if c.HasProperties, err = dec.ReadBool(); err != nil {
		return err
	}
	if c.HasProperties {
		c.Properties, err = deserializeProperties(dec)
	}
	return err
}

func (c *ClientRepresentation) Size(currentAlignment int) int {
	s := codec.NewSizer(currentAlignment)
	s.Array(4).Array(2).Array(2).Array(4).Uint8().Bool()
	if c.HasProperties {
		sizeProperties(s, c.Properties)
	}
	return s.Size()
}

// AgentRepresentation is the agent's identity returned to clients
type AgentRepresentation struct {
	XrceCookie    [4]byte
	XrceVersion   [2]byte
	XrceVendorId  [2]byte
	HasProperties bool
	Properties    []Property
}

func (a *AgentRepresentation) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteArray(a.XrceCookie[:]); err != nil {
		return err
	}
	if err := enc.WriteArray(a.XrceVersion[:]); err != nil {
		return err
	}
	if err := enc.WriteArray(a.XrceVendorId[:]); err != nil {
		return err
	}
	if err := enc.WriteBool(a.HasProperties); err != nil {
		return err
	}
	if a.HasProperties {
		return serializeProperties(enc, a.Properties)
	}
	return nil
}

func (a *AgentRepresentation) Deserialize(dec *codec.Decoder) error {
	if err := dec.ReadArray(a.XrceCookie[:]); err != nil {
		return err
	}
	if err := dec.ReadArray(a.XrceVersion[:]); err != nil {
		return err
	}
	if err := dec.ReadArray(a.XrceVendorId[:]); err != nil {
		return err
	}
	var err error
	if a.HasProperties, err = dec.ReadBool(); err != nil {
		return err
	}
	if a.HasProperties {
		a.Properties, err = deserializeProperties(dec)
	}
	return err
}

func (a *AgentRepresentation) Size(currentAlignment int) int {
	s := codec.NewSizer(currentAlignment)
	s.Array(4).Array(2).Array(2).Bool()
	if a.HasProperties {
		sizeProperties(s, a.Properties)
	}
	return s.Size()
}

// CreateClientPayload requests session establishment
type CreateClientPayload struct {
	Representation ClientRepresentation
}

func (p *CreateClientPayload) Serialize(enc *codec.Encoder) error {
	return p.Representation.Serialize(enc)
}

func (p *CreateClientPayload) Deserialize(dec *codec.Decoder) error {
	return p.Representation.Deserialize(dec)
}

func (p *CreateClientPayload) Size(currentAlignment int) int {
	return p.Representation.Size(currentAlignment)
}

// StatusAgentPayload answers CREATE_CLIENT
type StatusAgentPayload struct {
	Result    ResultStatus
	AgentInfo AgentRepresentation
}

func (p *StatusAgentPayload) Serialize(enc *codec.Encoder) error {
	if err := p.Result.Serialize(enc); err != nil {
		return err
	}
	return p.AgentInfo.Serialize(enc)
}

func (p *StatusAgentPayload) Deserialize(dec *codec.Decoder) error {
	if err := p.Result.Deserialize(dec); err != nil {
		return err
	}
	return p.AgentInfo.Deserialize(dec)
}

func (p *StatusAgentPayload) Size(currentAlignment int) int {
	base := codec.NewSizer(currentAlignment).Uint8().Uint8().Size()
	return base + p.AgentInfo.Size(currentAlignment+base)
}

// CreatePayload requests creation of one object
type CreatePayload struct {
	Request        BaseObjectRequest
	Representation ObjectRepresentation
}

func (p *CreatePayload) Serialize(enc *codec.Encoder) error {
	if err := p.Request.Serialize(enc); err != nil {
		return err
	}
	return p.Representation.Serialize(enc)
}

func (p *CreatePayload) Deserialize(dec *codec.Decoder) error {
	if err := p.Request.Deserialize(dec); err != nil {
		return err
	}
	return p.Representation.Deserialize(dec)
}

func (p *CreatePayload) Size(currentAlignment int) int {
	base := p.Request.Size(currentAlignment)
	return base + p.Representation.Size(currentAlignment+base)
}

// InfoMask bits select which parts of an INFO reply are populated
const (
	InfoConfig   uint32 = 1 << 0
	InfoActivity uint32 = 1 << 1
)

// GetInfoPayload requests agent or object information
type GetInfoPayload struct {
	Request  BaseObjectRequest
	InfoMask uint32
}

func (p *GetInfoPayload) Serialize(enc *codec.Encoder) error {
	if err := p.Request.Serialize(enc); err != nil {
		return err
	}
	return enc.WriteUint32(p.InfoMask)
}

func (p *GetInfoPayload) Deserialize(dec *codec.Decoder) error {
	if err := p.Request.Deserialize(dec); err != nil {
		return err
	}
	var err error
	p.InfoMask, err = dec.ReadUint32()
	return err
}

func (p *GetInfoPayload) Size(currentAlignment int) int {
	return codec.NewSizer(currentAlignment).Array(2).Array(2).Uint32().Size()
}

// DeletePayload requests deletion of one object or the whole session
type DeletePayload struct {
	Request BaseObjectRequest
}

func (p *DeletePayload) Serialize(enc *codec.Encoder) error {
	return p.Request.Serialize(enc)
}

func (p *DeletePayload) Deserialize(dec *codec.Decoder) error {
	return p.Request.Deserialize(dec)
}

func (p *DeletePayload) Size(currentAlignment int) int {
	return p.Request.Size(currentAlignment)
}

// StatusPayload answers CREATE, DELETE and failed READ_DATA
type StatusPayload struct {
	Reply BaseObjectReply
}

func (p *StatusPayload) Serialize(enc *codec.Encoder) error {
	return p.Reply.Serialize(enc)
}

func (p *StatusPayload) Deserialize(dec *codec.Decoder) error {
	return p.Reply.Deserialize(dec)
}

func (p *StatusPayload) Size(currentAlignment int) int {
	return p.Reply.Size(currentAlignment)
}

// TransportAddress formats
type AddressFormat uint8

const (
	AddressFormatNone   AddressFormat = 0x00
	AddressFormatIPv4   AddressFormat = 0x02
	AddressFormatString AddressFormat = 0x04
)

// TransportAddress is one way of reaching the agent
type TransportAddress struct {
	Format  AddressFormat
	IP      [4]byte
	Port    uint16
	Address string
}

func (a *TransportAddress) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteUint8(uint8(a.Format)); err != nil {
		return err
	}
	switch a.Format {
	case AddressFormatNone:
		return nil
	case AddressFormatIPv4:
		if err := enc.WriteArray(a.IP[:]); err != nil {
			return err
		}
		return enc.WriteUint16(a.Port)
	case AddressFormatString:
		return enc.WriteString(a.Address)
	default:
		return codec.ErrDiscriminator
	}
}

func (a *TransportAddress) Deserialize(dec *codec.Decoder) error {
	format, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	a.Format = AddressFormat(format)
	switch a.Format {
	case AddressFormatNone:
		return nil
	case AddressFormatIPv4:
		if err := dec.ReadArray(a.IP[:]); err != nil {
			return err
		}
		a.Port, err = dec.ReadUint16()
		return err
	case AddressFormatString:
		a.Address, err = dec.ReadString()
		return err
	default:
		return codec.ErrDiscriminator
	}
}

func (a *TransportAddress) size(s *codec.Sizer) {
	s.Uint8()
	switch a.Format {
	case AddressFormatIPv4:
		s.Array(4).Uint16()
	case AddressFormatString:
		s.String(a.Address)
	}
}

// AgentActivityInfo reports agent liveliness and reachable addresses
type AgentActivityInfo struct {
	Availability int16
	Addresses    []TransportAddress
}

func (a *AgentActivityInfo) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteInt16(a.Availability); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(len(a.Addresses))); err != nil {
		return err
	}
	for i := range a.Addresses {
		if err := a.Addresses[i].Serialize(enc); err != nil {
			return err
		}
	}
	return nil
}

func (a *AgentActivityInfo) Deserialize(dec *codec.Decoder) error {
	var err error
	if a.Availability, err = dec.ReadInt16(); err != nil {
		return err
	}
	length, err := dec.ReadUint32()
	if err != nil {
		return err
	}
	if int(length) > dec.Remaining() {
		return codec.ErrShortBuffer
	}
	a.Addresses = make([]TransportAddress, length)
	for i := range a.Addresses {
		if err := a.Addresses[i].Deserialize(dec); err != nil {
			return err
		}
	}
	return nil
}

func (a *AgentActivityInfo) size(s *codec.Sizer) {
	s.Uint16().Uint32()
	for i := range a.Addresses {
		a.Addresses[i].size(s)
	}
}

// ObjectInfo is the body of an INFO reply. Config and activity are
// optional, selected by the request's info mask.
type ObjectInfo struct {
	HasConfig   bool
	Config      AgentRepresentation
	HasActivity bool
	Activity    AgentActivityInfo
}

func (o *ObjectInfo) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteBool(o.HasActivity); err != nil {
		return err
	}
	if o.HasActivity {
		if err := o.Activity.Serialize(enc); err != nil {
			return err
		}
	}
	if err := enc.WriteBool(o.HasConfig); err != nil {
		return err
	}
	if o.HasConfig {
		return o.Config.Serialize(enc)
	}
	return nil
}

func (o *ObjectInfo) Deserialize(dec *codec.Decoder) error {
	var err error
	if o.HasActivity, err = dec.ReadBool(); err != nil {
		return err
	}
	if o.HasActivity {
		if err := o.Activity.Deserialize(dec); err != nil {
			return err
		}
	}
	if o.HasConfig, err = dec.ReadBool(); err != nil {
		return err
	}
	if o.HasConfig {
		return o.Config.Deserialize(dec)
	}
	return nil
}

func (o *ObjectInfo) size(s *codec.Sizer) {
	s.Bool()
	if o.HasActivity {
		o.Activity.size(s)
	}
	s.Bool()
	if o.HasConfig {
		// AgentRepresentation has its own Size, replay it through the sizer
		s.Array(4).Array(2).Array(2).Bool()
		if o.Config.HasProperties {
			sizeProperties(s, o.Config.Properties)
		}
	}
}

// InfoPayload answers GET_INFO
type InfoPayload struct {
	Reply BaseObjectReply
	Info  ObjectInfo
}

func (p *InfoPayload) Serialize(enc *codec.Encoder) error {
	if err := p.Reply.Serialize(enc); err != nil {
		return err
	}
	return p.Info.Serialize(enc)
}

func (p *InfoPayload) Deserialize(dec *codec.Decoder) error {
	if err := p.Reply.Deserialize(dec); err != nil {
		return err
	}
	return p.Info.Deserialize(dec)
}

func (p *InfoPayload) Size(currentAlignment int) int {
	s := codec.NewSizer(currentAlignment)
	s.Array(2).Array(2).Uint8().Uint8()
	p.Info.size(s)
	return s.Size()
}

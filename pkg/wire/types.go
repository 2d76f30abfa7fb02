package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/samsamfire/goxrce/pkg/codec"
)

// Payload is implemented by every serializable XRCE type.
// Size must return the exact byte count Serialize produces when starting
// at the given alignment within the submessage.
type Payload interface {
	Serialize(enc *codec.Encoder) error
	Deserialize(dec *codec.Decoder) error
	Size(currentAlignment int) int
}

// ClientKey is the 4-byte client chosen key, unique within an agent
type ClientKey [4]byte

func (k ClientKey) Uint32() uint32 {
	return binary.LittleEndian.Uint32(k[:])
}

func ClientKeyFromUint32(v uint32) ClientKey {
	var k ClientKey
	binary.LittleEndian.PutUint32(k[:], v)
	return k
}

func (k ClientKey) String() string {
	return fmt.Sprintf("%02X%02X%02X%02X", k[0], k[1], k[2], k[3])
}

// Kinds of XRCE objects, encoded in the low nibble of the second
// ObjectId byte
type ObjectKind uint8

const (
	ObjectKindInvalid     ObjectKind = 0x00
	ObjectKindParticipant ObjectKind = 0x01
	ObjectKindTopic       ObjectKind = 0x02
	ObjectKindPublisher   ObjectKind = 0x03
	ObjectKindSubscriber  ObjectKind = 0x04
	ObjectKindDataWriter  ObjectKind = 0x05
	ObjectKindDataReader  ObjectKind = 0x06
	ObjectKindRequester   ObjectKind = 0x07
	ObjectKindReplier     ObjectKind = 0x08
	ObjectKindType        ObjectKind = 0x0A
	ObjectKindQosProfile  ObjectKind = 0x0B
	ObjectKindApplication ObjectKind = 0x0C
	ObjectKindAgent       ObjectKind = 0x0D
	ObjectKindClient      ObjectKind = 0x0E
)

var objectKindNames = map[ObjectKind]string{
	ObjectKindInvalid:     "INVALID",
	ObjectKindParticipant: "PARTICIPANT",
	ObjectKindTopic:       "TOPIC",
	ObjectKindPublisher:   "PUBLISHER",
	ObjectKindSubscriber:  "SUBSCRIBER",
	ObjectKindDataWriter:  "DATAWRITER",
	ObjectKindDataReader:  "DATAREADER",
	ObjectKindRequester:   "REQUESTER",
	ObjectKindReplier:     "REPLIER",
	ObjectKindType:        "TYPE",
	ObjectKindQosProfile:  "QOSPROFILE",
	ObjectKindApplication: "APPLICATION",
	ObjectKindAgent:       "AGENT",
	ObjectKindClient:      "CLIENT",
}

func (k ObjectKind) String() string {
	name, ok := objectKindNames[k]
	if ok {
		return name
	}
	return "UNKNOWN"
}

// ObjectId identifies an XRCE object within one client
type ObjectId [2]byte

// Kind extracts the object kind from the low nibble of the second byte
func (id ObjectId) Kind() ObjectKind {
	return ObjectKind(id[1] & 0x0F)
}

// Prefix is the id without its kind nibble
func (id ObjectId) Prefix() uint16 {
	return uint16(id[0])<<4 | uint16(id[1])>>4
}

// NewObjectId builds an object id from a 12-bit prefix and a kind
func NewObjectId(prefix uint16, kind ObjectKind) ObjectId {
	return ObjectId{byte(prefix >> 4), byte(prefix<<4) | byte(kind)}
}

func (id ObjectId) String() string {
	return fmt.Sprintf("x%02X%02X", id[0], id[1])
}

// ObjectIdInvalid and friends are the reserved object ids
var (
	ObjectIdInvalid = ObjectId{0x00, 0x00}
	ObjectIdAgent   = ObjectId{0xFF, 0xFD}
	ObjectIdClient  = ObjectId{0xFF, 0xFE}
	ObjectIdSession = ObjectId{0xFF, 0xFF}
)

// RequestId is a client-scoped request correlation id
type RequestId [2]byte

func (id RequestId) String() string {
	return fmt.Sprintf("x%02X%02X", id[0], id[1])
}

// MessageHeader starts every XRCE message. It is always serialized
// little-endian, the endianness flag of submessages does not apply to it.
// For sessions that do not carry a key the field is zero on the wire.
type MessageHeader struct {
	ClientKey  ClientKey
	SessionId  uint8
	StreamId   uint8
	SequenceNr uint16
}

// MessageHeaderSize is the fixed on-wire header size
const MessageHeaderSize = 8

func (h *MessageHeader) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteArray(h.ClientKey[:]); err != nil {
		return err
	}
	if err := enc.WriteUint8(h.SessionId); err != nil {
		return err
	}
	if err := enc.WriteUint8(h.StreamId); err != nil {
		return err
	}
	return enc.WriteUint16(h.SequenceNr)
}

func (h *MessageHeader) Deserialize(dec *codec.Decoder) error {
	if err := dec.ReadArray(h.ClientKey[:]); err != nil {
		return err
	}
	var err error
	if h.SessionId, err = dec.ReadUint8(); err != nil {
		return err
	}
	if h.StreamId, err = dec.ReadUint8(); err != nil {
		return err
	}
	h.SequenceNr, err = dec.ReadUint16()
	return err
}

func (h *MessageHeader) Size(currentAlignment int) int {
	return codec.NewSizer(currentAlignment).Array(4).Uint8().Uint8().Uint16().Size()
}

// SubmessageHeader precedes every submessage, aligned to 4 bytes relative
// to the message start
type SubmessageHeader struct {
	Id     SubmessageId
	Flags  uint8
	Length uint16
}

// SubmessageHeaderSize is the fixed on-wire submessage header size
const SubmessageHeaderSize = 4

// Endianness of the payload following this header
func (h *SubmessageHeader) Endianness() codec.Endianness {
	if h.Flags&FlagEndianness != 0 {
		return codec.LittleEndian
	}
	return codec.BigEndian
}

func (h *SubmessageHeader) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteUint8(uint8(h.Id)); err != nil {
		return err
	}
	if err := enc.WriteUint8(h.Flags); err != nil {
		return err
	}
	return enc.WriteUint16(h.Length)
}

func (h *SubmessageHeader) Deserialize(dec *codec.Decoder) error {
	id, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	h.Id = SubmessageId(id)
	if h.Flags, err = dec.ReadUint8(); err != nil {
		return err
	}
	// Length is encoded in the payload's own endianness
	dec.SetEndianness(h.Endianness())
	h.Length, err = dec.ReadUint16()
	return err
}

func (h *SubmessageHeader) Size(currentAlignment int) int {
	return codec.NewSizer(currentAlignment).Uint8().Uint8().Uint16().Size()
}

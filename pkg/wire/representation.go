package wire

import (
	"github.com/samsamfire/goxrce/pkg/codec"
)

// Formats a representation can be expressed in
type RepresentationFormat uint8

const (
	RepresentationByReference RepresentationFormat = 0x01
	RepresentationAsXmlString RepresentationFormat = 0x02
	RepresentationInBinary    RepresentationFormat = 0x03
)

var representationNames = map[RepresentationFormat]string{
	RepresentationByReference: "BY_REFERENCE",
	RepresentationAsXmlString: "AS_XML_STRING",
	RepresentationInBinary:    "IN_BINARY",
}

func (f RepresentationFormat) String() string {
	name, ok := representationNames[f]
	if ok {
		return name
	}
	return "UNKNOWN"
}

// ObjectRepresentation describes an object to be created. It is a tagged
// variant : Kind selects which of the flat fields are meaningful.
//   - every kind carries Format with Ref, Xml or Binary
//   - Participant additionally carries DomainId
//   - Topic, Publisher, Subscriber carry ParticipantId
//   - DataWriter carries PublisherId and TopicId
//   - DataReader carries SubscriberId and TopicId
//   - Requester and Replier carry ParticipantId, RequestTopicId and
//     ReplyTopicId
type ObjectRepresentation struct {
	Kind   ObjectKind
	Format RepresentationFormat
	Ref    string
	Xml    string
	Binary []byte

	DomainId       int16
	ParticipantId  ObjectId
	PublisherId    ObjectId
	SubscriberId   ObjectId
	TopicId        ObjectId
	RequestTopicId ObjectId
	ReplyTopicId   ObjectId
}

// ParentIds returns the object ids this representation depends on
func (r *ObjectRepresentation) ParentIds() []ObjectId {
	switch r.Kind {
	case ObjectKindTopic, ObjectKindPublisher, ObjectKindSubscriber:
		return []ObjectId{r.ParticipantId}
	case ObjectKindDataWriter:
		return []ObjectId{r.PublisherId, r.TopicId}
	case ObjectKindDataReader:
		return []ObjectId{r.SubscriberId, r.TopicId}
	case ObjectKindRequester, ObjectKindReplier:
		return []ObjectId{r.ParticipantId, r.RequestTopicId, r.ReplyTopicId}
	default:
		return nil
	}
}

func (r *ObjectRepresentation) serializeVariant(enc *codec.Encoder) error {
	if err := enc.WriteUint8(uint8(r.Format)); err != nil {
		return err
	}
	switch r.Format {
	case RepresentationByReference:
		return enc.WriteString(r.Ref)
	case RepresentationAsXmlString:
		return enc.WriteString(r.Xml)
	case RepresentationInBinary:
		return enc.WriteSequence(r.Binary)
	default:
		return codec.ErrDiscriminator
	}
}

func (r *ObjectRepresentation) deserializeVariant(dec *codec.Decoder) error {
	format, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	r.Format = RepresentationFormat(format)
	switch r.Format {
	case RepresentationByReference:
		r.Ref, err = dec.ReadString()
	case RepresentationAsXmlString:
		r.Xml, err = dec.ReadString()
	case RepresentationInBinary:
		r.Binary, err = dec.ReadSequence()
	default:
		return codec.ErrDiscriminator
	}
	return err
}

func (r *ObjectRepresentation) sizeVariant(s *codec.Sizer) {
	s.Uint8()
	switch r.Format {
	case RepresentationByReference:
		s.String(r.Ref)
	case RepresentationAsXmlString:
		s.String(r.Xml)
	case RepresentationInBinary:
		s.Sequence(len(r.Binary))
	}
}

// Serialize writes the kind discriminator then the selected arm
func (r *ObjectRepresentation) Serialize(enc *codec.Encoder) error {
	if err := enc.WriteUint8(uint8(r.Kind)); err != nil {
		return err
	}
	if err := r.serializeVariant(enc); err != nil {
		return err
	}
	switch r.Kind {
	case ObjectKindParticipant:
		return enc.WriteInt16(r.DomainId)
	case ObjectKindTopic, ObjectKindPublisher, ObjectKindSubscriber:
		return enc.WriteArray(r.ParticipantId[:])
	case ObjectKindDataWriter:
		if err := enc.WriteArray(r.PublisherId[:]); err != nil {
			return err
		}
		return enc.WriteArray(r.TopicId[:])
	case ObjectKindDataReader:
		if err := enc.WriteArray(r.SubscriberId[:]); err != nil {
			return err
		}
		return enc.WriteArray(r.TopicId[:])
	case ObjectKindRequester, ObjectKindReplier:
		if err := enc.WriteArray(r.ParticipantId[:]); err != nil {
			return err
		}
		if err := enc.WriteArray(r.RequestTopicId[:]); err != nil {
			return err
		}
		return enc.WriteArray(r.ReplyTopicId[:])
	default:
		return codec.ErrDiscriminator
	}
}

func (r *ObjectRepresentation) Deserialize(dec *codec.Decoder) error {
	kind, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	r.Kind = ObjectKind(kind)
	if err := r.deserializeVariant(dec); err != nil {
		return err
	}
	switch r.Kind {
	case ObjectKindParticipant:
		r.DomainId, err = dec.ReadInt16()
		return err
	case ObjectKindTopic, ObjectKindPublisher, ObjectKindSubscriber:
		return dec.ReadArray(r.ParticipantId[:])
	case ObjectKindDataWriter:
		if err := dec.ReadArray(r.PublisherId[:]); err != nil {
			return err
		}
		return dec.ReadArray(r.TopicId[:])
	case ObjectKindDataReader:
		if err := dec.ReadArray(r.SubscriberId[:]); err != nil {
			return err
		}
		return dec.ReadArray(r.TopicId[:])
	case ObjectKindRequester, ObjectKindReplier:
		if err := dec.ReadArray(r.ParticipantId[:]); err != nil {
			return err
		}
		if err := dec.ReadArray(r.RequestTopicId[:]); err != nil {
			return err
		}
		return dec.ReadArray(r.ReplyTopicId[:])
	default:
		return codec.ErrDiscriminator
	}
}

func (r *ObjectRepresentation) Size(currentAlignment int) int {
	s := codec.NewSizer(currentAlignment)
	s.Uint8()
	r.sizeVariant(s)
	switch r.Kind {
	case ObjectKindParticipant:
		s.Uint16()
	case ObjectKindTopic, ObjectKindPublisher, ObjectKindSubscriber:
		s.Array(2)
	case ObjectKindDataWriter, ObjectKindDataReader:
		s.Array(2).Array(2)
	case ObjectKindRequester, ObjectKindReplier:
		s.Array(2).Array(2).Array(2)
	}
	return s.Size()
}

// Matches compares two representations for creation-mode reuse purposes :
// same kind, same format, same description and same dependencies
func (r *ObjectRepresentation) Matches(other *ObjectRepresentation) bool {
	if r.Kind != other.Kind || r.Format != other.Format {
		return false
	}
	switch r.Format {
	case RepresentationByReference:
		if r.Ref != other.Ref {
			return false
		}
	case RepresentationAsXmlString:
		if r.Xml != other.Xml {
			return false
		}
	case RepresentationInBinary:
		if string(r.Binary) != string(other.Binary) {
			return false
		}
	}
	if r.Kind == ObjectKindParticipant && r.DomainId != other.DomainId {
		return false
	}
	mine, theirs := r.ParentIds(), other.ParentIds()
	for i := range mine {
		if mine[i] != theirs[i] {
			return false
		}
	}
	return true
}

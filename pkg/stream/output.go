package stream

import (
	"log/slog"
	"sync"

	"github.com/samsamfire/goxrce/internal/seqnum"
	"github.com/samsamfire/goxrce/pkg/codec"
	"github.com/samsamfire/goxrce/pkg/message"
	"github.com/samsamfire/goxrce/pkg/wire"
)

// Output is one outgoing stream of a session. Behavior depends on the
// stream id range : fire-and-forget (0), monotone counter (1-127) or
// sliding window with retention (128-255).
type Output struct {
	mu        sync.Mutex
	logger    *slog.Logger
	clientKey wire.ClientKey
	sessionId uint8
	streamId  uint8
	mtu       int
	window    int

	nextSeq      seqnum.SequenceNumber
	firstUnacked seqnum.SequenceNumber
	sent         bool
	// Retained serialized messages by sequence number, reliable only
	ring map[uint16][]byte
}

func NewOutput(logger *slog.Logger, clientKey wire.ClientKey, sessionId uint8, streamId uint8, mtu int, window int) *Output {
	if window <= 0 || window > Window {
		window = Window
	}
	s := &Output{
		logger:    logger.With("service", "[STRM]", "stream", streamId),
		clientKey: clientKey,
		sessionId: sessionId,
		streamId:  streamId,
		mtu:       mtu,
		window:    window,
	}
	if wire.StreamIsReliable(streamId) {
		s.ring = make(map[uint16][]byte, window)
	}
	return s
}

func (s *Output) StreamId() uint8 {
	return s.streamId
}

func (s *Output) header(seq seqnum.SequenceNumber) wire.MessageHeader {
	key := s.clientKey
	if !wire.SessionHasClientKey(s.sessionId) {
		key = wire.ClientKey{}
	}
	return wire.MessageHeader{
		ClientKey:  key,
		SessionId:  s.sessionId,
		StreamId:   s.streamId,
		SequenceNr: uint16(seq),
	}
}

// Push serializes one submessage into one or more messages ready for
// transmission. Reliable streams retain every produced message until
// acknowledged and fragment payloads exceeding the MTU.
func (s *Output) Push(id wire.SubmessageId, flags uint8, payload wire.Payload) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := payload.Size(0)
	fits := wire.MessageHeaderSize+wire.SubmessageHeaderSize+size <= s.mtu

	switch {
	case s.streamId == wire.StreamIdNone:
		if !fits {
			return nil, ErrTooLarge
		}
		out := message.NewOutput(s.header(0), s.mtu)
		if err := out.Append(id, flags, payload); err != nil {
			return nil, err
		}
		return [][]byte{out.Bytes()}, nil

	case wire.StreamIsBestEffort(s.streamId):
		if !fits {
			return nil, ErrTooLarge
		}
		s.nextSeq = s.nextSeq.Next()
		out := message.NewOutput(s.header(s.nextSeq), s.mtu)
		if err := out.Append(id, flags, payload); err != nil {
			return nil, err
		}
		return [][]byte{out.Bytes()}, nil

	default:
		if fits {
			msg, err := s.pushReliable(func(out *message.Output) error {
				return out.Append(id, flags, payload)
			})
			if err != nil {
				return nil, err
			}
			return [][]byte{msg}, nil
		}
		return s.pushFragmented(id, flags, payload, size)
	}
}

// pushReliable assigns the next sequence number, builds the message and
// retains it. Caller holds the lock.
func (s *Output) pushReliable(build func(out *message.Output) error) ([]byte, error) {
	if s.retained() >= s.window {
		return nil, ErrWindowFull
	}
	seq := s.nextSeq.Next()
	out := message.NewOutput(s.header(seq), s.mtu)
	if err := build(out); err != nil {
		return nil, err
	}
	s.nextSeq = seq
	if !s.sent || s.retained() == 0 {
		s.firstUnacked = seq
	}
	s.sent = true
	msg := out.Bytes()
	s.ring[uint16(seq)] = msg
	return msg, nil
}

// pushFragmented serializes the submessage into a scratch buffer and
// splits it across FRAGMENT submessages, one message each
func (s *Output) pushFragmented(id wire.SubmessageId, flags uint8, payload wire.Payload, size int) ([][]byte, error) {
	inner := make([]byte, wire.SubmessageHeaderSize+size)
	enc := codec.NewEncoder(inner, codec.LittleEndian)
	subHeader := wire.SubmessageHeader{
		Id:     id,
		Flags:  flags | wire.FlagEndianness,
		Length: uint16(size),
	}
	if err := subHeader.Serialize(enc); err != nil {
		return nil, err
	}
	enc.RewindOrigin()
	if err := payload.Serialize(enc); err != nil {
		return nil, err
	}
	inner = enc.Bytes()

	chunk := s.mtu - wire.MessageHeaderSize - wire.SubmessageHeaderSize
	nFragments := (len(inner) + chunk - 1) / chunk
	if s.retained()+nFragments > s.window {
		return nil, ErrWindowFull
	}

	messages := make([][]byte, 0, nFragments)
	for start := 0; start < len(inner); start += chunk {
		end := start + chunk
		fragFlags := uint8(0)
		if end >= len(inner) {
			end = len(inner)
			fragFlags = wire.FlagLastFragment
		}
		part := inner[start:end]
		msg, err := s.pushReliable(func(out *message.Output) error {
			return out.AppendRaw(wire.SubmessageFragment, fragFlags, part)
		})
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	s.logger.Debug("fragmented submessage", "id", id.String(), "fragments", nFragments)
	return messages, nil
}

func (s *Output) retained() int {
	return len(s.ring)
}

// Heartbeat returns the current [first_unacked, last_sent] bounds.
// ok is false for non reliable streams and before any transmission.
func (s *Output) Heartbeat() (wire.HeartbeatPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring == nil || !s.sent {
		return wire.HeartbeatPayload{}, false
	}
	return wire.HeartbeatPayload{
		FirstUnackedSeqNr: uint16(s.firstUnacked),
		LastUnackedSeqNr:  uint16(s.nextSeq),
		StreamId:          s.streamId,
	}, true
}

// OnAckNack advances the retention window past FirstUnackedSeqNum - 1 and
// returns the retained messages selected by the bitmap for retransmission
func (s *Output) OnAckNack(p wire.AckNackPayload) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring == nil {
		return nil
	}

	first := seqnum.SequenceNumber(p.FirstUnackedSeqNum)
	// Everything before first is acknowledged
	for seq := range s.ring {
		if seqnum.SequenceNumber(seq).Less(first) {
			delete(s.ring, seq)
		}
	}
	if s.firstUnacked.Less(first) {
		s.firstUnacked = first
	}

	var resend [][]byte
	for bit := 0; bit < Window; bit++ {
		if p.NackBitmap&(1<<bit) == 0 {
			continue
		}
		seq := first.Add(uint16(bit))
		if msg, ok := s.ring[uint16(seq)]; ok {
			resend = append(resend, msg)
		}
	}
	if len(resend) > 0 {
		s.logger.Debug("retransmitting", "count", len(resend))
	}
	return resend
}

// Reset clears retention and restarts the sequence counter
func (s *Output) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq = 0
	s.firstUnacked = 0
	s.sent = false
	if s.ring != nil {
		s.ring = make(map[uint16][]byte, s.window)
	}
}

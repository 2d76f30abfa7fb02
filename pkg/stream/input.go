package stream

import (
	"log/slog"
	"sync"

	"github.com/samsamfire/goxrce/internal/seqnum"
	"github.com/samsamfire/goxrce/pkg/wire"
)

// Input is one incoming stream of a session. The out-of-band stream
// delivers immediately, best-effort streams filter to a monotone
// subsequence, reliable streams deliver exactly once in order and buffer
// out-of-order arrivals within the ACKNACK window.
type Input struct {
	mu       sync.Mutex
	logger   *slog.Logger
	streamId uint8

	// Best-effort state
	started      bool
	lastAccepted seqnum.SequenceNumber

	// Reliable state
	nextExpected seqnum.SequenceNumber
	pending      map[uint16][]byte
	// Highest sequence number announced by a heartbeat
	hbLast  seqnum.SequenceNumber
	hbValid bool
	// An ACKNACK should be emitted at the next opportunity
	ackPending bool

	// Fragment reassembly, reliable only
	fragments    []byte
	fragmentLast bool
}

func NewInput(logger *slog.Logger, streamId uint8) *Input {
	s := &Input{
		logger:       logger.With("service", "[STRM]", "stream", streamId),
		streamId:     streamId,
		nextExpected: 1,
	}
	if wire.StreamIsReliable(streamId) {
		s.pending = make(map[uint16][]byte)
	}
	return s
}

func (s *Input) StreamId() uint8 {
	return s.streamId
}

// Receive hands one received message to the stream and returns the
// messages that became deliverable, in order
func (s *Input) Receive(seq uint16, data []byte) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.streamId == wire.StreamIdNone:
		return [][]byte{data}

	case wire.StreamIsBestEffort(s.streamId):
		sn := seqnum.SequenceNumber(seq)
		if s.started && sn.LessEqual(s.lastAccepted) {
			s.logger.Debug("dropping stale best-effort message", "seq", seq)
			return nil
		}
		s.started = true
		s.lastAccepted = sn
		return [][]byte{data}

	default:
		return s.receiveReliable(seq, data)
	}
}

func (s *Input) receiveReliable(seq uint16, data []byte) [][]byte {
	sn := seqnum.SequenceNumber(seq)
	if sn.Less(s.nextExpected) {
		// Duplicate of something already delivered
		return nil
	}
	if sn != s.nextExpected {
		// Out of order, keep it if it is within the window
		if s.nextExpected.Distance(sn) >= Window {
			s.ackPending = true
			return nil
		}
		if _, dup := s.pending[seq]; !dup {
			s.pending[seq] = data
		}
		s.ackPending = true
		return nil
	}

	// In order, deliver it and any contiguous run behind it
	delivered := [][]byte{data}
	s.nextExpected = s.nextExpected.Next()
	for {
		next, ok := s.pending[uint16(s.nextExpected)]
		if !ok {
			break
		}
		delete(s.pending, uint16(s.nextExpected))
		delivered = append(delivered, next)
		s.nextExpected = s.nextExpected.Next()
	}
	return delivered
}

// OnHeartbeat records the peer's announced bounds. An ACKNACK is
// scheduled whenever the peer is ahead of our in-order position.
func (s *Input) OnHeartbeat(p wire.HeartbeatPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return
	}
	last := seqnum.SequenceNumber(p.LastUnackedSeqNr)
	if !s.hbValid || s.hbLast.Less(last) {
		s.hbLast = last
		s.hbValid = true
	}
	s.ackPending = true
}

// AckNack builds the pending acknowledgement, if any. The bitmap marks
// the missing slots above nextExpected up to the highest sequence number
// seen or announced.
func (s *Input) AckNack() (wire.AckNackPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || !s.ackPending {
		return wire.AckNackPayload{}, false
	}
	s.ackPending = false

	highest := s.nextExpected
	if s.hbValid && highest.Less(s.hbLast) {
		highest = s.hbLast
	}
	for seq := range s.pending {
		if sn := seqnum.SequenceNumber(seq); highest.Less(sn) {
			highest = sn
		}
	}

	var bitmap uint16
	for bit := 0; bit < Window; bit++ {
		seq := s.nextExpected.Add(uint16(bit))
		if !seq.LessEqual(highest) {
			break
		}
		if _, ok := s.pending[uint16(seq)]; !ok {
			bitmap |= 1 << bit
		}
	}
	return wire.AckNackPayload{
		FirstUnackedSeqNum: uint16(s.nextExpected),
		NackBitmap:         bitmap,
		StreamId:           s.streamId,
	}, true
}

// PushFragment appends one FRAGMENT payload to the reassembly buffer.
// When the last fragment arrives the complete buffer is returned and the
// buffer is discarded.
func (s *Input) PushFragment(payload []byte, last bool) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		// Non reliable streams do not fragment
		return nil, false
	}
	s.fragments = append(s.fragments, payload...)
	if !last {
		return nil, false
	}
	complete := s.fragments
	s.fragments = nil
	s.logger.Debug("fragment reassembly complete", "size", len(complete))
	return complete, true
}

// Reset discards the out-of-order window, fragment buffer and restarts
// the expected sequence counter
func (s *Input) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.lastAccepted = 0
	s.nextExpected = 1
	s.hbValid = false
	s.ackPending = false
	s.fragments = nil
	if s.pending != nil {
		s.pending = make(map[uint16][]byte)
	}
}

package stream

import (
	"log/slog"
	"sync"

	"github.com/samsamfire/goxrce/pkg/wire"
)

// Set holds the input and output streams of one session, created lazily
// on first use and destroyed with the session
type Set struct {
	mu        sync.Mutex
	logger    *slog.Logger
	clientKey wire.ClientKey
	sessionId uint8
	mtu       int
	window    int
	inputs    map[uint8]*Input
	outputs   map[uint8]*Output
}

func NewSet(logger *slog.Logger, clientKey wire.ClientKey, sessionId uint8, mtu int, window int) *Set {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Set{
		logger:    logger,
		clientKey: clientKey,
		sessionId: sessionId,
		mtu:       mtu,
		window:    window,
		inputs:    map[uint8]*Input{},
		outputs:   map[uint8]*Output{},
	}
}

// Input returns the input stream for the given id, creating it on first use
func (s *Set) Input(streamId uint8) *Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.inputs[streamId]
	if !ok {
		in = NewInput(s.logger, streamId)
		s.inputs[streamId] = in
	}
	return in
}

// Output returns the output stream for the given id, creating it on first use
func (s *Set) Output(streamId uint8) *Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outputs[streamId]
	if !ok {
		out = NewOutput(s.logger, s.clientKey, s.sessionId, streamId, s.mtu, s.window)
		s.outputs[streamId] = out
	}
	return out
}

// EachOutput calls fn for every existing output stream
func (s *Set) EachOutput(fn func(out *Output)) {
	s.mu.Lock()
	outputs := make([]*Output, 0, len(s.outputs))
	for _, out := range s.outputs {
		outputs = append(outputs, out)
	}
	s.mu.Unlock()
	for _, out := range outputs {
		fn(out)
	}
}

// Reset resets a single stream in both directions
func (s *Set) Reset(streamId uint8) {
	s.mu.Lock()
	in := s.inputs[streamId]
	out := s.outputs[streamId]
	s.mu.Unlock()
	if in != nil {
		in.Reset()
	}
	if out != nil {
		out.Reset()
	}
}

// ResetAll resets every stream of the session
func (s *Set) ResetAll() {
	s.mu.Lock()
	ins := make([]*Input, 0, len(s.inputs))
	outs := make([]*Output, 0, len(s.outputs))
	for _, in := range s.inputs {
		ins = append(ins, in)
	}
	for _, out := range s.outputs {
		outs = append(outs, out)
	}
	s.mu.Unlock()
	for _, in := range ins {
		in.Reset()
	}
	for _, out := range outs {
		out.Reset()
	}
}

package stream

import (
	"log/slog"
	"testing"

	"github.com/samsamfire/goxrce/pkg/message"
	"github.com/samsamfire/goxrce/pkg/wire"
	"github.com/stretchr/testify/assert"
)

var testKey = wire.ClientKey{0xF1, 0xF2, 0xF3, 0xF4}

func newTestOutput(streamId uint8) *Output {
	return NewOutput(slog.Default(), testKey, 0x81, streamId, DefaultMTU, Window)
}

func newTestInput(streamId uint8) *Input {
	return NewInput(slog.Default(), streamId)
}

func heartbeatPayload() *wire.HeartbeatPayload {
	return &wire.HeartbeatPayload{FirstUnackedSeqNr: 1, LastUnackedSeqNr: 1, StreamId: 1}
}

func TestNoneStreamSequenceAlwaysZero(t *testing.T) {
	out := newTestOutput(wire.StreamIdNone)
	for i := 0; i < 3; i++ {
		msgs, err := out.Push(wire.SubmessageHeartbeat, 0, heartbeatPayload())
		assert.Nil(t, err)
		assert.Len(t, msgs, 1)
		in, err := message.Parse(msgs[0])
		assert.Nil(t, err)
		assert.EqualValues(t, 0, in.Header().SequenceNr)
	}
	_, ok := out.Heartbeat()
	assert.False(t, ok)
}

func TestBestEffortOutputIncrements(t *testing.T) {
	out := newTestOutput(0x01)
	for i := 1; i <= 3; i++ {
		msgs, err := out.Push(wire.SubmessageHeartbeat, 0, heartbeatPayload())
		assert.Nil(t, err)
		in, err := message.Parse(msgs[0])
		assert.Nil(t, err)
		assert.EqualValues(t, i, in.Header().SequenceNr)
	}
}

func TestBestEffortInputMonotone(t *testing.T) {
	in := newTestInput(0x01)
	assert.Len(t, in.Receive(1, []byte{1}), 1)
	assert.Len(t, in.Receive(5, []byte{5}), 1)
	// Stale and duplicate sequence numbers are dropped
	assert.Len(t, in.Receive(3, []byte{3}), 0)
	assert.Len(t, in.Receive(5, []byte{5}), 0)
	assert.Len(t, in.Receive(6, []byte{6}), 1)
}

func TestReliableInOrderDelivery(t *testing.T) {
	in := newTestInput(0x80)
	for seq := uint16(1); seq <= 5; seq++ {
		delivered := in.Receive(seq, []byte{byte(seq)})
		assert.Len(t, delivered, 1)
		assert.Equal(t, []byte{byte(seq)}, delivered[0])
	}
}

func TestReliableReordering(t *testing.T) {
	in := newTestInput(0x80)
	assert.Len(t, in.Receive(2, []byte{2}), 0)
	assert.Len(t, in.Receive(3, []byte{3}), 0)
	delivered := in.Receive(1, []byte{1})
	assert.Len(t, delivered, 3)
	assert.Equal(t, [][]byte{{1}, {2}, {3}}, delivered)
	// Late duplicates are dropped
	assert.Len(t, in.Receive(2, []byte{2}), 0)
}

// Scenario : ten messages, drop 3 and 7, ACKNACK recovers both, final
// delivery is 1..10 in order
func TestReliableRecoveryWithLoss(t *testing.T) {
	out := newTestOutput(0x80)
	in := newTestInput(0x80)

	var sent [][]byte
	for i := 1; i <= 10; i++ {
		msgs, err := out.Push(wire.SubmessageHeartbeat, 0, heartbeatPayload())
		assert.Nil(t, err)
		sent = append(sent, msgs[0])
	}

	var delivered [][]byte
	for i, msg := range sent {
		seq := uint16(i + 1)
		if seq == 3 || seq == 7 {
			continue
		}
		delivered = append(delivered, in.Receive(seq, msg)...)
	}
	// 1,2 delivered then 4,5,6,8,9,10 held back
	assert.Len(t, delivered, 2)

	ack, ok := in.AckNack()
	assert.True(t, ok)
	assert.EqualValues(t, 3, ack.FirstUnackedSeqNum)
	// Missing 3 (bit 0) and 7 (bit 4)
	assert.EqualValues(t, 1<<0|1<<4, ack.NackBitmap)

	resend := out.OnAckNack(ack)
	assert.Len(t, resend, 2)
	for i, msg := range resend {
		seq := []uint16{3, 7}[i]
		delivered = append(delivered, in.Receive(seq, msg)...)
	}
	assert.Len(t, delivered, 10)
	for i, msg := range delivered {
		parsed, err := message.Parse(msg)
		assert.Nil(t, err)
		assert.EqualValues(t, i+1, parsed.Header().SequenceNr)
	}
}

func TestAckNackAdvancesWindow(t *testing.T) {
	out := newTestOutput(0x80)
	for i := 0; i < Window; i++ {
		_, err := out.Push(wire.SubmessageHeartbeat, 0, heartbeatPayload())
		assert.Nil(t, err)
	}
	// Window is full now
	_, err := out.Push(wire.SubmessageHeartbeat, 0, heartbeatPayload())
	assert.Equal(t, ErrWindowFull, err)

	// Peer acknowledges everything below 10
	out.OnAckNack(wire.AckNackPayload{FirstUnackedSeqNum: 10, StreamId: 0x80})
	_, err = out.Push(wire.SubmessageHeartbeat, 0, heartbeatPayload())
	assert.Nil(t, err)

	hb, ok := out.Heartbeat()
	assert.True(t, ok)
	assert.EqualValues(t, 10, hb.FirstUnackedSeqNr)
	assert.EqualValues(t, 17, hb.LastUnackedSeqNr)
}

func TestHeartbeatTriggersAckNack(t *testing.T) {
	in := newTestInput(0x80)
	_, ok := in.AckNack()
	assert.False(t, ok)

	in.OnHeartbeat(wire.HeartbeatPayload{FirstUnackedSeqNr: 1, LastUnackedSeqNr: 4, StreamId: 0x80})
	ack, ok := in.AckNack()
	assert.True(t, ok)
	assert.EqualValues(t, 1, ack.FirstUnackedSeqNum)
	// Nothing received : slots 1..4 all missing
	assert.EqualValues(t, 0b1111, ack.NackBitmap)

	// Acknack is cleared after being built
	_, ok = in.AckNack()
	assert.False(t, ok)
}

func TestFragmentationRoundTrip(t *testing.T) {
	mtu := 512
	out := NewOutput(slog.Default(), testKey, 0x81, 0x80, mtu, Window)
	in := newTestInput(0x80)

	payload := &wire.WriteDataPayload{
		Request: wire.BaseObjectRequest{ObjectId: wire.NewObjectId(1, wire.ObjectKindDataWriter)},
		Data:    wire.DataRepresentation{Format: wire.FormatData, Data: make([]byte, 1800)},
	}
	for i := range payload.Data.Data {
		payload.Data.Data[i] = byte(i)
	}

	msgs, err := out.Push(wire.SubmessageWriteData, 0, payload)
	assert.Nil(t, err)
	assert.Len(t, msgs, 4)
	for _, msg := range msgs {
		assert.LessOrEqual(t, len(msg), mtu)
	}

	// Feed all fragments through the input stream and reassemble
	var complete []byte
	done := false
	for i, msg := range msgs {
		delivered := in.Receive(uint16(i+1), msg)
		assert.Len(t, delivered, 1)
		parsed, err := message.Parse(delivered[0])
		assert.Nil(t, err)
		assert.True(t, parsed.PrepareNext())
		header := parsed.SubmessageHeader()
		assert.Equal(t, wire.SubmessageFragment, header.Id)
		raw, err := parsed.RawPayload()
		assert.Nil(t, err)
		complete, done = in.PushFragment(raw, header.Flags&wire.FlagLastFragment != 0)
		// Partial reassembly must not be observable
		assert.Equal(t, done, i == len(msgs)-1)
	}
	assert.True(t, done)

	// The reassembled buffer is the original submessage
	body := message.ParseBody(complete)
	assert.True(t, body.PrepareNext())
	assert.Equal(t, wire.SubmessageWriteData, body.SubmessageHeader().Id)
	got := wire.WriteDataPayload{Data: wire.DataRepresentation{Format: wire.FormatData}}
	assert.Nil(t, body.Payload(&got))
	assert.Equal(t, payload.Data.Data, got.Data.Data)
}

func TestResetClearsState(t *testing.T) {
	out := newTestOutput(0x80)
	in := newTestInput(0x80)
	_, err := out.Push(wire.SubmessageHeartbeat, 0, heartbeatPayload())
	assert.Nil(t, err)
	in.Receive(2, []byte{2})
	in.PushFragment([]byte{1, 2, 3}, false)

	out.Reset()
	in.Reset()

	_, ok := out.Heartbeat()
	assert.False(t, ok)
	// Sequence numbering restarts
	msgs, err := out.Push(wire.SubmessageHeartbeat, 0, heartbeatPayload())
	assert.Nil(t, err)
	parsed, err := message.Parse(msgs[0])
	assert.Nil(t, err)
	assert.EqualValues(t, 1, parsed.Header().SequenceNr)
	assert.Len(t, in.Receive(1, []byte{1}), 1)
	// Fragment buffer was discarded
	complete, done := in.PushFragment([]byte{9}, true)
	assert.True(t, done)
	assert.Equal(t, []byte{9}, complete)
}

func TestSetLazyCreationAndReset(t *testing.T) {
	set := NewSet(slog.Default(), testKey, 0x81, DefaultMTU, Window)
	out := set.Output(0x80)
	assert.Equal(t, out, set.Output(0x80))
	in := set.Input(0x80)
	assert.Equal(t, in, set.Input(0x80))

	_, err := out.Push(wire.SubmessageHeartbeat, 0, heartbeatPayload())
	assert.Nil(t, err)
	count := 0
	set.EachOutput(func(out *Output) { count++ })
	assert.Equal(t, 1, count)

	set.ResetAll()
	_, ok := out.Heartbeat()
	assert.False(t, ok)
}

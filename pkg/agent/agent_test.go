package agent

import (
	"log/slog"
	"testing"
	"time"

	"github.com/samsamfire/goxrce/pkg/config"
	"github.com/samsamfire/goxrce/pkg/message"
	"github.com/samsamfire/goxrce/pkg/middleware/inproc"
	"github.com/samsamfire/goxrce/pkg/profile"
	"github.com/samsamfire/goxrce/pkg/stream"
	"github.com/samsamfire/goxrce/pkg/transport/pipe"
	"github.com/samsamfire/goxrce/pkg/wire"
	"github.com/stretchr/testify/assert"
)

var (
	testKey       = wire.ClientKey{0xF1, 0xF2, 0xF3, 0xF4}
	participantId = wire.NewObjectId(1, wire.ObjectKindParticipant)
	topicId       = wire.NewObjectId(1, wire.ObjectKindTopic)
	publisherId   = wire.NewObjectId(1, wire.ObjectKindPublisher)
	subscriberId  = wire.NewObjectId(1, wire.ObjectKindSubscriber)
	writerId      = wire.NewObjectId(1, wire.ObjectKindDataWriter)
	readerId      = wire.NewObjectId(1, wire.ObjectKindDataReader)
)

// harness drives a full agent through an in-memory transport, playing the
// client side with real client-side output streams
type harness struct {
	t        *testing.T
	agent    *Agent
	trans    *pipe.Transport
	mw       *inproc.Middleware
	endpoint *pipe.Endpoint
	outs     map[uint8]*stream.Output
	requests uint16
}

func newHarness(t *testing.T) *harness {
	logger := slog.Default()
	cfg := config.Default()
	cfg.LivelinessDeadThreshold = 50 * time.Millisecond

	store := profile.Default(logger)
	store.Add(&profile.Profile{Name: "helloworld_topic", Kind: "topic", Topic: "HelloWorld"})
	mw := inproc.New(logger, store)
	trans := pipe.NewTransport(logger)
	a := NewWithTransport(logger, cfg, trans, mw)
	t.Cleanup(mw.Close)

	return &harness{
		t:        t,
		agent:    a,
		trans:    trans,
		mw:       mw,
		endpoint: trans.Connect("client-1"),
		outs:     map[uint8]*stream.Output{},
	}
}

func (h *harness) clientStream(streamId uint8) *stream.Output {
	out, ok := h.outs[streamId]
	if !ok {
		out = stream.NewOutput(slog.Default(), testKey, 0x81, streamId, config.DefaultOutputMTU, stream.Window)
		h.outs[streamId] = out
	}
	return out
}

// sendSub pushes one submessage through a client side stream into the agent
func (h *harness) sendSub(streamId uint8, id wire.SubmessageId, flags uint8, payload wire.Payload) {
	h.t.Helper()
	msgs, err := h.clientStream(streamId).Push(id, flags, payload)
	assert.Nil(h.t, err)
	for _, msg := range msgs {
		h.trans.Inject(h.endpoint, msg)
	}
}

// sendRaw injects a hand built message
func (h *harness) sendRaw(data []byte) {
	h.trans.Inject(h.endpoint, data)
}

func (h *harness) nextRequestId() wire.RequestId {
	h.requests++
	return wire.RequestId{byte(h.requests >> 8), byte(h.requests)}
}

// reply pops the next message the agent sent and returns it parsed,
// positioned on its first submessage
func (h *harness) reply() *message.Input {
	h.t.Helper()
	select {
	case data := <-h.endpoint.Out:
		input, err := message.Parse(data)
		assert.Nil(h.t, err)
		assert.True(h.t, input.PrepareNext())
		return input
	case <-time.After(time.Second):
		h.t.Fatal("expected a reply, got none")
		return nil
	}
}

// replyOfKind drains replies until one starts with the wanted submessage
func (h *harness) replyOfKind(id wire.SubmessageId) *message.Input {
	h.t.Helper()
	for i := 0; i < 16; i++ {
		input := h.reply()
		if input.SubmessageHeader().Id == id {
			return input
		}
	}
	h.t.Fatalf("no %s reply received", id.String())
	return nil
}

func (h *harness) noReply() {
	h.t.Helper()
	select {
	case data := <-h.endpoint.Out:
		input, err := message.Parse(data)
		assert.Nil(h.t, err)
		input.PrepareNext()
		h.t.Fatalf("unexpected reply %s", input.SubmessageHeader().Id.String())
	case <-time.After(20 * time.Millisecond):
	}
}

// createSession performs the CREATE_CLIENT handshake
func (h *harness) createSession() {
	h.t.Helper()
	status := h.createClient(wire.Cookie, wire.Version)
	assert.Equal(h.t, wire.StatusOk, status)
}

func (h *harness) createClient(cookie [4]byte, version [2]byte) wire.StatusValue {
	h.t.Helper()
	out := message.NewOutput(wire.MessageHeader{
		ClientKey: testKey,
		SessionId: wire.SessionIdNoneWithClientKey,
		StreamId:  wire.StreamIdNone,
	}, config.DefaultOutputMTU)
	payload := wire.CreateClientPayload{Representation: wire.ClientRepresentation{
		XrceCookie:   cookie,
		XrceVersion:  version,
		XrceVendorId: [2]byte{0x01, 0x01},
		ClientKey:    testKey,
		SessionId:    0x81,
	}}
	assert.Nil(h.t, out.Append(wire.SubmessageCreateClient, 0, &payload))
	h.sendRaw(out.Bytes())

	reply := h.replyOfKind(wire.SubmessageStatusAgent)
	status := wire.StatusAgentPayload{}
	assert.Nil(h.t, reply.Payload(&status))
	return status.Result.Status
}

// create issues a CREATE on the builtin reliable stream and returns the
// resulting status
func (h *harness) create(flags uint8, id wire.ObjectId, repr wire.ObjectRepresentation) wire.StatusValue {
	h.t.Helper()
	payload := wire.CreatePayload{
		Request:        wire.BaseObjectRequest{RequestId: h.nextRequestId(), ObjectId: id},
		Representation: repr,
	}
	h.sendSub(wire.StreamIdBuiltinRel, wire.SubmessageCreate, flags, &payload)

	reply := h.replyOfKind(wire.SubmessageStatus)
	status := wire.StatusPayload{}
	assert.Nil(h.t, reply.Payload(&status))
	assert.Equal(h.t, payload.Request.RequestId, status.Reply.RelatedRequest.RequestId)
	return status.Reply.Result.Status
}

func (h *harness) createHierarchy() {
	h.t.Helper()
	assert.Equal(h.t, wire.StatusOk, h.create(0, participantId, wire.ObjectRepresentation{
		Kind: wire.ObjectKindParticipant, Format: wire.RepresentationByReference,
		Ref: "default_xrce_participant",
	}))
	assert.Equal(h.t, wire.StatusOk, h.create(0, topicId, wire.ObjectRepresentation{
		Kind: wire.ObjectKindTopic, Format: wire.RepresentationByReference,
		Ref: "helloworld_topic", ParticipantId: participantId,
	}))
	assert.Equal(h.t, wire.StatusOk, h.create(0, publisherId, wire.ObjectRepresentation{
		Kind: wire.ObjectKindPublisher, Format: wire.RepresentationAsXmlString,
		ParticipantId: participantId,
	}))
	assert.Equal(h.t, wire.StatusOk, h.create(0, subscriberId, wire.ObjectRepresentation{
		Kind: wire.ObjectKindSubscriber, Format: wire.RepresentationAsXmlString,
		ParticipantId: participantId,
	}))
	assert.Equal(h.t, wire.StatusOk, h.create(0, writerId, wire.ObjectRepresentation{
		Kind: wire.ObjectKindDataWriter, Format: wire.RepresentationAsXmlString,
		PublisherId: publisherId, TopicId: topicId,
	}))
	assert.Equal(h.t, wire.StatusOk, h.create(0, readerId, wire.ObjectRepresentation{
		Kind: wire.ObjectKindDataReader, Format: wire.RepresentationAsXmlString,
		SubscriberId: subscriberId, TopicId: topicId,
	}))
}

// Scenario : session establishment answered by STATUS_AGENT on stream 0
func TestCreateClient(t *testing.T) {
	h := newHarness(t)
	h.createSession()
	assert.Equal(t, 1, h.agent.Root().Len())

	// Same session id : idempotent
	assert.Equal(t, wire.StatusOk, h.createClient(wire.Cookie, wire.Version))
	assert.Equal(t, 1, h.agent.Root().Len())
}

func TestCreateClientBadCookie(t *testing.T) {
	h := newHarness(t)
	status := h.createClient([4]byte{'N', 'O', 'P', 'E'}, wire.Version)
	assert.Equal(t, wire.StatusErrInvalidData, status)
	assert.Equal(t, 0, h.agent.Root().Len())
}

func TestCreateClientVersionMismatch(t *testing.T) {
	h := newHarness(t)
	// Minor difference is tolerated
	assert.Equal(t, wire.StatusOk, h.createClient(wire.Cookie, [2]byte{0x01, 0x05}))
	// Major difference is not
	h2 := newHarness(t)
	assert.Equal(t, wire.StatusErrIncompatible, h2.createClient(wire.Cookie, [2]byte{0x02, 0x00}))
}

// Scenario : CREATE Participant through every creation mode row
func TestCreateParticipantModes(t *testing.T) {
	h := newHarness(t)
	h.createSession()

	same := wire.ObjectRepresentation{
		Kind: wire.ObjectKindParticipant, Format: wire.RepresentationByReference,
		Ref: "default_xrce_participant",
	}
	other := same
	other.Ref = "other_participant"

	assert.Equal(t, wire.StatusOk, h.create(0, participantId, same))
	assert.Equal(t, wire.StatusErrAlreadyExists, h.create(0, participantId, same))
	assert.Equal(t, wire.StatusOkMatched, h.create(wire.FlagReuse, participantId, same))
	assert.Equal(t, wire.StatusErrMismatch, h.create(wire.FlagReuse, participantId, other))
}

// Scenario : cascade delete of a participant kills its writer
func TestCascadeDeleteSession(t *testing.T) {
	h := newHarness(t)
	h.createSession()
	h.createHierarchy()

	payload := wire.DeletePayload{Request: wire.BaseObjectRequest{
		RequestId: h.nextRequestId(), ObjectId: participantId,
	}}
	h.sendSub(wire.StreamIdBuiltinRel, wire.SubmessageDelete, 0, &payload)
	reply := h.replyOfKind(wire.SubmessageStatus)
	status := wire.StatusPayload{}
	assert.Nil(t, reply.Payload(&status))
	assert.Equal(t, wire.StatusOk, status.Reply.Result.Status)

	proxy, ok := h.agent.Root().GetClient(testKey)
	assert.True(t, ok)
	// The writer went down with its ancestors
	assert.Equal(t, wire.StatusErrUnknownRef, proxy.Graph().Write(writerId, []byte{1}))
}

// Scenario : GET_INFO without a session answers availability 1
func TestGetInfoOutOfSession(t *testing.T) {
	h := newHarness(t)
	out := message.NewOutput(wire.MessageHeader{
		SessionId: wire.SessionIdNoneWithoutClientKey,
		StreamId:  wire.StreamIdNone,
	}, config.DefaultOutputMTU)
	payload := wire.GetInfoPayload{InfoMask: wire.InfoActivity | wire.InfoConfig}
	assert.Nil(t, out.Append(wire.SubmessageGetInfo, 0, &payload))
	h.sendRaw(out.Bytes())

	reply := h.replyOfKind(wire.SubmessageInfo)
	info := wire.InfoPayload{}
	assert.Nil(t, reply.Payload(&info))
	assert.True(t, info.Info.HasActivity)
	assert.EqualValues(t, 1, info.Info.Activity.Availability)
	assert.True(t, info.Info.HasConfig)
	assert.Equal(t, wire.Cookie, info.Info.Config.XrceCookie)
}

func TestWriteDataReachesReader(t *testing.T) {
	h := newHarness(t)
	h.createSession()
	h.createHierarchy()

	proxy, _ := h.agent.Root().GetClient(testKey)
	received := make(chan []byte, 1)
	cancel, status := proxy.Graph().Read(readerId, func(data []byte) { received <- data })
	assert.Equal(t, wire.StatusOk, status)
	defer cancel()

	payload := wire.WriteDataPayload{
		Request: wire.BaseObjectRequest{RequestId: h.nextRequestId(), ObjectId: writerId},
		Data:    wire.DataRepresentation{Format: wire.FormatData, Data: []byte("hello")},
	}
	h.sendSub(wire.StreamIdBuiltinRel, wire.SubmessageWriteData, 0, &payload)

	select {
	case data := <-received:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(time.Second):
		t.Fatal("sample never reached the reader")
	}
}

// Scenario : a 1800 byte WRITE_DATA fragments into 4 messages and is
// dispatched exactly once after reassembly
func TestFragmentedWriteData(t *testing.T) {
	h := newHarness(t)
	h.createSession()
	h.createHierarchy()

	proxy, _ := h.agent.Root().GetClient(testKey)
	received := make(chan []byte, 1)
	cancel, status := proxy.Graph().Read(readerId, func(data []byte) { received <- data })
	assert.Equal(t, wire.StatusOk, status)
	defer cancel()

	big := make([]byte, 1800)
	for i := range big {
		big[i] = byte(i)
	}
	payload := wire.WriteDataPayload{
		Request: wire.BaseObjectRequest{RequestId: h.nextRequestId(), ObjectId: writerId},
		Data:    wire.DataRepresentation{Format: wire.FormatData, Data: big},
	}
	msgs, err := h.clientStream(wire.StreamIdBuiltinRel).Push(wire.SubmessageWriteData, 0, &payload)
	assert.Nil(t, err)
	assert.Len(t, msgs, 4)
	for _, msg := range msgs {
		h.sendRaw(msg)
	}

	select {
	case data := <-received:
		assert.Equal(t, big, data)
	case <-time.After(time.Second):
		t.Fatal("fragmented sample never reached the reader")
	}
}

func TestReadDataDeliversData(t *testing.T) {
	h := newHarness(t)
	h.createSession()
	h.createHierarchy()

	read := wire.ReadDataPayload{
		Request: wire.BaseObjectRequest{RequestId: h.nextRequestId(), ObjectId: readerId},
		Spec: wire.ReadSpecification{
			PreferredStreamId: wire.StreamIdBuiltinRel,
			DataFormat:        wire.FormatData,
		},
	}
	h.sendSub(wire.StreamIdBuiltinRel, wire.SubmessageReadData, 0, &read)
	// Success : no STATUS reply
	h.noReply()

	write := wire.WriteDataPayload{
		Request: wire.BaseObjectRequest{RequestId: h.nextRequestId(), ObjectId: writerId},
		Data:    wire.DataRepresentation{Format: wire.FormatData, Data: []byte("ping")},
	}
	h.sendSub(wire.StreamIdBuiltinRel, wire.SubmessageWriteData, 0, &write)

	reply := h.replyOfKind(wire.SubmessageData)
	data := wire.DataPayload{Data: wire.DataRepresentation{Format: wire.FormatData}}
	assert.Nil(t, reply.Payload(&data))
	assert.Equal(t, []byte("ping"), data.Data.Data)
	assert.Equal(t, readerId, data.Request.ObjectId)
}

func TestReadDataUnknownObject(t *testing.T) {
	h := newHarness(t)
	h.createSession()

	read := wire.ReadDataPayload{
		Request: wire.BaseObjectRequest{RequestId: h.nextRequestId(), ObjectId: readerId},
		Spec:    wire.ReadSpecification{DataFormat: wire.FormatData},
	}
	h.sendSub(wire.StreamIdBuiltinRel, wire.SubmessageReadData, 0, &read)

	reply := h.replyOfKind(wire.SubmessageStatus)
	status := wire.StatusPayload{}
	assert.Nil(t, reply.Payload(&status))
	assert.Equal(t, wire.StatusErrUnknownRef, status.Reply.Result.Status)
}

func TestHeartbeatTriggersAckNackReply(t *testing.T) {
	h := newHarness(t)
	h.createSession()

	// Claim messages 1..2 exist but never send them
	hb := wire.HeartbeatPayload{FirstUnackedSeqNr: 1, LastUnackedSeqNr: 2, StreamId: 0x80}
	h.sendSub(wire.StreamIdNone, wire.SubmessageHeartbeat, 0, &hb)

	reply := h.replyOfKind(wire.SubmessageAckNack)
	ack := wire.AckNackPayload{}
	assert.Nil(t, reply.Payload(&ack))
	assert.EqualValues(t, 1, ack.FirstUnackedSeqNum)
	assert.EqualValues(t, 0b11, ack.NackBitmap)
	assert.EqualValues(t, 0x80, ack.StreamId)
}

func TestAckNackTriggersRetransmission(t *testing.T) {
	h := newHarness(t)
	h.createSession()
	h.createHierarchy()
	// The agent now retains STATUS replies on its reliable output stream.
	// Claim the first was lost.
	ack := wire.AckNackPayload{FirstUnackedSeqNum: 1, NackBitmap: 0b1, StreamId: 0x80}
	h.sendSub(wire.StreamIdNone, wire.SubmessageAckNack, 0, &ack)

	reply := h.replyOfKind(wire.SubmessageStatus)
	assert.EqualValues(t, 1, reply.Header().SequenceNr)
}

func TestUnknownSubmessagePreservesSession(t *testing.T) {
	h := newHarness(t)
	h.createSession()

	// Hand craft a message with a bogus submessage id
	out := message.NewOutput(wire.MessageHeader{
		ClientKey: testKey, SessionId: 0x81, StreamId: wire.StreamIdNone,
	}, config.DefaultOutputMTU)
	assert.Nil(t, out.AppendRaw(wire.SubmessageId(0x7F), 0, []byte{1, 2, 3}))
	h.sendRaw(out.Bytes())

	// Session still works
	assert.Equal(t, wire.StatusOk, h.create(0, participantId, wire.ObjectRepresentation{
		Kind: wire.ObjectKindParticipant, Format: wire.RepresentationByReference,
		Ref: "default_xrce_participant",
	}))
}

func TestSessionReset(t *testing.T) {
	h := newHarness(t)
	h.createSession()
	h.createHierarchy()

	// RESET on stream 0 resets the whole session's streams
	out := message.NewOutput(wire.MessageHeader{
		ClientKey: testKey, SessionId: 0x81, StreamId: wire.StreamIdNone,
	}, config.DefaultOutputMTU)
	assert.Nil(t, out.AppendRaw(wire.SubmessageReset, 0, nil))
	h.sendRaw(out.Bytes())
	proxy, ok := h.agent.Root().GetClient(testKey)
	assert.True(t, ok)
	// The agent's reliable output restarted
	_, hasHb := proxy.Streams().Output(wire.StreamIdBuiltinRel).Heartbeat()
	assert.False(t, hasHb)
}

func TestDeleteClientDestroysSession(t *testing.T) {
	h := newHarness(t)
	h.createSession()

	payload := wire.DeletePayload{Request: wire.BaseObjectRequest{
		RequestId: h.nextRequestId(), ObjectId: wire.ObjectIdClient,
	}}
	h.sendSub(wire.StreamIdBuiltinRel, wire.SubmessageDelete, 0, &payload)

	reply := h.replyOfKind(wire.SubmessageStatus)
	status := wire.StatusPayload{}
	assert.Nil(t, reply.Payload(&status))
	assert.Equal(t, wire.StatusOk, status.Reply.Result.Status)
	assert.Equal(t, 0, h.agent.Root().Len())
}

func TestTimestampReply(t *testing.T) {
	h := newHarness(t)
	h.createSession()

	transmit := wire.Time{Seconds: 1234, Nanoseconds: 5678}
	h.sendSub(wire.StreamIdNone, wire.SubmessageTimestamp, 0, &wire.TimestampPayload{
		TransmitTimestamp: transmit,
	})

	reply := h.replyOfKind(wire.SubmessageTimestampReply)
	ts := wire.TimestampReplyPayload{}
	assert.Nil(t, reply.Payload(&ts))
	assert.Equal(t, transmit, ts.OriginateTimestamp)
	assert.NotZero(t, ts.ReceiveTimestamp.Seconds)
}

// Liveliness : a silent session is probed then removed
func TestLivelinessRemoval(t *testing.T) {
	h := newHarness(t)
	h.createSession()
	assert.Equal(t, 1, h.agent.Root().Len())

	// Let the dead threshold expire
	time.Sleep(60 * time.Millisecond)

	// First scan : dead, probe goes out
	h.agent.Processor().LivelinessTick()
	probe := h.replyOfKind(wire.SubmessageGetInfo)
	assert.NotNil(t, probe)
	assert.Equal(t, 1, h.agent.Root().Len())

	// Remaining probe attempts then removal
	h.agent.Processor().LivelinessTick()
	h.agent.Processor().LivelinessTick()
	h.agent.Processor().LivelinessTick()
	assert.Equal(t, 0, h.agent.Root().Len())
}

func TestHeartbeatTickAnnouncesWindow(t *testing.T) {
	h := newHarness(t)
	h.createSession()
	h.createHierarchy()

	// STATUS replies are retained on the reliable output stream, the tick
	// must announce them
	h.agent.Processor().HeartbeatTick()
	reply := h.replyOfKind(wire.SubmessageHeartbeat)
	hb := wire.HeartbeatPayload{}
	assert.Nil(t, reply.Payload(&hb))
	assert.EqualValues(t, 0x80, hb.StreamId)
	assert.EqualValues(t, 1, hb.FirstUnackedSeqNr)
	assert.EqualValues(t, 6, hb.LastUnackedSeqNr)
}

func TestMaxClients(t *testing.T) {
	logger := slog.Default()
	cfg := config.Default()
	cfg.MaxClients = 1
	mw := inproc.New(logger, profile.Default(logger))
	defer mw.Close()
	trans := pipe.NewTransport(logger)
	a := NewWithTransport(logger, cfg, trans, mw)

	first, status := a.Root().CreateClient(wire.ClientRepresentation{
		XrceCookie: wire.Cookie, XrceVersion: wire.Version,
		ClientKey: wire.ClientKey{1, 1, 1, 1}, SessionId: 0x81,
	})
	assert.NotNil(t, first)
	assert.Equal(t, wire.StatusOk, status)

	_, status = a.Root().CreateClient(wire.ClientRepresentation{
		XrceCookie: wire.Cookie, XrceVersion: wire.Version,
		ClientKey: wire.ClientKey{2, 2, 2, 2}, SessionId: 0x81,
	})
	assert.Equal(t, wire.StatusErrResources, status)
}

func TestSessionIdChangeRebindsClient(t *testing.T) {
	logger := slog.Default()
	cfg := config.Default()
	mw := inproc.New(logger, profile.Default(logger))
	defer mw.Close()
	trans := pipe.NewTransport(logger)
	a := NewWithTransport(logger, cfg, trans, mw)

	repr := wire.ClientRepresentation{
		XrceCookie: wire.Cookie, XrceVersion: wire.Version,
		ClientKey: testKey, SessionId: 0x81,
	}
	first, status := a.Root().CreateClient(repr)
	assert.Equal(t, wire.StatusOk, status)

	repr.SessionId = 0x82
	second, status := a.Root().CreateClient(repr)
	assert.Equal(t, wire.StatusOk, status)
	assert.NotEqual(t, first.Token(), second.Token())
	assert.Equal(t, 1, a.Root().Len())
}

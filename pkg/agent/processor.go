package agent

import (
	"log/slog"
	"time"

	xrce "github.com/samsamfire/goxrce"
	"github.com/samsamfire/goxrce/internal/metrics"
	"github.com/samsamfire/goxrce/pkg/client"
	"github.com/samsamfire/goxrce/pkg/config"
	"github.com/samsamfire/goxrce/pkg/message"
	"github.com/samsamfire/goxrce/pkg/object"
	"github.com/samsamfire/goxrce/pkg/stream"
	"github.com/samsamfire/goxrce/pkg/wire"
)

// Processor consumes framed packets from the transport, routes their
// submessages through the owning client's streams and emits the replies.
// It implements [xrce.PacketListener].
type Processor struct {
	logger    *slog.Logger
	cfg       *config.Config
	root      *Root
	transport xrce.Transport
	binding   *xrce.SessionBinding
	metrics   *metrics.Collectors
}

func NewProcessor(logger *slog.Logger, cfg *config.Config, root *Root, transport xrce.Transport, m *metrics.Collectors) *Processor {
	return &Processor{
		logger:    logger.With("service", "[PROC]"),
		cfg:       cfg,
		root:      root,
		transport: transport,
		binding:   xrce.NewSessionBinding(),
		metrics:   m,
	}
}

// Handle processes one received packet. Not blocking : read jobs are
// spawned, everything else completes inline.
func (p *Processor) Handle(packet xrce.Packet) {
	p.metrics.MessagesIn.Inc()
	input, err := message.Parse(packet.Data)
	if err != nil {
		p.metrics.MalformedMessages.Inc()
		p.logger.Warn("discarding unparseable packet", "source", packet.Source.String(), "err", err)
		return
	}
	header := input.Header()

	// Session establishment and agent discovery work without a session
	if wire.SessionIsNone(header.SessionId) {
		p.handleOutOfSession(packet.Source, input)
		return
	}

	proxy, ok := p.resolveClient(packet.Source, header)
	if !ok {
		p.logger.Warn("no session for packet", "source", packet.Source.String())
		return
	}
	proxy.Touch()

	// Refresh the endpoint binding, clients may roam between addresses
	p.binding.Bind(packet.Source, proxy.Key().Uint32())

	in := proxy.Streams().Input(header.StreamId)
	for _, delivered := range in.Receive(header.SequenceNr, packet.Data) {
		p.dispatchMessage(proxy, packet.Source, delivered)
	}

	// Anything the injection made pending : gap driven ACKNACK
	p.flushAckNack(proxy, packet.Source, in)
}

// resolveClient finds the proxy client a message belongs to, either by
// the header's key or by the transport endpoint
func (p *Processor) resolveClient(source xrce.Endpoint, header wire.MessageHeader) (*client.ProxyClient, bool) {
	if wire.SessionHasClientKey(header.SessionId) {
		return p.root.GetClient(header.ClientKey)
	}
	key, ok := p.binding.ClientKey(source)
	if !ok {
		return nil, false
	}
	return p.root.GetClient(wire.ClientKeyFromUint32(key))
}

// dispatchMessage walks the submessages of one in-order message
func (p *Processor) dispatchMessage(proxy *client.ProxyClient, source xrce.Endpoint, data []byte) {
	input, err := message.Parse(data)
	if err != nil {
		p.metrics.MalformedMessages.Inc()
		return
	}
	p.dispatchSubmessages(proxy, source, input, input.Header().StreamId)
}

// dispatchSubmessages drains a submessage cursor, input may be a full
// message or a reassembled fragment body
func (p *Processor) dispatchSubmessages(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input, streamId uint8) {
	for input.PrepareNext() {
		subHeader := input.SubmessageHeader()
		p.metrics.Submessages.WithLabelValues(subHeader.Id.String()).Inc()
		if !p.dispatch(proxy, source, input, subHeader, streamId) {
			// Fatal for the rest of this message, session survives
			p.metrics.MalformedMessages.Inc()
			return
		}
	}
}

// dispatch handles one submessage, returns false on a parse error that
// discards the remainder of the message
func (p *Processor) dispatch(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input, subHeader wire.SubmessageHeader, streamId uint8) bool {
	switch subHeader.Id {
	case wire.SubmessageCreate:
		return p.handleCreate(proxy, source, input, subHeader, streamId)
	case wire.SubmessageDelete:
		return p.handleDelete(proxy, source, input, streamId)
	case wire.SubmessageGetInfo:
		return p.handleGetInfo(proxy, source, input)
	case wire.SubmessageWriteData:
		return p.handleWriteData(proxy, input, subHeader)
	case wire.SubmessageReadData:
		return p.handleReadData(proxy, source, input, streamId)
	case wire.SubmessageAckNack:
		return p.handleAckNack(proxy, source, input)
	case wire.SubmessageHeartbeat:
		return p.handleHeartbeat(proxy, source, input)
	case wire.SubmessageReset:
		return p.handleReset(proxy, streamId)
	case wire.SubmessageFragment:
		return p.handleFragment(proxy, source, input, subHeader, streamId)
	case wire.SubmessageTimestamp:
		return p.handleTimestamp(proxy, source, input)
	case wire.SubmessageCreateClient:
		// Repeated CREATE_CLIENT inside a session is answered idempotently
		p.handleCreateClient(source, input)
		return true
	default:
		p.logger.Warn("unknown submessage id", "id", uint8(subHeader.Id))
		return false
	}
}

// ----------------------------------------------------------------------
// Out of session handling
// ----------------------------------------------------------------------

func (p *Processor) handleOutOfSession(source xrce.Endpoint, input *message.Input) {
	for input.PrepareNext() {
		switch input.SubmessageHeader().Id {
		case wire.SubmessageCreateClient:
			p.handleCreateClient(source, input)
		case wire.SubmessageGetInfo:
			p.handleAgentGetInfo(source, input)
		default:
			p.logger.Warn("submessage requires a session",
				"id", input.SubmessageHeader().Id.String(), "source", source.String())
			return
		}
	}
}

func (p *Processor) handleCreateClient(source xrce.Endpoint, input *message.Input) {
	payload := wire.CreateClientPayload{}
	if err := input.Payload(&payload); err != nil {
		p.metrics.MalformedMessages.Inc()
		return
	}
	proxy, status := p.root.CreateClient(payload.Representation)
	if status == wire.StatusOk && proxy != nil {
		p.binding.Bind(source, proxy.Key().Uint32())
	}

	reply := wire.StatusAgentPayload{
		Result:    wire.ResultStatus{Status: status},
		AgentInfo: p.root.AgentInfo(),
	}
	p.sendOnNone(source, payload.Representation.ClientKey, wire.SubmessageStatusAgent, 0, &reply)
}

// handleAgentGetInfo serves agent discovery without a session
func (p *Processor) handleAgentGetInfo(source xrce.Endpoint, input *message.Input) {
	payload := wire.GetInfoPayload{}
	if err := input.Payload(&payload); err != nil {
		p.metrics.MalformedMessages.Inc()
		return
	}
	reply := p.buildInfo(payload)
	p.sendOnNone(source, wire.ClientKey{}, wire.SubmessageInfo, 0, &reply)
}

func (p *Processor) buildInfo(request wire.GetInfoPayload) wire.InfoPayload {
	reply := wire.InfoPayload{
		Reply: wire.BaseObjectReply{
			RelatedRequest: request.Request,
			Result:         wire.ResultStatus{Status: wire.StatusOk},
		},
	}
	if request.InfoMask&wire.InfoConfig != 0 {
		reply.Info.HasConfig = true
		reply.Info.Config = p.root.AgentInfo()
	}
	if request.InfoMask&wire.InfoActivity != 0 {
		reply.Info.HasActivity = true
		reply.Info.Activity = wire.AgentActivityInfo{
			Availability: 1,
			Addresses: []wire.TransportAddress{
				{Format: wire.AddressFormatString, Address: p.transport.LocalAddr()},
			},
		}
	}
	return reply
}

// ----------------------------------------------------------------------
// Session scoped handlers
// ----------------------------------------------------------------------

// replyStreamId selects where STATUS replies go : the builtin reliable
// stream when the request came in reliably, the builtin best-effort
// stream otherwise
func replyStreamId(inbound uint8) uint8 {
	if wire.StreamIsReliable(inbound) {
		return wire.StreamIdBuiltinRel
	}
	return wire.StreamIdBuiltinBestEff
}

func (p *Processor) handleCreate(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input, subHeader wire.SubmessageHeader, streamId uint8) bool {
	payload := wire.CreatePayload{}
	if err := input.Payload(&payload); err != nil {
		return false
	}
	mode := object.CreationModeFromFlags(subHeader.Flags)
	status := proxy.Graph().Create(mode, payload.Request.ObjectId, payload.Representation)

	reply := wire.StatusPayload{Reply: wire.BaseObjectReply{
		RelatedRequest: payload.Request,
		Result:         wire.ResultStatus{Status: status},
	}}
	p.sendOnStream(proxy, source, replyStreamId(streamId), wire.SubmessageStatus, 0, &reply)
	return true
}

func (p *Processor) handleDelete(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input, streamId uint8) bool {
	payload := wire.DeletePayload{}
	if err := input.Payload(&payload); err != nil {
		return false
	}

	var status wire.StatusValue
	if payload.Request.ObjectId == wire.ObjectIdClient ||
		payload.Request.ObjectId.Kind() == wire.ObjectKindClient {
		// Deleting the client destroys the whole session
		status = p.root.DeleteClient(proxy.Key())
		p.binding.Unbind(proxy.Key().Uint32())
		reply := wire.StatusPayload{Reply: wire.BaseObjectReply{
			RelatedRequest: payload.Request,
			Result:         wire.ResultStatus{Status: status},
		}}
		p.sendOnNone(source, proxy.Key(), wire.SubmessageStatus, 0, &reply)
		return true
	}

	status = proxy.Graph().Delete(payload.Request.ObjectId)
	reply := wire.StatusPayload{Reply: wire.BaseObjectReply{
		RelatedRequest: payload.Request,
		Result:         wire.ResultStatus{Status: status},
	}}
	p.sendOnStream(proxy, source, replyStreamId(streamId), wire.SubmessageStatus, 0, &reply)
	return true
}

func (p *Processor) handleGetInfo(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input) bool {
	payload := wire.GetInfoPayload{}
	if err := input.Payload(&payload); err != nil {
		return false
	}
	reply := p.buildInfo(payload)
	p.sendOnStream(proxy, source, wire.StreamIdNone, wire.SubmessageInfo, 0, &reply)
	return true
}

func (p *Processor) handleWriteData(proxy *client.ProxyClient, input *message.Input, subHeader wire.SubmessageHeader) bool {
	format := wire.DataFormat(subHeader.Flags & wire.FlagFormatMask)
	payload := wire.WriteDataPayload{Data: wire.DataRepresentation{Format: format}}
	if err := input.Payload(&payload); err != nil {
		return false
	}

	graph := proxy.Graph()
	switch format {
	case wire.FormatData:
		graph.Write(payload.Request.ObjectId, payload.Data.Data)
	case wire.FormatSample:
		graph.Write(payload.Request.ObjectId, payload.Data.Sample.Data)
	case wire.FormatDataSeq:
		for _, data := range payload.Data.DataSeq {
			graph.Write(payload.Request.ObjectId, data)
		}
	case wire.FormatSampleSeq, wire.FormatPackedSamples:
		for i := range payload.Data.Samples {
			graph.Write(payload.Request.ObjectId, payload.Data.Samples[i].Data)
		}
	default:
		return false
	}
	// WRITE_DATA never generates a reply
	return true
}

func (p *Processor) handleReadData(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input, streamId uint8) bool {
	payload := wire.ReadDataPayload{}
	if err := input.Payload(&payload); err != nil {
		return false
	}
	status := p.startReadJob(proxy, source, payload)
	if status == wire.StatusOk {
		// Data will flow, no status reply
		return true
	}
	reply := wire.StatusPayload{Reply: wire.BaseObjectReply{
		RelatedRequest: payload.Request,
		Result:         wire.ResultStatus{Status: status},
	}}
	p.sendOnStream(proxy, source, replyStreamId(streamId), wire.SubmessageStatus, 0, &reply)
	return true
}

func (p *Processor) handleAckNack(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input) bool {
	payload := wire.AckNackPayload{}
	if err := input.Payload(&payload); err != nil {
		return false
	}
	out := proxy.Streams().Output(payload.StreamId)
	resend := out.OnAckNack(payload)
	for _, msg := range resend {
		p.metrics.Retransmissions.Inc()
		p.send(source, msg)
	}
	return true
}

func (p *Processor) handleHeartbeat(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input) bool {
	payload := wire.HeartbeatPayload{}
	if err := input.Payload(&payload); err != nil {
		return false
	}
	in := proxy.Streams().Input(payload.StreamId)
	in.OnHeartbeat(payload)
	p.flushAckNack(proxy, source, in)
	return true
}

func (p *Processor) handleReset(proxy *client.ProxyClient, streamId uint8) bool {
	if streamId == wire.StreamIdNone {
		// Session level reset
		proxy.CancelJobs()
		proxy.Streams().ResetAll()
		p.logger.Info("session reset", "client", proxy.Key().String())
		return true
	}
	proxy.CancelStreamJobs(streamId)
	proxy.Streams().Reset(streamId)
	return true
}

func (p *Processor) handleFragment(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input, subHeader wire.SubmessageHeader, streamId uint8) bool {
	raw, err := input.RawPayload()
	if err != nil {
		return false
	}
	in := proxy.Streams().Input(streamId)
	complete, done := in.PushFragment(raw, subHeader.Flags&wire.FlagLastFragment != 0)
	if !done {
		return true
	}
	p.metrics.FragmentsRebuilt.Inc()
	p.dispatchSubmessages(proxy, source, message.ParseBody(complete), streamId)
	return true
}

func (p *Processor) handleTimestamp(proxy *client.ProxyClient, source xrce.Endpoint, input *message.Input) bool {
	payload := wire.TimestampPayload{}
	if err := input.Payload(&payload); err != nil {
		return false
	}
	received := time.Now()
	reply := wire.TimestampReplyPayload{
		OriginateTimestamp: payload.TransmitTimestamp,
		ReceiveTimestamp:   toWireTime(received),
		TransmitTimestamp:  toWireTime(time.Now()),
	}
	p.sendOnStream(proxy, source, wire.StreamIdNone, wire.SubmessageTimestampReply, 0, &reply)
	return true
}

func toWireTime(t time.Time) wire.Time {
	return wire.Time{Seconds: int32(t.Unix()), Nanoseconds: uint32(t.Nanosecond())}
}

// ----------------------------------------------------------------------
// Emission helpers
// ----------------------------------------------------------------------

// sendOnNone emits one submessage on the out-of-band stream
func (p *Processor) sendOnNone(destination xrce.Endpoint, key wire.ClientKey, id wire.SubmessageId, flags uint8, payload wire.Payload) {
	out := stream.NewOutput(p.logger, key, wire.SessionIdNoneWithClientKey, wire.StreamIdNone, p.cfg.OutputMTU, p.cfg.RetentionWindow)
	msgs, err := out.Push(id, flags, payload)
	if err != nil {
		p.logger.Warn("failed to build reply", "id", id.String(), "err", err)
		return
	}
	for _, msg := range msgs {
		p.send(destination, msg)
	}
}

// sendOnStream pushes a submessage through one of the session's output
// streams and transmits whatever messages it produces
func (p *Processor) sendOnStream(proxy *client.ProxyClient, destination xrce.Endpoint, streamId uint8, id wire.SubmessageId, flags uint8, payload wire.Payload) {
	out := proxy.Streams().Output(streamId)
	msgs, err := out.Push(id, flags, payload)
	if err != nil {
		p.logger.Warn("failed to push submessage", "id", id.String(), "stream", streamId, "err", err)
		return
	}
	for _, msg := range msgs {
		p.send(destination, msg)
	}
}

func (p *Processor) send(destination xrce.Endpoint, data []byte) {
	p.metrics.MessagesOut.Inc()
	if err := p.transport.Send(destination, data); err != nil {
		p.logger.Warn("transport send failed", "destination", destination.String(), "err", err)
	}
}

// flushAckNack emits a pending ACKNACK of an input stream on the
// out-of-band stream
func (p *Processor) flushAckNack(proxy *client.ProxyClient, source xrce.Endpoint, in *stream.Input) {
	ack, pending := in.AckNack()
	if !pending {
		return
	}
	p.metrics.AckNacksSent.Inc()
	p.sendOnStream(proxy, source, wire.StreamIdNone, wire.SubmessageAckNack, 0, &ack)
}

// ----------------------------------------------------------------------
// Periodic work
// ----------------------------------------------------------------------

// HeartbeatTick synthesizes a HEARTBEAT for every reliable output stream
// that has sent traffic since its last reset. Called every heartbeat period.
func (p *Processor) HeartbeatTick() {
	p.root.Each(func(proxy *client.ProxyClient) {
		destination, ok := p.binding.Endpoint(proxy.Key().Uint32())
		if !ok {
			return
		}
		proxy.Streams().EachOutput(func(out *stream.Output) {
			hb, ok := out.Heartbeat()
			if !ok {
				return
			}
			p.metrics.HeartbeatsSent.Inc()
			p.sendOnStream(proxy, destination, wire.StreamIdNone, wire.SubmessageHeartbeat, 0, &hb)
		})
	})
}

// LivelinessTick advances every session's liveliness state machine,
// probing dead sessions and removing expired ones. Called every probe
// interval.
func (p *Processor) LivelinessTick() {
	now := time.Now()
	p.root.Each(func(proxy *client.ProxyClient) {
		action := proxy.LivelinessTick(now, p.cfg.LivelinessDeadThreshold, p.cfg.LivelinessRemoveAttempts)
		switch action {
		case client.LivelinessProbe:
			destination, ok := p.binding.Endpoint(proxy.Key().Uint32())
			if !ok {
				return
			}
			probe := wire.GetInfoPayload{InfoMask: wire.InfoActivity}
			p.sendOnStream(proxy, destination, wire.StreamIdNone, wire.SubmessageGetInfo, 0, &probe)
		case client.LivelinessRemove:
			p.logger.Warn("removing dead session", "client", proxy.Key().String())
			p.root.DeleteClient(proxy.Key())
			p.binding.Unbind(proxy.Key().Uint32())
		}
	})
}

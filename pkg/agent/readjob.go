package agent

import (
	"context"
	"time"

	xrce "github.com/samsamfire/goxrce"
	"github.com/samsamfire/goxrce/pkg/client"
	"github.com/samsamfire/goxrce/pkg/wire"
)

// readJobQueue bounds how many undelivered samples a job may hold
const readJobQueue = 64

// startReadJob subscribes to the target object and spawns the cooperative
// task pushing DATA submessages until the delivery control is exhausted
func (p *Processor) startReadJob(proxy *client.ProxyClient, source xrce.Endpoint, payload wire.ReadDataPayload) wire.StatusValue {
	streamId := payload.Spec.PreferredStreamId
	if streamId == wire.StreamIdNone {
		streamId = wire.StreamIdBuiltinRel
	}
	switch payload.Spec.DataFormat {
	case wire.FormatData, wire.FormatSample, wire.FormatDataSeq, wire.FormatSampleSeq, wire.FormatPackedSamples:
	default:
		return wire.StatusErrInvalidData
	}

	samples := make(chan []byte, readJobQueue)
	cancelMw, status := proxy.Graph().Read(payload.Request.ObjectId, func(data []byte) {
		select {
		case samples <- data:
		default:
			// The job is not keeping up, newest sample loses
		}
	})
	if status != wire.StatusOk {
		return status
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &readJob{
		processor: p,
		proxy:     proxy,
		source:    source,
		requestId: payload.Request.RequestId,
		objectId:  payload.Request.ObjectId,
		spec:      payload.Spec,
		streamId:  streamId,
		samples:   samples,
		cancelMw:  cancelMw,
	}
	proxy.RegisterJob(payload.Request.RequestId, streamId, cancel)
	p.metrics.ReadJobsActive.Inc()
	go job.run(ctx)
	return wire.StatusOk
}

// readJob is a cooperative task serving one READ_DATA subscription.
// It owns a reference to its output stream through the client's stream
// set and observes cancellation at every suspension point.
type readJob struct {
	processor *Processor
	proxy     *client.ProxyClient
	source    xrce.Endpoint
	requestId wire.RequestId
	objectId  wire.ObjectId
	spec      wire.ReadSpecification
	streamId  uint8
	samples   chan []byte
	cancelMw  func()
}

func (j *readJob) run(ctx context.Context) {
	defer func() {
		j.cancelMw()
		j.proxy.UnregisterJob(j.requestId)
		j.processor.metrics.ReadJobsActive.Dec()
	}()

	control := j.spec.DeliveryControl
	hasControl := j.spec.HasDeliveryControl
	start := time.Now()

	var deadline <-chan time.Time
	if hasControl && control.MaxElapsedTime > 0 {
		// Max elapsed time travels in milliseconds
		deadline = time.After(time.Duration(control.MaxElapsedTime) * time.Millisecond)
	}

	var delivered uint16
	var bytesThisSecond int
	secondStart := start
	var sampleSeq uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case data := <-j.samples:
			sampleSeq++
			size := j.emit(data, sampleSeq, start)
			if size == 0 {
				continue
			}
			delivered++
			if hasControl && control.MaxSamples > 0 && delivered >= control.MaxSamples {
				return
			}

			// Rate budget : once the per second byte allowance is spent,
			// suspend until the next second without blocking the processor
			if hasControl && control.MaxBytesPerSecond > 0 {
				bytesThisSecond += size
				if bytesThisSecond >= int(control.MaxBytesPerSecond) {
					wait := time.Second - time.Since(secondStart)
					if wait > 0 && !j.sleep(ctx, wait) {
						return
					}
					bytesThisSecond = 0
					secondStart = time.Now()
				}
			}
			// Minimum pacing between samples
			if hasControl && control.MinPacePeriod > 0 {
				if !j.sleep(ctx, time.Duration(control.MinPacePeriod)*time.Millisecond) {
					return
				}
			}
		}
	}
}

// sleep suspends the job, returns false when it was cancelled meanwhile
func (j *readJob) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// emit pushes one sample as a DATA submessage on the job's stream,
// returns the payload size or 0 when emission failed
func (j *readJob) emit(data []byte, sampleSeq uint64, start time.Time) int {
	payload := wire.DataPayload{
		Request: wire.BaseObjectRequest{RequestId: j.requestId, ObjectId: j.objectId},
		Data:    wire.DataRepresentation{Format: j.spec.DataFormat},
	}
	switch j.spec.DataFormat {
	case wire.FormatData:
		payload.Data.Data = data
	case wire.FormatSample:
		payload.Data.Sample = j.sample(data, sampleSeq, start)
	case wire.FormatDataSeq:
		payload.Data.DataSeq = [][]byte{data}
	case wire.FormatSampleSeq, wire.FormatPackedSamples:
		payload.Data.Samples = []wire.Sample{j.sample(data, sampleSeq, start)}
	}

	destination := j.source
	if endpoint, ok := j.processor.binding.Endpoint(j.proxy.Key().Uint32()); ok {
		destination = endpoint
	}
	flags := uint8(j.spec.DataFormat)
	msgs, err := j.proxy.Streams().Output(j.streamId).Push(wire.SubmessageData, flags, &payload)
	if err != nil {
		j.processor.logger.Warn("failed to push submessage", "id", wire.SubmessageData.String(), "stream", j.streamId, "err", err)
		return 0
	}
	for _, msg := range msgs {
		j.processor.send(destination, msg)
	}
	return payload.Size(0)
}

func (j *readJob) sample(data []byte, sampleSeq uint64, start time.Time) wire.Sample {
	return wire.Sample{
		Info: wire.SampleInfo{
			SequenceNumber:    sampleSeq,
			SessionTimeOffset: uint32(time.Since(start).Microseconds()),
		},
		Data: data,
	}
}

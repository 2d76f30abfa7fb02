package inproc

import (
	"log/slog"
	"sync"

	"github.com/samsamfire/goxrce/pkg/middleware"
)

type sample struct {
	topic string
	data  []byte
}

// exchange routes published samples to topic subscribers on a single
// dispatch goroutine so that callbacks never run on a writer's goroutine
type exchange struct {
	mu       sync.Mutex
	logger   *slog.Logger
	subs     map[string]map[uint64]middleware.OnSample
	nextSub  uint64
	samples  chan sample
	stopOnce sync.Once
	stop     chan struct{}
}

func newExchange(logger *slog.Logger) *exchange {
	e := &exchange{
		logger:  logger,
		subs:    map[string]map[uint64]middleware.OnSample{},
		samples: make(chan sample, 256),
		stop:    make(chan struct{}),
	}
	go e.dispatch()
	return e
}

func (e *exchange) dispatch() {
	for {
		select {
		case <-e.stop:
			return
		case s := <-e.samples:
			e.mu.Lock()
			callbacks := make([]middleware.OnSample, 0, len(e.subs[s.topic]))
			for _, cb := range e.subs[s.topic] {
				callbacks = append(callbacks, cb)
			}
			e.mu.Unlock()
			for _, cb := range callbacks {
				cb(s.data)
			}
		}
	}
}

func (e *exchange) publish(topic string, data []byte) error {
	owned := make([]byte, len(data))
	copy(owned, data)
	select {
	case e.samples <- sample{topic: topic, data: owned}:
		return nil
	default:
		e.logger.Warn("dropped sample, exchange queue full", "topic", topic)
		return nil
	}
}

func (e *exchange) subscribe(topic string, cb middleware.OnSample) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs[topic] == nil {
		e.subs[topic] = map[uint64]middleware.OnSample{}
	}
	e.nextSub++
	id := e.nextSub
	e.subs[topic][id] = cb

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs[topic], id)
	}
}

func (e *exchange) close() {
	e.stopOnce.Do(func() { close(e.stop) })
}

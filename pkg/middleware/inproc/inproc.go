// Package inproc is an in-process pub/sub middleware. Writers publish to
// named topics on an internal exchange, reader callbacks are delivered on
// a dedicated dispatch goroutine. It backs the default agent build and
// the test suites, the same way a virtual bus backs a fieldbus stack.
package inproc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/samsamfire/goxrce/pkg/middleware"
	"github.com/samsamfire/goxrce/pkg/profile"
	"github.com/samsamfire/goxrce/pkg/wire"
)

func init() {
	middleware.Register("inproc", func(args map[string]string) (middleware.Middleware, error) {
		logger := slog.Default()
		store := profile.Default(logger)
		if path, ok := args["profiles"]; ok && path != "" {
			if err := store.Load(path); err != nil {
				return nil, err
			}
		}
		return New(logger, store), nil
	})
}

type entity struct {
	kind     wire.ObjectKind
	parents  []wire.ObjectId
	domainId int16
	// Creation descriptor kept for match comparisons
	ref    string
	xml    string
	binary []byte
	// Resolved topic names. Topic entities have topic set, requesters
	// and repliers have requestTopic and replyTopic.
	topic        string
	requestTopic string
	replyTopic   string
}

// Middleware implements [middleware.Middleware] over an in-process exchange
type Middleware struct {
	mu       sync.Mutex
	logger   *slog.Logger
	profiles *profile.Store
	entities map[wire.ObjectId]*entity
	exchange *exchange
}

func New(logger *slog.Logger, profiles *profile.Store) *Middleware {
	return &Middleware{
		logger:   logger.With("service", "[MW]"),
		profiles: profiles,
		entities: map[wire.ObjectId]*entity{},
		exchange: newExchange(logger),
	}
}

// Close stops the dispatch goroutine
func (m *Middleware) Close() {
	m.exchange.close()
}

func (m *Middleware) CreateByRef(kind wire.ObjectKind, id wire.ObjectId, parents []wire.ObjectId, domainId int16, ref string) error {
	p, err := m.profiles.Resolve(ref)
	if err != nil {
		return middleware.ErrUnresolvableRef
	}
	e := &entity{kind: kind, parents: parents, domainId: domainId, ref: ref, topic: p.Topic}
	return m.add(id, e)
}

func (m *Middleware) CreateByXml(kind wire.ObjectKind, id wire.ObjectId, parents []wire.ObjectId, domainId int16, xml string) error {
	e := &entity{kind: kind, parents: parents, domainId: domainId, xml: xml}
	if kind == wire.ObjectKindTopic {
		// The XML is not interpreted, it names the topic opaquely
		e.topic = xml
	}
	return m.add(id, e)
}

func (m *Middleware) CreateByBinary(kind wire.ObjectKind, id wire.ObjectId, parents []wire.ObjectId, domainId int16, binary []byte) error {
	e := &entity{kind: kind, parents: parents, domainId: domainId, binary: append([]byte{}, binary...)}
	if kind == wire.ObjectKindTopic {
		e.topic = string(binary)
	}
	return m.add(id, e)
}

// add resolves topic dependencies and registers the entity
func (m *Middleware) add(id wire.ObjectId, e *entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entities[id]; exists {
		return middleware.ErrEntityExists
	}

	switch e.kind {
	case wire.ObjectKindTopic:
		if e.topic == "" {
			e.topic = fmt.Sprintf("topic-%s", id)
		}
	case wire.ObjectKindDataWriter, wire.ObjectKindDataReader:
		// Second parent is the topic
		if e.topic == "" && len(e.parents) == 2 {
			if topic, ok := m.entities[e.parents[1]]; ok {
				e.topic = topic.topic
			}
		}
		if e.topic == "" {
			return middleware.ErrUnknownEntity
		}
	case wire.ObjectKindRequester, wire.ObjectKindReplier:
		if len(e.parents) != 3 {
			return middleware.ErrUnknownEntity
		}
		request, okRequest := m.entities[e.parents[1]]
		reply, okReply := m.entities[e.parents[2]]
		if !okRequest || !okReply {
			return middleware.ErrUnknownEntity
		}
		e.requestTopic = request.topic
		e.replyTopic = reply.topic
	}

	m.entities[id] = e
	m.logger.Debug("created entity", "id", id.String(), "kind", e.kind.String())
	return nil
}

func (m *Middleware) Delete(id wire.ObjectId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return middleware.ErrUnknownEntity
	}
	delete(m.entities, id)
	return nil
}

func (m *Middleware) MatchRef(id wire.ObjectId, ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	return ok && e.ref == ref
}

func (m *Middleware) MatchXml(id wire.ObjectId, xml string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	return ok && e.xml == xml
}

func (m *Middleware) Write(id wire.ObjectId, data []byte) error {
	m.mu.Lock()
	e, ok := m.entities[id]
	m.mu.Unlock()
	if !ok {
		return middleware.ErrUnknownEntity
	}
	switch e.kind {
	case wire.ObjectKindDataWriter:
		return m.exchange.publish(e.topic, data)
	case wire.ObjectKindRequester:
		return m.exchange.publish(e.requestTopic, data)
	case wire.ObjectKindReplier:
		return m.exchange.publish(e.replyTopic, data)
	default:
		return middleware.ErrNotWritable
	}
}

func (m *Middleware) Read(id wire.ObjectId, onSample middleware.OnSample) (func(), error) {
	m.mu.Lock()
	e, ok := m.entities[id]
	m.mu.Unlock()
	if !ok {
		return nil, middleware.ErrUnknownEntity
	}
	switch e.kind {
	case wire.ObjectKindDataReader:
		return m.exchange.subscribe(e.topic, onSample), nil
	case wire.ObjectKindRequester:
		return m.exchange.subscribe(e.replyTopic, onSample), nil
	case wire.ObjectKindReplier:
		return m.exchange.subscribe(e.requestTopic, onSample), nil
	default:
		return nil, middleware.ErrNotReadable
	}
}

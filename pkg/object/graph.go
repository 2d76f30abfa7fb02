// Package object implements the per-client registry of XRCE objects.
// Objects form a DAG : topics, publishers and subscribers depend on a
// participant, writers and readers depend on their publisher/subscriber
// and topic, requesters and repliers depend on a participant and two
// topics. Deleting a parent cascades to all of its children.
package object

import (
	"log/slog"
	"sync"

	"github.com/samsamfire/goxrce/pkg/middleware"
	"github.com/samsamfire/goxrce/pkg/wire"
)

// An Object is one entry of the graph
type Object struct {
	Id             wire.ObjectId
	Kind           wire.ObjectKind
	Parents        []wire.ObjectId
	Representation wire.ObjectRepresentation
}

// CreationMode is the {reuse, replace} flag pair modifying CREATE
// semantics when the object id is already taken
type CreationMode struct {
	Reuse   bool
	Replace bool
}

// CreationModeFromFlags extracts the mode from CREATE submessage flags
func CreationModeFromFlags(flags uint8) CreationMode {
	return CreationMode{
		Reuse:   flags&wire.FlagReuse != 0,
		Replace: flags&wire.FlagReplace != 0,
	}
}

// Graph is the object registry of one client
type Graph struct {
	mu      sync.Mutex
	logger  *slog.Logger
	mw      middleware.Middleware
	objects map[wire.ObjectId]*Object
}

func NewGraph(logger *slog.Logger, mw middleware.Middleware) *Graph {
	return &Graph{
		logger:  logger.With("service", "[GRPH]"),
		mw:      mw,
		objects: map[wire.ObjectId]*Object{},
	}
}

// creatableKinds are the kinds a CREATE submessage may instantiate
var creatableKinds = map[wire.ObjectKind]bool{
	wire.ObjectKindParticipant: true,
	wire.ObjectKindTopic:       true,
	wire.ObjectKindPublisher:   true,
	wire.ObjectKindSubscriber:  true,
	wire.ObjectKindDataWriter:  true,
	wire.ObjectKindDataReader:  true,
	wire.ObjectKindRequester:   true,
	wire.ObjectKindReplier:     true,
}

// Create applies the creation mode policy and instantiates the entity in
// the middleware. The returned status is sent back verbatim in STATUS.
func (g *Graph) Create(mode CreationMode, id wire.ObjectId, repr wire.ObjectRepresentation) wire.StatusValue {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !creatableKinds[repr.Kind] || id.Kind() != repr.Kind {
		return wire.StatusErrInvalidData
	}
	// Every referenced parent must exist with the right kind : topics for
	// every parent after the first, otherwise publisher for a writer,
	// subscriber for a reader and participant for everything else
	for i, parentId := range repr.ParentIds() {
		want := wire.ObjectKindParticipant
		switch {
		case i > 0:
			want = wire.ObjectKindTopic
		case repr.Kind == wire.ObjectKindDataWriter:
			want = wire.ObjectKindPublisher
		case repr.Kind == wire.ObjectKindDataReader:
			want = wire.ObjectKindSubscriber
		}
		parent, ok := g.objects[parentId]
		if !ok || parent.Kind != want {
			return wire.StatusErrUnknownRef
		}
	}

	existing, exists := g.objects[id]
	if exists {
		matches := g.matches(existing, &repr)
		switch {
		case !mode.Reuse && !mode.Replace:
			return wire.StatusErrAlreadyExists
		case mode.Reuse && matches:
			// Both reuse rows keep the existing entity when it matches
			return wire.StatusOkMatched
		case mode.Reuse && !mode.Replace:
			return wire.StatusErrMismatch
		}
		// Replace : tear down the old object including its children
		g.deleteLocked(id)
	}

	if status := g.instantiate(id, &repr); status != wire.StatusOk {
		return status
	}
	g.objects[id] = &Object{
		Id:             id,
		Kind:           repr.Kind,
		Parents:        repr.ParentIds(),
		Representation: repr,
	}
	g.logger.Debug("created object", "id", id.String(), "kind", repr.Kind.String())
	return wire.StatusOk
}

// matches compares the submitted representation with the existing entity,
// delegating ref and XML comparison to the middleware
func (g *Graph) matches(existing *Object, repr *wire.ObjectRepresentation) bool {
	if !existing.Representation.Matches(repr) {
		return false
	}
	switch repr.Format {
	case wire.RepresentationByReference:
		return g.mw.MatchRef(existing.Id, repr.Ref)
	case wire.RepresentationAsXmlString:
		return g.mw.MatchXml(existing.Id, repr.Xml)
	default:
		return true
	}
}

func (g *Graph) instantiate(id wire.ObjectId, repr *wire.ObjectRepresentation) wire.StatusValue {
	var err error
	parents := repr.ParentIds()
	switch repr.Format {
	case wire.RepresentationByReference:
		err = g.mw.CreateByRef(repr.Kind, id, parents, repr.DomainId, repr.Ref)
	case wire.RepresentationAsXmlString:
		err = g.mw.CreateByXml(repr.Kind, id, parents, repr.DomainId, repr.Xml)
	case wire.RepresentationInBinary:
		err = g.mw.CreateByBinary(repr.Kind, id, parents, repr.DomainId, repr.Binary)
	default:
		return wire.StatusErrInvalidData
	}
	if err != nil {
		g.logger.Warn("middleware refused creation", "id", id.String(), "err", err)
		return wire.StatusErrDds
	}
	return wire.StatusOk
}

// Delete removes an object and, recursively, every object depending on it
func (g *Graph) Delete(id wire.ObjectId) wire.StatusValue {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.objects[id]; !ok {
		return wire.StatusErrUnknownRef
	}
	g.deleteLocked(id)
	return wire.StatusOk
}

func (g *Graph) deleteLocked(id wire.ObjectId) {
	// Children first
	for childId, child := range g.objects {
		for _, parentId := range child.Parents {
			if parentId == id {
				g.deleteLocked(childId)
				break
			}
		}
	}
	if _, ok := g.objects[id]; !ok {
		return
	}
	if err := g.mw.Delete(id); err != nil {
		g.logger.Warn("middleware delete failed", "id", id.String(), "err", err)
	}
	delete(g.objects, id)
	g.logger.Debug("deleted object", "id", id.String())
}

// Get returns the object registered under id
func (g *Graph) Get(id wire.ObjectId) (*Object, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	obj, ok := g.objects[id]
	return obj, ok
}

// Len returns the number of live objects
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.objects)
}

// writableKinds can be targeted by WRITE_DATA
var writableKinds = map[wire.ObjectKind]bool{
	wire.ObjectKindDataWriter: true,
	wire.ObjectKindRequester:  true,
	wire.ObjectKindReplier:    true,
}

// readableKinds can be targeted by READ_DATA
var readableKinds = map[wire.ObjectKind]bool{
	wire.ObjectKindDataReader: true,
	wire.ObjectKindRequester:  true,
	wire.ObjectKindReplier:    true,
}

// Write hands a serialized sample to the middleware entity behind id
func (g *Graph) Write(id wire.ObjectId, data []byte) wire.StatusValue {
	g.mu.Lock()
	obj, ok := g.objects[id]
	g.mu.Unlock()
	if !ok || !writableKinds[obj.Kind] {
		return wire.StatusErrUnknownRef
	}
	if err := g.mw.Write(id, data); err != nil {
		g.logger.Warn("middleware write failed", "id", id.String(), "err", err)
		return wire.StatusErrDds
	}
	return wire.StatusOk
}

// Read subscribes to the middleware entity behind id
func (g *Graph) Read(id wire.ObjectId, onSample middleware.OnSample) (func(), wire.StatusValue) {
	g.mu.Lock()
	obj, ok := g.objects[id]
	g.mu.Unlock()
	if !ok || !readableKinds[obj.Kind] {
		return nil, wire.StatusErrUnknownRef
	}
	cancel, err := g.mw.Read(id, onSample)
	if err != nil {
		g.logger.Warn("middleware read failed", "id", id.String(), "err", err)
		return nil, wire.StatusErrDds
	}
	return cancel, wire.StatusOk
}

// Clear deletes every object, participants last
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, obj := range g.objects {
		if obj.Kind == wire.ObjectKindParticipant {
			continue
		}
		g.deleteLocked(id)
	}
	for id := range g.objects {
		g.deleteLocked(id)
	}
}

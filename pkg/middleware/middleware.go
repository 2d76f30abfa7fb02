// Package middleware defines the narrow interface the XRCE engine uses to
// drive the pub/sub backend owning the actual DDS entities. Entities are
// addressed by the same object ids the engine uses, creation is expressed
// by reference, XML string or binary blob.
package middleware

import (
	"errors"

	"github.com/samsamfire/goxrce/pkg/wire"
)

var (
	ErrUnknownEntity   = errors.New("entity id not known to the middleware")
	ErrUnknownKind     = errors.New("middleware kind is not registered")
	ErrEntityExists    = errors.New("entity id already exists in the middleware")
	ErrNotWritable     = errors.New("entity kind cannot be written to")
	ErrNotReadable     = errors.New("entity kind cannot be read from")
	ErrUnresolvableRef = errors.New("reference does not resolve to a profile")
)

// OnSample delivers one received sample. Implementations must call it on
// a path that is safe to use from engine goroutines.
type OnSample func(data []byte)

// Middleware is implemented by pub/sub backends. All calls are
// synchronous, reads deliver asynchronously through [OnSample] until the
// returned cancel function is called.
type Middleware interface {
	// CreateByRef creates an entity described by a profile reference
	CreateByRef(kind wire.ObjectKind, id wire.ObjectId, parents []wire.ObjectId, domainId int16, ref string) error
	// CreateByXml creates an entity described by an XML string. The
	// engine does not interpret the XML.
	CreateByXml(kind wire.ObjectKind, id wire.ObjectId, parents []wire.ObjectId, domainId int16, xml string) error
	// CreateByBinary creates an entity described by an opaque binary blob
	CreateByBinary(kind wire.ObjectKind, id wire.ObjectId, parents []wire.ObjectId, domainId int16, binary []byte) error
	// Delete removes one entity
	Delete(id wire.ObjectId) error
	// MatchRef compares an existing entity against a profile reference
	MatchRef(id wire.ObjectId, ref string) bool
	// MatchXml compares an existing entity against an XML description
	MatchXml(id wire.ObjectId, xml string) bool
	// Write hands a serialized sample to a writer-like entity
	Write(id wire.ObjectId, data []byte) error
	// Read subscribes to samples of a reader-like entity
	Read(id wire.ObjectId, onSample OnSample) (cancel func(), err error)
}

// Factory creates a middleware instance from the agent configuration's
// middleware arguments
type Factory func(args map[string]string) (Middleware, error)

var available = map[string]Factory{}

// Register makes a middleware implementation available by name.
// Expected to be called from an implementation's init.
func Register(name string, factory Factory) {
	available[name] = factory
}

// New instantiates a registered middleware kind
func New(name string, args map[string]string) (Middleware, error) {
	factory, ok := available[name]
	if !ok {
		return nil, ErrUnknownKind
	}
	return factory(args)
}

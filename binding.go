package xrce

import (
	"sync"
)

// SessionBinding maps transport endpoints to client keys and back.
// Sessions with id >= 0x80 omit the client key on the wire, for those the
// endpoint alone identifies the client.
type SessionBinding struct {
	mu         sync.Mutex
	byEndpoint map[string]uint32
	byClient   map[uint32]Endpoint
}

func NewSessionBinding() *SessionBinding {
	return &SessionBinding{
		byEndpoint: map[string]uint32{},
		byClient:   map[uint32]Endpoint{},
	}
}

// Bind associates an endpoint with a client key, replacing any previous
// binding in either direction.
func (sb *SessionBinding) Bind(source Endpoint, clientKey uint32) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if prev, ok := sb.byClient[clientKey]; ok {
		delete(sb.byEndpoint, prev.Key())
	}
	if prevKey, ok := sb.byEndpoint[source.Key()]; ok {
		delete(sb.byClient, prevKey)
	}
	sb.byEndpoint[source.Key()] = clientKey
	sb.byClient[clientKey] = source
}

// ClientKey resolves the client key bound to an endpoint
func (sb *SessionBinding) ClientKey(source Endpoint) (uint32, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	key, ok := sb.byEndpoint[source.Key()]
	return key, ok
}

// Endpoint resolves the last known endpoint of a client
func (sb *SessionBinding) Endpoint(clientKey uint32) (Endpoint, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	ep, ok := sb.byClient[clientKey]
	return ep, ok
}

// Unbind removes the binding of a client in both directions
func (sb *SessionBinding) Unbind(clientKey uint32) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if ep, ok := sb.byClient[clientKey]; ok {
		delete(sb.byEndpoint, ep.Key())
		delete(sb.byClient, clientKey)
	}
}

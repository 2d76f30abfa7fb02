// Package agent ties the engine together : the Root registry of proxy
// clients, the Processor dispatching submessages and the periodic
// heartbeat and liveliness machinery.
package agent

import (
	"log/slog"
	"sync"

	"github.com/samsamfire/goxrce/internal/metrics"
	"github.com/samsamfire/goxrce/pkg/client"
	"github.com/samsamfire/goxrce/pkg/middleware"
	"github.com/samsamfire/goxrce/pkg/wire"
)

// Root owns every proxy client of the agent process, keyed by client key
type Root struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	mw         middleware.Middleware
	metrics    *metrics.Collectors
	clients    map[uint32]*client.ProxyClient
	maxClients int
	mtu        int
	window     int
}

func NewRoot(logger *slog.Logger, mw middleware.Middleware, m *metrics.Collectors, maxClients int, mtu int, window int) *Root {
	return &Root{
		logger:     logger.With("service", "[ROOT]"),
		mw:         mw,
		metrics:    m,
		clients:    map[uint32]*client.ProxyClient{},
		maxClients: maxClients,
		mtu:        mtu,
		window:     window,
	}
}

// AgentInfo returns the agent's identity for STATUS_AGENT and INFO replies
func (r *Root) AgentInfo() wire.AgentRepresentation {
	return wire.AgentRepresentation{
		XrceCookie:   wire.Cookie,
		XrceVersion:  wire.Version,
		XrceVendorId: wire.VendorId,
	}
}

// CreateClient validates the representation and establishes a session.
// A key bound to another session id is torn down and rebound, a matching
// session id makes the call idempotent.
func (r *Root) CreateClient(repr wire.ClientRepresentation) (*client.ProxyClient, wire.StatusValue) {
	if repr.XrceCookie != wire.Cookie {
		r.logger.Warn("rejecting client, bad cookie")
		return nil, wire.StatusErrInvalidData
	}
	if repr.XrceVersion[0] != wire.Version[0] {
		r.logger.Warn("rejecting client, incompatible version",
			"major", repr.XrceVersion[0], "minor", repr.XrceVersion[1])
		return nil, wire.StatusErrIncompatible
	}

	r.mu.Lock()
	key := repr.ClientKey.Uint32()
	existing, ok := r.clients[key]
	if ok {
		if existing.SessionId() == repr.SessionId {
			r.mu.Unlock()
			r.logger.Info("session re-established", "client", repr.ClientKey.String())
			return existing, wire.StatusOk
		}
		// A new session id supersedes the previous session
		delete(r.clients, key)
		r.mu.Unlock()
		existing.Destroy()
		r.metrics.SessionsDeleted.Inc()
		r.mu.Lock()
	}
	if len(r.clients) >= r.maxClients {
		r.mu.Unlock()
		r.logger.Warn("rejecting client, at capacity", "max", r.maxClients)
		return nil, wire.StatusErrResources
	}
	proxy := client.NewProxyClient(r.logger, repr.ClientKey, repr.SessionId, repr.Properties, r.mw, r.mtu, r.window)
	r.clients[key] = proxy
	count := len(r.clients)
	r.mu.Unlock()

	r.metrics.SessionsCreated.Inc()
	r.metrics.SessionsActive.Set(float64(count))
	r.logger.Info("session established", "client", repr.ClientKey.String(), "session", repr.SessionId)
	return proxy, wire.StatusOk
}

// GetClient returns the proxy client bound to a key
func (r *Root) GetClient(key wire.ClientKey) (*client.ProxyClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	proxy, ok := r.clients[key.Uint32()]
	return proxy, ok
}

// DeleteClient tears down a session
func (r *Root) DeleteClient(key wire.ClientKey) wire.StatusValue {
	r.mu.Lock()
	proxy, ok := r.clients[key.Uint32()]
	if !ok {
		r.mu.Unlock()
		return wire.StatusErrUnknownRef
	}
	delete(r.clients, key.Uint32())
	count := len(r.clients)
	r.mu.Unlock()

	proxy.Destroy()
	r.metrics.SessionsDeleted.Inc()
	r.metrics.SessionsActive.Set(float64(count))
	return wire.StatusOk
}

// Each calls fn for every live client, outside the map lock
func (r *Root) Each(fn func(proxy *client.ProxyClient)) {
	r.mu.RLock()
	clients := make([]*client.ProxyClient, 0, len(r.clients))
	for _, proxy := range r.clients {
		clients = append(clients, proxy)
	}
	r.mu.RUnlock()
	for _, proxy := range clients {
		fn(proxy)
	}
}

// Len returns the number of live sessions
func (r *Root) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Shutdown destroys every session
func (r *Root) Shutdown() {
	r.mu.Lock()
	clients := r.clients
	r.clients = map[uint32]*client.ProxyClient{}
	r.mu.Unlock()
	for _, proxy := range clients {
		proxy.Destroy()
	}
	r.metrics.SessionsActive.Set(0)
	r.logger.Info("all sessions destroyed", "count", len(clients))
}

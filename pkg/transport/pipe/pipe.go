// Package pipe is an in-memory transport used by tests : packets are
// exchanged through channels, no sockets involved.
package pipe

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	xrce "github.com/samsamfire/goxrce"
	"github.com/samsamfire/goxrce/pkg/transport"
)

func init() {
	transport.Register("pipe", func(listen string) (xrce.Transport, error) {
		return NewTransport(slog.Default()), nil
	})
}

// Endpoint designates one connected test client
type Endpoint struct {
	name string
	// Packets sent by the agent towards this client
	Out chan []byte
}

func (e *Endpoint) Key() string {
	return "pipe|" + e.name
}

func (e *Endpoint) String() string {
	return e.name
}

// Transport is a loopback packet exchange
type Transport struct {
	mu        sync.Mutex
	logger    *slog.Logger
	listener  xrce.PacketListener
	endpoints map[string]*Endpoint
	closed    bool
}

func NewTransport(logger *slog.Logger) *Transport {
	return &Transport{
		logger:    logger.With("service", "[PIPE]"),
		endpoints: map[string]*Endpoint{},
	}
}

// Connect creates a client endpoint with a buffered delivery channel
func (t *Transport) Connect(name string) *Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	endpoint, ok := t.endpoints[name]
	if !ok {
		endpoint = &Endpoint{name: name, Out: make(chan []byte, 64)}
		t.endpoints[name] = endpoint
	}
	return endpoint
}

// Inject delivers a packet to the agent as if it came from endpoint
func (t *Transport) Inject(endpoint *Endpoint, data []byte) {
	t.mu.Lock()
	listener := t.listener
	t.mu.Unlock()
	if listener != nil {
		listener.Handle(xrce.Packet{Source: endpoint, Data: data})
	}
}

func (t *Transport) Subscribe(listener xrce.PacketListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
}

func (t *Transport) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (t *Transport) Send(destination xrce.Endpoint, data []byte) error {
	endpoint, ok := destination.(*Endpoint)
	if !ok {
		return errors.New("destination endpoint does not belong to this transport")
	}
	select {
	case endpoint.Out <- data:
		return nil
	default:
		t.logger.Warn("dropping packet, endpoint queue full", "endpoint", endpoint.String())
		return nil
	}
}

func (t *Transport) LocalAddr() string {
	return "pipe"
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

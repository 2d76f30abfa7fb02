// Package udp serves XRCE clients over UDP datagrams, one message per
// datagram.
package udp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	xrce "github.com/samsamfire/goxrce"
	"github.com/samsamfire/goxrce/pkg/transport"
)

func init() {
	transport.Register("udp", func(listen string) (xrce.Transport, error) {
		return NewTransport(slog.Default(), listen)
	})
}

// Endpoint wraps one client's UDP address
type Endpoint struct {
	addr *net.UDPAddr
}

func (e *Endpoint) Key() string {
	return "udp|" + e.addr.String()
}

func (e *Endpoint) String() string {
	return e.addr.String()
}

// Transport is a datagram server socket
type Transport struct {
	mu       sync.Mutex
	logger   *slog.Logger
	conn     *net.UDPConn
	listener xrce.PacketListener
}

func NewTransport(logger *slog.Logger, listen string) (*Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Transport{
		logger: logger.With("service", "[UDP]", "listen", conn.LocalAddr().String()),
		conn:   conn,
	}, nil
}

func (t *Transport) Subscribe(listener xrce.PacketListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
}

func (t *Transport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// Run receives datagrams until ctx is cancelled
func (t *Transport) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.conn.Close()
	}()
	t.logger.Info("serving")

	buffer := make([]byte, 65535)
	for {
		n, addr, err := t.conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			t.logger.Warn("receive error", "err", err)
			continue
		}
		t.mu.Lock()
		listener := t.listener
		t.mu.Unlock()
		if listener == nil {
			continue
		}
		data := make([]byte, n)
		copy(data, buffer[:n])
		listener.Handle(xrce.Packet{Source: &Endpoint{addr: addr}, Data: data})
	}
}

func (t *Transport) Send(destination xrce.Endpoint, data []byte) error {
	endpoint, ok := destination.(*Endpoint)
	if !ok {
		return errors.New("destination endpoint does not belong to this transport")
	}
	_, err := t.conn.WriteToUDP(data, endpoint.addr)
	return err
}

func (t *Transport) Close() error {
	return t.conn.Close()
}

// Package tcp serves XRCE clients over TCP. Messages are framed with a
// big-endian u16 length prefix, one goroutine per connection.
package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	xrce "github.com/samsamfire/goxrce"
	"github.com/samsamfire/goxrce/pkg/transport"
)

func init() {
	transport.Register("tcp", func(listen string) (xrce.Transport, error) {
		return NewTransport(slog.Default(), listen)
	})
}

// Endpoint wraps one client connection
type Endpoint struct {
	conn net.Conn
}

func (e *Endpoint) Key() string {
	return "tcp|" + e.conn.RemoteAddr().String()
}

func (e *Endpoint) String() string {
	return e.conn.RemoteAddr().String()
}

// Transport is a TCP accept loop with per-connection readers
type Transport struct {
	mu       sync.Mutex
	logger   *slog.Logger
	ln       net.Listener
	listener xrce.PacketListener
	wg       sync.WaitGroup
}

func NewTransport(logger *slog.Logger, listen string) (*Transport, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	return &Transport{
		logger: logger.With("service", "[TCP]", "listen", ln.Addr().String()),
		ln:     ln,
	}, nil
}

func (t *Transport) Subscribe(listener xrce.PacketListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
}

func (t *Transport) LocalAddr() string {
	return t.ln.Addr().String()
}

// Run accepts connections until ctx is cancelled
func (t *Transport) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.ln.Close()
	}()
	t.logger.Info("serving")

	for {
		conn, err := t.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				t.wg.Wait()
				return nil
			}
			t.logger.Warn("accept error", "err", err)
			continue
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.serve(ctx, conn)
		}()
	}
}

// serve reads length prefixed messages from one connection
func (t *Transport) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	endpoint := &Endpoint{conn: conn}
	t.logger.Info("client connected", "remote", endpoint.String())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var lengthPrefix [2]byte
	for {
		if _, err := io.ReadFull(conn, lengthPrefix[:]); err != nil {
			t.logger.Info("client disconnected", "remote", endpoint.String())
			return
		}
		length := binary.BigEndian.Uint16(lengthPrefix[:])
		data := make([]byte, length)
		if _, err := io.ReadFull(conn, data); err != nil {
			t.logger.Warn("truncated frame", "remote", endpoint.String(), "err", err)
			return
		}
		t.mu.Lock()
		listener := t.listener
		t.mu.Unlock()
		if listener != nil {
			listener.Handle(xrce.Packet{Source: endpoint, Data: data})
		}
	}
}

func (t *Transport) Send(destination xrce.Endpoint, data []byte) error {
	endpoint, ok := destination.(*Endpoint)
	if !ok {
		return errors.New("destination endpoint does not belong to this transport")
	}
	frame := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(frame, uint16(len(data)))
	copy(frame[2:], data)
	_, err := endpoint.conn.Write(frame)
	return err
}

func (t *Transport) Close() error {
	return t.ln.Close()
}

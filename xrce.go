package xrce

import "context"

// A Transport moves raw XRCE messages between the agent and its clients.
// Implementations are datagram or stream based, see pkg/transport.
type Transport interface {
	// Start transport reception, received packets are pushed to the
	// registered [PacketListener]. Blocks until ctx is cancelled.
	Run(ctx context.Context) error
	// Send a single message to the given endpoint
	Send(destination Endpoint, data []byte) error
	// Subscribe to received packets
	Subscribe(listener PacketListener)
	// Local bind address, used in agent INFO replies
	LocalAddr() string
	Close() error
}

// An Endpoint is an opaque client address handle owned by the transport.
// Endpoints with equal Key() designate the same peer.
type Endpoint interface {
	// Stable map key for this peer, e.g. "udp|10.0.0.2:40123"
	Key() string
	String() string
}

// A Packet is a single received XRCE message together with its origin
type Packet struct {
	Source Endpoint
	Data   []byte
}

// Interface used for handling a received packet, implemented by the processor.
// Handle should not be blocking !
type PacketListener interface {
	Handle(packet Packet)
}

// Package stream implements the per-session XRCE delivery machinery :
// the out-of-band stream, best-effort streams with monotone filtering and
// reliable streams with retention, ACKNACK driven retransmission,
// heartbeats and fragmentation.
package stream

import (
	"errors"
)

var (
	ErrWindowFull   = errors.New("reliable window is full, peer is not acknowledging")
	ErrTooLarge     = errors.New("submessage exceeds MTU on a stream that cannot fragment")
	ErrStreamClosed = errors.New("stream has been reset")
)

// Window is the number of messages a reliable stream retains and the
// width of the ACKNACK bitmap
const Window = 16

// DefaultMTU bounds the size of a single emitted message
const DefaultMTU = 512

// Package transport holds the registry of concrete XRCE transports.
// Implementations live in sub packages and register themselves on import.
package transport

import (
	xrce "github.com/samsamfire/goxrce"
)

type NewTransportFunc func(listen string) (xrce.Transport, error)

var AvailableTransports = make(map[string]NewTransportFunc)
var ImplementedTransports = []string{
	"udp",
	"tcp",
	"pipe",
}

// Register a new transport type.
// This should be called inside an init() function of the implementation.
func Register(transportType string, newTransport NewTransportFunc) {
	AvailableTransports[transportType] = newTransport
}

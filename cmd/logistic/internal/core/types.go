package core

import (
	"context"
	"net"
	"time"
)

// RoutingMetadata describes which server a driver wants to reach
// (e.g., "service": "logistic").
type RoutingMetadata map[string]string

// BackendResolver defines how a driver finds the address of a server.
// It is purely a lookup mechanism and knows nothing about the protocol.
type BackendResolver interface {
	Resolve(ctx context.Context, metadata RoutingMetadata) (string, error)
}

// ConnectionHandler drives one accepted connection to completion.
// It takes full ownership of the connection and must close it before returning.
type ConnectionHandler interface {
	HandleConnection(conn net.Conn, clientID uint64)
}

// PollListener is a listener whose Accept can be bounded by a deadline,
// which lets the accept loop observe the running flag periodically.
// *net.TCPListener satisfies it.
type PollListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// Package transport defines the interface for the daemon's network servers.
//
// Each transport (HTTP/WebSocket, gRPC) serves the same studio from its own
// port. The entry point starts every enabled transport and stops them
// together.
package transport

import "context"

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts serving. It blocks until the context is cancelled or
	// the server fails.
	Listen(ctx context.Context) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}

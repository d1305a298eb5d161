// Package transport provides abstractions for reaching a management
// interface.  Transports handle the "how" of the byte stream (a plain
// TCP or unix-domain dial, or a stream forwarded through an SSH jump
// host) independent of what is said over it (the session's job).
package transport

import (
	"context"
	"net"
)

// Dialer opens the byte stream to a management interface.  network is
// "tcp" or "unix"; address is host:port or a socket path.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

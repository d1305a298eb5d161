// Package tunnel provides the SSH jump-host channel used to reach a
// management interface that is not exposed beyond its own host.
// It is backed by golang.org/x/crypto/ssh.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is a long-lived channel to a gateway through which streams to
// the gateway's TCP ports or unix sockets are opened.
type Tunnel interface {
	// Connect establishes the channel.  Calling it while connected is
	// a no-op.
	Connect(ctx context.Context) error

	// Dial opens a stream to address on the far side.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Done is closed when the current connection ends, whether through
	// Close or because the gateway went away.  It is nil before the
	// first Connect.
	Done() <-chan struct{}

	Close() error
}

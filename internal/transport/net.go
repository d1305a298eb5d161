package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// NetDialer establishes plain TCP or unix-domain socket connections.
type NetDialer struct {
	Timeout time.Duration
}

// Dial connects to address over network ("tcp", "tcp4", "tcp6" or "unix").
func (d *NetDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless dialers.
func (d *NetDialer) Close() error { return nil }

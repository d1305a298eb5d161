package transport

import (
	"context"
	"net"
	"sync"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/tunnel"
	"ovpnmi/util"
)

// SSHDialer reaches a management interface that only listens on the
// jump host's loopback or on a unix socket there.  The tunnel is
// brought up on the first Dial and brought up again by a later Dial if
// the gateway has dropped it in between.
type SSHDialer struct {
	tun     tunnel.Tunnel
	gateway string
	logger  *util.Logger

	mu   sync.Mutex
	done <-chan struct{} // Done of the live tunnel; nil when down
}

// NewSSHDialer creates a dialer that forwards through an SSH tunnel to
// cfg's gateway.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	tun := tunnel.NewSSHTunnel(cfg, logger)
	return newTunnelDialer(tun, cfg.Addr(), logger)
}

func newTunnelDialer(tun tunnel.Tunnel, gateway string, logger *util.Logger) *SSHDialer {
	return &SSHDialer{tun: tun, gateway: gateway, logger: logger}
}

// up makes sure the tunnel is connected.
func (d *SSHDialer) up(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done != nil {
		select {
		case <-d.done:
			d.logger.Warn("SSH tunnel to %s dropped, reconnecting", d.gateway)
		default:
			return nil
		}
	}

	d.logger.Verbose("establishing SSH tunnel to %s", d.gateway)
	if err := d.tun.Connect(ctx); err != nil {
		d.done = nil
		return err
	}
	d.done = d.tun.Done()
	d.logger.Verbose("SSH tunnel to %s established", d.gateway)
	return nil
}

// Dial connects to address on the far side of the tunnel.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.up(ctx); err != nil {
		return nil, err
	}
	conn, err := d.tun.Dial(ctx, network, address)
	if ncerr.Is(err, ncerr.ErrTunnelClosed) {
		// Lost between up and Dial; one more try on a fresh tunnel.
		if err := d.up(ctx); err != nil {
			return nil, err
		}
		return d.tun.Dial(ctx, network, address)
	}
	return conn, err
}

// Close tears down the tunnel.  It is a no-op if Dial never ran.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done == nil {
		return nil
	}
	d.done = nil
	return d.tun.Close()
}

package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/util"
)

const (
	// DefaultSSHPort is used when SSHConfig.Port is zero.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds the TCP dial and handshake when
	// SSHConfig.ConnTimeout is zero.
	DefaultConnTimeout = 30 * time.Second

	keepAliveRequest = "keepalive@openssh.com"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive is the interval between keepalive requests.  A gateway
	// that misses one is treated as gone.  Zero disables keepalives.
	KeepAlive time.Duration
}

// Addr returns the gateway address as host:port.
func (c *SSHConfig) Addr() string {
	return util.FormatAddr(c.Host, c.Port)
}

func (c *SSHConfig) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := BuildAuthMethods(c)
	if err != nil {
		return nil, ncerr.WrapSSH("auth", c.Host, c.Port, err)
	}
	hk, err := hostKeyCallback(c)
	if err != nil {
		return nil, ncerr.WrapSSH("hostkey", c.Host, c.Port, err)
	}
	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hk,
		Timeout:         c.ConnTimeout,
	}, nil
}

// SSHTunnel implements [Tunnel] over one ssh.Client.  Streams are
// opened with ssh.Client.Dial, so "unix" targets rely on the server
// permitting streamlocal forwarding.
type SSHTunnel struct {
	cfg    *SSHConfig
	logger *util.Logger

	mu     sync.Mutex
	client *ssh.Client
	done   chan struct{}
}

// NewSSHTunnel creates a tunnel that is ready to [SSHTunnel.Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = DefaultSSHPort
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = DefaultConnTimeout
	}
	return &SSHTunnel{cfg: cfg, logger: logger}
}

// Connect dials the gateway and completes the handshake unless a live
// connection already exists.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil && !closed(t.done) {
		return nil
	}

	client, err := t.handshake(ctx)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	t.client, t.done = client, done

	go t.wait(client, done)
	if t.cfg.KeepAlive > 0 {
		go t.keepAlive(client, done)
	}
	return nil
}

func (t *SSHTunnel) handshake(ctx context.Context) (*ssh.Client, error) {
	sshCfg, err := t.cfg.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := t.cfg.Addr()
	t.logger.Debug("SSH: dialing %s as %s", addr, t.cfg.User)

	dialer := net.Dialer{Timeout: t.cfg.ConnTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap("dial", addr, err)
	}

	// The handshake has no context of its own; bound it by ctx too.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		_ = conn.Close()
		return nil, ncerr.WrapSSH("handshake", t.cfg.Host, t.cfg.Port, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Dial opens a stream to address through the gateway.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.Lock()
	client, done := t.client, t.done
	t.mu.Unlock()

	if client == nil || closed(done) {
		return nil, ncerr.ErrTunnelClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.logger.Debug("tunnel: dialing %s %s", network, address)
	conn, err := client.Dial(network, address)
	if err != nil {
		return nil, ncerr.WrapSSH("forward", t.cfg.Host, t.cfg.Port,
			fmt.Errorf("%s %s: %w", network, address, err))
	}
	return conn, nil
}

// Done implements [Tunnel].
func (t *SSHTunnel) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Close shuts down the SSH connection.  Done is closed once the client
// has fully exited.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// wait blocks until client exits and then closes done.
func (t *SSHTunnel) wait(client *ssh.Client, done chan struct{}) {
	err := client.Wait()
	close(done)

	if err != nil {
		t.logger.Debug("SSH tunnel to %s closed: %v", t.cfg.Addr(), err)
	} else {
		t.logger.Debug("SSH tunnel to %s closed", t.cfg.Addr())
	}
}

// keepAlive pings the gateway every KeepAlive and closes the client
// when a ping fails or goes unanswered for a full interval.
func (t *SSHTunnel) keepAlive(client *ssh.Client, done chan struct{}) {
	ticker := time.NewTicker(t.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		errc := make(chan error, 1)
		go func() {
			_, _, err := client.SendRequest(keepAliveRequest, true, nil)
			errc <- err
		}()

		select {
		case <-done:
			return
		case err := <-errc:
			if err == nil {
				continue
			}
			t.logger.Warn("SSH keepalive to %s failed: %v", t.cfg.Addr(), err)
		case <-time.After(t.cfg.KeepAlive):
			t.logger.Warn("SSH keepalive to %s timed out", t.cfg.Addr())
		}
		_ = client.Close()
		return
	}
}

func closed(ch <-chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

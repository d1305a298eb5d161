// Package core is the orchestration layer.  It composes a dialer, a
// manager and a printer into complete operational modes and provides a
// builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  manager  →  core  →  cmd (CLI)
package core

import (
	"context"
	"io"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/internal/transport"
	"ovpnmi/manager"
	"ovpnmi/util"
)

// Mode is one complete run of ovpnmi (status, kill, load-stats,
// version or watch).  Each mode owns its connection from dial to
// teardown.
type Mode interface {
	Run(ctx context.Context) error
}

// base carries what every mode needs.
type base struct {
	Manager *manager.Manager
	Dialer  transport.Dialer
	Printer *Printer
	Logger  *util.Logger
}

// SetOutput redirects what the mode prints (stdout by default).
func (b *base) SetOutput(w io.Writer) { b.Printer.Out = w }

// teardown closes the session, then the dialer (and its SSH tunnel).
func (b *base) teardown() {
	if err := b.Manager.Close(); err != nil && !ncerr.Is(err, ncerr.ErrNotConnected) {
		b.Logger.Debug("close: %v", err)
	}
	if b.Dialer != nil {
		if err := b.Dialer.Close(); err != nil {
			b.Logger.Debug("close dialer: %v", err)
		}
	}
}

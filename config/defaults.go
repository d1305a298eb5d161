package config

import (
	"time"

	"ovpnmi/internal/session"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variables.

const (
	// DefaultIdleTimeout is the silence that ends a reply.
	DefaultIdleTimeout = session.DefaultIdleTimeout

	// DefaultDialTimeout bounds connecting to the interface or the
	// SSH jump host.
	DefaultDialTimeout = session.DefaultDialTimeout

	// DefaultFraming keeps idle-timeout framing for every reply.
	DefaultFraming = "idle"

	// DefaultWatchInterval is the delay between polls in watch mode.
	DefaultWatchInterval = 5 * time.Second

	// DefaultMaxReconnectBackoff caps the wait between reconnection
	// attempts in watch mode.
	DefaultMaxReconnectBackoff = 30 * time.Second

	// DefaultSSHKeepAlive is how often a jump-host connection is
	// probed while a watch holds it open.
	DefaultSSHKeepAlive = 15 * time.Second

	// EnvPrefix starts every environment variable ovpnmi reads.
	EnvPrefix = "OVPNMI_"
)

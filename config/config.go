// Package config defines the runtime configuration for ovpnmi and turns
// it into a validated management-interface target.
package config

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"time"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/internal/session"
	"ovpnmi/tunnel"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Config holds every tuneable for one ovpnmi run.
type Config struct {
	// ── Management interface ─────────────────────────────────────────
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Socket string `yaml:"socket"`
	URL    string `yaml:"url"`

	IdleTimeout time.Duration `yaml:"idle_timeout"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Framing     string        `yaml:"framing"`

	// ── SSH jump host ────────────────────────────────────────────────
	TunnelSpec     string `yaml:"tunnel"` // raw user@host[:port]
	TunnelEnabled  bool   `yaml:"-"`
	TunnelUser     string `yaml:"-"`
	TunnelHost     string `yaml:"-"`
	TunnelPort     int    `yaml:"-"`
	SSHKeyPath     string `yaml:"ssh_key"`
	SSHPassword    bool   `yaml:"ssh_password"` // prompt interactively
	UseSSHAgent    bool   `yaml:"ssh_agent"`
	StrictHostKey  bool   `yaml:"strict_hostkey"`
	KnownHostsPath string `yaml:"known_hosts"`

	// ── Output ───────────────────────────────────────────────────────
	Output        string        `yaml:"output"`
	WatchInterval time.Duration `yaml:"watch_interval"`
	Verbose       int           `yaml:"verbose"`
	Timestamps    bool          `yaml:"timestamps"`
}

// Default returns a Config with every default applied and no target.
func Default() *Config {
	return &Config{
		IdleTimeout:   DefaultIdleTimeout,
		DialTimeout:   DefaultDialTimeout,
		Framing:       DefaultFraming,
		Output:        OutputText,
		WatchInterval: DefaultWatchInterval,
	}
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, &ncerr.ConfigurationError{
			Field:   "tunnel",
			Value:   spec,
			Message: "invalid tunnel spec",
			Hint:    "expected [user@]host[:port], e.g. admin@bastion.example.com:2222",
		}
	}
	user = m[1]
	host = m[2]
	port = tunnel.DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, ncerr.Config("tunnel", spec, "invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec fills the Tunnel* fields from TunnelSpec.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		c.TunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return err
	}
	c.TunnelEnabled = true
	c.TunnelUser, c.TunnelHost, c.TunnelPort = user, host, port
	return nil
}

// SSHConfig returns the jump-host settings, or nil without a tunnel.
func (c *Config) SSHConfig() *tunnel.SSHConfig {
	if !c.TunnelEnabled {
		return nil
	}
	return &tunnel.SSHConfig{
		User:          c.TunnelUser,
		Host:          c.TunnelHost,
		Port:          c.TunnelPort,
		KeyPath:       c.SSHKeyPath,
		PromptPass:    c.SSHPassword,
		UseAgent:      c.UseSSHAgent,
		StrictHostKey: c.StrictHostKey,
		KnownHosts:    c.KnownHostsPath,
		ConnTimeout:   c.DialTimeout,
		KeepAlive:     DefaultSSHKeepAlive,
	}
}

// ── Validation ───────────────────────────────────────────────────────

// Target builds the management-interface target from whichever of
// host/port, socket or url is set.  Exactly one must be.
func (c *Config) Target() (session.Target, error) {
	return session.NewTarget(c.Host, c.Port, c.Socket, c.URL)
}

// Target forms.  A higher-precedence layer that names one replaces
// whatever other form a lower layer set.
const (
	FormTCP    = "tcp"    // Host and Port
	FormSocket = "socket" // Socket
	FormURL    = "url"    // URL
)

// KeepTargetForms clears every target form not in forms.  With no
// forms it does nothing, so a layer that names no target leaves the
// lower one alone.  Naming two forms keeps both, and Validate then
// reports the conflict.
func (c *Config) KeepTargetForms(forms ...string) {
	if len(forms) == 0 {
		return
	}
	if !slices.Contains(forms, FormTCP) {
		c.Host, c.Port = "", 0
	}
	if !slices.Contains(forms, FormSocket) {
		c.Socket = ""
	}
	if !slices.Contains(forms, FormURL) {
		c.URL = ""
	}
}

// FramingMode returns the parsed framing strategy.
func (c *Config) FramingMode() (session.Framing, error) {
	return session.ParseFraming(c.Framing)
}

// Validate checks that the configuration is internally consistent.
// Every failure is a *errors.ConfigurationError.
func (c *Config) Validate() error {
	if _, err := c.Target(); err != nil {
		return err
	}
	if c.IdleTimeout <= 0 {
		return &ncerr.ConfigurationError{
			Field:   "idle-timeout",
			Value:   c.IdleTimeout,
			Message: "must be positive",
			Hint:    fmt.Sprintf("the default is %s; raise it for slow links", DefaultIdleTimeout),
		}
	}
	if c.DialTimeout <= 0 {
		return ncerr.Config("dial-timeout", c.DialTimeout, "must be positive")
	}
	if _, err := c.FramingMode(); err != nil {
		return err
	}
	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return &ncerr.ConfigurationError{
			Field:   "output",
			Value:   c.Output,
			Message: "unknown output format",
			Hint:    "use --output text or --output json",
		}
	}
	if c.WatchInterval < c.IdleTimeout {
		return &ncerr.ConfigurationError{
			Field:   "interval",
			Value:   c.WatchInterval,
			Message: "shorter than the idle timeout",
			Hint:    fmt.Sprintf("every poll takes at least %s; use --interval %s or more", c.IdleTimeout, c.IdleTimeout),
		}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return ncerr.Config("tunnel", c.TunnelSpec, "tunnel host is required")
	}
	if c.StrictHostKey && !c.TunnelEnabled {
		return &ncerr.ConfigurationError{
			Field:   "strict-hostkey",
			Message: "only applies to an SSH tunnel",
			Hint:    "add --tunnel user@host[:port]",
		}
	}
	return nil
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "ovpnmi/internal/errors"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 7505
	return cfg
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate    func(c *Config)
		wantField string
	}{
		"valid host and port": {mutate: func(*Config) {}},
		"valid socket": {mutate: func(c *Config) {
			c.Host, c.Port = "", 0
			c.Socket = "/run/openvpn/server.sock"
		}},
		"valid url with tunnel": {mutate: func(c *Config) {
			c.Host, c.Port = "", 0
			c.URL = "tcp://127.0.0.1:7505"
			c.TunnelEnabled, c.TunnelHost = true, "gw"
			c.StrictHostKey = true
		}},
		"valid json end-marker": {mutate: func(c *Config) {
			c.Output = OutputJSON
			c.Framing = "end-marker"
		}},
		"no target": {
			mutate:    func(c *Config) { c.Host, c.Port = "", 0 },
			wantField: "url",
		},
		"two targets": {
			mutate:    func(c *Config) { c.Socket = "/run/openvpn/server.sock" },
			wantField: "url",
		},
		"host without port": {
			mutate:    func(c *Config) { c.Port = 0 },
			wantField: "port",
		},
		"relative unix url": {
			mutate: func(c *Config) {
				c.Host, c.Port = "", 0
				c.URL = "unix://run/openvpn.sock"
			},
			wantField: "url",
		},
		"zero idle timeout": {
			mutate:    func(c *Config) { c.IdleTimeout = 0 },
			wantField: "idle-timeout",
		},
		"negative dial timeout": {
			mutate:    func(c *Config) { c.DialTimeout = -time.Second },
			wantField: "dial-timeout",
		},
		"unknown framing": {
			mutate:    func(c *Config) { c.Framing = "length" },
			wantField: "framing",
		},
		"unknown output": {
			mutate:    func(c *Config) { c.Output = "yaml" },
			wantField: "output",
		},
		"interval below idle timeout": {
			mutate:    func(c *Config) { c.WatchInterval = 100 * time.Millisecond },
			wantField: "interval",
		},
		"tunnel without host": {
			mutate:    func(c *Config) { c.TunnelEnabled = true },
			wantField: "tunnel",
		},
		"strict host key without tunnel": {
			mutate:    func(c *Config) { c.StrictHostKey = true },
			wantField: "strict-hostkey",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			test.mutate(cfg)

			err := cfg.Validate()
			if test.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ncerr.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, test.wantField, ce.Field)
		})
	}
}

func TestValidate_ErrorsCarryHints(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"no target":         func(c *Config) { c.Host, c.Port = "", 0 },
		"zero idle timeout": func(c *Config) { c.IdleTimeout = 0 },
		"unknown output":    func(c *Config) { c.Output = "xml" },
		"short interval":    func(c *Config) { c.WatchInterval = time.Millisecond },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "hint:")
		})
	}
}

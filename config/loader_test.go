package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "ovpnmi/internal/errors"
)

func TestLoadFromEnv_Target(t *testing.T) {
	t.Setenv("OVPNMI_HOST", "vpn.example.com")
	t.Setenv("OVPNMI_PORT", "7505")
	t.Setenv("OVPNMI_SOCKET", "/run/openvpn/server.sock")
	t.Setenv("OVPNMI_URL", "tcp://127.0.0.1:1234")

	cfg := Default()
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, "vpn.example.com", cfg.Host)
	assert.Equal(t, 7505, cfg.Port)
	assert.Equal(t, "/run/openvpn/server.sock", cfg.Socket)
	assert.Equal(t, "tcp://127.0.0.1:1234", cfg.URL)
}

func TestLoadFromEnv_BadPort(t *testing.T) {
	t.Setenv("OVPNMI_PORT", "management")

	var ce *ncerr.ConfigurationError
	require.ErrorAs(t, LoadFromEnv(Default()), &ce)
	assert.Equal(t, "port", ce.Field)
}

func TestLoadFromEnv_Durations(t *testing.T) {
	tests := map[string]struct {
		value string
		want  time.Duration
	}{
		"go syntax":      {value: "1500ms", want: 1500 * time.Millisecond},
		"bare seconds":   {value: "3", want: 3 * time.Second},
		"fractional sec": {value: "0.25", want: 250 * time.Millisecond},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("OVPNMI_IDLE_TIMEOUT", test.value)
			cfg := Default()
			require.NoError(t, LoadFromEnv(cfg))
			assert.Equal(t, test.want, cfg.IdleTimeout)
		})
	}
}

func TestLoadFromEnv_BadDuration(t *testing.T) {
	t.Setenv("OVPNMI_WATCH_INTERVAL", "often")

	var ce *ncerr.ConfigurationError
	require.ErrorAs(t, LoadFromEnv(Default()), &ce)
	assert.Equal(t, "interval", ce.Field)
	assert.NotEmpty(t, ce.Hint)
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "TRUE", "Yes"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("OVPNMI_SSH_AGENT", v)
			cfg := Default()
			require.NoError(t, LoadFromEnv(cfg))
			assert.True(t, cfg.UseSSHAgent)
		})
	}

	t.Run("false", func(t *testing.T) {
		t.Setenv("OVPNMI_SSH_AGENT", "no")
		cfg := Default()
		require.NoError(t, LoadFromEnv(cfg))
		assert.False(t, cfg.UseSSHAgent)
	})
}

func TestLoadFromEnv_SSHFields(t *testing.T) {
	t.Setenv("OVPNMI_TUNNEL", "admin@bastion:2222")
	t.Setenv("OVPNMI_SSH_KEY", "/home/user/.ssh/id_rsa")
	t.Setenv("OVPNMI_SSH_PASSWORD", "true")
	t.Setenv("OVPNMI_STRICT_HOSTKEY", "yes")
	t.Setenv("OVPNMI_KNOWN_HOSTS", "/custom/known_hosts")

	cfg := Default()
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, "admin@bastion:2222", cfg.TunnelSpec)
	assert.Equal(t, "/home/user/.ssh/id_rsa", cfg.SSHKeyPath)
	assert.True(t, cfg.SSHPassword)
	assert.True(t, cfg.StrictHostKey)
	assert.Equal(t, "/custom/known_hosts", cfg.KnownHostsPath)
}

func TestLoadFromEnv_Output(t *testing.T) {
	t.Setenv("OVPNMI_OUTPUT", "json")
	t.Setenv("OVPNMI_FRAMING", "end-marker")
	t.Setenv("OVPNMI_VERBOSE", "2")

	cfg := Default()
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, OutputJSON, cfg.Output)
	assert.Equal(t, "end-marker", cfg.Framing)
	assert.Equal(t, 2, cfg.Verbose)
}

func TestLoadFromEnv_EmptyKeepsDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, LoadFromEnv(cfg))
	assert.Equal(t, Default(), cfg)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ovpnmi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
url: unix:///run/openvpn/server.sock
idle_timeout: 2s
framing: end-marker
tunnel: ops@gw.example.com
ssh_agent: true
output: json
watch_interval: 10s
`)

	cfg := Default()
	require.NoError(t, LoadFile(path, cfg))

	assert.Equal(t, "unix:///run/openvpn/server.sock", cfg.URL)
	assert.Equal(t, 2*time.Second, cfg.IdleTimeout)
	assert.Equal(t, "end-marker", cfg.Framing)
	assert.Equal(t, "ops@gw.example.com", cfg.TunnelSpec)
	assert.True(t, cfg.UseSSHAgent)
	assert.Equal(t, OutputJSON, cfg.Output)
	assert.Equal(t, 10*time.Second, cfg.WatchInterval)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout, "keys absent from the file keep their value")
}

func TestLoadFile_UnknownKey(t *testing.T) {
	path := writeFile(t, "host: 127.0.0.1\nprot: 7505\n")

	var ce *ncerr.ConfigurationError
	require.ErrorAs(t, LoadFile(path, Default()), &ce)
	assert.Equal(t, "config", ce.Field)
	assert.Contains(t, ce.Message, "prot")
}

func TestLoadFile_Empty(t *testing.T) {
	cfg := Default()
	require.NoError(t, LoadFile(writeFile(t, ""), cfg))
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_Missing(t *testing.T) {
	err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), Default())

	var ce *ncerr.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestPrecedence_EnvOverFile(t *testing.T) {
	path := writeFile(t, "host: file.example.com\nport: 7505\n")
	t.Setenv("OVPNMI_HOST", "env.example.com")

	cfg := Default()
	require.NoError(t, LoadFile(path, cfg))
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, "env.example.com", cfg.Host)
	assert.Equal(t, 7505, cfg.Port)
}

func TestPrecedence_EnvTargetReplacesFileTarget(t *testing.T) {
	tests := map[string]struct {
		file string
		env  map[string]string
		want func(t *testing.T, cfg *Config)
	}{
		"env socket over file url": {
			file: "url: tcp://127.0.0.1:7505\n",
			env:  map[string]string{"OVPNMI_SOCKET": "/run/openvpn/server.sock"},
			want: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.URL)
				assert.Equal(t, "/run/openvpn/server.sock", cfg.Socket)
			},
		},
		"env url over file host and port": {
			file: "host: 127.0.0.1\nport: 7505\n",
			env:  map[string]string{"OVPNMI_URL": "unix:///run/openvpn/server.sock"},
			want: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.Host)
				assert.Zero(t, cfg.Port)
				assert.Equal(t, "unix:///run/openvpn/server.sock", cfg.URL)
			},
		},
		"env port only over file socket": {
			file: "socket: /run/openvpn/server.sock\n",
			env:  map[string]string{"OVPNMI_PORT": "7505"},
			want: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.Socket)
				assert.Equal(t, 7505, cfg.Port)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range test.env {
				t.Setenv(k, v)
			}
			cfg := Default()
			require.NoError(t, LoadFile(writeFile(t, test.file), cfg))
			require.NoError(t, LoadFromEnv(cfg))
			test.want(t, cfg)
		})
	}
}

func TestKeepTargetForms(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 7505, Socket: "/run/x.sock", URL: "tcp://[::1]:7505"}

	cfg.KeepTargetForms()
	assert.Equal(t, "/run/x.sock", cfg.Socket, "no forms leaves everything")

	cfg.KeepTargetForms(FormSocket, FormURL)
	assert.Empty(t, cfg.Host)
	assert.Zero(t, cfg.Port)
	assert.Equal(t, "/run/x.sock", cfg.Socket)
	assert.Equal(t, "tcp://[::1]:7505", cfg.URL)
}

package config

// loader.go - configuration loading from a YAML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ncerr "ovpnmi/internal/errors"
)

// LoadFile overlays the YAML file at path onto cfg.  Keys missing from
// the file keep their current value; unknown keys are an error.  An
// empty file is accepted.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return ncerr.Config("config", path, "%v", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return &ncerr.ConfigurationError{
			Field:   "config",
			Value:   path,
			Message: err.Error(),
			Hint:    "keys are host, port, socket, url, idle_timeout, dial_timeout, framing, tunnel, ssh_key, ssh_password, ssh_agent, strict_hostkey, known_hosts, output, watch_interval, verbose, timestamps",
		}
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the OVPNMI_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("1500ms") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// variables override.  Call it after LoadFile and before flag parsing.
func LoadFromEnv(cfg *Config) error {
	var forms []string
	if env("HOST") != "" || env("PORT") != "" {
		forms = append(forms, FormTCP)
	}
	if env("SOCKET") != "" {
		forms = append(forms, FormSocket)
	}
	if env("URL") != "" {
		forms = append(forms, FormURL)
	}
	cfg.KeepTargetForms(forms...)

	if v := env("HOST"); v != "" {
		cfg.Host = v
	}
	if v := env("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ncerr.Config("port", v, "%s%s is not a number", EnvPrefix, "PORT")
		}
		cfg.Port = n
	}
	if v := env("SOCKET"); v != "" {
		cfg.Socket = v
	}
	if v := env("URL"); v != "" {
		cfg.URL = v
	}
	if err := envDuration("IDLE_TIMEOUT", "idle-timeout", &cfg.IdleTimeout); err != nil {
		return err
	}
	if err := envDuration("DIAL_TIMEOUT", "dial-timeout", &cfg.DialTimeout); err != nil {
		return err
	}
	if v := env("FRAMING"); v != "" {
		cfg.Framing = v
	}

	// SSH tunnel
	if v := env("TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := env("SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := env("KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := env("OUTPUT"); v != "" {
		cfg.Output = v
	}
	if err := envDuration("WATCH_INTERVAL", "interval", &cfg.WatchInterval); err != nil {
		return err
	}
	if v := env("VERBOSE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Verbose = n
		}
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func envBool(key string) bool {
	v := strings.ToLower(env(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key, field string, dst *time.Duration) error {
	v := env(key)
	if v == "" {
		return nil
	}
	d, err := parseDuration(v)
	if err != nil {
		return &ncerr.ConfigurationError{
			Field:   field,
			Value:   v,
			Message: fmt.Sprintf("%s%s: %v", EnvPrefix, key, err),
			Hint:    `use a duration such as "1500ms" or "2s"`,
		}
	}
	*dst = d
	return nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

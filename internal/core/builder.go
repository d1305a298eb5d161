package core

import (
	"slices"
	"strings"

	"ovpnmi/config"
	ncerr "ovpnmi/internal/errors"
	"ovpnmi/internal/metrics"
	"ovpnmi/internal/retry"
	"ovpnmi/internal/session"
	"ovpnmi/internal/transport"
	"ovpnmi/manager"
	"ovpnmi/util"
)

// CLI commands.
const (
	CommandStatus    = "status"
	CommandKill      = "kill"
	CommandLoadStats = "load-stats"
	CommandVersion   = "version"
	CommandWatch     = "watch"
)

// Commands lists every command in help order.
var Commands = []string{CommandStatus, CommandKill, CommandLoadStats, CommandVersion, CommandWatch}

// Build constructs the Mode for args (command plus its operands) from
// a validated configuration.
func Build(cfg *config.Config, args []string, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	if len(args) == 0 {
		return nil, usageError("", "missing command")
	}
	cmd, operands := args[0], args[1:]

	want := 0
	if cmd == CommandKill {
		want = 1
	}
	if !slices.Contains(Commands, cmd) {
		return nil, usageError(cmd, "unknown command")
	}
	if len(operands) != want {
		if cmd == CommandKill {
			return nil, &ncerr.ConfigurationError{
				Field:   "command",
				Value:   strings.Join(args, " "),
				Message: "kill takes exactly one common name",
				Hint:    "ovpnmi kill <common-name>",
			}
		}
		return nil, ncerr.Config("command", strings.Join(args, " "), "%s takes no arguments", cmd)
	}

	b, err := buildBase(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	switch cmd {
	case CommandKill:
		return &KillMode{base: b, CommonName: operands[0]}, nil
	case CommandLoadStats:
		return &LoadStatsMode{base: b}, nil
	case CommandVersion:
		return &VersionMode{base: b}, nil
	case CommandWatch:
		return buildWatch(cfg, b, m), nil
	default:
		return &StatusMode{base: b}, nil
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildBase(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (base, error) {
	target, err := cfg.Target()
	if err != nil {
		return base{}, err
	}
	framing, err := cfg.FramingMode()
	if err != nil {
		return base{}, err
	}

	dialer := buildDialer(cfg, logger)
	mg := manager.New(target, logger, m,
		session.WithDialer(dialer),
		session.WithIdleTimeout(cfg.IdleTimeout),
		session.WithFraming(framing),
	)
	return base{
		Manager: mg,
		Dialer:  dialer,
		Printer: &Printer{Format: cfg.Output},
		Logger:  logger,
	}, nil
}

func buildWatch(cfg *config.Config, b base, m *metrics.Collector) *WatchMode {
	backoff := retry.DefaultBackoff()
	backoff.MaxDelay = config.DefaultMaxReconnectBackoff
	return &WatchMode{
		base:     b,
		Interval: cfg.WatchInterval,
		Backoff:  backoff,
		Metrics:  m,
	}
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if ssh := cfg.SSHConfig(); ssh != nil {
		return transport.NewSSHDialer(ssh, logger)
	}
	return &transport.NetDialer{Timeout: cfg.DialTimeout}
}

func usageError(cmd, msg string) error {
	return &ncerr.ConfigurationError{
		Field:   "command",
		Value:   nilIfEmpty(cmd),
		Message: msg,
		Hint:    "use one of: " + strings.Join(Commands, ", "),
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"ovpnmi/config"
	"ovpnmi/internal/core"
	"ovpnmi/internal/metrics"
	"ovpnmi/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X ovpnmi/cmd.version=2.0.0"
var version = "0.1.0" //nolint:gochecknoglobals

// Execute parses args and runs the requested management command.
func Execute(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fl := config.Default()
	fs := flag.NewFlagSet("ovpnmi", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── management interface ─────────────────────────────────────
	fs.StringVarP(&fl.Host, "host", "H", "", "Management interface host")
	fs.IntVarP(&fl.Port, "port", "p", 0, "Management interface port")
	fs.StringVarP(&fl.Socket, "socket", "s", "", "Management interface unix socket (absolute path)")
	fs.StringVarP(&fl.URL, "url", "u", "", "Target as tcp://host:port or unix:///path")
	fs.DurationVar(&fl.IdleTimeout, "idle-timeout", fl.IdleTimeout, "Silence that ends a reply")
	fs.DurationVar(&fl.DialTimeout, "dial-timeout", fl.DialTimeout, "Connect timeout")
	fs.StringVar(&fl.Framing, "framing", fl.Framing, "Reply framing: idle or end")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&fl.TunnelSpec, "tunnel", "T", "", "Reach the interface via SSH [user@]host[:port]")
	fs.StringVar(&fl.SSHKeyPath, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&fl.SSHPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&fl.UseSSHAgent, "ssh-agent", false, "Use SSH agent")
	fs.BoolVar(&fl.StrictHostKey, "strict-hostkey", false, "Verify SSH host keys")
	fs.StringVar(&fl.KnownHostsPath, "known-hosts", "", "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.StringVarP(&fl.Output, "output", "o", fl.Output, "Output format: text or json")
	fs.DurationVar(&fl.WatchInterval, "interval", fl.WatchInterval, "Poll interval for watch")
	fs.CountVarP(&fl.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&fl.Timestamps, "timestamps", false, "Prefix log lines with timestamps")

	var configPath string
	var dryRun, stats, showVersion, showHelp bool
	fs.StringVarP(&configPath, "config", "c", "", "YAML config file")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate configuration and exit")
	fs.BoolVar(&stats, "stats", false, "Print session metrics as JSON to stderr on exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs, stderr) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs, stderr)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "ovpnmi %s\n", version)
		return nil
	}

	// ── assemble config: defaults < file < env < flags ───────────
	cfg := config.Default()
	if configPath != "" {
		if err := config.LoadFile(configPath, cfg); err != nil {
			return err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return err
	}
	cfg.KeepTargetForms(flagTargetForms(fs)...)
	fs.Visit(func(f *flag.Flag) { applyFlag(cfg, fl, f.Name) })

	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetOutput(stderr)
	if cfg.Timestamps {
		logger.SetTimestamps(true)
	}

	var m *metrics.Collector
	if stats {
		m = metrics.New()
		defer func() { fmt.Fprintln(stderr, m.JSON()) }()
	}

	mode, err := core.Build(cfg, fs.Args(), logger, m)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Fprintf(stderr, "configuration OK: %s %s\n", strings.Join(fs.Args(), " "), describeTarget(cfg))
		return nil
	}
	if o, ok := mode.(interface{ SetOutput(io.Writer) }); ok {
		o.SetOutput(stdout)
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// applyFlag copies one explicitly set flag from fl into cfg, so flags
// win over the file and the environment without resetting what those
// set.  Target forms are reconciled beforehand by KeepTargetForms.
func applyFlag(cfg, fl *config.Config, name string) {
	switch name {
	case "host":
		cfg.Host = fl.Host
	case "port":
		cfg.Port = fl.Port
	case "socket":
		cfg.Socket = fl.Socket
	case "url":
		cfg.URL = fl.URL
	case "idle-timeout":
		cfg.IdleTimeout = fl.IdleTimeout
	case "dial-timeout":
		cfg.DialTimeout = fl.DialTimeout
	case "framing":
		cfg.Framing = fl.Framing
	case "tunnel":
		cfg.TunnelSpec = fl.TunnelSpec
	case "ssh-key":
		cfg.SSHKeyPath = fl.SSHKeyPath
	case "ssh-password":
		cfg.SSHPassword = fl.SSHPassword
	case "ssh-agent":
		cfg.UseSSHAgent = fl.UseSSHAgent
	case "strict-hostkey":
		cfg.StrictHostKey = fl.StrictHostKey
	case "known-hosts":
		cfg.KnownHostsPath = fl.KnownHostsPath
	case "output":
		cfg.Output = fl.Output
	case "interval":
		cfg.WatchInterval = fl.WatchInterval
	case "verbose":
		cfg.Verbose = fl.Verbose
	case "timestamps":
		cfg.Timestamps = fl.Timestamps
	}
}

// flagTargetForms lists the target forms named on the command line.
func flagTargetForms(fs *flag.FlagSet) []string {
	var forms []string
	if fs.Changed("host") || fs.Changed("port") {
		forms = append(forms, config.FormTCP)
	}
	if fs.Changed("socket") {
		forms = append(forms, config.FormSocket)
	}
	if fs.Changed("url") {
		forms = append(forms, config.FormURL)
	}
	return forms
}

func describeTarget(cfg *config.Config) string {
	target, err := cfg.Target()
	if err != nil {
		return ""
	}
	s := "on " + target.String()
	if cfg.TunnelEnabled {
		s += " via " + cfg.TunnelSpec
	}
	return s
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `ovpnmi v%s

Query and control an OpenVPN server through its management interface.

Usage:
  ovpnmi [options] status                     Connected clients
  ovpnmi [options] kill <common-name>         Disconnect a client
  ovpnmi [options] load-stats                 Server-wide counters
  ovpnmi [options] version                    Daemon and protocol version
  ovpnmi [options] watch                      Poll status every --interval

Options:
`, version)
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintf(w, `
Environment:
  %sHOST, %sPORT, %sSOCKET, %sURL, ... override the config file;
  flags override both.

Examples:
  ovpnmi -H 127.0.0.1 -p 7505 status
  ovpnmi -u unix:///run/openvpn/server.sock kill alice
  ovpnmi -o json -u tcp://10.0.0.1:7505 -T ops@bastion watch
  ovpnmi --idle-timeout %s --framing end status
`, config.EnvPrefix, config.EnvPrefix, config.EnvPrefix, config.EnvPrefix, time.Second)
}

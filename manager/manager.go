// Package manager exposes the high-level management operations: it
// sends one command over a session and hands the reply to the matching
// parser.  It adds no retries; transport errors reach the caller as-is.
package manager

import (
	"context"
	"strings"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/internal/metrics"
	"ovpnmi/internal/reply"
	"ovpnmi/internal/session"
	"ovpnmi/internal/status"
	"ovpnmi/util"
)

// Management commands.
const (
	CmdStatus    = "status 2"
	CmdKill      = "kill"
	CmdLoadStats = "load-stats"
	CmdVersion   = "version"
)

// Manager talks to one management interface.
type Manager struct {
	Session *session.Session
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// New returns a Manager for target.  logger and m may be nil.  Extra
// session options (dialer, timeouts, framing) are passed through.
func New(target session.Target, logger *util.Logger, m *metrics.Collector, opts ...session.Option) *Manager {
	if logger == nil {
		logger = util.NewLogger(int(util.LogQuiet))
	}
	opts = append([]session.Option{session.WithLogger(logger), session.WithMetrics(m)}, opts...)
	return &Manager{
		Session: session.New(target, opts...),
		Logger:  logger,
		Metrics: m,
	}
}

// QueryStatus runs "status 2" and returns the parsed snapshot.
func (mg *Manager) QueryStatus(ctx context.Context) (*status.Snapshot, error) {
	raw, err := mg.Session.Send(ctx, CmdStatus)
	if err != nil {
		return nil, err
	}
	snap, err := status.Parse(raw)
	if err != nil {
		mg.parseFailed(CmdStatus, err)
		return nil, err
	}
	mg.Logger.Verbose("status: %d client(s)", len(snap.Clients))
	return snap, nil
}

// Kill disconnects the client with the given common name.  The daemon's
// verdict is in the returned reply; only transport failures are errors.
// Surrounding whitespace is trimmed from the name.  A name containing
// a line break is answered locally with an ERROR reply, since sending
// it would smuggle a second command.
func (mg *Manager) Kill(ctx context.Context, commonName string) (reply.CommandReply, error) {
	commonName = strings.TrimSpace(commonName)
	if strings.ContainsAny(commonName, "\r\n") {
		return reply.CommandReply{Status: reply.Error, Message: "common name contains a line break"}, nil
	}
	raw, err := mg.Session.Send(ctx, CmdKill+" "+commonName)
	if err != nil {
		return reply.CommandReply{}, err
	}
	r := reply.Parse(strings.TrimSpace(raw))
	mg.Logger.Verbose("kill %s: %s", commonName, r)
	return r, nil
}

// LoadStats runs "load-stats".  An ERROR reply is returned as an error
// wrapping errors.ErrCommandFailed.
func (mg *Manager) LoadStats(ctx context.Context) (reply.LoadStats, error) {
	raw, err := mg.Session.Send(ctx, CmdLoadStats)
	if err != nil {
		return reply.LoadStats{}, err
	}
	r := reply.Parse(raw)
	ls, err := reply.ParseLoadStats(r)
	if err != nil {
		mg.parseFailed(CmdLoadStats, err)
		return reply.LoadStats{}, err
	}
	return ls, nil
}

// Version runs "version".
func (mg *Manager) Version(ctx context.Context) (reply.Version, error) {
	raw, err := mg.Session.Send(ctx, CmdVersion)
	if err != nil {
		return reply.Version{}, err
	}
	v, err := reply.ParseVersion(raw)
	if err != nil {
		mg.parseFailed(CmdVersion, err)
		return reply.Version{}, err
	}
	return v, nil
}

// Close closes the underlying session.
func (mg *Manager) Close() error {
	return mg.Session.Close()
}

// parseFailed counts decoding failures.  ERROR replies are not counted.
func (mg *Manager) parseFailed(cmd string, err error) {
	var pe *ncerr.ParseError
	if !ncerr.As(err, &pe) {
		return
	}
	mg.Metrics.ParseFailed(err)
	mg.Logger.Warn("%s: %v", cmd, err)
}

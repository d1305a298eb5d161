package core

import (
	"context"
)

// StatusMode prints one status snapshot.
type StatusMode struct {
	base
}

func (m *StatusMode) Run(ctx context.Context) error {
	defer m.teardown()

	snap, err := m.Manager.QueryStatus(ctx)
	if err != nil {
		return err
	}
	return m.Printer.Status(snap)
}

// KillMode disconnects one client by common name.  An ERROR reply is
// printed and also returned, so the process exits non-zero.
type KillMode struct {
	base
	CommonName string
}

func (m *KillMode) Run(ctx context.Context) error {
	defer m.teardown()

	r, err := m.Manager.Kill(ctx, m.CommonName)
	if err != nil {
		return err
	}
	if err := m.Printer.Reply(r); err != nil {
		return err
	}
	return r.Err()
}

// LoadStatsMode prints the server-wide counters.
type LoadStatsMode struct {
	base
}

func (m *LoadStatsMode) Run(ctx context.Context) error {
	defer m.teardown()

	ls, err := m.Manager.LoadStats(ctx)
	if err != nil {
		return err
	}
	return m.Printer.LoadStats(ls)
}

// VersionMode prints the daemon and management protocol versions.
type VersionMode struct {
	base
}

func (m *VersionMode) Run(ctx context.Context) error {
	defer m.teardown()

	v, err := m.Manager.Version(ctx)
	if err != nil {
		return err
	}
	return m.Printer.Version(v)
}

// Package session owns the connection to a management interface and
// reconstructs whole replies from a protocol that has no length prefix.
//
// Replies are framed by silence: the session keeps reading until one
// read waits a full idle window without receiving anything.  Status
// output happens to end with an END line but acknowledgements such as
// "SUCCESS: ..." have no terminator at all, so the idle window is the
// only signal that works for both.  A reply that stalls mid-stream for
// longer than the window is returned truncated; raise the window with
// WithIdleTimeout when the interface sits behind a slow link.
package session

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/internal/metrics"
	"ovpnmi/internal/transport"
	"ovpnmi/util"
)

const (
	// DefaultIdleTimeout is the silence that ends a reply.
	DefaultIdleTimeout = time.Second
	// DefaultDialTimeout bounds connection establishment.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout bounds writing one command.
	DefaultWriteTimeout = 5 * time.Second

	// Terminator ends every command line.
	Terminator = "\n"
)

// Framing selects how the end of a reply is detected.
type Framing int

const (
	// FrameIdle ends a reply only on an idle window with no data.
	FrameIdle Framing = iota
	// FrameEndMarker also ends a reply as soon as it ends with an
	// "END" line.  Acknowledgements still end on the idle window.
	FrameEndMarker
)

func (f Framing) String() string {
	switch f {
	case FrameEndMarker:
		return "end-marker"
	default:
		return "idle"
	}
}

// ParseFraming maps "idle" and "end-marker" to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "", "idle":
		return FrameIdle, nil
	case "end-marker", "end":
		return FrameEndMarker, nil
	}
	return FrameIdle, ncerr.Config("framing", s, "must be idle or end-marker")
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the default net dialer, e.g. with an SSH dialer.
func WithDialer(d transport.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithIdleTimeout sets the silence that ends a reply.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithWriteTimeout bounds writing one command.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithFraming selects the reply framing strategy.
func WithFraming(f Framing) Option {
	return func(s *Session) { s.framing = f }
}

// WithLogger attaches a logger.
func WithLogger(l *util.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is one half-duplex conversation with a management interface.
// Send holds a lock for the whole round trip, so concurrent callers are
// serialized and never interleave commands.
type Session struct {
	id           string
	target       Target
	dialer       transport.Dialer
	idleTimeout  time.Duration
	writeTimeout time.Duration
	framing      Framing
	logger       *util.Logger
	metrics      *metrics.Collector

	mu   sync.Mutex
	conn net.Conn
}

// New returns an unconnected session for target.
func New(target Target, opts ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		target:       target,
		idleTimeout:  DefaultIdleTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = &transport.NetDialer{Timeout: DefaultDialTimeout}
	}
	if s.logger == nil {
		s.logger = util.NewLogger(int(util.LogQuiet))
	}
	s.logger = s.logger.With("session", s.id[:8])
	return s
}

// ID returns the session's unique id, used to correlate log lines.
func (s *Session) ID() string { return s.id }

// Target returns the endpoint the session talks to.
func (s *Session) Target() Target { return s.target }

// IdleTimeout returns the reply framing window.
func (s *Session) IdleTimeout() time.Duration { return s.idleTimeout }

// Connected reports whether the session holds an open connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Connect opens the connection.  It is a no-op when already connected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connect(ctx)
}

func (s *Session) connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	s.logger.Verbose("connecting to %s", s.target)
	conn, err := s.dialer.Dial(ctx, s.target.Network, s.target.Address)
	if err != nil {
		if ncerr.IsTransport(err) {
			return err
		}
		return ncerr.Wrap("dial", s.target.Address, err)
	}
	s.conn = conn
	s.metrics.ConnectionOpened()
	s.logger.Verbose("connected to %s", s.target)
	return nil
}

// Send writes command plus the line terminator and returns the whole
// reply, with real-time notification lines (">INFO:", ">LOG:" ...)
// removed.  It connects first when needed.  Errors are *TransportError.
func (s *Session) Send(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := s.roundTrip(ctx, command)
	s.metrics.CommandDone(time.Since(start), err)
	if err != nil {
		s.logger.Debug("%q failed after %s: %v", command, time.Since(start), err)
		// The rest of the reply may still arrive; it must not be read
		// as the answer to the next command.
		s.drop()
		return "", err
	}

	s.logger.Debug("%q -> %d bytes in %s", command, len(reply), time.Since(start))
	return reply, nil
}

func (s *Session) roundTrip(ctx context.Context, command string) (string, error) {
	if err := s.write(command); err != nil {
		return "", err
	}
	raw, err := s.read(ctx)
	if err != nil {
		return "", err
	}
	return stripNotifications(raw), nil
}

func (s *Session) write(command string) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return ncerr.Wrap("write", s.target.Address, err)
	}
	n, err := io.WriteString(s.conn, command+Terminator)
	s.metrics.BytesSent(int64(n))
	if err != nil {
		return ncerr.Wrap("write", s.target.Address, err)
	}
	return nil
}

// read accumulates chunks until a read sees no data for a whole idle
// window.  That timeout is the end-of-reply signal, not an error.
func (s *Session) read(ctx context.Context) (string, error) {
	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	acc := util.GetReplyBuf()
	defer util.PutReplyBuf(acc)
	for {
		if err := ctx.Err(); err != nil {
			return "", ncerr.Wrap("read", s.target.Address, err)
		}

		deadline := time.Now().Add(s.idleTimeout)
		d, ok := ctx.Deadline()
		ctxBound := ok && d.Before(deadline)
		if ctxBound {
			deadline = d
		}
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return "", ncerr.Wrap("read", s.target.Address, err)
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			s.metrics.BytesReceived(int64(n))
		}

		switch {
		case err == nil:
			if s.framing == FrameEndMarker && endsWithEndLine(acc.Bytes()) {
				return acc.String(), nil
			}
		case ncerr.IsTimeout(err):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ncerr.Wrap("read", s.target.Address, ctxErr)
			}
			if ctxBound {
				// The context's deadline, not an idle window, ended
				// this read; the reply may be incomplete.
				return "", ncerr.Wrap("read", s.target.Address, context.DeadlineExceeded)
			}
			return acc.String(), nil
		case err == io.EOF && acc.Len() > 0:
			return acc.String(), nil
		default:
			return "", ncerr.Wrap("read", s.target.Address, err)
		}
	}
}

// Close shuts down the write side, then the connection.  It waits for
// an in-flight Send to finish first.  Closing an unconnected session
// returns ErrNotConnected.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ncerr.ErrNotConnected
	}
	conn := s.conn
	s.conn = nil
	s.metrics.ConnectionClosed()

	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	if err := conn.Close(); err != nil {
		return ncerr.Wrap("close", s.target.Address, err)
	}
	s.logger.Verbose("disconnected from %s", s.target)
	return nil
}

// drop discards the connection after a failed exchange.  The next
// Send dials afresh.
func (s *Session) drop() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	s.metrics.ConnectionClosed()
	s.logger.Verbose("dropped connection to %s", s.target)
}

// endsWithEndLine reports whether data ends with a complete "END" line.
func endsWithEndLine(data []byte) bool {
	if !bytes.HasSuffix(data, []byte("\n")) {
		return false
	}
	data = bytes.TrimRight(data, "\r\n")
	i := bytes.LastIndexByte(data, '\n')
	return string(data[i+1:]) == "END"
}

// stripNotifications drops real-time notification lines, which the
// daemon may interleave with any reply.
func stripNotifications(raw string) string {
	if !strings.Contains(raw, ">") {
		return raw
	}
	lines := strings.SplitAfter(raw, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(line, ">") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "")
}

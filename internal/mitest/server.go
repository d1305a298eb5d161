// Package mitest provides a scripted stand-in for an OpenVPN management
// interface, listening on loopback TCP or a unix socket, for tests.
package mitest

import (
	"bufio"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// Banner is what the daemon writes as soon as a client connects.
const Banner = ">INFO:OpenVPN Management Interface Version 5 -- type 'help' for more info\r\n"

// UnknownCommand is the daemon's reply to anything it does not know.
const UnknownCommand = "ERROR: unknown command, enter 'help' for more options\r\n"

// Server answers each command line with a canned reply.
type Server struct {
	replies         map[string]string
	banner          string
	chunkSize       int
	chunkGap        time.Duration
	closeAfterReply bool

	network string
	address string
	ln      net.Listener
	wg      sync.WaitGroup

	mu       sync.Mutex
	commands []string
	conns    map[net.Conn]struct{}
}

// Option tweaks server behaviour.
type Option func(*Server)

// WithBanner replaces the connect banner; "" disables it.
func WithBanner(banner string) Option {
	return func(s *Server) { s.banner = banner }
}

// WithChunks splits every reply into size-byte writes, gap apart.
func WithChunks(size int, gap time.Duration) Option {
	return func(s *Server) {
		s.chunkSize = size
		s.chunkGap = gap
	}
}

// WithCloseAfterReply closes the connection after the first reply.
func WithCloseAfterReply() Option {
	return func(s *Server) { s.closeAfterReply = true }
}

// NewTCP starts a server on a random loopback port.  It is closed when
// the test ends.
func NewTCP(tb testing.TB, replies map[string]string, opts ...Option) *Server {
	tb.Helper()
	return start(tb, "tcp", "127.0.0.1:0", replies, opts)
}

// NewUnix starts a server on a socket inside the test's temp dir.
func NewUnix(tb testing.TB, replies map[string]string, opts ...Option) *Server {
	tb.Helper()
	return start(tb, "unix", filepath.Join(tb.TempDir(), "management.sock"), replies, opts)
}

func start(tb testing.TB, network, address string, replies map[string]string, opts []Option) *Server {
	ln, err := net.Listen(network, address)
	if err != nil {
		tb.Fatalf("mitest: listen %s %s: %v", network, address, err)
	}
	s := &Server{
		replies: replies,
		banner:  Banner,
		network: network,
		address: ln.Addr().String(),
		ln:      ln,
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.serve()
	tb.Cleanup(s.Close)
	return s
}

// Network returns "tcp" or "unix".
func (s *Server) Network() string { return s.network }

// Addr returns host:port for TCP servers or the socket path.
func (s *Server) Addr() string { return s.address }

// Port returns the TCP port, or 0 for unix servers.
func (s *Server) Port() int {
	if a, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// Commands returns every command line received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	if s.banner != "" {
		if _, err := conn.Write([]byte(s.banner)); err != nil {
			return
		}
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")

		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		reply, ok := s.replies[cmd]
		if !ok {
			reply = UnknownCommand
		}
		if err := s.write(conn, reply); err != nil {
			return
		}
		if s.closeAfterReply {
			return
		}
	}
}

func (s *Server) write(conn net.Conn, reply string) error {
	if s.chunkSize <= 0 {
		_, err := conn.Write([]byte(reply))
		return err
	}
	for len(reply) > 0 {
		n := min(s.chunkSize, len(reply))
		if _, err := conn.Write([]byte(reply[:n])); err != nil {
			return err
		}
		reply = reply[n:]
		if len(reply) > 0 {
			time.Sleep(s.chunkGap)
		}
	}
	return nil
}

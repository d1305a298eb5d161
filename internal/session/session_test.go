package session

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/internal/metrics"
	"ovpnmi/internal/mitest"
)

const testIdle = 150 * time.Millisecond

func newTestSession(t *testing.T, srv *mitest.Server, opts ...Option) *Session {
	t.Helper()
	target := Target{Network: srv.Network(), Address: srv.Addr()}
	s := New(target, append([]Option{WithIdleTimeout(testIdle)}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_Send(t *testing.T) {
	tests := map[string]struct {
		newServer func(testing.TB, map[string]string, ...mitest.Option) *mitest.Server
	}{
		"tcp":  {newServer: mitest.NewTCP},
		"unix": {newServer: mitest.NewUnix},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			srv := test.newServer(t, mitest.Replies())
			sess := newTestSession(t, srv)

			reply, err := sess.Send(context.Background(), "kill d.test")
			require.NoError(t, err)
			assert.Equal(t, mitest.KillSuccess, reply)

			reply, err = sess.Send(context.Background(), "status 2")
			require.NoError(t, err)
			assert.Equal(t, mitest.StatusOneClient, reply)

			assert.Equal(t, []string{"kill d.test", "status 2"}, srv.Commands())
		})
	}
}

func TestSession_SendConnectsLazily(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies())
	sess := newTestSession(t, srv)

	assert.False(t, sess.Connected())
	_, err := sess.Send(context.Background(), "version")
	require.NoError(t, err)
	assert.True(t, sess.Connected())
}

func TestSession_ConnectIsIdempotent(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies())
	m := metrics.New()
	sess := newTestSession(t, srv, WithMetrics(m))

	require.NoError(t, sess.Connect(context.Background()))
	require.NoError(t, sess.Connect(context.Background()))
	assert.EqualValues(t, 1, m.TotalConnections())
}

func TestSession_StripsNotifications(t *testing.T) {
	replies := map[string]string{
		"load-stats": ">LOG:1680267292,I,client connected\r\n" + mitest.LoadStats,
	}
	srv := mitest.NewTCP(t, replies)
	sess := newTestSession(t, srv)

	reply, err := sess.Send(context.Background(), "load-stats")
	require.NoError(t, err)
	assert.Equal(t, mitest.LoadStats, reply)
}

func TestSession_UnknownCommandReply(t *testing.T) {
	srv := mitest.NewTCP(t, nil, mitest.WithBanner(""))
	sess := newTestSession(t, srv)

	reply, err := sess.Send(context.Background(), "bogus")
	require.NoError(t, err)
	assert.Equal(t, mitest.UnknownCommand, reply)
}

func TestSession_FragmentedReplyWithinIdleWindow(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies(), mitest.WithChunks(64, testIdle/5))
	sess := newTestSession(t, srv)

	reply, err := sess.Send(context.Background(), "status 2")
	require.NoError(t, err)
	assert.Equal(t, mitest.StatusOneClient, reply)
}

func TestSession_FragmentedReplyBeyondIdleWindowIsTruncated(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies(),
		mitest.WithBanner(""), mitest.WithChunks(64, 3*testIdle))
	sess := newTestSession(t, srv)

	reply, err := sess.Send(context.Background(), "status 2")
	require.NoError(t, err)
	assert.Equal(t, mitest.StatusOneClient[:64], reply)
}

func TestSession_ContextDeadlineDuringReplyIsError(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies(), mitest.WithChunks(16, 20*time.Millisecond))
	m := metrics.New()
	sess := newTestSession(t, srv, WithMetrics(m))

	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		reply, err := sess.Send(ctx, "status 2")
		cancel()

		require.Error(t, err, "attempt %d returned %d bytes as a full reply", i, len(reply))
		assert.True(t, ncerr.IsTransport(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, sess.Connected(), "connection kept after a partial read")
	}
	assert.EqualValues(t, 0, m.ActiveConnections())

	// A fresh connection gets the whole reply, with nothing left over
	// from the abandoned ones.
	reply, err := sess.Send(context.Background(), "status 2")
	require.NoError(t, err)
	assert.Equal(t, mitest.StatusOneClient, reply)
}

func TestSession_EndMarkerFraming(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies(), mitest.WithBanner(""))
	sess := newTestSession(t, srv, WithFraming(FrameEndMarker), WithIdleTimeout(5*time.Second))

	start := time.Now()
	reply, err := sess.Send(context.Background(), "status 2")
	require.NoError(t, err)
	assert.Equal(t, mitest.StatusOneClient, reply)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSession_IdleFramingWaitsForSilence(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies())
	sess := newTestSession(t, srv)

	start := time.Now()
	_, err := sess.Send(context.Background(), "version")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), testIdle)
}

func TestSession_PeerClosesAfterReply(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies(), mitest.WithCloseAfterReply())
	sess := newTestSession(t, srv, WithIdleTimeout(5*time.Second))

	reply, err := sess.Send(context.Background(), "kill d.test")
	require.NoError(t, err)
	assert.Equal(t, mitest.KillSuccess, reply)
}

func TestSession_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	sess := New(Target{Network: "tcp", Address: addr})
	_, err = sess.Send(context.Background(), "status 2")
	require.Error(t, err)

	var te *ncerr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "dial", te.Op)
	assert.Equal(t, addr, te.Addr)
}

func TestSession_ReadAfterPeerGone(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies(), mitest.WithBanner(""))
	sess := newTestSession(t, srv)

	require.NoError(t, sess.Connect(context.Background()))
	srv.Close()

	_, err := sess.Send(context.Background(), "status 2")
	require.Error(t, err)
	assert.True(t, ncerr.IsTransport(err))
}

func TestSession_CancelledContext(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies())
	sess := newTestSession(t, srv)
	require.NoError(t, sess.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sess.Send(ctx, "status 2")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_Close(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies())
	m := metrics.New()
	sess := New(Target{Network: srv.Network(), Address: srv.Addr()}, WithMetrics(m))

	assert.ErrorIs(t, sess.Close(), ncerr.ErrNotConnected)

	require.NoError(t, sess.Connect(context.Background()))
	assert.EqualValues(t, 1, m.ActiveConnections())

	require.NoError(t, sess.Close())
	assert.False(t, sess.Connected())
	assert.EqualValues(t, 0, m.ActiveConnections())
	assert.ErrorIs(t, sess.Close(), ncerr.ErrNotConnected)
}

func TestSession_SerializesConcurrentSends(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies())
	sess := newTestSession(t, srv)

	var wg sync.WaitGroup
	replies := make([]string, 4)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := "kill d.test"
			if i%2 == 1 {
				cmd = "load-stats"
			}
			r, err := sess.Send(context.Background(), cmd)
			assert.NoError(t, err)
			replies[i] = r
		}(i)
	}
	wg.Wait()

	for i, r := range replies {
		if i%2 == 1 {
			assert.Equal(t, mitest.LoadStats, r)
		} else {
			assert.Equal(t, mitest.KillSuccess, r)
		}
	}
	assert.Len(t, srv.Commands(), 4)
}

func TestSession_Metrics(t *testing.T) {
	srv := mitest.NewTCP(t, mitest.Replies(), mitest.WithBanner(""))
	m := metrics.New()
	sess := newTestSession(t, srv, WithMetrics(m))

	_, err := sess.Send(context.Background(), "load-stats")
	require.NoError(t, err)

	assert.EqualValues(t, 1, m.TotalCommands())
	assert.EqualValues(t, len("load-stats\n"), m.TotalBytesOut())
	assert.EqualValues(t, len(mitest.LoadStats), m.TotalBytesIn())
}

func TestParseFraming(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    Framing
		wantErr bool
	}{
		"default":    {in: "", want: FrameIdle},
		"idle":       {in: "idle", want: FrameIdle},
		"end-marker": {in: "end-marker", want: FrameEndMarker},
		"short end":  {in: "end", want: FrameEndMarker},
		"unknown":    {in: "length", wantErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseFraming(test.in)
			if test.wantErr {
				var ce *ncerr.ConfigurationError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
			assert.NotEmpty(t, got.String())
		})
	}
}

func TestEndsWithEndLine(t *testing.T) {
	tests := map[string]struct {
		data string
		want bool
	}{
		"crlf":         {data: "GLOBAL_STATS,x,0\r\nEND\r\n", want: true},
		"lf":           {data: "x\nEND\n", want: true},
		"only end":     {data: "END\r\n", want: true},
		"no newline":   {data: "x\r\nEND", want: false},
		"partial":      {data: "x\r\nEN", want: false},
		"end in field": {data: "TITLE,BACKEND\r\n", want: false},
		"ack":          {data: "SUCCESS: pid=1\r\n", want: false},
		"empty":        {data: "", want: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, endsWithEndLine([]byte(test.data)))
		})
	}
}

func TestStripNotifications(t *testing.T) {
	raw := strings.Join([]string{
		mitest.Banner,
		"SUCCESS: pid=4242\r\n",
		">HOLD:Waiting for hold release\r\n",
	}, "")
	assert.Equal(t, "SUCCESS: pid=4242\r\n", stripNotifications(raw))
	assert.Equal(t, "TITLE,a>b\r\n", stripNotifications("TITLE,a>b\r\n"))
}

// Package metrics provides lightweight, lock-free counters for the
// traffic an ovpnmi process exchanges with management interfaces.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Collector tracks runtime metrics for one or more sessions.
// A nil Collector is safe to use; every method is then a no-op.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	commandsTotal     atomic.Int64
	commandsFailed    atomic.Int64
	parseErrors       atomic.Int64
	reconnects        atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	lastLatency       atomic.Int64 // nanoseconds

	mu           sync.RWMutex
	startTime    time.Time
	lastCommand  time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// Reconnect records a reconnect performed by a caller above the session.
func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Add(1)
}

// Reconnects returns the reconnect count.
func (c *Collector) Reconnects() int64 {
	if c == nil {
		return 0
	}
	return c.reconnects.Load()
}

// ── Command metrics ──────────────────────────────────────────────────

// CommandDone records a completed command round trip and its latency.
// Latency includes the idle window that terminates every reply.
func (c *Collector) CommandDone(latency time.Duration, err error) {
	if c == nil {
		return
	}
	c.commandsTotal.Add(1)
	c.lastLatency.Store(int64(latency))
	c.mu.Lock()
	c.lastCommand = time.Now()
	c.mu.Unlock()
	if err != nil {
		c.commandsFailed.Add(1)
		c.RecordError(err.Error())
	}
}

// TotalCommands returns the number of commands sent.
func (c *Collector) TotalCommands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsTotal.Load()
}

// FailedCommands returns the number of commands that hit a transport error.
func (c *Collector) FailedCommands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsFailed.Load()
}

// LastLatency returns the round-trip time of the most recent command.
func (c *Collector) LastLatency() time.Duration {
	if c == nil {
		return 0
	}
	return time.Duration(c.lastLatency.Load())
}

// ParseFailed records a reply that could not be decoded.
func (c *Collector) ParseFailed(err error) {
	if c == nil {
		return
	}
	c.parseErrors.Add(1)
	if err != nil {
		c.RecordError(err.Error())
	}
}

// ParseErrors returns the number of undecodable replies.
func (c *Collector) ParseErrors() int64 {
	if c == nil {
		return 0
	}
	return c.parseErrors.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the management interface.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the management interface.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError stores the most recent error message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	Reconnects        int64  `json:"reconnects"`
	CommandsTotal     int64  `json:"commands_total"`
	CommandsFailed    int64  `json:"commands_failed"`
	ParseErrors       int64  `json:"parse_errors"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	LastLatency       string `json:"last_latency,omitempty"`
	LastCommand       string `json:"last_command,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		Reconnects:        c.reconnects.Load(),
		CommandsTotal:     c.commandsTotal.Load(),
		CommandsFailed:    c.commandsFailed.Load(),
		ParseErrors:       c.parseErrors.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
	}
	if lat := c.lastLatency.Load(); lat > 0 {
		s.LastLatency = time.Duration(lat).Truncate(time.Millisecond).String()
	}
	if !c.lastCommand.IsZero() {
		s.LastCommand = c.lastCommand.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

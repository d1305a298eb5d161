// Package errors provides domain-specific error types for ovpnmi.
//
// These types carry structured context (operation, address, line,
// retryability) that helps callers decide how to handle failures and
// provides better diagnostics than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected    = errors.New("not connected")
	ErrTimeout         = errors.New("operation timed out")
	ErrCommandFailed   = errors.New("management command failed")
	ErrTunnelClosed    = errors.New("tunnel is closed")
	ErrHostKeyMismatch = errors.New("host key mismatch")
)

// ── Structured error types ───────────────────────────────────────────

// TransportError represents a failure at the byte-stream level.
type TransportError struct {
	Op        string // operation: "dial", "write", "read", "close"
	Addr      string // network address or socket path involved
	Err       error  // underlying error
	Retryable bool   // whether reconnecting may help
}

func (e *TransportError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *TransportError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigurationError represents an invalid or missing connection setting.
// A session cannot be built from a configuration that produced one.
type ConfigurationError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ParseError reports a recognized reply line with the wrong shape or an
// unparsable field.
type ParseError struct {
	Line   int    // 1-based line number in the reply, 0 if unknown
	Prefix string // record type, e.g. "CLIENT_LIST"
	Field  string // offending field name, empty for shape errors
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse"
	if e.Line > 0 {
		msg += fmt.Sprintf(" line %d", e.Line)
	}
	if e.Prefix != "" {
		msg += " " + e.Prefix
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" field %q", e.Field)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a TransportError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *TransportError {
	return &TransportError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Config creates a ConfigurationError without a hint.
func Config(field string, value interface{}, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying after a reconnect.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return classifyRetryable(err)
}

// IsTransport reports whether err originated at the byte-stream level.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return true
		}
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use ovpnmi/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }

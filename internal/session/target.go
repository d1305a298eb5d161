package session

import (
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/util"
)

const targetHint = "give exactly one of --host/--port, --socket, or --url " +
	"(tcp://host:port or unix:///absolute/path)"

// Target is a validated management-interface endpoint.
type Target struct {
	Network string // "tcp" or "unix"
	Address string // host:port, or the socket path
}

// String renders the target in URL form.
func (t Target) String() string {
	if t.Network == "unix" {
		return "unix://" + t.Address
	}
	return "tcp://" + t.Address
}

// TCP returns a target for host:port.
func TCP(host string, port int) (Target, error) {
	if host == "" {
		return Target{}, &ncerr.ConfigurationError{Field: "host", Message: "required with --port", Hint: targetHint}
	}
	if port < 1 || port > 65535 {
		return Target{}, &ncerr.ConfigurationError{
			Field:   "port",
			Value:   port,
			Message: "out of range 1-65535",
			Hint:    targetHint,
		}
	}
	return Target{Network: "tcp", Address: util.FormatAddr(host, port)}, nil
}

// Unix returns a target for a local socket path.
func Unix(socketPath string) (Target, error) {
	if socketPath == "" {
		return Target{}, &ncerr.ConfigurationError{Field: "socket", Message: "empty socket path", Hint: targetHint}
	}
	return Target{Network: "unix", Address: socketPath}, nil
}

// ParseURL accepts tcp://host:port and unix:///absolute/path.  The
// two-slash form unix://relative/path is rejected: its first segment
// would be read as a host.
func ParseURL(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, &ncerr.ConfigurationError{Field: "url", Value: raw, Message: err.Error(), Hint: targetHint}
	}

	switch u.Scheme {
	case "tcp":
		host, portStr, err := net.SplitHostPort(u.Host)
		if err != nil {
			return Target{}, &ncerr.ConfigurationError{Field: "url", Value: raw, Message: "expected tcp://host:port", Hint: targetHint}
		}
		if u.Path != "" && u.Path != "/" {
			return Target{}, &ncerr.ConfigurationError{Field: "url", Value: raw, Message: "tcp url must not have a path", Hint: targetHint}
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Target{}, &ncerr.ConfigurationError{Field: "url", Value: raw, Message: "invalid port " + strconv.Quote(portStr), Hint: targetHint}
		}
		return TCP(host, port)
	case "unix":
		if u.Host != "" || !path.IsAbs(u.Path) || !strings.HasPrefix(raw, "unix:///") {
			return Target{}, &ncerr.ConfigurationError{
				Field:   "url",
				Value:   raw,
				Message: "unix socket path must be absolute",
				Hint:    "use three slashes: unix:///run/openvpn/server.sock",
			}
		}
		return Unix(u.Path)
	default:
		return Target{}, &ncerr.ConfigurationError{
			Field:   "url",
			Value:   raw,
			Message: "unsupported scheme " + strconv.Quote(u.Scheme),
			Hint:    targetHint,
		}
	}
}

// NewTarget validates that exactly one target form is given and builds
// it.  host and port together form one target; either alone is an error.
func NewTarget(host string, port int, socketPath, rawURL string) (Target, error) {
	var forms []string
	if host != "" || port != 0 {
		forms = append(forms, "host/port")
	}
	if socketPath != "" {
		forms = append(forms, "socket")
	}
	if rawURL != "" {
		forms = append(forms, "url")
	}

	switch len(forms) {
	case 0:
		return Target{}, &ncerr.ConfigurationError{Field: "url", Message: "no management interface target given", Hint: targetHint}
	case 1:
	default:
		return Target{}, &ncerr.ConfigurationError{
			Field:   "url",
			Message: "conflicting targets: " + strings.Join(forms, ", "),
			Hint:    targetHint,
		}
	}

	switch {
	case rawURL != "":
		return ParseURL(rawURL)
	case socketPath != "":
		return Unix(socketPath)
	default:
		return TCP(host, port)
	}
}

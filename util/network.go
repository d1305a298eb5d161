package util

import (
	"net"
	"strconv"
	"strings"
)

// FormatAddr returns "host:port", bracketing IPv6 literals.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// HostOnly strips a trailing ":port" from an address as printed by the
// management interface.  Bracketed IPv6 addresses lose their brackets.
// An address without a port is returned unchanged.
func HostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	i := strings.LastIndexByte(addr, ':')
	if i < 0 {
		return addr
	}
	if _, err := strconv.Atoi(addr[i+1:]); err != nil {
		return addr
	}
	return addr[:i]
}

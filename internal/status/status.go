// Package status parses the reply to the management "status 2" command.
//
// Parsing is strict: a recognized record with the wrong number of fields
// or a value that does not parse fails the whole report.  Unknown record
// types are skipped so newer daemons can add records freely.
package status

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/util"
)

// TimeLayout is the ctime-style timestamp the daemon prints, e.g.
// "Fri Mar 31 15:54:52 2023".  It carries no zone and parses as UTC.
const TimeLayout = time.ANSIC

// Client is one connected peer from a CLIENT_LIST record.
type Client struct {
	CommonName         string    `json:"common_name"`
	RealAddress        string    `json:"real_address"`
	VirtualAddress     string    `json:"virtual_address"`
	VirtualIPv6Address string    `json:"virtual_ipv6_address"`
	BytesReceived      uint64    `json:"bytes_received"`
	BytesSent          uint64    `json:"bytes_sent"`
	ConnectedSince     time.Time `json:"connected_since"`
	Username           string    `json:"username"`
	ClientID           int64     `json:"client_id"`
	PeerID             int64     `json:"peer_id"`
}

// Snapshot is a fully parsed status report.  Clients keep the order of
// the report, duplicates included.
type Snapshot struct {
	Title   string     `json:"title"`
	Time    *time.Time `json:"time,omitempty"`
	Clients []Client   `json:"clients"`
}

// Totals sums the traffic counters over all clients.
func (s *Snapshot) Totals() (received, sent uint64) {
	for _, c := range s.Clients {
		received += c.BytesReceived
		sent += c.BytesSent
	}
	return received, sent
}

// clientFields lists the CLIENT_LIST columns after the record type.
var clientFields = [...]string{
	"common_name",
	"real_address",
	"virtual_address",
	"virtual_ipv6_address",
	"bytes_received",
	"bytes_sent",
	"connected_since",
	"connected_since_epoch",
	"username",
	"client_id",
	"peer_id",
}

// handler consumes everything after the record type's comma.
type handler func(s *Snapshot, rest string) error

func ignore(*Snapshot, string) error { return nil }

var handlers = map[string]handler{
	"TITLE":         parseTitle,
	"TIME":          parseTime,
	"CLIENT_LIST":   parseClient,
	"HEADER":        ignore,
	"ROUTING_TABLE": ignore,
	"GLOBAL_STATS":  ignore,
	"END":           ignore,
}

// Parse builds a Snapshot from the text of a status reply.  It returns
// a *errors.ParseError and no snapshot if any recognized line is bad.
func Parse(text string) (*Snapshot, error) {
	snap := &Snapshot{Clients: []Client{}}

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		prefix, rest, _ := strings.Cut(line, ",")
		h, ok := handlers[prefix]
		if !ok {
			continue
		}
		if err := h(snap, rest); err != nil {
			return nil, lineError(i+1, prefix, err)
		}
	}
	return snap, nil
}

func lineError(line int, prefix string, err error) error {
	var pe *ncerr.ParseError
	if ncerr.As(err, &pe) {
		pe.Line = line
		pe.Prefix = prefix
		return pe
	}
	return &ncerr.ParseError{Line: line, Prefix: prefix, Err: err}
}

func parseTitle(s *Snapshot, rest string) error {
	s.Title = rest
	return nil
}

func parseTime(s *Snapshot, rest string) error {
	fields := strings.Split(rest, ",")
	if rest == "" || len(fields) > 2 {
		return fmt.Errorf("expected timestamp and optional epoch, got %d fields", len(fields))
	}
	t, err := parseTimestamp("time", fields[0])
	if err != nil {
		return err
	}
	s.Time = &t
	return nil
}

func parseClient(s *Snapshot, rest string) error {
	f := strings.Split(rest, ",")
	if len(f) != len(clientFields) {
		return fmt.Errorf("expected %d fields, got %d", len(clientFields), len(f))
	}

	var (
		c   Client
		err error
	)
	c.CommonName = f[0]
	c.RealAddress = util.HostOnly(f[1])
	c.VirtualAddress = f[2]
	c.VirtualIPv6Address = f[3]
	if c.BytesReceived, err = parseCounter(clientFields[4], f[4]); err != nil {
		return err
	}
	if c.BytesSent, err = parseCounter(clientFields[5], f[5]); err != nil {
		return err
	}
	if c.ConnectedSince, err = parseTimestamp(clientFields[6], f[6]); err != nil {
		return err
	}
	c.Username = f[8]
	if c.ClientID, err = parseID(clientFields[9], f[9]); err != nil {
		return err
	}
	if c.PeerID, err = parseID(clientFields[10], f[10]); err != nil {
		return err
	}

	s.Clients = append(s.Clients, c)
	return nil
}

func parseCounter(field, v string) (uint64, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, &ncerr.ParseError{Field: field, Err: err}
	}
	return n, nil
}

func parseID(field, v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &ncerr.ParseError{Field: field, Err: err}
	}
	return n, nil
}

func parseTimestamp(field, v string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		return time.Time{}, &ncerr.ParseError{Field: field, Err: err}
	}
	return t, nil
}

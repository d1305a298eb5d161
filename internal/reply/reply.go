// Package reply interprets acknowledgement replies such as the answer
// to "kill".  Parse never fails: anything it cannot classify becomes an
// ERROR reply carrying the raw text.
package reply

import (
	"fmt"
	"strings"

	ncerr "ovpnmi/internal/errors"
)

// Status is the outcome of a command.
type Status string

const (
	Success Status = "SUCCESS"
	Error   Status = "ERROR"
)

const unknownPrefix = "Unknown error: "

// CommandReply is a classified acknowledgement.
type CommandReply struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the daemon acknowledged success.
func (r CommandReply) OK() bool { return r.Status == Success }

// Err returns nil for a successful reply and an error wrapping
// ErrCommandFailed otherwise.
func (r CommandReply) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s", ncerr.ErrCommandFailed, r.Message)
}

func (r CommandReply) String() string {
	return string(r.Status) + ": " + r.Message
}

// Parse classifies a single-line reply.
func Parse(text string) CommandReply {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, string(Success)+":"); ok {
		return CommandReply{Status: Success, Message: strings.TrimSpace(rest)}
	}
	if rest, ok := strings.CutPrefix(text, string(Error)+":"); ok {
		return CommandReply{Status: Error, Message: strings.TrimSpace(rest)}
	}
	return CommandReply{Status: Error, Message: unknownPrefix + text}
}

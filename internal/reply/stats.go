package reply

import (
	"fmt"
	"strconv"
	"strings"

	ncerr "ovpnmi/internal/errors"
)

// LoadStats is the server-wide summary returned by "load-stats".
type LoadStats struct {
	NumClients int64 `json:"nclients"`
	BytesIn    int64 `json:"bytesin"`
	BytesOut   int64 `json:"bytesout"`
}

// ParseLoadStats decodes "nclients=N,bytesin=N,bytesout=N" from a
// SUCCESS reply.  An ERROR reply is returned as its Err.  Unknown keys
// are skipped; a missing or non-numeric known key is a ParseError.
func ParseLoadStats(r CommandReply) (LoadStats, error) {
	if err := r.Err(); err != nil {
		return LoadStats{}, err
	}

	var (
		ls   LoadStats
		seen int
	)
	dst := map[string]*int64{
		"nclients": &ls.NumClients,
		"bytesin":  &ls.BytesIn,
		"bytesout": &ls.BytesOut,
	}
	for _, pair := range strings.Split(r.Message, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		p, known := dst[key]
		if !known {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return LoadStats{}, &ncerr.ParseError{Prefix: string(Success), Field: key, Err: err}
		}
		*p = n
		seen++
	}
	if seen != len(dst) {
		return LoadStats{}, &ncerr.ParseError{
			Prefix: string(Success),
			Err:    fmt.Errorf("expected nclients, bytesin and bytesout in %q", r.Message),
		}
	}
	return ls, nil
}

// Version is the decoded reply to "version".
type Version struct {
	Release    string `json:"release"`
	Major      int64  `json:"major"`
	Minor      int64  `json:"minor"`
	Patch      int64  `json:"patch"`
	Management int64  `json:"management"`
}

// String renders the semantic version, e.g. "2.4.12".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

const (
	releasePrefix    = "OpenVPN Version:"
	managementPrefix = "Management Version:"
)

// ParseVersion decodes the multi-line version reply:
//
//	OpenVPN Version: OpenVPN 2.4.12 x86_64-redhat-linux-gnu [...]
//	Management Version: 3
//	END
func ParseVersion(text string) (Version, error) {
	var (
		v                 Version
		haveRel, haveMgmt bool
	)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "END":
		case strings.HasPrefix(line, string(Error)+":"):
			return Version{}, Parse(line).Err()
		case strings.HasPrefix(line, releasePrefix):
			v.Release = strings.TrimSpace(strings.TrimPrefix(line, releasePrefix))
			if err := v.parseRelease(); err != nil {
				return Version{}, &ncerr.ParseError{Line: i + 1, Prefix: releasePrefix, Err: err}
			}
			haveRel = true
		case strings.HasPrefix(line, managementPrefix):
			n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, managementPrefix)), 10, 64)
			if err != nil {
				return Version{}, &ncerr.ParseError{Line: i + 1, Prefix: managementPrefix, Err: err}
			}
			v.Management = n
			haveMgmt = true
		}
	}
	if !haveRel || !haveMgmt {
		return Version{}, &ncerr.ParseError{Prefix: "version", Err: fmt.Errorf("incomplete version reply")}
	}
	return v, nil
}

// parseRelease reads "OpenVPN 2.4.12 ..." into Major, Minor and Patch.
// Suffixes such as "2.6_git" or "2.7_beta1" keep their leading digits.
func (v *Version) parseRelease() error {
	fields := strings.Fields(v.Release)
	if len(fields) < 2 {
		return fmt.Errorf("no version number in %q", v.Release)
	}
	parts := strings.SplitN(fields[1], ".", 3)
	nums := []*int64{&v.Major, &v.Minor, &v.Patch}
	for i, part := range parts {
		digits := leadingDigits(part)
		if digits == "" {
			if i == 0 {
				return fmt.Errorf("no version number in %q", v.Release)
			}
			break
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return err
		}
		*nums[i] = n
		if len(digits) != len(part) {
			break
		}
	}
	return nil
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

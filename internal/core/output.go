package core

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"ovpnmi/config"
	"ovpnmi/internal/reply"
	"ovpnmi/internal/status"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// displayTime is how timestamps appear in text output.
const displayTime = "2006-01-02 15:04:05"

// Printer renders results as aligned text or as one JSON document per
// result.
type Printer struct {
	Format string // config.OutputText or config.OutputJSON
	Out    io.Writer
}

func (p *Printer) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stdout
}

func (p *Printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.out())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Status prints a snapshot as a client table.
func (p *Printer) Status(snap *status.Snapshot) error {
	if p.Format == config.OutputJSON {
		return p.writeJSON(snap)
	}

	w := p.out()
	fmt.Fprintln(w, snap.Title)
	if snap.Time != nil {
		fmt.Fprintf(w, "Updated: %s\n", snap.Time.Format(displayTime))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMON NAME\tREAL ADDRESS\tVIRTUAL ADDRESS\tRECEIVED\tSENT\tCONNECTED SINCE\tUSERNAME\tCLIENT ID\tPEER ID")
	for _, c := range snap.Clients {
		virtual := c.VirtualAddress
		if c.VirtualIPv6Address != "" {
			virtual += " " + c.VirtualIPv6Address
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			c.CommonName, c.RealAddress, virtual,
			humanize.Bytes(c.BytesReceived), humanize.Bytes(c.BytesSent),
			c.ConnectedSince.Format(displayTime), c.Username,
			c.ClientID, c.PeerID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	rx, tx := snap.Totals()
	_, err := fmt.Fprintf(w, "\n%s client(s), %s received, %s sent\n",
		humanize.Comma(int64(len(snap.Clients))), humanize.Bytes(rx), humanize.Bytes(tx))
	return err
}

// Reply prints a command acknowledgement.
func (p *Printer) Reply(r reply.CommandReply) error {
	if p.Format == config.OutputJSON {
		return p.writeJSON(r)
	}
	_, err := fmt.Fprintln(p.out(), r.String())
	return err
}

// LoadStats prints the server-wide counters.
func (p *Printer) LoadStats(ls reply.LoadStats) error {
	if p.Format == config.OutputJSON {
		return p.writeJSON(ls)
	}
	tw := tabwriter.NewWriter(p.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Clients:\t%s\n", humanize.Comma(ls.NumClients))
	fmt.Fprintf(tw, "Bytes in:\t%s\t(%s)\n", humanize.Bytes(uint64(max(ls.BytesIn, 0))), strconv.FormatInt(ls.BytesIn, 10))
	fmt.Fprintf(tw, "Bytes out:\t%s\t(%s)\n", humanize.Bytes(uint64(max(ls.BytesOut, 0))), strconv.FormatInt(ls.BytesOut, 10))
	return tw.Flush()
}

// Version prints the daemon release and management protocol version.
func (p *Printer) Version(v reply.Version) error {
	if p.Format == config.OutputJSON {
		return p.writeJSON(v)
	}
	_, err := fmt.Fprintf(p.out(), "OpenVPN %s (management protocol %d)\n%s\n", v, v.Management, v.Release)
	return err
}

// Heading separates successive polls in watch mode.
func (p *Printer) Heading(t time.Time) error {
	if p.Format == config.OutputJSON {
		return nil
	}
	_, err := fmt.Fprintf(p.out(), "\n── %s ──\n", t.Format(displayTime))
	return err
}

// ovpnmi queries and controls an OpenVPN server over its management
// interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ovpnmi/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ovpnmi: %v\n", err)
		os.Exit(1)
	}
}

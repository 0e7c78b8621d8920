// Command saslbrokerctl is the operator CLI for the SASL broker: it
// bootstraps broker configuration and talks to a running saslbrokerd's
// admin API to inspect sessions and mechanisms.
package main

import (
	"fmt"
	"os"

	"github.com/ircservices/saslbroker/cmd/saslbrokerctl/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Package sessions implements session-inspection commands for
// saslbrokerctl.
package sessions

import "github.com/spf13/cobra"

// Cmd is the parent command for session inspection and management.
var Cmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage in-flight SASL sessions",
	Long: `Inspect and manage the SASL sessions tracked by a running broker.

Examples:
  # List all sessions
  saslbrokerctl sessions list

  # Show one session's detail
  saslbrokerctl sessions show <uid>

  # Force-destroy a stuck session
  saslbrokerctl sessions destroy <uid>`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(destroyCmd)
}

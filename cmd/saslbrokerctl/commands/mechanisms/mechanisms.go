// Package mechanisms implements mechanism-inspection commands for
// saslbrokerctl.
package mechanisms

import "github.com/spf13/cobra"

// Cmd is the parent command for mechanism inspection.
var Cmd = &cobra.Command{
	Use:   "mechanisms",
	Short: "Inspect registered SASL mechanisms",
	Long: `List the SASL mechanisms a running broker has registered and
advertises in its mechanism list.

Examples:
  # List registered mechanisms
  saslbrokerctl mechanisms list`,
}

func init() {
	Cmd.AddCommand(listCmd)
}

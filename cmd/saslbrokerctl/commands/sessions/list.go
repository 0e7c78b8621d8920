package sessions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ircservices/saslbroker/cmd/saslbrokerctl/cmdutil"
	"github.com/ircservices/saslbroker/pkg/adminclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Long: `List every SASL session currently tracked by the broker.

Examples:
  # List sessions as a table
  saslbrokerctl sessions list

  # List as JSON
  saslbrokerctl sessions list -o json`,
	RunE: runList,
}

// sessionList renders a slice of sessions as a table.
type sessionList []adminclient.Session

func (sl sessionList) Headers() []string {
	return []string{"UID", "SERVER", "HOST", "MECHANISM", "AUTHCID", "AUTHZID", "CREATED"}
}

func (sl sessionList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		rows = append(rows, []string{
			s.UID,
			s.Server,
			s.Host,
			emptyOr(s.Mechanism),
			emptyOr(s.AuthCID),
			emptyOr(s.AuthZID),
			s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return rows
}

func emptyOr(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	sess, err := client.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	return cmdutil.PrintOutput(sess, len(sess) == 0, "No sessions found.", sessionList(sess))
}

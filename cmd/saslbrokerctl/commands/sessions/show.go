package sessions

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ircservices/saslbroker/cmd/saslbrokerctl/cmdutil"
	"github.com/ircservices/saslbroker/internal/cliutil/output"
	"github.com/ircservices/saslbroker/pkg/adminclient"
)

var showCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Show a single session's detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	uid := args[0]

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	s, err := client.GetSession(uid)
	if err != nil {
		var apiErr *adminclient.APIError
		if isAPIError(err, &apiErr) && apiErr.IsNotFound() {
			return fmt.Errorf("session not found: %s", uid)
		}
		return fmt.Errorf("failed to get session: %w", err)
	}

	if cmdutil.GetOutputFormat() != output.FormatTable {
		return cmdutil.PrintOutput(s, false, "", nil)
	}

	return output.SimpleTable(os.Stdout, [][2]string{
		{"UID", s.UID},
		{"Server", s.Server},
		{"Host", s.Host},
		{"IP", s.IP},
		{"CertFP", emptyOr(s.CertFP)},
		{"Mechanism", emptyOr(s.Mechanism)},
		{"AuthCID", emptyOr(s.AuthCID)},
		{"AuthZID", emptyOr(s.AuthZID)},
		{"Created", s.CreatedAt.Format("2006-01-02T15:04:05Z07:00")},
	})
}

func isAPIError(err error, target **adminclient.APIError) bool {
	apiErr, ok := err.(*adminclient.APIError)
	if ok {
		*target = apiErr
	}
	return ok
}

package sessions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ircservices/saslbroker/cmd/saslbrokerctl/cmdutil"
)

var destroyForce bool

var destroyCmd = &cobra.Command{
	Use:   "destroy <uid>",
	Short: "Force-destroy a session",
	Long: `Force-destroy a SASL session, e.g. one stuck after a client or
server-link fault the reaper hasn't yet caught up to.

You will be prompted for confirmation unless --force is specified.`,
	Args: cobra.ExactArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVarP(&destroyForce, "force", "f", false, "Skip confirmation prompt")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	uid := args[0]

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	return cmdutil.RunDeleteWithConfirmation("session", uid, destroyForce, func() error {
		if err := client.DestroySession(uid); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		return nil
	})
}

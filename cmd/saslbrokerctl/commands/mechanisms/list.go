package mechanisms

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ircservices/saslbroker/cmd/saslbrokerctl/cmdutil"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered mechanisms",
	RunE:  runList,
}

// mechanismList renders mechanism names as a single-column table.
type mechanismList []string

func (ml mechanismList) Headers() []string { return []string{"MECHANISM"} }

func (ml mechanismList) Rows() [][]string {
	rows := make([][]string, 0, len(ml))
	for _, name := range ml {
		rows = append(rows, []string{name})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	names, err := client.ListMechanisms()
	if err != nil {
		return fmt.Errorf("failed to list mechanisms: %w", err)
	}

	return cmdutil.PrintOutput(names, len(names) == 0, "No mechanisms registered.", mechanismList(names))
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ircservices/saslbroker/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a bootstrap configuration file",
	Long: `Write a bootstrap saslbroker configuration file to the default
location, generating a fresh admin API JWT secret.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.InitConfig(initForce)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote configuration to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ircservices/saslbroker/cmd/saslbrokerctl/cmdutil"
	"github.com/ircservices/saslbroker/internal/adminapi/auth"
	"github.com/ircservices/saslbroker/pkg/config"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin API bearer token",
	Long: `Mint a bearer token scoped to sasl:admin, signed with the admin
API JWT secret from the local configuration. saslbrokerctl does not log
in against a running broker - it shares the same signing secret and
issues tokens directly, the same way saslbrokerd validates them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmdutil.Flags.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		jwtSvc, err := auth.NewJWTService(auth.Config{
			Secret:        cfg.AdminAPI.JWT.GetJWTSecret(),
			Issuer:        cfg.AdminAPI.JWT.Issuer,
			TokenDuration: cfg.AdminAPI.JWT.TokenDuration,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize JWT service: %w", err)
		}

		token, expiresAt, err := jwtSvc.IssueToken(tokenSubject)
		if err != nil {
			return fmt.Errorf("failed to mint token: %w", err)
		}

		fmt.Println(token)
		if cmdutil.IsVerbose() {
			fmt.Printf("expires: %s\n", expiresAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Subject recorded on the minted token")
}

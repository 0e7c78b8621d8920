// Package commands implements the CLI commands for saslbrokerctl.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ircservices/saslbroker/cmd/saslbrokerctl/cmdutil"
	mechanismcmd "github.com/ircservices/saslbroker/cmd/saslbrokerctl/commands/mechanisms"
	sessioncmd "github.com/ircservices/saslbroker/cmd/saslbrokerctl/commands/sessions"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "saslbrokerctl",
	Short: "saslbrokerctl - SASL broker control client",
	Long: `saslbrokerctl is the operator CLI for the SASL authentication broker.

Use this tool to initialize a broker configuration, inspect in-flight
SASL sessions, and query the registered mechanism set through the
broker's admin API.

Use "saslbrokerctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.ConfigFile, _ = cmd.Flags().GetString("config")
		cmdutil.Flags.Server, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/saslbroker/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "Admin API URL (overrides config)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(sessioncmd.Cmd)
	rootCmd.AddCommand(mechanismcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}

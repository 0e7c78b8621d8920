// Package cmdutil holds shared state and helpers for saslbrokerctl's
// command tree, grounded on the teacher's cmd/dittofsctl/cmdutil.
package cmdutil

import (
	"fmt"
	"os"
	"os/user"

	"github.com/ircservices/saslbroker/internal/adminapi/auth"
	"github.com/ircservices/saslbroker/internal/cliutil/output"
	"github.com/ircservices/saslbroker/internal/cliutil/prompt"
	"github.com/ircservices/saslbroker/pkg/adminclient"
	"github.com/ircservices/saslbroker/pkg/config"
)

// GlobalFlags holds the persistent flag values shared by every
// saslbrokerctl subcommand.
type GlobalFlags struct {
	ConfigFile string
	Server     string
	Output     string
	NoColor    bool
	Verbose    bool
}

// Flags is populated by the root command's PersistentPreRun before any
// subcommand runs.
var Flags = &GlobalFlags{}

// GetOutputFormat returns the requested output format, defaulting to table.
func GetOutputFormat() output.Format {
	switch Flags.Output {
	case "json":
		return output.FormatJSON
	case "yaml":
		return output.FormatYAML
	default:
		return output.FormatTable
	}
}

// IsVerbose reports whether verbose logging was requested.
func IsVerbose() bool { return Flags.Verbose }

// loadConfig loads the broker configuration saslbrokerctl shares with
// saslbrokerd: the admin API address and JWT secret both come from here,
// since saslbrokerctl mints its own operator tokens rather than logging
// in against a running server.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(Flags.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// GetClient builds an adminclient.Client authenticated with a freshly
// minted operator token, pointed at the admin API address from config
// (or --server, if set).
func GetClient() (*adminclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	serverURL := Flags.Server
	if serverURL == "" {
		serverURL = "http://" + cfg.AdminAPI.Address
	}

	jwtSvc, err := auth.NewJWTService(auth.Config{
		Secret:        cfg.AdminAPI.JWT.GetJWTSecret(),
		Issuer:        cfg.AdminAPI.JWT.Issuer,
		TokenDuration: cfg.AdminAPI.JWT.TokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	token, _, err := jwtSvc.IssueToken(operatorIdentity())
	if err != nil {
		return nil, fmt.Errorf("failed to mint operator token: %w", err)
	}

	return adminclient.New(serverURL).WithToken(token), nil
}

// operatorIdentity resolves the subject recorded on minted tokens,
// preferring the invoking OS user.
func operatorIdentity() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "saslbrokerctl"
}

// PrintOutput renders data in the user-requested format, printing
// emptyMsg for an empty table result and rendering table otherwise.
func PrintOutput(data interface{}, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	return output.PrintOutput(os.Stdout, GetOutputFormat(), data, isEmpty, emptyMsg, table)
}

// PrintErr prints an error to stderr in a consistent "Error: ..." form.
func PrintErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// RunDeleteWithConfirmation prompts for confirmation (unless force is
// set) before running deleteFn, printing a success message on completion.
func RunDeleteWithConfirmation(resourceType, name string, force bool, deleteFn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Destroy %s %q?", resourceType, name), force)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("Aborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	if err := deleteFn(); err != nil {
		return err
	}

	fmt.Printf("%s %q destroyed.\n", resourceType, name)
	return nil
}

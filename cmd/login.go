package cmd

import (
	"fmt"
	"time"

	"loopauth/internal/cli"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// newLoginCmd creates the login command. It runs the authorization
// code flow through the system browser and stores the token under the
// selected profile.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate via the browser and store a token",
		Long: `Authenticate to the selected profile's authorization server.

The system browser is opened at the authorization endpoint and the
authorization code is received on a loopback redirect. The resulting
token is stored for later use.

Examples:
  loopauth login                       # Login with the default profile
  loopauth login --profile staging     # Login with a specific profile`,
		RunE: runLogin,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	env, err := newCLIEnv()
	if err != nil {
		return err
	}

	profileCfg, name, err := env.selectedProfile()
	if err != nil {
		return err
	}
	profile, err := profileCfg.FlowProfile(name, true)
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for browser authorization..."
	s.Start()

	token, err := env.manager.Login(cmd.Context(), profile)
	s.Stop()
	if err != nil {
		return &cli.AuthFailedError{Profile: name, Reason: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged in to profile %q\n", name)
	if !token.Expiry.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), "Token expires %s\n", formatExpiry(token.Expiry))
	}
	return nil
}

package cmd

import (
	"fmt"

	"loopauth/internal/cli"

	"github.com/spf13/cobra"
)

// newClientCredentialsCmd creates the client-credentials command. It
// obtains a token for a machine identity without any browser
// interaction. The client secret is read from the environment variable
// the profile names, never from a flag or the config file.
func newClientCredentialsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client-credentials",
		Short: "Obtain a token via the client credentials flow",
		Long: `Obtain a token using the OAuth client credentials flow.

The profile must set clientSecretEnv to the name of an environment
variable holding the client secret.

Examples:
  loopauth client-credentials --profile m2m`,
		RunE: runClientCredentials,
	}
}

func runClientCredentials(cmd *cobra.Command, args []string) error {
	env, err := newCLIEnv()
	if err != nil {
		return err
	}

	profileCfg, name, err := env.selectedProfile()
	if err != nil {
		return err
	}
	profile, err := profileCfg.FlowProfile(name, false)
	if err != nil {
		return err
	}

	secret, err := profileCfg.ClientSecret()
	if err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}

	token, err := env.manager.ClientCredentials(cmd.Context(), profile, secret)
	if err != nil {
		return &cli.AuthFailedError{Profile: name, Reason: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Obtained token for profile %q\n", name)
	if !token.Expiry.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), "Token expires %s\n", formatExpiry(token.Expiry))
	}
	return nil
}

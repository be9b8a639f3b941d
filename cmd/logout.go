package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newLogoutCmd creates the logout command. It removes the stored token
// for the selected profile.
func newLogoutCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored tokens",
		Long: `Remove the stored token for the selected profile.

Examples:
  loopauth logout --profile prod       # Remove one profile's token
  loopauth logout --all                # Remove all stored tokens`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "remove tokens for all profiles")
	return cmd
}

func runLogout(cmd *cobra.Command, all bool) error {
	env, err := newCLIEnv()
	if err != nil {
		return err
	}

	if all {
		tokens, err := env.store.List()
		if err != nil {
			return fmt.Errorf("failed to list stored tokens: %w", err)
		}
		for _, token := range tokens {
			if err := env.store.Delete(token.Profile); err != nil {
				return fmt.Errorf("failed to remove token for profile %q: %w", token.Profile, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stored token(s)\n", len(tokens))
		return nil
	}

	_, name, err := env.selectedProfile()
	if err != nil {
		return err
	}
	if err := env.store.Delete(name); err != nil {
		return fmt.Errorf("failed to remove token for profile %q: %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed stored token for profile %q\n", name)
	return nil
}

package cmd

import (
	"fmt"

	"loopauth/internal/cli"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// newRefreshCmd creates the refresh command. It exchanges the stored
// refresh token for a fresh token set.
func newRefreshCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh stored tokens",
		Long: `Refresh the stored token for the selected profile using its refresh
token. With --all, every profile with a stored refresh token is
refreshed.

Examples:
  loopauth refresh                     # Refresh the default profile
  loopauth refresh --all               # Refresh every stored profile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return runRefreshAll(cmd)
			}
			return runRefresh(cmd)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "refresh every profile with a stored refresh token")
	return cmd
}

func runRefresh(cmd *cobra.Command) error {
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

	stored := env.store.Get(name)
	if stored == nil || stored.RefreshToken == "" {
		return &cli.AuthRequiredError{Profile: name}
	}

	token, err := env.manager.Refresh(cmd.Context(), profile)
	if err != nil {
		return &cli.AuthFailedError{Profile: name, Reason: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Refreshed token for profile %q\n", name)
	if !token.Expiry.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), "Token expires %s\n", formatExpiry(token.Expiry))
	}
	return nil
}

// runRefreshAll refreshes every stored profile that still has a
// refresh token and a matching config entry. The refreshes run
// concurrently; the first failure is reported.
func runRefreshAll(cmd *cobra.Command) error {
	env, err := newCLIEnv()
	if err != nil {
		return err
	}

	tokens, err := env.store.List()
	if err != nil {
		return fmt.Errorf("failed to list stored tokens: %w", err)
	}

	group, ctx := errgroup.WithContext(cmd.Context())
	refreshed := 0
	for _, stored := range tokens {
		if stored.RefreshToken == "" {
			continue
		}
		profileCfg, ok := env.config.Profiles[stored.Profile]
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Skipping profile %q: not in config\n", stored.Profile)
			continue
		}
		profile, err := profileCfg.FlowProfile(stored.Profile, false)
		if err != nil {
			return err
		}

		refreshed++
		group.Go(func() error {
			if _, err := env.manager.Refresh(ctx, profile); err != nil {
				return &cli.AuthFailedError{Profile: profile.Name, Reason: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed token for profile %q\n", profile.Name)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	if refreshed == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No profiles with stored refresh tokens")
	}
	return nil
}

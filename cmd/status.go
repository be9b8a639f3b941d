package cmd

import (
	"fmt"

	"loopauth/internal/tokenstore"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// newStatusCmd creates the status command. It lists the stored tokens
// and their validity in a table.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored tokens and their validity",
		Long: `Show the authentication status for all profiles with stored tokens.

Examples:
  loopauth status                      # Show all stored tokens
  loopauth status --profile prod       # Show one profile`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := newCLIEnv()
	if err != nil {
		return err
	}

	tokens, err := env.store.List()
	if err != nil {
		return fmt.Errorf("failed to list stored tokens: %w", err)
	}

	if profileFlag != "" {
		var filtered []*tokenstore.StoredToken
		for _, token := range tokens {
			if token.Profile == profileFlag {
				filtered = append(filtered, token)
			}
		}
		tokens = filtered
	}

	if len(tokens) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tokens stored. Run: loopauth login")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Profile", "Status", "Expires", "Refresh", "Scope"})
	for _, token := range tokens {
		t.AppendRow(table.Row{
			token.Profile,
			formatTokenStatus(token),
			formatExpiry(token.Expiry),
			formatRefreshAvailability(token),
			token.Scope,
		})
	}
	t.Render()
	return nil
}

// formatTokenStatus formats the token validity with colors.
func formatTokenStatus(token *tokenstore.StoredToken) string {
	if token.Valid() {
		return text.FgGreen.Sprint("Valid")
	}
	if token.RefreshToken != "" {
		return text.FgYellow.Sprint("Expired (refreshable)")
	}
	return text.FgRed.Sprint("Expired")
}

func formatRefreshAvailability(token *tokenstore.StoredToken) string {
	if token.RefreshToken != "" {
		return text.FgGreen.Sprint("Available")
	}
	return text.FgHiBlack.Sprint("None")
}

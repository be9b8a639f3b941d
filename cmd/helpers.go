package cmd

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"loopauth/internal/authflow"
	"loopauth/internal/config"
	"loopauth/internal/tokenstore"

	"github.com/jedib0t/go-pretty/v6/text"
)

// cliEnv bundles the dependencies every subcommand needs: the loaded
// configuration, the token store and the flow manager.
type cliEnv struct {
	config  config.Config
	store   *tokenstore.Store
	manager *authflow.Manager
}

// newCLIEnv loads the configuration and opens the token store next to
// it. The --config-path flag overrides the default directory.
func newCLIEnv() (*cliEnv, error) {
	configPath := configPathFlag
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := tokenstore.New(tokenstore.Config{
		Dir:      filepath.Join(configPath, "tokens"),
		FileMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	manager, err := authflow.New(store, http.DefaultClient, nil)
	if err != nil {
		return nil, err
	}

	return &cliEnv{config: cfg, store: store, manager: manager}, nil
}

// selectedProfile resolves the profile picked by the --profile flag,
// falling back to the configured default.
func (e *cliEnv) selectedProfile() (config.ProfileConfig, string, error) {
	return e.config.Profile(profileFlag)
}

// formatExpiry renders a token expiry relative to now, colored by how
// close it is.
func formatExpiry(expiry time.Time) string {
	if expiry.IsZero() {
		return text.FgHiBlack.Sprint("unknown")
	}
	remaining := time.Until(expiry).Truncate(time.Second)
	if remaining <= 0 {
		return text.FgRed.Sprintf("expired %s ago", -remaining)
	}
	formatted := fmt.Sprintf("in %s (%s)", remaining, expiry.Format(time.RFC3339))
	if remaining < 5*time.Minute {
		return text.FgYellow.Sprint(formatted)
	}
	return formatted
}

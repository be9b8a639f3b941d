// Package config loads the CLI configuration from a YAML file. The
// file lives at ~/.config/loopauth/config.yaml by default and declares
// named profiles, each describing one authorization server.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"loopauth/internal/authflow"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/loopauth"
	configFileName = "config.yaml"
)

// Config is the root configuration document.
type Config struct {
	// DefaultProfile names the profile used when --profile is not given.
	DefaultProfile string `yaml:"defaultProfile,omitempty"`

	// Profiles maps profile names to their settings.
	Profiles map[string]ProfileConfig `yaml:"profiles"`
}

// ProfileConfig describes one authorization server.
type ProfileConfig struct {
	// ClientID is the OAuth client identifier.
	ClientID string `yaml:"clientID"`

	// AuthorizationEndpoint is the browser-facing authorization URI.
	AuthorizationEndpoint string `yaml:"authorizationEndpoint,omitempty"`

	// TokenEndpoint is the token exchange URI.
	TokenEndpoint string `yaml:"tokenEndpoint"`

	// Scopes are requested on login and refresh.
	Scopes []string `yaml:"scopes,omitempty"`

	// RedirectPath fixes the loopback callback path. Empty means a
	// random path per login.
	RedirectPath string `yaml:"redirectPath,omitempty"`

	// RedirectPorts are candidate callback ports, tried in order.
	// Empty means a system-assigned port.
	RedirectPorts []int `yaml:"redirectPorts,omitempty"`

	// ClientSecretEnv names the environment variable holding the
	// client secret for the client credentials flow. The secret itself
	// never lives in the config file.
	ClientSecretEnv string `yaml:"clientSecretEnv,omitempty"`

	// RequestTimeout bounds each token endpoint call, e.g. "10s".
	RequestTimeout Duration `yaml:"requestTimeout,omitempty"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "10s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfigPath returns ~/.config/loopauth.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Load reads config.yaml from the given directory. A missing file
// yields an empty configuration, not an error; a malformed file is an
// error.
func Load(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("No config file found, using empty configuration", "path", configFilePath)
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	slog.Debug("Loaded configuration", "path", configFilePath, "profiles", len(cfg.Profiles))
	return cfg, nil
}

// Profile resolves a profile by name. An empty name falls back to the
// configured default profile; with exactly one profile configured, that
// one is used.
func (c Config) Profile(name string) (ProfileConfig, string, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	if name == "" && len(c.Profiles) == 1 {
		for only := range c.Profiles {
			name = only
		}
	}
	if name == "" {
		return ProfileConfig{}, "", fmt.Errorf("no profile selected and no default profile configured")
	}

	profile, ok := c.Profiles[name]
	if !ok {
		return ProfileConfig{}, "", fmt.Errorf("profile %q is not configured", name)
	}
	return profile, name, nil
}

// FlowProfile validates the profile and converts it into the form the
// auth flow manager consumes. The authorization endpoint is only
// required by flows that open a browser; pass requireAuthEndpoint
// accordingly.
func (p ProfileConfig) FlowProfile(name string, requireAuthEndpoint bool) (authflow.Profile, error) {
	if p.ClientID == "" {
		return authflow.Profile{}, fmt.Errorf("profile %q: clientID is required", name)
	}

	tokenEndpoint, err := parseAbsoluteURL("tokenEndpoint", p.TokenEndpoint)
	if err != nil {
		return authflow.Profile{}, fmt.Errorf("profile %q: %w", name, err)
	}

	flow := authflow.Profile{
		Name:           name,
		ClientID:       p.ClientID,
		TokenEndpoint:  tokenEndpoint,
		Scopes:         p.Scopes,
		RedirectPath:   p.RedirectPath,
		RedirectPorts:  p.RedirectPorts,
		RequestTimeout: time.Duration(p.RequestTimeout),
	}

	if p.AuthorizationEndpoint != "" {
		flow.AuthorizationEndpoint, err = parseAbsoluteURL("authorizationEndpoint", p.AuthorizationEndpoint)
		if err != nil {
			return authflow.Profile{}, fmt.Errorf("profile %q: %w", name, err)
		}
	} else if requireAuthEndpoint {
		return authflow.Profile{}, fmt.Errorf("profile %q: authorizationEndpoint is required", name)
	}

	return flow, nil
}

// ClientSecret resolves the client secret from the environment
// variable the profile names.
func (p ProfileConfig) ClientSecret() ([]byte, error) {
	if p.ClientSecretEnv == "" {
		return nil, fmt.Errorf("clientSecretEnv is not configured")
	}
	secret := os.Getenv(p.ClientSecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("environment variable %s is empty or unset", p.ClientSecretEnv)
	}
	return []byte(secret), nil
}

func parseAbsoluteURL(field, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	return u, nil
}

// Package tokenstore provides secure on-disk storage for OAuth tokens
// obtained by the CLI.
//
// SECURITY: This store handles sensitive OAuth credentials. The
// following measures are implemented:
//   - Token files are created with 0600 permissions (owner read/write only)
//   - The storage directory is created with 0700 permissions (owner only)
//   - Token values are NEVER logged (only profile names and expiry metadata)
//   - Token expiry checks include a 60-second safety buffer
package tokenstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultStorageDir is the default directory for stored tokens,
// relative to the user's home directory.
const DefaultStorageDir = ".config/loopauth/tokens"

// expiryBuffer is the margin added when checking token validity. It
// accounts for clock skew, network latency and long-running operations.
const expiryBuffer = 60 * time.Second

// StoredToken is a persisted token set for one profile, together with
// the metadata needed to refresh and display it.
type StoredToken struct {
	// Profile is the configuration profile this token belongs to.
	Profile string `json:"profile"`

	// AccessToken is the OAuth access token.
	AccessToken string `json:"access_token"`

	// RefreshToken is the OAuth refresh token, if the server issued one.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// Expiry is when the access token expires. Zero means unknown, in
	// which case the token is treated as valid.
	Expiry time.Time `json:"expiry,omitempty"`

	// IDToken is the OIDC ID token, if the server issued one.
	IDToken string `json:"id_token,omitempty"`

	// Scope is the space-separated scope list granted by the server.
	Scope string `json:"scope,omitempty"`

	// TokenEndpoint is the endpoint the token was obtained from, kept
	// for refreshes.
	TokenEndpoint string `json:"token_endpoint"`

	// CreatedAt is when the token was stored.
	CreatedAt time.Time `json:"created_at"`
}

// Valid reports whether the access token is still usable, with the
// safety buffer applied. A zero expiry counts as valid.
func (t *StoredToken) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(expiryBuffer).Before(t.Expiry)
}

// ToOAuth2Token converts the stored token to an *oauth2.Token, placing
// the ID token in the extra data where golang.org/x/oauth2 consumers
// expect it.
func (t *StoredToken) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}
	return token
}

// Store persists tokens per profile, with an in-memory cache in front
// of the files. A Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	dir      string
	tokens   map[string]*StoredToken
	fileMode bool
}

// Config configures a Store.
type Config struct {
	// Dir is the storage directory. Defaults to ~/.config/loopauth/tokens.
	Dir string

	// FileMode enables persistence. If false, tokens live in memory only.
	FileMode bool
}

// New creates a token store. In file mode the storage directory is
// created with owner-only permissions.
func New(cfg Config) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultStorageDir)
	}

	s := &Store{
		dir:      dir,
		tokens:   make(map[string]*StoredToken),
		fileMode: cfg.FileMode,
	}

	if cfg.FileMode {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create token storage directory: %w", err)
		}
	}

	return s, nil
}

// Save stores a token under its profile name.
// SECURITY: token values are never logged, only profile and expiry.
func (s *Store) Save(token *StoredToken) error {
	if token == nil || token.Profile == "" {
		return fmt.Errorf("token with a profile name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	s.tokens[token.Profile] = token

	if s.fileMode {
		if err := s.writeFile(token); err != nil {
			slog.Warn("Token storage failed",
				"profile", token.Profile,
				"error", err.Error(),
			)
			return fmt.Errorf("failed to persist token: %w", err)
		}
	}

	slog.Info("Token stored",
		"profile", token.Profile,
		"expiry", token.Expiry.Format(time.RFC3339),
		"has_refresh_token", token.RefreshToken != "",
	)
	return nil
}

// Get returns the stored token for a profile, or nil if none exists.
// Expired tokens are returned too; callers check Valid() and decide
// whether to refresh.
func (s *Store) Get(profile string) *StoredToken {
	s.mu.RLock()
	if token, ok := s.tokens[profile]; ok {
		s.mu.RUnlock()
		return token
	}
	s.mu.RUnlock()

	if !s.fileMode {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.tokens[profile]; ok {
		return token
	}
	token, err := s.readFile(profile)
	if err != nil {
		return nil
	}
	s.tokens[profile] = token
	return token
}

// Delete removes the stored token for a profile. Deleting a profile
// without a token is not an error.
func (s *Store) Delete(profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, profile)

	if s.fileMode {
		err := os.Remove(s.filePath(profile))
		if err != nil && !os.IsNotExist(err) {
			slog.Warn("Token deletion failed", "profile", profile, "error", err.Error())
			return err
		}
	}

	slog.Info("Token deleted", "profile", profile)
	return nil
}

// List returns all stored tokens, sorted by profile name. In file mode
// the directory is scanned so tokens from earlier runs appear too.
func (s *Store) List() ([]*StoredToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fileMode {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token storage: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			token, err := s.readFileByName(entry.Name())
			if err != nil {
				slog.Warn("Skipping unreadable token file", "file", entry.Name(), "error", err.Error())
				continue
			}
			if _, cached := s.tokens[token.Profile]; !cached {
				s.tokens[token.Profile] = token
			}
		}
	}

	tokens := make([]*StoredToken, 0, len(s.tokens))
	for _, token := range s.tokens {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Profile < tokens[j].Profile })
	return tokens, nil
}

// HasValidToken reports whether a non-expired token exists for the
// profile.
func (s *Store) HasValidToken(profile string) bool {
	return s.Get(profile).Valid()
}

// filePath maps a profile to its token file. The profile name is
// hashed so arbitrary names stay filesystem-safe; the cleartext name
// lives inside the JSON document.
func (s *Store) filePath(profile string) string {
	hash := sha256.Sum256([]byte(profile))
	return filepath.Join(s.dir, hex.EncodeToString(hash[:16])+".json")
}

func (s *Store) writeFile(token *StoredToken) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(s.filePath(token.Profile), data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (s *Store) readFile(profile string) (*StoredToken, error) {
	hash := sha256.Sum256([]byte(profile))
	return s.readFileByName(hex.EncodeToString(hash[:16]) + ".json")
}

func (s *Store) readFileByName(name string) (*StoredToken, error) {
	// #nosec G304 -- the path is built from the store's own directory
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	var token StoredToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// Package authflow orchestrates the CLI-side authentication flows. It
// composes the oauth core with the token store: it runs a grant,
// decodes the token endpoint's JSON reply and persists the result
// under a profile name.
//
// Decoding the token response happens here, outside the oauth core,
// which hands responses over verbatim.
package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"loopauth/internal/tokenstore"
	"loopauth/pkg/oauth"

	"github.com/google/uuid"
)

// FlowState is the lifecycle state of one authentication flow.
type FlowState int

const (
	// StateIdle means no flow has been started yet.
	StateIdle FlowState = iota

	// StatePending means a flow is in progress and waiting for the
	// browser redirect or the token endpoint.
	StatePending

	// StateAuthenticated means the flow completed and a token was stored.
	StateAuthenticated

	// StateError means the flow failed.
	StateError
)

// String returns the string representation of the flow state.
func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Profile describes one configured authorization target.
type Profile struct {
	// Name identifies the profile in the token store.
	Name string

	// ClientID is the OAuth client identifier.
	ClientID string

	// AuthorizationEndpoint is the browser-facing endpoint.
	AuthorizationEndpoint *url.URL

	// TokenEndpoint is the back-channel endpoint.
	TokenEndpoint *url.URL

	// Scopes are the scopes requested on login and refresh.
	Scopes []string

	// RedirectPath overrides the random loopback callback path.
	RedirectPath string

	// RedirectPorts are the candidate callback ports, tried in order.
	// Empty means a system-assigned port.
	RedirectPorts []int

	// RequestTimeout bounds each token endpoint call. Zero keeps the
	// library default.
	RequestTimeout time.Duration
}

// Manager drives authentication flows and records their outcome in the
// token store. A manager is safe for concurrent use; each flow gets a
// correlation id in the logs.
type Manager struct {
	mu         sync.RWMutex
	store      *tokenstore.Store
	httpClient oauth.HTTPDoer
	browser    oauth.BrowserFunc
	state      FlowState
	lastError  error
}

// New creates a manager. The browser callback defaults to the system
// browser when nil.
func New(store *tokenstore.Store, httpClient oauth.HTTPDoer, browser oauth.BrowserFunc) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if browser == nil {
		browser = oauth.SystemBrowser
	}
	return &Manager{
		store:      store,
		httpClient: httpClient,
		browser:    browser,
		state:      StateIdle,
	}, nil
}

// State returns the state of the most recent flow.
func (m *Manager) State() FlowState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastError returns the error that moved the manager into StateError,
// or nil.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

func (m *Manager) setState(state FlowState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.lastError = err
}

// Login runs the authorization code flow for the profile and persists
// the resulting token. The user's browser is opened at the
// authorization endpoint; Login blocks until the redirect arrives or
// ctx is cancelled.
func (m *Manager) Login(ctx context.Context, profile Profile) (*tokenstore.StoredToken, error) {
	flowID := uuid.NewString()
	logger := slog.With("flow_id", flowID, "profile", profile.Name)

	client, err := m.buildClient(profile)
	if err != nil {
		return nil, err
	}

	grant, err := client.AuthorizationCodeGrant(profile.AuthorizationEndpoint)
	if err != nil {
		return nil, err
	}
	if profile.RedirectPath != "" {
		if _, err := grant.SetRedirectPath(profile.RedirectPath); err != nil {
			return nil, err
		}
	}
	if len(profile.RedirectPorts) > 0 {
		grant.SetRedirectPorts(profile.RedirectPorts...)
	}

	m.setState(StatePending, nil)
	logger.Info("Starting authorization code flow",
		"authorization_endpoint", profile.AuthorizationEndpoint.String(),
	)

	resp, err := grant.Authorize(ctx, m.httpClient, m.browser, profile.Scopes...)
	if err != nil {
		m.setState(StateError, err)
		logger.Error("Authorization code flow failed", "error", err.Error())
		return nil, err
	}

	token, err := m.storeResponse(profile, resp)
	if err != nil {
		m.setState(StateError, err)
		return nil, err
	}

	m.setState(StateAuthenticated, nil)
	logger.Info("Authorization code flow completed",
		"expiry", token.Expiry.Format(time.RFC3339),
		"has_refresh_token", token.RefreshToken != "",
	)
	return token, nil
}

// Refresh exchanges the stored refresh token of the profile for a
// fresh token set and persists the result. The stored refresh token is
// kept when the server does not rotate it.
func (m *Manager) Refresh(ctx context.Context, profile Profile) (*tokenstore.StoredToken, error) {
	flowID := uuid.NewString()
	logger := slog.With("flow_id", flowID, "profile", profile.Name)

	stored := m.store.Get(profile.Name)
	if stored == nil || stored.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token stored for profile %q", profile.Name)
	}

	client, err := m.buildClient(profile)
	if err != nil {
		return nil, err
	}

	m.setState(StatePending, nil)
	logger.Info("Refreshing token")

	resp, err := client.Refresh(ctx, m.httpClient, stored.RefreshToken, profile.Scopes...)
	if err != nil {
		m.setState(StateError, err)
		logger.Error("Token refresh failed", "error", err.Error())
		return nil, err
	}

	token, err := m.storeResponse(profile, resp)
	if err != nil {
		m.setState(StateError, err)
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = stored.RefreshToken
		if err := m.store.Save(token); err != nil {
			m.setState(StateError, err)
			return nil, err
		}
	}

	m.setState(StateAuthenticated, nil)
	logger.Info("Token refreshed", "expiry", token.Expiry.Format(time.RFC3339))
	return token, nil
}

// ClientCredentials runs the client credentials flow and persists the
// resulting token. The secret buffer is scrubbed by the oauth core.
func (m *Manager) ClientCredentials(ctx context.Context, profile Profile, secret []byte) (*tokenstore.StoredToken, error) {
	flowID := uuid.NewString()
	logger := slog.With("flow_id", flowID, "profile", profile.Name)

	client, err := m.buildClient(profile)
	if err != nil {
		return nil, err
	}

	grant, err := client.ClientCredentialsGrant(secret)
	if err != nil {
		return nil, err
	}

	m.setState(StatePending, nil)
	logger.Info("Requesting client credentials token")

	resp, err := grant.Authorize(ctx, m.httpClient, profile.Scopes...)
	if err != nil {
		m.setState(StateError, err)
		logger.Error("Client credentials flow failed", "error", err.Error())
		return nil, err
	}

	token, err := m.storeResponse(profile, resp)
	if err != nil {
		m.setState(StateError, err)
		return nil, err
	}

	m.setState(StateAuthenticated, nil)
	logger.Info("Client credentials token obtained", "expiry", token.Expiry.Format(time.RFC3339))
	return token, nil
}

func (m *Manager) buildClient(profile Profile) (*oauth.PublicClient, error) {
	client, err := oauth.Client(profile.ClientID).WithTokenEndpoint(profile.TokenEndpoint)
	if err != nil {
		return nil, err
	}
	if profile.RequestTimeout > 0 {
		client, err = client.WithRequestTimeout(profile.RequestTimeout)
		if err != nil {
			return nil, err
		}
	}
	return client, nil
}

// storeResponse decodes the token endpoint reply and persists it. A
// non-2xx reply is surfaced as a TokenEndpointError carrying the raw
// body, since the oauth core never raises on status codes.
func (m *Manager) storeResponse(profile Profile, resp *oauth.TokenResponse) (*tokenstore.StoredToken, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TokenEndpointError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	token, err := decodeTokenResponse(profile, resp.Body)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(token); err != nil {
		return nil, err
	}
	return token, nil
}

// TokenEndpointError reports a non-2xx reply from the token endpoint.
// The raw body is preserved so the user sees the server's own error
// description.
type TokenEndpointError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *TokenEndpointError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// tokenPayload is the standard token response document (RFC 6749
// Section 5.1).
type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope"`
}

func decodeTokenResponse(profile Profile, body string) (*tokenstore.StoredToken, error) {
	var payload tokenPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token response carries no access token")
	}

	token := &tokenstore.StoredToken{
		Profile:       profile.Name,
		AccessToken:   payload.AccessToken,
		RefreshToken:  payload.RefreshToken,
		TokenType:     payload.TokenType,
		IDToken:       payload.IDToken,
		Scope:         payload.Scope,
		TokenEndpoint: profile.TokenEndpoint.String(),
	}
	if payload.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token, nil
}

package oauth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultRequestTimeout bounds a single token endpoint call when the
// caller does not configure one.
const defaultRequestTimeout = 30 * time.Second

// HTTPDoer is the injected HTTP capability used against the token
// endpoint. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenResponse is the token endpoint's reply, delivered verbatim.
// The library never parses the body; callers decode JSON, inspect
// error payloads, or ignore it as they see fit.
type TokenResponse struct {
	// StatusCode is the HTTP status of the token endpoint reply.
	// Non-2xx statuses are NOT turned into errors; the caller decides.
	StatusCode int

	// Body is the raw response body.
	Body string
}

// TokenResult pairs a token response with the error, if any, that ended
// the call (configuration, listener or transport failure). It is the
// element type of the channels returned by the asynchronous grant
// variants.
type TokenResult struct {
	Response *TokenResponse
	Err      error
}

// PublicClient is an immutable OAuth 2.0 client configuration: client
// identifier, token endpoint and per-request timeout. It is safe to
// share between goroutines and acts as the factory for the individual
// grants.
type PublicClient struct {
	clientID       string
	tokenEndpoint  *url.URL
	requestTimeout time.Duration
}

// ClientID returns the configured client identifier.
func (c *PublicClient) ClientID() string {
	return c.clientID
}

// TokenEndpoint returns a copy of the configured token endpoint.
func (c *PublicClient) TokenEndpoint() *url.URL {
	u := *c.tokenEndpoint
	return &u
}

// RequestTimeout returns the per-request timeout applied to token
// endpoint calls.
func (c *PublicClient) RequestTimeout() time.Duration {
	return c.requestTimeout
}

// WithRequestTimeout returns a new client with the given per-request
// timeout. The receiver is unchanged. A non-positive duration is a
// configuration error.
func (c *PublicClient) WithRequestTimeout(d time.Duration) (*PublicClient, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: request timeout must be positive, got %v", ErrInvalidConfig, d)
	}
	return &PublicClient{
		clientID:       c.clientID,
		tokenEndpoint:  c.tokenEndpoint,
		requestTimeout: d,
	}, nil
}

// AuthorizationCodeGrant returns a grant for the Authorization Code
// flow with PKCE against the given authorization endpoint. A fresh
// PKCE pair is generated per grant. The endpoint must be absolute.
func (c *PublicClient) AuthorizationCodeGrant(authorizationEndpoint *url.URL) (*AuthorizationCodeGrant, error) {
	if authorizationEndpoint == nil || !authorizationEndpoint.IsAbs() {
		return nil, fmt.Errorf("%w: authorization endpoint must be an absolute URI", ErrInvalidConfig)
	}
	return newAuthorizationCodeGrant(c, authorizationEndpoint), nil
}

// ClientCredentialsGrant returns a grant for the Client Credentials
// flow. The Basic authorization header is derived immediately and the
// secret is scrubbed from intermediate buffers. The secret must be
// non-empty; the caller's slice is zeroed in place.
func (c *PublicClient) ClientCredentialsGrant(secret []byte) (*ClientCredentialsGrant, error) {
	return newClientCredentialsGrant(c, secret)
}

// Refresh exchanges a refresh token for fresh tokens (RFC 6749
// Section 6) and returns the token endpoint's reply verbatim. A
// non-2xx status is not an error.
func (c *PublicClient) Refresh(ctx context.Context, httpClient HTTPDoer, refreshToken string, scopes ...string) (*TokenResponse, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("%w: http client must not be nil", ErrInvalidConfig)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token must not be empty", ErrInvalidConfig)
	}
	return c.send(ctx, httpClient, c.buildRefreshTokenRequest(refreshToken, scopes), nil)
}

// RefreshAsync runs Refresh on a new goroutine and delivers the
// outcome on the returned channel. The channel is buffered; the result
// is never lost if the caller reads late.
func (c *PublicClient) RefreshAsync(ctx context.Context, httpClient HTTPDoer, refreshToken string, scopes ...string) <-chan TokenResult {
	results := make(chan TokenResult, 1)
	go func() {
		resp, err := c.Refresh(ctx, httpClient, refreshToken, scopes...)
		results <- TokenResult{Response: resp, Err: err}
	}()
	return results
}

// buildRefreshTokenRequest assembles the form parameters for a refresh
// token grant. An empty scope list omits the scope parameter entirely.
func (c *PublicClient) buildRefreshTokenRequest(refreshToken string, scopes []string) Params {
	params := Params{
		{Key: "grant_type", Value: "refresh_token"},
		{Key: "refresh_token", Value: refreshToken},
		{Key: "client_id", Value: c.clientID},
	}
	return appendScope(params, scopes)
}

// appendScope appends a space-joined scope parameter, or nothing when
// no scopes are requested.
func appendScope(params Params, scopes []string) Params {
	if len(scopes) == 0 {
		return params
	}
	return append(params, Param{Key: "scope", Value: strings.Join(scopes, " ")})
}

// send POSTs the form-encoded parameters to the token endpoint with
// the client's request timeout and returns the reply verbatim. The
// optional header map is applied on top of Content-Type.
func (c *PublicClient) send(ctx context.Context, httpClient HTTPDoer, params Params, header map[string]string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	body := EncodeQuery(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint.String(), strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	slog.Debug("Sending token request",
		"endpoint", c.tokenEndpoint.String(),
		"grant_type", params.Get("grant_type"),
	)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	slog.Debug("Token response received", "status", resp.StatusCode)

	return &TokenResponse{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}, nil
}

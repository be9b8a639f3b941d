package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// redirectPathLength is the length of the random default redirect
// path, not counting the leading slash.
const redirectPathLength = 16

// AuthorizationCodeGrant drives the RFC 8252 native-app flow: it
// starts a loopback redirect listener, assembles the authorization
// URI, launches the user agent, waits for the authorization code and
// exchanges it at the token endpoint with the PKCE verifier.
//
// A grant holds a single PKCE pair and is used for exactly one
// authorization. Configuration happens before Authorize; a grant is
// not safe for concurrent Authorize calls.
type AuthorizationCodeGrant struct {
	client                *PublicClient
	authorizationEndpoint *url.URL
	pkce                  *PKCE

	redirectPath    string
	redirectPorts   []int
	successResponse Response
	errorResponse   Response
}

func newAuthorizationCodeGrant(client *PublicClient, authorizationEndpoint *url.URL) *AuthorizationCodeGrant {
	return &AuthorizationCodeGrant{
		client:                client,
		authorizationEndpoint: authorizationEndpoint,
		pkce:                  NewPKCE(),
		redirectPath:          "/" + RandomToken(redirectPathLength),
	}
}

// PKCE returns the grant's PKCE pair.
func (g *AuthorizationCodeGrant) PKCE() *PKCE {
	return g.pkce
}

// SetRedirectPath overrides the random default redirect path. The path
// must begin with "/". Returns the grant for chaining.
func (g *AuthorizationCodeGrant) SetRedirectPath(path string) (*AuthorizationCodeGrant, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: redirect path %q must be absolute", ErrInvalidConfig, path)
	}
	g.redirectPath = path
	return g, nil
}

// SetRedirectPorts sets the candidate loopback ports, tried in order.
// With no ports a system-assigned port is used. Returns the grant for
// chaining.
func (g *AuthorizationCodeGrant) SetRedirectPorts(ports ...int) *AuthorizationCodeGrant {
	g.redirectPorts = ports
	return g
}

// SetSuccessResponse overrides the reply the user agent sees after a
// successful authorization. Panics on nil.
func (g *AuthorizationCodeGrant) SetSuccessResponse(r Response) *AuthorizationCodeGrant {
	if r == nil {
		panic("oauth: nil success response")
	}
	g.successResponse = r
	return g
}

// SetErrorResponse overrides the reply the user agent sees after a
// failed authorization. Panics on nil.
func (g *AuthorizationCodeGrant) SetErrorResponse(r Response) *AuthorizationCodeGrant {
	if r == nil {
		panic("oauth: nil error response")
	}
	g.errorResponse = r
	return g
}

// Authorize runs the full authorization code flow and returns the
// token endpoint's reply verbatim. A non-2xx status is not an error.
//
// The browser callback is dispatched on its own goroutine so the
// redirect listener can block on accept; a callback error is logged
// and otherwise ignored. The listener socket is released on every
// path. Canceling ctx unblocks a pending receive and also bounds the
// token exchange.
func (g *AuthorizationCodeGrant) Authorize(ctx context.Context, httpClient HTTPDoer, browser BrowserFunc, scopes ...string) (*TokenResponse, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("%w: http client must not be nil", ErrInvalidConfig)
	}
	if browser == nil {
		return nil, fmt.Errorf("%w: browser callback must not be nil", ErrInvalidConfig)
	}

	code, redirectURI, err := g.requestAuthCode(ctx, browser, scopes)
	if err != nil {
		return nil, err
	}

	return g.exchangeCode(ctx, httpClient, code, redirectURI)
}

// AuthorizeAsync runs Authorize on a new goroutine and delivers the
// outcome on the returned channel. The channel is buffered; the result
// is never lost if the caller reads late. Failures from the listener
// stage and the HTTP stage both surface as the Err field.
func (g *AuthorizationCodeGrant) AuthorizeAsync(ctx context.Context, httpClient HTTPDoer, browser BrowserFunc, scopes ...string) <-chan TokenResult {
	results := make(chan TokenResult, 1)
	go func() {
		resp, err := g.Authorize(ctx, httpClient, browser, scopes...)
		results <- TokenResult{Response: resp, Err: err}
	}()
	return results
}

// requestAuthCode runs the front-channel half of the flow: start the
// listener, open the browser, wait for the redirect. It returns the
// authorization code and the redirect URI the code was delivered to,
// which the token exchange must repeat.
func (g *AuthorizationCodeGrant) requestAuthCode(ctx context.Context, browser BrowserFunc, scopes []string) (string, *url.URL, error) {
	listener, err := StartListener(g.redirectPath, g.redirectPorts...)
	if err != nil {
		return "", nil, err
	}
	defer listener.Close()

	if g.successResponse != nil {
		listener.SetSuccessResponse(g.successResponse)
	}
	if g.errorResponse != nil {
		listener.SetErrorResponse(g.errorResponse)
	}

	redirectURI := listener.RedirectURI()
	authURI := g.buildAuthURI(redirectURI, listener.CSRFToken(), scopes)

	go func() {
		slog.Debug("Opening browser", "endpoint", g.authorizationEndpoint.String())
		if err := browser(authURI); err != nil {
			slog.Debug("Browser callback failed", "error", err.Error())
		}
	}()

	code, err := listener.Receive(ctx)
	if err != nil {
		return "", nil, err
	}
	return code, redirectURI, nil
}

// buildAuthURI assembles the authorization request URI. An existing
// raw query on the endpoint is preserved and the grant parameters are
// appended after it (RFC 6749 Section 3.1).
func (g *AuthorizationCodeGrant) buildAuthURI(redirectURI *url.URL, csrfToken string, scopes []string) *url.URL {
	params := Params{
		{Key: "response_type", Value: "code"},
		{Key: "client_id", Value: g.client.clientID},
		{Key: "state", Value: csrfToken},
		{Key: "code_challenge", Value: g.pkce.Challenge()},
		{Key: "code_challenge_method", Value: g.pkce.Method()},
		{Key: "redirect_uri", Value: redirectURI.String()},
	}
	params = appendScope(params, scopes)

	authURI := *g.authorizationEndpoint
	query := EncodeQuery(params)
	if authURI.RawQuery != "" {
		authURI.RawQuery += "&" + query
	} else {
		authURI.RawQuery = query
	}
	return &authURI
}

// exchangeCode runs the back-channel half: swap the authorization code
// for tokens, proving possession of the PKCE verifier.
func (g *AuthorizationCodeGrant) exchangeCode(ctx context.Context, httpClient HTTPDoer, code string, redirectURI *url.URL) (*TokenResponse, error) {
	params := Params{
		{Key: "grant_type", Value: "authorization_code"},
		{Key: "client_id", Value: g.client.clientID},
		{Key: "code_verifier", Value: g.pkce.Verifier()},
		{Key: "code", Value: code},
		{Key: "redirect_uri", Value: redirectURI.String()},
	}
	return g.client.send(ctx, httpClient, params, nil)
}

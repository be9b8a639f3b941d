package oauth

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrant(t *testing.T, tokenEndpoint string) *AuthorizationCodeGrant {
	t.Helper()

	u, err := url.Parse(tokenEndpoint)
	require.NoError(t, err)
	client, err := Client("oauth-client-id").WithTokenEndpoint(u)
	require.NoError(t, err)

	authURL, err := url.Parse("https://login.example.com/oauth2/authorize")
	require.NoError(t, err)
	grant, err := client.AuthorizationCodeGrant(authURL)
	require.NoError(t, err)
	return grant
}

// redirectingBrowser acts as the authorization server's happy path: it
// extracts state and redirect_uri from the authorization URI and sends
// the user agent straight back with the given query parameters.
func redirectingBrowser(t *testing.T, query func(state string) string) (BrowserFunc, *atomic.Int32) {
	t.Helper()

	calls := &atomic.Int32{}
	browser := func(authURI *url.URL) error {
		calls.Add(1)

		params := ParseQuery(authURI.RawQuery)
		redirect, err := url.Parse(params["redirect_uri"])
		if err != nil {
			return err
		}

		conn, err := net.Dial("tcp", redirect.Host)
		if err != nil {
			return err
		}
		defer conn.Close()

		request := fmt.Sprintf("GET %s?%s HTTP/1.1\r\n\r\n", redirect.Path, query(params["state"]))
		if _, err := conn.Write([]byte(request)); err != nil {
			return err
		}
		_, err = io.ReadAll(conn)
		return err
	}
	return browser, calls
}

func TestAuthorize_HappyPath(t *testing.T) {
	server, captured := newTokenEndpoint(t, http.StatusOK, `{"access_token":"at","refresh_token":"rt"}`)

	grant := testGrant(t, server.URL)
	_, err := grant.SetRedirectPath("/callback")
	require.NoError(t, err)

	authURIs := make(chan *url.URL, 1)
	inner, calls := redirectingBrowser(t, func(state string) string {
		return "code=AUTH&state=" + state
	})
	browser := func(u *url.URL) error {
		authURIs <- u
		return inner(u)
	}

	resp, err := grant.Authorize(context.Background(), server.Client(), browser, "offline_access")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"access_token":"at","refresh_token":"rt"}`, resp.Body)
	assert.Equal(t, int32(1), calls.Load(), "browser callback observes the URI exactly once")

	authURI := <-authURIs
	authParams := ParseQuery(authURI.RawQuery)
	assert.Equal(t, "https", authURI.Scheme)
	assert.Equal(t, "login.example.com", authURI.Host)
	assert.Equal(t, "/oauth2/authorize", authURI.Path)
	assert.Equal(t, "code", authParams["response_type"])
	assert.Equal(t, "oauth-client-id", authParams["client_id"])
	assert.Equal(t, grant.PKCE().Challenge(), authParams["code_challenge"])
	assert.Equal(t, "S256", authParams["code_challenge_method"])
	assert.Equal(t, "offline_access", authParams["scope"])
	assert.True(t, strings.HasPrefix(authParams["redirect_uri"], "http://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(authParams["redirect_uri"], "/callback"))

	assert.Equal(t, http.MethodPost, captured.method)
	assert.Equal(t, "application/x-www-form-urlencoded", captured.contentType)
	assert.Equal(t, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "oauth-client-id",
		"code_verifier": grant.PKCE().Verifier(),
		"code":          "AUTH",
		"redirect_uri":  authParams["redirect_uri"],
	}, captured.form)
}

func TestAuthorize_Denied(t *testing.T) {
	server, captured := newTokenEndpoint(t, http.StatusOK, "{}")

	grant := testGrant(t, server.URL)
	browser, _ := redirectingBrowser(t, func(state string) string {
		return "error=access_denied&state=" + state
	})

	_, err := grant.Authorize(context.Background(), server.Client(), browser)
	require.Error(t, err)

	var denied *AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "access_denied", denied.Code)
	assert.Empty(t, captured.method, "no token request on denial")
}

func TestAuthorize_Cancel(t *testing.T) {
	grant := testGrant(t, "https://login.example.com/oauth2/token")

	ctx, cancel := context.WithCancel(context.Background())
	noopBrowser := func(*url.URL) error { return nil }

	results := grant.AuthorizeAsync(ctx, http.DefaultClient, noopBrowser)
	cancel()

	result := <-results
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, ErrReceiveCanceled)
}

func TestAuthorize_PortTaken(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	grant := testGrant(t, "https://login.example.com/oauth2/token")
	grant.SetRedirectPorts(port)

	noopBrowser := func(*url.URL) error { return nil }
	_, err = grant.Authorize(context.Background(), http.DefaultClient, noopBrowser)
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestAuthorize_BrowserFailureDoesNotAbort(t *testing.T) {
	grant := testGrant(t, "https://login.example.com/oauth2/token")

	failingBrowser := func(*url.URL) error {
		return fmt.Errorf("no display")
	}

	ctx, cancel := context.WithCancel(context.Background())
	results := grant.AuthorizeAsync(ctx, http.DefaultClient, failingBrowser)
	cancel()

	// The flow keeps waiting for the redirect; only the cancel ends it.
	result := <-results
	assert.ErrorIs(t, result.Err, ErrReceiveCanceled)
}

func TestAuthorize_Validation(t *testing.T) {
	grant := testGrant(t, "https://login.example.com/oauth2/token")

	_, err := grant.Authorize(context.Background(), nil, SystemBrowser)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = grant.Authorize(context.Background(), http.DefaultClient, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAuthorizationCodeGrant_Defaults(t *testing.T) {
	grant := testGrant(t, "https://login.example.com/oauth2/token")

	require.True(t, strings.HasPrefix(grant.redirectPath, "/"))
	assert.Len(t, grant.redirectPath, 17, "default path is a slash plus a 16-character token")
	assert.Empty(t, grant.redirectPorts, "default is a system-assigned port")
}

func TestSetRedirectPath(t *testing.T) {
	grant := testGrant(t, "https://login.example.com/oauth2/token")

	_, err := grant.SetRedirectPath("relative")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	returned, err := grant.SetRedirectPath("/cb")
	require.NoError(t, err)
	assert.Same(t, grant, returned)
	assert.Equal(t, "/cb", grant.redirectPath)
}

func TestSetResponses_Chaining(t *testing.T) {
	grant := testGrant(t, "https://login.example.com/oauth2/token")

	returned := grant.
		SetSuccessResponse(HTMLResponse(StatusOK, "done")).
		SetErrorResponse(EmptyResponse(StatusBadRequest)).
		SetRedirectPorts(8080, 8082)

	assert.Same(t, grant, returned)
	assert.Panics(t, func() { grant.SetSuccessResponse(nil) })
	assert.Panics(t, func() { grant.SetErrorResponse(nil) })
}

func TestBuildAuthURI_PreservesExistingQuery(t *testing.T) {
	u, err := url.Parse("https://login.example.com/oauth2/token")
	require.NoError(t, err)
	client, err := Client("oauth-client-id").WithTokenEndpoint(u)
	require.NoError(t, err)

	authURL, err := url.Parse("https://login.example.com/?foo=bar")
	require.NoError(t, err)
	grant, err := client.AuthorizationCodeGrant(authURL)
	require.NoError(t, err)

	redirectURI, err := url.Parse("http://127.0.0.1:55555/callback")
	require.NoError(t, err)

	authURI := grant.buildAuthURI(redirectURI, "csrf123", []string{"offline_access"})

	require.True(t, strings.HasPrefix(authURI.RawQuery, "foo=bar&"), "existing query comes first")

	params := ParseQuery(authURI.RawQuery)
	assert.Equal(t, "bar", params["foo"])
	assert.Equal(t, "code", params["response_type"])
	assert.Equal(t, "oauth-client-id", params["client_id"])
	assert.Equal(t, "csrf123", params["state"])
	assert.Equal(t, grant.PKCE().Challenge(), params["code_challenge"])
	assert.Equal(t, "S256", params["code_challenge_method"])
	assert.Equal(t, "http://127.0.0.1:55555/callback", params["redirect_uri"])
	assert.Equal(t, "offline_access", params["scope"])
}

func TestBuildAuthURI_NoScopes(t *testing.T) {
	grant := testGrant(t, "https://login.example.com/oauth2/token")

	redirectURI, err := url.Parse("http://127.0.0.1:55555/callback")
	require.NoError(t, err)

	authURI := grant.buildAuthURI(redirectURI, "csrf123", nil)
	params := ParseQuery(authURI.RawQuery)

	_, hasScope := params["scope"]
	assert.False(t, hasScope, "scope parameter must be omitted when no scopes are requested")
}

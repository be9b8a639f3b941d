package authflow

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"loopauth/internal/tokenstore"
	"loopauth/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryStore(t *testing.T) *tokenstore.Store {
	t.Helper()
	store, err := tokenstore.New(tokenstore.Config{FileMode: false})
	require.NoError(t, err)
	return store
}

func testProfile(t *testing.T, tokenEndpoint string) Profile {
	t.Helper()
	tokenURL, err := url.Parse(tokenEndpoint)
	require.NoError(t, err)
	authURL, err := url.Parse("https://login.example.com/oauth2/authorize")
	require.NoError(t, err)
	return Profile{
		Name:                  "test",
		ClientID:              "test-client",
		AuthorizationEndpoint: authURL,
		TokenEndpoint:         tokenURL,
		Scopes:                []string{"offline_access"},
	}
}

// fakeTokenEndpoint replies with a fixed JSON document.
func fakeTokenEndpoint(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

// loopbackBrowser completes the redirect leg by echoing code and state
// back to the listener, like a user approving the request.
func loopbackBrowser(code string) oauth.BrowserFunc {
	return func(authURI *url.URL) error {
		params := oauth.ParseQuery(authURI.RawQuery)
		redirect, err := url.Parse(params["redirect_uri"])
		if err != nil {
			return err
		}
		conn, err := net.Dial("tcp", redirect.Host)
		if err != nil {
			return err
		}
		defer conn.Close()
		request := fmt.Sprintf("GET %s?code=%s&state=%s HTTP/1.1\r\n\r\n", redirect.Path, code, params["state"])
		if _, err := conn.Write([]byte(request)); err != nil {
			return err
		}
		_, err = io.ReadAll(conn)
		return err
	}
}

func TestManager_Login(t *testing.T) {
	server := fakeTokenEndpoint(t, http.StatusOK,
		`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600,"scope":"offline_access"}`)

	store := memoryStore(t)
	manager, err := New(store, server.Client(), loopbackBrowser("AUTH"))
	require.NoError(t, err)

	token, err := manager.Login(context.Background(), testProfile(t, server.URL))
	require.NoError(t, err)

	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, "rt", token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "offline_access", token.Scope)
	assert.True(t, token.Expiry.After(time.Now().Add(50*time.Minute)))
	assert.Equal(t, StateAuthenticated, manager.State())

	stored := store.Get("test")
	require.NotNil(t, stored)
	assert.Equal(t, "at", stored.AccessToken)
}

func TestManager_Login_TokenEndpointRejects(t *testing.T) {
	server := fakeTokenEndpoint(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)

	manager, err := New(memoryStore(t), server.Client(), loopbackBrowser("AUTH"))
	require.NoError(t, err)

	_, err = manager.Login(context.Background(), testProfile(t, server.URL))
	require.Error(t, err)

	var endpointErr *TokenEndpointError
	require.ErrorAs(t, err, &endpointErr)
	assert.Equal(t, http.StatusBadRequest, endpointErr.StatusCode)
	assert.Contains(t, endpointErr.Body, "invalid_grant")
	assert.Equal(t, StateError, manager.State())
	assert.Error(t, manager.LastError())
}

func TestManager_Login_Denied(t *testing.T) {
	server := fakeTokenEndpoint(t, http.StatusOK, "{}")

	denyingBrowser := func(authURI *url.URL) error {
		params := oauth.ParseQuery(authURI.RawQuery)
		redirect, err := url.Parse(params["redirect_uri"])
		if err != nil {
			return err
		}
		conn, err := net.Dial("tcp", redirect.Host)
		if err != nil {
			return err
		}
		defer conn.Close()
		request := fmt.Sprintf("GET %s?error=access_denied&state=%s HTTP/1.1\r\n\r\n", redirect.Path, params["state"])
		_, _ = conn.Write([]byte(request))
		_, _ = io.ReadAll(conn)
		return nil
	}

	manager, err := New(memoryStore(t), server.Client(), denyingBrowser)
	require.NoError(t, err)

	_, err = manager.Login(context.Background(), testProfile(t, server.URL))
	require.Error(t, err)

	var denied *oauth.AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "access_denied", denied.Code)
}

func TestManager_Refresh(t *testing.T) {
	server := fakeTokenEndpoint(t, http.StatusOK,
		`{"access_token":"at2","token_type":"Bearer","expires_in":3600}`)

	store := memoryStore(t)
	profile := testProfile(t, server.URL)
	require.NoError(t, store.Save(&tokenstore.StoredToken{
		Profile:       profile.Name,
		AccessToken:   "at1",
		RefreshToken:  "rt1",
		TokenType:     "Bearer",
		TokenEndpoint: server.URL,
	}))

	manager, err := New(store, server.Client(), nil)
	require.NoError(t, err)

	token, err := manager.Refresh(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, "at2", token.AccessToken)
	assert.Equal(t, "rt1", token.RefreshToken, "non-rotated refresh token is kept")
	assert.Equal(t, StateAuthenticated, manager.State())
}

func TestManager_Refresh_NoStoredToken(t *testing.T) {
	manager, err := New(memoryStore(t), http.DefaultClient, nil)
	require.NoError(t, err)

	_, err = manager.Refresh(context.Background(), testProfile(t, "https://login.example.com/oauth2/token"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no refresh token stored")
}

func TestManager_ClientCredentials(t *testing.T) {
	server := fakeTokenEndpoint(t, http.StatusOK,
		`{"access_token":"m2m","token_type":"Bearer","expires_in":600}`)

	store := memoryStore(t)
	manager, err := New(store, server.Client(), nil)
	require.NoError(t, err)

	token, err := manager.ClientCredentials(context.Background(), testProfile(t, server.URL), []byte("s3cr3t"))
	require.NoError(t, err)

	assert.Equal(t, "m2m", token.AccessToken)
	require.NotNil(t, store.Get("test"))
}

func TestManager_Validation(t *testing.T) {
	_, err := New(nil, http.DefaultClient, nil)
	require.Error(t, err)

	_, err = New(memoryStore(t), nil, nil)
	require.Error(t, err)
}

func TestDecodeTokenResponse(t *testing.T) {
	profile := testProfile(t, "https://login.example.com/oauth2/token")

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := decodeTokenResponse(profile, "not json")
		require.Error(t, err)
	})

	t.Run("rejects missing access token", func(t *testing.T) {
		_, err := decodeTokenResponse(profile, `{"token_type":"Bearer"}`)
		require.Error(t, err)
	})

	t.Run("zero expires_in leaves expiry unset", func(t *testing.T) {
		token, err := decodeTokenResponse(profile, `{"access_token":"at"}`)
		require.NoError(t, err)
		assert.True(t, token.Expiry.IsZero())
	})
}

func TestFlowState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", FlowState(42).String())
}

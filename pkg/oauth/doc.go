// Package oauth implements a minimal OAuth 2.0 client for native
// applications, following RFC 8252 (OAuth 2.0 for Native Apps) with
// loopback interface redirection.
//
// Three grant types are supported:
//
//   - Authorization Code Grant with PKCE (RFC 7636): a local one-shot
//     HTTP listener is bound on 127.0.0.1, the user's browser is sent to
//     the authorization endpoint, and the redirect back to the loopback
//     address delivers the authorization code.
//   - Client Credentials Grant: machine-to-machine token requests
//     authenticated with an HTTP Basic header (RFC 6749 Section 2.3.1).
//   - Refresh Token Grant: exchange a refresh token for fresh tokens.
//
// The package deliberately avoids a full HTTP server for the redirect
// listener: only the request line of a single GET request is parsed.
// There is no TLS on the loopback (certificates cannot be obtained for
// localhost), no header or body parsing, and no support for more than
// one redirect per flow.
//
// Token endpoint responses are returned verbatim (status code and raw
// body). The package never interprets the response body; callers decide
// how to parse it and how to treat non-2xx statuses.
//
// Entry point:
//
//	client, err := oauth.Client("my-client-id").WithTokenEndpoint(tokenURL)
//	if err != nil {
//		return err
//	}
//	grant, err := client.AuthorizationCodeGrant(authURL)
//	if err != nil {
//		return err
//	}
//	resp, err := grant.Authorize(ctx, http.DefaultClient, oauth.SystemBrowser, "offline_access")
package oauth

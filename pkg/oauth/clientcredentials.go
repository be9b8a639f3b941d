package oauth

import (
	"context"
	"encoding/base64"
	"fmt"
)

// ClientCredentialsGrant implements the Client Credentials flow
// (RFC 6749 Section 4.4). The client authenticates with an HTTP Basic
// header derived at construction time; the secret itself is not
// retained and intermediate buffers are zeroed.
//
// A grant is immutable after construction and safe to reuse for
// multiple token requests.
type ClientCredentialsGrant struct {
	client          *PublicClient
	basicAuthHeader string
}

func newClientCredentialsGrant(client *PublicClient, secret []byte) (*ClientCredentialsGrant, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: client secret must not be empty", ErrInvalidConfig)
	}
	return &ClientCredentialsGrant{
		client:          client,
		basicAuthHeader: buildBasicAuthHeader(client.clientID, secret),
	}, nil
}

// buildBasicAuthHeader derives "Basic " + base64(client_id:secret).
// The secret input, the intermediate credentials buffer and the base64
// buffer are zeroed before return; only the final header string remains
// in memory, which is unavoidable for the lifetime of the grant.
func buildBasicAuthHeader(clientID string, secret []byte) string {
	credentials := make([]byte, 0, len(clientID)+1+len(secret))
	credentials = append(credentials, clientID...)
	credentials = append(credentials, ':')
	credentials = append(credentials, secret...)

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(credentials)))
	base64.StdEncoding.Encode(encoded, credentials)
	header := "Basic " + string(encoded)

	scrub(encoded)
	scrub(credentials)
	scrub(secret)
	return header
}

// scrub overwrites b with zeros.
func scrub(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Authorize requests a token with the client credentials grant and
// returns the token endpoint's reply verbatim. Per RFC 6749
// Section 2.3.1 the credentials travel only in the Authorization
// header, never in the body.
func (g *ClientCredentialsGrant) Authorize(ctx context.Context, httpClient HTTPDoer, scopes ...string) (*TokenResponse, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("%w: http client must not be nil", ErrInvalidConfig)
	}

	params := appendScope(Params{{Key: "grant_type", Value: "client_credentials"}}, scopes)
	header := map[string]string{"Authorization": g.basicAuthHeader}
	return g.client.send(ctx, httpClient, params, header)
}

// AuthorizeAsync runs Authorize on a new goroutine and delivers the
// outcome on the returned channel. The channel is buffered; the result
// is never lost if the caller reads late.
func (g *ClientCredentialsGrant) AuthorizeAsync(ctx context.Context, httpClient HTTPDoer, scopes ...string) <-chan TokenResult {
	results := make(chan TokenResult, 1)
	go func() {
		resp, err := g.Authorize(ctx, httpClient, scopes...)
		results <- TokenResult{Response: resp, Err: err}
	}()
	return results
}

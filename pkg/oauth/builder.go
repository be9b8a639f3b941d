package oauth

import (
	"fmt"
	"net/url"
)

// Builder is the entry point of the fluent construction chain. It
// carries only the client identifier; the chain is completed by
// WithTokenEndpoint.
type Builder struct {
	clientID string
}

// Client starts a builder for the given client identifier.
//
//	client, err := oauth.Client("my-client").WithTokenEndpoint(tokenURL)
func Client(clientID string) *Builder {
	return &Builder{clientID: clientID}
}

// WithTokenEndpoint completes the chain and yields an immutable
// PublicClient with the default request timeout. The client id must be
// non-empty and the endpoint absolute.
func (b *Builder) WithTokenEndpoint(tokenEndpoint *url.URL) (*PublicClient, error) {
	if b.clientID == "" {
		return nil, fmt.Errorf("%w: client id must not be empty", ErrInvalidConfig)
	}
	if tokenEndpoint == nil || !tokenEndpoint.IsAbs() {
		return nil, fmt.Errorf("%w: token endpoint must be an absolute URI", ErrInvalidConfig)
	}
	return &PublicClient{
		clientID:       b.clientID,
		tokenEndpoint:  tokenEndpoint,
		requestTimeout: defaultRequestTimeout,
	}, nil
}

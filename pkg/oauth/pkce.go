package oauth

import (
	"crypto/sha256"
	"encoding/base64"
)

// ChallengeMethodS256 is the only PKCE code challenge method this
// package supports. Plain is deliberately not offered.
const ChallengeMethodS256 = "S256"

// pkceVerifierLength is the length of the code verifier in characters.
// RFC 7636 Section 4.1 requires 43 to 128 characters from the
// unreserved set; 43 base64url characters carry 256 bits of entropy.
const pkceVerifierLength = 43

// PKCE holds a freshly generated Proof Key for Code Exchange pair
// (RFC 7636). The authorization server sees only the challenge at
// authorization time and the verifier at token exchange; binding them
// cryptographically defeats authorization code interception.
//
// A PKCE pair is immutable and used for exactly one grant.
type PKCE struct {
	verifier  string
	challenge string
}

// NewPKCE generates a fresh PKCE pair: a 43-character URL-safe verifier
// and its S256 challenge, base64url-encoded without padding.
func NewPKCE() *PKCE {
	verifier := RandomToken(pkceVerifierLength)
	// The verifier is URL-safe base64, so its bytes are plain US-ASCII.
	hash := sha256.Sum256([]byte(verifier))
	return &PKCE{
		verifier:  verifier,
		challenge: base64.RawURLEncoding.EncodeToString(hash[:]),
	}
}

// Verifier returns the secret code verifier. It is sent to the token
// endpoint only, never to the browser.
func (p *PKCE) Verifier() string {
	return p.verifier
}

// Challenge returns the S256 code challenge derived from the verifier.
func (p *PKCE) Challenge() string {
	return p.challenge
}

// Method returns the code challenge method, always "S256".
func (p *PKCE) Method() string {
	return ChallengeMethodS256
}

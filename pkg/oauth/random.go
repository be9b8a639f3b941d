package oauth

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomBytes returns n cryptographically strong random bytes.
//
// It panics if the platform's CSPRNG is unavailable. The Go runtime
// guarantees crypto/rand on all supported platforms, so this only
// triggers on a fundamentally broken system.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("oauth: crypto/rand unavailable: " + err.Error())
	}
	return b
}

// RandomToken returns a random URL-safe string of exactly n characters.
// The result uses the base64url alphabet without padding, making it safe
// for use in URIs, query parameters and form bodies.
func RandomToken(n int) string {
	// Draw enough bytes so that the base64url expansion covers n chars.
	numBytes := ((n + 3) / 4) * 3
	s := base64.RawURLEncoding.EncodeToString(RandomBytes(numBytes))
	return s[:n]
}

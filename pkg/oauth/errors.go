package oauth

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates a programmer error: a missing client id,
// a non-absolute endpoint or redirect path, or a nil required argument.
// Errors of this kind are returned eagerly, before any I/O happens.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrAddressInUse is returned by StartListener when none of the
// configured candidate ports could be bound.
var ErrAddressInUse = errors.New("all candidate ports are in use")

// ErrListenerClosed is returned when Receive unblocks because the
// listener was closed, either explicitly via Close or because it has
// already served its single request.
var ErrListenerClosed = errors.New("redirect listener closed")

// ErrReceiveCanceled is returned when the context passed to Receive is
// canceled while the listener is blocked waiting for the redirect.
// The listening socket is released before this error surfaces.
var ErrReceiveCanceled = errors.New("receive canceled")

// RequestErrorKind classifies why the redirect listener rejected the
// single request it accepted.
type RequestErrorKind int

const (
	// RequestMalformed means the request line could not be parsed or
	// the request URI was invalid.
	RequestMalformed RequestErrorKind = iota

	// RequestWrongMethod means a method other than GET was used.
	RequestWrongMethod

	// RequestWrongPath means the request path did not match the
	// registered redirect path.
	RequestWrongPath

	// RequestBadState means the state parameter was missing or did not
	// match the CSRF token minted for this flow.
	RequestBadState

	// RequestMissingCode means the query carried neither a code nor an
	// error parameter.
	RequestMissingCode
)

// String returns a short human-readable name for the kind.
func (k RequestErrorKind) String() string {
	switch k {
	case RequestMalformed:
		return "malformed request"
	case RequestWrongMethod:
		return "method not allowed"
	case RequestWrongPath:
		return "wrong path"
	case RequestBadState:
		return "missing or invalid state token"
	case RequestMissingCode:
		return "missing authorization code"
	default:
		return "invalid request"
	}
}

// RequestError reports a protocol violation on the redirect request.
// The listener has already written the appropriate HTTP reply to the
// user agent when this error surfaces.
type RequestError struct {
	Kind   RequestErrorKind
	Detail string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("redirect request rejected: %s (%s)", e.Kind, e.Detail)
	}
	return "redirect request rejected: " + e.Kind.String()
}

// AuthorizationDeniedError reports that the authorization server
// redirected back with an error parameter (RFC 6749 Section 4.1.2.1).
// The server's error code is preserved verbatim.
type AuthorizationDeniedError struct {
	// Code is the error code sent by the authorization server, for
	// example "access_denied".
	Code string
}

// Error implements the error interface.
func (e *AuthorizationDeniedError) Error() string {
	return "authorization denied: " + e.Code
}

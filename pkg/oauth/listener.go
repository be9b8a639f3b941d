package oauth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// csrfTokenLength is the length of the state parameter in characters.
// 16 base64url characters carry 96 bits of entropy.
const csrfTokenLength = 16

// RedirectListener is a single-use loopback HTTP listener for the
// authorization redirect. It accepts exactly one TCP connection, parses
// only the HTTP request line, validates path and state, replies, and
// releases its socket.
//
// Deliberately not a full HTTP server: no headers, no body, no chunked
// transfer, no protocol upgrades. Everything beyond the request line is
// discarded, which removes the attack surface of a real server. TLS is
// not terminated either, since no valid certificate exists for the
// loopback address.
//
// A listener is not safe for concurrent Receive calls; Close is safe to
// call concurrently and unblocks a pending Receive.
type RedirectListener struct {
	ln        net.Listener
	path      string
	csrfToken string

	successResponse Response
	errorResponse   Response

	closeOnce sync.Once
	closeErr  error
}

// StartListener binds a loopback listener for the given redirect path.
//
// The path must begin with "/". With no ports (or the single port 0) a
// system-assigned port is used; otherwise each port is tried in order
// and the first free one wins. If every candidate is taken,
// ErrAddressInUse is returned. On any failure the socket is released.
//
// A fresh CSRF token is minted for every started listener.
func StartListener(redirectPath string, ports ...int) (*RedirectListener, error) {
	if !strings.HasPrefix(redirectPath, "/") {
		return nil, fmt.Errorf("%w: redirect path %q must be absolute", ErrInvalidConfig, redirectPath)
	}

	ln, err := tryBind(ports...)
	if err != nil {
		return nil, err
	}

	l := &RedirectListener{
		ln:              ln,
		path:            redirectPath,
		csrfToken:       RandomToken(csrfTokenLength),
		successResponse: HTMLResponse(StatusOK, "<html><body>Success</body></html>"),
		errorResponse:   HTMLResponse(StatusOK, "<html><body>Error</body></html>"),
	}

	slog.Debug("Redirect listener bound",
		"addr", ln.Addr().String(),
		"path", redirectPath,
	)

	return l, nil
}

// tryBind binds a loopback TCP socket on the first available candidate
// port. No candidates means a system-assigned port.
func tryBind(ports ...int) (net.Listener, error) {
	if len(ports) == 0 {
		ports = []int{0}
	}
	for _, port := range ports {
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		if errors.Is(err, syscall.EADDRINUSE) {
			continue
		}
		return nil, fmt.Errorf("failed to bind loopback port %d: %w", port, err)
	}
	return nil, ErrAddressInUse
}

// RedirectURI returns the redirect URI registered with the
// authorization request. Always the literal 127.0.0.1 address, never
// "localhost", as required by RFC 8252 Section 8.3.
func (l *RedirectListener) RedirectURI() *url.URL {
	port := l.ln.Addr().(*net.TCPAddr).Port
	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		Path:   l.path,
	}
}

// CSRFToken returns the state value minted for this listener.
func (l *RedirectListener) CSRFToken() string {
	return l.csrfToken
}

// SetSuccessResponse replaces the reply sent to the user agent after a
// successful authorization. Panics on nil.
func (l *RedirectListener) SetSuccessResponse(r Response) {
	if r == nil {
		panic("oauth: nil success response")
	}
	l.successResponse = r
}

// SetErrorResponse replaces the reply sent to the user agent after a
// failed authorization. Panics on nil.
func (l *RedirectListener) SetErrorResponse(r Response) {
	if r == nil {
		panic("oauth: nil error response")
	}
	l.errorResponse = r
}

// Receive blocks until the user agent hits the redirect URI, then
// validates the request and returns the authorization code.
//
// The listening socket is released on every exit path. Canceling ctx
// unblocks the accept and surfaces ErrReceiveCanceled; an explicit
// Close from another goroutine surfaces ErrListenerClosed. Protocol
// violations surface as *RequestError, a server-reported failure as
// *AuthorizationDeniedError. In each case the appropriate HTTP reply
// has been written before the error is returned.
func (l *RedirectListener) Receive(ctx context.Context) (string, error) {
	defer l.Close()

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrReceiveCanceled, ctx.Err())
		}
		if errors.Is(err, net.ErrClosed) {
			return "", ErrListenerClosed
		}
		return "", fmt.Errorf("accept failed: %w", err)
	}
	defer conn.Close()

	code, err := l.handle(conn)
	if err != nil {
		slog.Debug("Redirect request rejected", "error", err.Error())
		return "", err
	}

	slog.Debug("Authorization code received", "path", l.path)
	return code, nil
}

// handle reads and validates the single request on conn and writes the
// reply. The first line is decoded as US-ASCII; HTTP request lines are
// ASCII by definition and anything else fails parsing anyway.
func (l *RedirectListener) handle(conn net.Conn) (string, error) {
	requestLine, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && requestLine == "" {
		return "", fmt.Errorf("failed to read request line: %w", err)
	}
	requestLine = strings.TrimRight(requestLine, "\r\n")

	requestURI, reqErr := parseRequestLine(requestLine)
	if reqErr != nil {
		l.reply(conn, suggestedResponse(reqErr.Kind))
		return "", reqErr
	}

	if path.Clean(l.path) != path.Clean(requestURI.Path) {
		l.reply(conn, EmptyResponse(StatusNotFound))
		return "", &RequestError{Kind: RequestWrongPath, Detail: requestURI.Path}
	}

	params := ParseQuery(requestURI.RawQuery)
	switch {
	case params["state"] != l.csrfToken:
		l.reply(conn, EmptyResponse(StatusBadRequest))
		return "", &RequestError{Kind: RequestBadState}
	case params["error"] != "":
		l.reply(conn, l.errorResponse)
		return "", &AuthorizationDeniedError{Code: params["error"]}
	case params["code"] != "":
		if err := l.successResponse.Write(conn); err != nil {
			return "", fmt.Errorf("failed to write success response: %w", err)
		}
		return params["code"], nil
	default:
		l.reply(conn, EmptyResponse(StatusBadRequest))
		return "", &RequestError{Kind: RequestMissingCode}
	}
}

// reply writes r to conn on a best-effort basis. The connection is
// about to be torn down and the caller already carries the real error.
func (l *RedirectListener) reply(conn net.Conn, r Response) {
	if err := r.Write(conn); err != nil {
		slog.Debug("Failed to write redirect reply", "error", err.Error())
	}
}

// parseRequestLine extracts the request URI from an HTTP request line
// (RFC 2616 Section 5.1). Only GET is accepted.
func parseRequestLine(requestLine string) (*url.URL, *RequestError) {
	words := strings.Split(requestLine, " ")
	if len(words) < 3 {
		return nil, &RequestError{Kind: RequestMalformed, Detail: "incomplete request line"}
	}
	if words[0] != "GET" {
		return nil, &RequestError{Kind: RequestWrongMethod, Detail: words[0]}
	}
	requestURI, err := url.ParseRequestURI(words[1])
	if err != nil {
		return nil, &RequestError{Kind: RequestMalformed, Detail: "unparseable request URI"}
	}
	return requestURI, nil
}

// suggestedResponse maps a request-line parse failure to the HTTP reply
// the user agent should see.
func suggestedResponse(kind RequestErrorKind) Response {
	if kind == RequestWrongMethod {
		return EmptyResponse(StatusMethodNotAllowed)
	}
	return EmptyResponse(StatusBadRequest)
}

// Close releases the listening socket. It is idempotent, safe to call
// concurrently and unblocks a pending Receive.
func (l *RedirectListener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.ln.Close()
	})
	return l.closeErr
}

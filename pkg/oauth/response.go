package oauth

import (
	"fmt"
	"io"
	"net/url"
)

// Status is an HTTP status the redirect listener may reply with.
type Status int

// The full set of statuses used by the redirect listener.
const (
	StatusOK               Status = 200
	StatusSeeOther         Status = 303
	StatusBadRequest       Status = 400
	StatusNotFound         Status = 404
	StatusMethodNotAllowed Status = 405
)

// Reason returns the reason phrase for the status line.
func (s Status) Reason() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusSeeOther:
		return "See Other"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusMethodNotAllowed:
		return "Method Not Allowed"
	default:
		return "Unknown"
	}
}

// Response is an HTTP reply the redirect listener sends to the user
// agent. Values are cheap and freely shareable. Implementations write
// US-ASCII headers and a UTF-8 body, always including a
// "Connection: Close" header.
type Response interface {
	// Write serializes the full response, headers and body, to w.
	Write(w io.Writer) error
}

// EmptyResponse returns a response consisting of the status line and a
// "Connection: Close" header only.
func EmptyResponse(status Status) Response {
	return emptyResponse{status: status}
}

// HTMLResponse returns a response serving body with
// "Content-Type: text/html; charset=UTF-8" and a Content-Length header
// counting the UTF-8 bytes of body.
func HTMLResponse(status Status, body string) Response {
	return htmlResponse{status: status, body: body}
}

// RedirectResponse returns a "303 See Other" response pointing the user
// agent at target. It panics if target is nil; a redirect without a
// location is a programming error.
func RedirectResponse(target *url.URL) Response {
	if target == nil {
		panic("oauth: RedirectResponse requires a target URI")
	}
	return redirectResponse{status: StatusSeeOther, target: target}
}

type emptyResponse struct {
	status Status
}

func (r emptyResponse) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\nConnection: Close\n\n", int(r.status), r.status.Reason())
	return err
}

type htmlResponse struct {
	status Status
	body   string
}

func (r htmlResponse) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\nContent-Type: text/html; charset=UTF-8\nContent-Length: %d\nConnection: Close\n\n%s\n",
		int(r.status), r.status.Reason(), len(r.body), r.body)
	return err
}

type redirectResponse struct {
	status Status
	target *url.URL
}

func (r redirectResponse) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\nLocation: %s\nConnection: Close\n\n", int(r.status), r.status.Reason(), r.target)
	return err
}

package oauth

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// BrowserFunc launches an external user agent at the given URI. It is
// invoked exactly once per authorization, on a goroutine separate from
// the one blocked in the redirect listener.
//
// Implementations are best-effort launchers: a returned error is
// logged but does not abort the flow, since the user may still reach
// the URI by hand.
type BrowserFunc func(authorizationURI *url.URL) error

// browserLauncher starts the platform launcher process. Tests swap it
// out to avoid opening a real browser.
var browserLauncher = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

// SystemBrowser opens the URI in the platform default web browser.
// Linux, macOS and Windows are supported. Only http and https URIs are
// accepted; anything else could be abused to invoke arbitrary protocol
// handlers. The launcher process is started and not waited for.
func SystemBrowser(authorizationURI *url.URL) error {
	if authorizationURI == nil {
		return fmt.Errorf("%w: authorization URI must not be nil", ErrInvalidConfig)
	}
	if authorizationURI.Scheme != "http" && authorizationURI.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q: only http and https are allowed", authorizationURI.Scheme)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", authorizationURI.String())
	case "darwin":
		cmd = exec.Command("open", authorizationURI.String())
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", authorizationURI.String())
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := browserLauncher(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

package popup

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// ProbeFunc reports whether the remote authorization is still waiting on the user.
type ProbeFunc func(ctx context.Context) (pending bool, err error)

// Browser opens authorization URLs in the system browser. Since a browser tab
// gives no close signal back to this process, the window counts as closed once
// Probe says the flow is no longer pending.
type Browser struct {
	// Probe is consulted on every Closed call. A nil probe leaves the window open
	// until Close is called.
	Probe ProbeFunc
	// NoBrowser prints the URL (and copies it to the clipboard) instead of launching a browser.
	NoBrowser bool
	// Out receives user-facing instructions. Defaults to stdout.
	Out io.Writer
	// launch and copyURL are swapped in tests.
	launch  func(url string) error
	copyURL func(url string) error
}

// Open shows url to the user and returns a window handle bound to ctx.
func (b *Browser) Open(ctx context.Context, url string) (Window, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: empty url", ErrBlocked)
	}
	out := b.Out
	if out == nil {
		out = os.Stdout
	}

	if b.NoBrowser {
		b.printManual(out, url)
	} else {
		launch := b.launch
		if launch == nil {
			launch = OpenURL
		}
		if err := launch(url); err != nil {
			log.Warnf("Failed to open browser automatically: %v", err)
			b.printManual(out, url)
		}
	}

	return &browserWindow{ctx: ctx, probe: b.Probe}, nil
}

func (b *Browser) printManual(out io.Writer, url string) {
	_, _ = fmt.Fprintf(out, "Visit the following URL to authorize HubSpot:\n%s\n", url)
	copyURL := b.copyURL
	if copyURL == nil {
		if clipboard.Unsupported {
			return
		}
		copyURL = clipboard.WriteAll
	}
	if err := copyURL(url); err != nil {
		log.Debugf("copy authorization url to clipboard: %v", err)
		return
	}
	_, _ = fmt.Fprintln(out, "(copied to clipboard)")
}

type browserWindow struct {
	ctx    context.Context
	probe  ProbeFunc
	mu     sync.Mutex
	closed bool
}

// Closed treats an unreachable probe the same as a closed window, so the attempt
// moves on to the credential fetch instead of waiting forever.
func (w *browserWindow) Closed() bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return true
	}
	probe := w.probe
	w.mu.Unlock()

	if probe == nil {
		return false
	}
	pending, err := probe(w.ctx)
	if err != nil {
		log.Debugf("popup probe failed, treating window as closed: %v", err)
		return true
	}
	return !pending
}

func (w *browserWindow) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// OpenURL opens the specified URL in the default web browser.
// It first attempts to use a platform-agnostic library and falls back to
// platform-specific commands if that fails.
//
// Parameters:
//   - url: The URL to open
//
// Returns:
//   - error: An error wrapping ErrBlocked if no browser could be launched
func OpenURL(url string) error {
	err := open.Run(url)
	if err == nil {
		log.Debug("Successfully opened URL using open-golang library")
		return nil
	}

	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)
	return openURLPlatformSpecific(url)
}

var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// openURLPlatformSpecific opens a URL using OS-specific commands.
func openURLPlatformSpecific(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux":
		for _, browser := range linuxBrowsers {
			if _, err := exec.LookPath(browser); err == nil {
				cmd = exec.Command(browser, url)
				break
			}
		}
		if cmd == nil {
			return fmt.Errorf("%w: no suitable browser found on Linux system", ErrBlocked)
		}
	default:
		return fmt.Errorf("%w: unsupported operating system: %s", ErrBlocked, runtime.GOOS)
	}

	log.Debugf("Running command: %s %v", cmd.Path, cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start browser command: %v", ErrBlocked, err)
	}
	return nil
}

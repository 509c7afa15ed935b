// Package popup abstracts the authorization window opened during a connect attempt.
// The opener cannot receive a close event from the window, so it asks the window
// whether it is closed on a timer.
package popup

import (
	"context"
	"errors"
)

// ErrBlocked is returned when the window could not be opened.
var ErrBlocked = errors.New("popup: window could not be opened")

// Controller opens authorization windows.
type Controller interface {
	Open(ctx context.Context, url string) (Window, error)
}

// Window is a handle to an opened authorization window.
type Window interface {
	// Closed reports whether the window is gone, either closed by the user or
	// finished with the remote flow.
	Closed() bool
	// Close dismisses the window. It is safe to call more than once.
	Close()
}

// Package connect implements the HubSpot connect widget: a three-state button that
// runs the popup authorization handshake against the broker and forwards the
// resulting credentials into the owner's integration parameters.
package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/HubConnect/internal/popup"
	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is how often the widget checks whether the window closed.
const DefaultPollInterval = 500 * time.Millisecond

var (
	// ErrAlreadyConnected is returned by Connect when credentials are present;
	// the button is inert in that state.
	ErrAlreadyConnected = errors.New("connect: already connected")
	// ErrSuperseded is returned by an attempt replaced by a newer Connect call.
	ErrSuperseded = errors.New("connect: attempt superseded")
	// ErrAuthorize wraps failures obtaining the authorization URL.
	ErrAuthorize = errors.New("connect: authorization request failed")
	// ErrPopup wraps failures opening the authorization window.
	ErrPopup = errors.New("connect: could not open authorization window")
	// ErrCredentials wraps failures fetching credentials after the window closed.
	ErrCredentials = errors.New("connect: failed to fetch credentials")
	// ErrCancelled is returned when the attempt was cancelled before the window closed.
	ErrCancelled = errors.New("connect: attempt cancelled")
)

// Options tunes a Widget.
type Options struct {
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// OnChange is called with the projected state after every transition.
	OnChange func(State)
}

// Widget is the connect button's controller. It is safe for concurrent use; hosts
// call Connect off their UI loop.
type Widget struct {
	session  Session
	backend  Backend
	popups   popup.Controller
	setter   func(Params)
	interval time.Duration
	onChange func(State)

	mu       sync.Mutex
	params   Params
	inFlight bool
	gen      uint64
	cancel   context.CancelFunc
	window   popup.Window
}

// New creates a widget for session. params may be nil; setter receives merged
// parameters after a successful connect.
//
// Parameters:
//   - session: The user and organization identity sent with every broker call
//   - params: The owner's current integration parameters
//   - setter: Receives the merged parameters on success
//   - backend: The broker client
//   - popups: Opens the authorization window
//   - opts: Poll interval and change notification
//
// Returns:
//   - *Widget: A widget in the state projected from params
func New(session Session, params Params, setter func(Params), backend Backend, popups popup.Controller, opts Options) *Widget {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if setter == nil {
		setter = func(Params) {}
	}
	return &Widget{
		session:  session,
		backend:  backend,
		popups:   popups,
		setter:   setter,
		interval: interval,
		onChange: opts.OnChange,
		params:   params.Clone(),
	}
}

// State returns the current display state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Project(w.params.HasCredentials(), w.inFlight)
}

// Label returns the button text for the current state.
func (w *Widget) Label() string {
	return w.State().Label()
}

// Params returns a copy of the parameters the widget currently observes.
func (w *Widget) Params() Params {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.params.Clone()
}

// SetParams is the owner pushing new integration parameters. Clearing the
// credentials returns the widget to Disconnected without any network call.
func (w *Widget) SetParams(p Params) {
	w.mu.Lock()
	w.params = p.Clone()
	w.mu.Unlock()
	w.notify()
}

// Cancel abandons the attempt in flight, if any, and dismisses its window. The
// context is cancelled before the window closes so a poll that sees the closed
// window also sees the cancellation.
func (w *Widget) Cancel() {
	w.mu.Lock()
	cancel, window := w.cancel, w.window
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if window != nil {
		window.Close()
	}
}

// Connect runs one authorization attempt and blocks until it finishes. While
// an attempt is in flight a new call supersedes it: the older attempt's wait is
// cancelled, its window closed, and it returns ErrSuperseded without touching state.
func (w *Widget) Connect(ctx context.Context) error {
	w.mu.Lock()
	if !w.inFlight && w.params.HasCredentials() {
		w.mu.Unlock()
		return ErrAlreadyConnected
	}
	if w.cancel != nil {
		w.cancel()
	}
	if w.window != nil {
		w.window.Close()
	}
	w.gen++
	gen := w.gen
	attemptCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.window = nil
	w.inFlight = true
	w.mu.Unlock()

	defer cancel()
	defer w.finish(gen)
	w.notify()

	entry := log.WithFields(log.Fields{
		"user_id": w.session.UserID,
		"org_id":  w.session.OrgID,
		"attempt": uuid.NewString()[:8],
	})

	authURL, err := w.backend.Authorize(attemptCtx, w.session)
	if err == nil && strings.TrimSpace(authURL) == "" {
		err = errors.New("empty authorization url")
	}
	if err != nil {
		return w.fail(attemptCtx, gen, entry, ErrAuthorize, err)
	}

	window, err := w.popups.Open(attemptCtx, authURL)
	if err != nil {
		return w.fail(attemptCtx, gen, entry, ErrPopup, err)
	}
	if !w.attach(gen, window) {
		window.Close()
		return ErrSuperseded
	}

	if err = w.waitClosed(attemptCtx, window); err != nil {
		window.Close()
		if !w.current(gen) {
			return ErrSuperseded
		}
		entry.Info("connect attempt cancelled")
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	return w.onAuthorizationWindowClosed(attemptCtx, gen, entry)
}

// waitClosed polls the window until it reports closed. The ticker is stopped on
// the tick that observes closure. A window closed by Cancel reports the
// cancellation rather than a finished flow.
func (w *Widget) waitClosed(ctx context.Context, window popup.Window) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if window.Closed() {
				return ctx.Err()
			}
		}
	}
}

// onAuthorizationWindowClosed fetches the credentials and hands the merged
// parameters to the owner. It runs at most once per attempt.
func (w *Widget) onAuthorizationWindowClosed(ctx context.Context, gen uint64, entry *log.Entry) error {
	payload, err := w.backend.Credentials(ctx, w.session)
	if err != nil {
		return w.fail(ctx, gen, entry, ErrCredentials, err)
	}
	serialized, err := serializeCredentials(payload)
	if err != nil {
		return w.fail(ctx, gen, entry, ErrCredentials, err)
	}

	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return ErrSuperseded
	}
	if ctx.Err() != nil {
		w.mu.Unlock()
		entry.Info("connect attempt cancelled")
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
	next := w.params.Merge(Provider, serialized)
	w.params = next
	w.mu.Unlock()

	w.setter(next.Clone())
	entry.Info("hubspot connected")
	return nil
}

func (w *Widget) fail(ctx context.Context, gen uint64, entry *log.Entry, kind, err error) error {
	if !w.current(gen) {
		return ErrSuperseded
	}
	if ctx.Err() != nil {
		entry.Info("connect attempt cancelled")
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
	entry.Errorf("%v: %v", kind, err)
	return fmt.Errorf("%w: %v", kind, err)
}

func (w *Widget) attach(gen uint64, window popup.Window) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		return false
	}
	w.window = window
	return true
}

func (w *Widget) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return gen == w.gen
}

// finish clears the in-flight flag unless a newer attempt owns it.
func (w *Widget) finish(gen uint64) {
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.inFlight = false
	w.cancel = nil
	w.window = nil
	w.mu.Unlock()
	w.notify()
}

func (w *Widget) notify() {
	if w.onChange == nil {
		return
	}
	w.onChange(w.State())
}

// serializeCredentials renders the payload as compact JSON, keeping the key
// order the broker sent. Empty and null payloads are rejected.
func serializeCredentials(payload []byte) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", errors.New("empty credentials payload")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", fmt.Errorf("credentials payload is not JSON: %w", err)
	}
	return buf.String(), nil
}

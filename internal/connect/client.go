package connect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Backend is the broker as seen by the widget.
type Backend interface {
	// Authorize asks the broker to start a flow and returns the provider URL.
	Authorize(ctx context.Context, s Session) (string, error)
	// Credentials picks up the tokens produced by a finished flow.
	Credentials(ctx context.Context, s Session) ([]byte, error)
}

// Client calls the broker's /integrations/hubspot endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a broker client. A zero timeout leaves calls unbounded apart
// from the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(data, "detail").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	return data, nil
}

func sessionForm(s Session) url.Values {
	return url.Values{"user_id": {s.UserID}, "org_id": {s.OrgID}}
}

// Authorize returns the authorization URL. The broker answers {"authURL": ...};
// a bare JSON string or plain text body is accepted as well.
func (c *Client) Authorize(ctx context.Context, s Session) (string, error) {
	data, err := c.postForm(ctx, "/integrations/hubspot/authorize", sessionForm(s))
	if err != nil {
		return "", err
	}
	parsed := gjson.ParseBytes(data)
	switch {
	case parsed.IsObject():
		return strings.TrimSpace(parsed.Get("authURL").String()), nil
	case parsed.Type == gjson.String:
		return strings.TrimSpace(parsed.String()), nil
	default:
		return strings.TrimSpace(string(data)), nil
	}
}

// Credentials returns the raw credential payload.
func (c *Client) Credentials(ctx context.Context, s Session) ([]byte, error) {
	return c.postForm(ctx, "/integrations/hubspot/credentials", sessionForm(s))
}

// Pending reports whether the broker is still waiting for the user to finish
// the provider flow.
func (c *Client) Pending(ctx context.Context, s Session) (bool, error) {
	data, err := c.postForm(ctx, "/integrations/hubspot/status", sessionForm(s))
	if err != nil {
		return false, err
	}
	pending := gjson.GetBytes(data, "pending")
	if !pending.Exists() {
		return false, fmt.Errorf("status response missing pending flag")
	}
	return pending.Bool(), nil
}

// Load fetches the integration items visible to credentials.
func (c *Client) Load(ctx context.Context, credentials string) ([]byte, error) {
	return c.postForm(ctx, "/integrations/hubspot/load", url.Values{"credentials": {credentials}})
}

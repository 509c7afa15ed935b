// Package hubspot provides the HubSpot side of the integration: building the OAuth
// authorization URL, exchanging authorization codes for tokens, and loading CRM
// objects (contacts, companies, deals) as integration items.
package hubspot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/HubConnect/internal/config"
	"github.com/router-for-me/HubConnect/internal/util"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"
)

var (
	// ErrNotConfigured is returned when no client id/secret has been configured.
	ErrNotConfigured = errors.New("hubspot: client id and secret are not configured")
	// ErrCodeExchange wraps failures at the token endpoint.
	ErrCodeExchange = errors.New("hubspot: token exchange failed")
)

// OAuth handles the HubSpot OAuth2 authorization code flow.
type OAuth struct {
	conf       *oauth2.Config
	httpClient *http.Client
	configured bool
}

// NewOAuth creates an OAuth helper from configuration. Outbound requests honour
// the configured proxy.
func NewOAuth(cfg *config.Config) *OAuth {
	h := cfg.HubSpot
	return &OAuth{
		conf: &oauth2.Config{
			ClientID:     strings.TrimSpace(h.ClientID),
			ClientSecret: strings.TrimSpace(h.ClientSecret),
			RedirectURL:  h.RedirectURI,
			Scopes:       strings.Fields(h.Scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:   h.AuthURL,
				TokenURL:  h.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: util.SetProxy(cfg.ProxyURL, &http.Client{Timeout: 30 * time.Second}),
		configured: h.Configured(),
	}
}

// Configured reports whether the client credentials are usable.
func (o *OAuth) Configured() bool {
	return o != nil && o.configured
}

// AuthURL builds the authorization URL the user is sent to. The encoded state is
// passed through unchanged.
func (o *OAuth) AuthURL(encodedState string) (string, error) {
	if !o.Configured() {
		return "", ErrNotConfigured
	}
	return o.conf.AuthCodeURL(encodedState), nil
}

// Exchange trades an authorization code for tokens and returns them as the JSON
// document handed to the connect client.
func (o *OAuth) Exchange(ctx context.Context, code string) ([]byte, error) {
	if !o.Configured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: authorization code is empty", ErrCodeExchange)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	tok, err := o.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeExchange, err)
	}
	return TokenJSON(tok, time.Now())
}

// TokenJSON renders the token fields the rest of the system reads. expires_in is
// derived from the token expiry relative to now.
func TokenJSON(tok *oauth2.Token, now time.Time) ([]byte, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrCodeExchange)
	}
	payload := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		payload, err = sjson.SetBytes(payload, path, value)
	}
	set("access_token", tok.AccessToken)
	if tok.RefreshToken != "" {
		set("refresh_token", tok.RefreshToken)
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	set("token_type", tokenType)
	if !tok.Expiry.IsZero() {
		set("expires_in", int64(tok.Expiry.Sub(now).Round(time.Second)/time.Second))
		set("expires_at", tok.Expiry.UTC().Format(time.RFC3339))
	}
	if err != nil {
		return nil, fmt.Errorf("encode token payload: %w", err)
	}
	return payload, nil
}

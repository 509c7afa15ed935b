package hubspot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/router-for-me/HubConnect/internal/config"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

func testConfig(tokenURL string) *config.Config {
	cfg := &config.Config{
		HubSpot: config.HubSpotConfig{
			ClientID:     "client-1",
			ClientSecret: "secret-1",
			TokenURL:     tokenURL,
		},
	}
	cfg.SanitizeDefaults()
	return cfg
}

func TestAuthURLCarriesClientScopesAndState(t *testing.T) {
	o := NewOAuth(testConfig(""))
	raw, err := o.AuthURL("ZW5jb2RlZA==")
	if err != nil {
		t.Fatalf("AuthURL() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	if u.Scheme+"://"+u.Host+u.Path != config.DefaultHubSpotAuthURL {
		t.Fatalf("unexpected auth endpoint: %s", raw)
	}
	q := u.Query()
	if q.Get("client_id") != "client-1" {
		t.Fatalf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("redirect_uri") != "http://localhost:8000/integrations/hubspot/oauth2callback" {
		t.Fatalf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("scope") != config.DefaultHubSpotScopes {
		t.Fatalf("scope = %q", q.Get("scope"))
	}
	if q.Get("state") != "ZW5jb2RlZA==" {
		t.Fatalf("state = %q", q.Get("state"))
	}
}

func TestAuthURLRequiresConfiguration(t *testing.T) {
	cfg := &config.Config{}
	cfg.SanitizeDefaults()
	if _, err := NewOAuth(cfg).AuthURL("s"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("AuthURL() error = %v, want ErrNotConfigured", err)
	}
}

func TestExchangePostsAuthorizationCodeGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
			t.Errorf("unexpected content-type: %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		values, _ := url.ParseQuery(string(body))
		if values.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", values.Get("grant_type"))
		}
		if values.Get("code") != "code-1" {
			t.Errorf("code = %q", values.Get("code"))
		}
		if values.Get("client_id") != "client-1" || values.Get("client_secret") != "secret-1" {
			t.Errorf("client credentials not sent in params: %v", values)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at","refresh_token":"rt","expires_in":1800,"token_type":"bearer"}`)
	}))
	defer srv.Close()

	payload, err := NewOAuth(testConfig(srv.URL)).Exchange(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if got := gjson.GetBytes(payload, "access_token").String(); got != "at" {
		t.Fatalf("access_token = %q", got)
	}
	if got := gjson.GetBytes(payload, "refresh_token").String(); got != "rt" {
		t.Fatalf("refresh_token = %q", got)
	}
	if got := gjson.GetBytes(payload, "expires_in").Int(); got < 1790 || got > 1800 {
		t.Fatalf("expires_in = %d", got)
	}
}

func TestExchangeSurfacesTokenEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":"BAD_AUTH_CODE","message":"missing or unknown auth code"}`)
	}))
	defer srv.Close()

	if _, err := NewOAuth(testConfig(srv.URL)).Exchange(context.Background(), "bad"); !errors.Is(err, ErrCodeExchange) {
		t.Fatalf("Exchange() error = %v, want ErrCodeExchange", err)
	}
}

func TestTokenJSON(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	payload, err := TokenJSON(&oauth2.Token{AccessToken: "at", Expiry: now.Add(30 * time.Minute)}, now)
	if err != nil {
		t.Fatalf("TokenJSON() error = %v", err)
	}
	want := `{"access_token":"at","token_type":"bearer","expires_in":1800,"expires_at":"2025-01-01T00:30:00Z"}`
	if string(payload) != want {
		t.Fatalf("TokenJSON() = %s, want %s", payload, want)
	}
	if _, err = TokenJSON(&oauth2.Token{}, now); !errors.Is(err, ErrCodeExchange) {
		t.Fatalf("TokenJSON(empty) error = %v", err)
	}
}

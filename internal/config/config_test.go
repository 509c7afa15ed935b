package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("LoadConfigOptional() error = %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.StateTTLSeconds != 600 || cfg.CredentialsTTLSeconds != 900 {
		t.Fatalf("unexpected ttl defaults: state=%d creds=%d", cfg.StateTTLSeconds, cfg.CredentialsTTLSeconds)
	}
	if cfg.Client.PollIntervalMS != 500 {
		t.Fatalf("poll interval = %d, want 500", cfg.Client.PollIntervalMS)
	}
	if cfg.HubSpot.RedirectURI != "http://localhost:8000/integrations/hubspot/oauth2callback" {
		t.Fatalf("redirect uri = %q", cfg.HubSpot.RedirectURI)
	}
	if cfg.Client.BrokerURL != "http://localhost:8000" {
		t.Fatalf("broker url = %q", cfg.Client.BrokerURL)
	}
}

func TestLoadConfig_MissingFileFails(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadConfig_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: 9100
debug: true
hubspot:
  client-id: id-1
  client-secret: secret-1
  api-base-url: https://api.example.test/
client:
  broker-url: http://broker.test:9100/
  poll-interval-ms: 250
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != 9100 || !cfg.Debug {
		t.Fatalf("unexpected port/debug: %d %v", cfg.Port, cfg.Debug)
	}
	if !cfg.HubSpot.Configured() {
		t.Fatalf("expected hubspot to be configured")
	}
	if cfg.HubSpot.APIBaseURL != "https://api.example.test" {
		t.Fatalf("api base url = %q", cfg.HubSpot.APIBaseURL)
	}
	if cfg.HubSpot.RedirectURI != "http://localhost:9100/integrations/hubspot/oauth2callback" {
		t.Fatalf("redirect uri = %q", cfg.HubSpot.RedirectURI)
	}
	if cfg.Client.BrokerURL != "http://broker.test:9100" || cfg.Client.PollIntervalMS != 250 {
		t.Fatalf("unexpected client config: %+v", cfg.Client)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"HUBSPOT_CLIENT_ID":     "env-id",
		"HUBSPOT_CLIENT_SECRET": "env-secret",
		"HUBSPOT_SCOPES":        "  ",
		"pgstore_dsn":           "postgres://u:p@db/hub",
		"HUBCONNECT_PORT":       "8123",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := &Config{HubSpot: HubSpotConfig{Scopes: "custom.scope"}}
	cfg.ApplyEnv(lookup)
	cfg.SanitizeDefaults()

	if cfg.HubSpot.ClientID != "env-id" || cfg.HubSpot.ClientSecret != "env-secret" {
		t.Fatalf("client credentials not overridden: %+v", cfg.HubSpot)
	}
	if cfg.HubSpot.Scopes != "custom.scope" {
		t.Fatalf("blank env value must not override scopes, got %q", cfg.HubSpot.Scopes)
	}
	if cfg.Store.PostgresDSN != "postgres://u:p@db/hub" {
		t.Fatalf("dsn = %q", cfg.Store.PostgresDSN)
	}
	if cfg.Port != 8123 {
		t.Fatalf("port = %d", cfg.Port)
	}
}

func TestHubSpotConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  HubSpotConfig
		want bool
	}{
		{"empty", HubSpotConfig{}, false},
		{"placeholder", HubSpotConfig{ClientID: "XXX", ClientSecret: "XXX"}, false},
		{"missing secret", HubSpotConfig{ClientID: "id"}, false},
		{"complete", HubSpotConfig{ClientID: "id", ClientSecret: "secret"}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.Configured(); got != tt.want {
			t.Errorf("%s: Configured() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

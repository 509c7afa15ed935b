// Package config provides configuration management for the HubConnect broker and
// connect client. It loads a YAML file, applies environment overrides and fills
// defaults so the rest of the program can read settings without nil checks.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort                  = 8000
	DefaultStateTTLSeconds       = 600
	DefaultCredentialsTTLSeconds = 900
	DefaultPollIntervalMS        = 500

	DefaultHubSpotAuthURL    = "https://app.hubspot.com/oauth/authorize"
	DefaultHubSpotTokenURL   = "https://api.hubapi.com/oauth/v1/token"
	DefaultHubSpotAPIBaseURL = "https://api.hubapi.com"
	DefaultHubSpotScopes     = "crm.objects.contacts.read crm.objects.companies.read crm.objects.deals.read"
	DefaultStoreTable        = "hubconnect_kv"
)

// Config is the root configuration, loaded from a YAML file.
type Config struct {
	// Host is the interface the broker binds to. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`
	// Port is the broker listen port.
	Port int `yaml:"port" json:"port"`
	// Debug enables debug level logging and gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`
	// LoggingToFile routes logs into a rotating file instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`
	// LogDir overrides the directory used for rotated logs.
	LogDir string `yaml:"log-dir" json:"log-dir"`
	// ProxyURL is an optional proxy for outbound HubSpot requests (http, https or socks5).
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	HubSpot HubSpotConfig `yaml:"hubspot" json:"hubspot"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Client  ClientConfig  `yaml:"client" json:"client"`

	// StateTTLSeconds bounds how long a pending authorization stays valid.
	StateTTLSeconds int `yaml:"state-ttl-seconds" json:"state-ttl-seconds"`
	// CredentialsTTLSeconds bounds how long exchanged tokens wait for pickup.
	CredentialsTTLSeconds int `yaml:"credentials-ttl-seconds" json:"credentials-ttl-seconds"`
}

// HubSpotConfig holds the OAuth application registered with HubSpot.
type HubSpotConfig struct {
	ClientID     string `yaml:"client-id" json:"client-id"`
	ClientSecret string `yaml:"client-secret" json:"-"`
	RedirectURI  string `yaml:"redirect-uri" json:"redirect-uri"`
	Scopes       string `yaml:"scopes" json:"scopes"`
	AuthURL      string `yaml:"auth-url" json:"auth-url"`
	TokenURL     string `yaml:"token-url" json:"token-url"`
	APIBaseURL   string `yaml:"api-base-url" json:"api-base-url"`
}

// StoreConfig selects the backend for pending state and credential hand-off.
// An empty PostgresDSN selects the in-memory store.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgres-dsn" json:"-"`
	Schema      string `yaml:"schema" json:"schema"`
	Table       string `yaml:"table" json:"table"`
}

// ClientConfig configures the connect widget side.
type ClientConfig struct {
	// BrokerURL is the base URL of the broker, e.g. http://localhost:8000.
	BrokerURL string `yaml:"broker-url" json:"broker-url"`
	// PollIntervalMS is the period used to check whether the authorization window closed.
	PollIntervalMS int `yaml:"poll-interval-ms" json:"poll-interval-ms"`
	// RequestTimeoutSeconds bounds each broker call. Zero disables the timeout.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds" json:"request-timeout-seconds"`
	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool `yaml:"no-browser" json:"no-browser"`
}

// Configured reports whether a HubSpot client id and secret were supplied.
func (h HubSpotConfig) Configured() bool {
	id := strings.TrimSpace(h.ClientID)
	secret := strings.TrimSpace(h.ClientSecret)
	return id != "" && secret != "" && id != "XXX" && secret != "XXX"
}

// LoadConfig reads the configuration file and fails when it does not exist.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads the configuration file. When optional is true a missing
// file yields the default configuration instead of an error.
//
// Parameters:
//   - configFile: Path to the YAML configuration file
//   - optional: Whether a missing file is tolerated
//
// Returns:
//   - *Config: The loaded configuration with environment overrides and defaults applied
//   - error: An error if the file cannot be read or parsed
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(configFile) != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !optional || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if len(data) > 0 {
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	} else if !optional {
		return nil, fmt.Errorf("config file path is empty")
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.SanitizeDefaults()
	return cfg, nil
}

// ApplyEnv overrides secrets and endpoints from the environment. The lookup is
// injected so tests do not depend on process state.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	get := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := lookup(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}
	if v, ok := get("HUBSPOT_CLIENT_ID"); ok {
		cfg.HubSpot.ClientID = v
	}
	if v, ok := get("HUBSPOT_CLIENT_SECRET"); ok {
		cfg.HubSpot.ClientSecret = v
	}
	if v, ok := get("HUBSPOT_REDIRECT_URI"); ok {
		cfg.HubSpot.RedirectURI = v
	}
	if v, ok := get("HUBSPOT_SCOPES"); ok {
		cfg.HubSpot.Scopes = v
	}
	if v, ok := get("PGSTORE_DSN", "pgstore_dsn"); ok {
		cfg.Store.PostgresDSN = v
	}
	if v, ok := get("PGSTORE_SCHEMA", "pgstore_schema"); ok {
		cfg.Store.Schema = v
	}
	if v, ok := get("HUBCONNECT_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v, ok := get("HUBCONNECT_BROKER_URL"); ok {
		cfg.Client.BrokerURL = v
	}
}

// SanitizeDefaults fills zero values with their defaults.
func (cfg *Config) SanitizeDefaults() {
	if cfg == nil {
		return
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.StateTTLSeconds <= 0 {
		cfg.StateTTLSeconds = DefaultStateTTLSeconds
	}
	if cfg.CredentialsTTLSeconds <= 0 {
		cfg.CredentialsTTLSeconds = DefaultCredentialsTTLSeconds
	}

	h := &cfg.HubSpot
	if strings.TrimSpace(h.RedirectURI) == "" {
		h.RedirectURI = fmt.Sprintf("http://localhost:%d/integrations/hubspot/oauth2callback", cfg.Port)
	}
	if strings.TrimSpace(h.Scopes) == "" {
		h.Scopes = DefaultHubSpotScopes
	}
	if strings.TrimSpace(h.AuthURL) == "" {
		h.AuthURL = DefaultHubSpotAuthURL
	}
	if strings.TrimSpace(h.TokenURL) == "" {
		h.TokenURL = DefaultHubSpotTokenURL
	}
	if strings.TrimSpace(h.APIBaseURL) == "" {
		h.APIBaseURL = DefaultHubSpotAPIBaseURL
	}
	h.APIBaseURL = strings.TrimRight(h.APIBaseURL, "/")

	if strings.TrimSpace(cfg.Store.Table) == "" {
		cfg.Store.Table = DefaultStoreTable
	}

	if strings.TrimSpace(cfg.Client.BrokerURL) == "" {
		cfg.Client.BrokerURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.Client.BrokerURL = strings.TrimRight(cfg.Client.BrokerURL, "/")
	if cfg.Client.PollIntervalMS <= 0 {
		cfg.Client.PollIntervalMS = DefaultPollIntervalMS
	}
	if cfg.Client.RequestTimeoutSeconds < 0 {
		cfg.Client.RequestTimeoutSeconds = 0
	}
}

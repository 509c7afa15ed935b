// Package main is the hubconnect entry point. By default it runs the OAuth
// broker; with -connect it runs the terminal connect widget against a broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/router-for-me/HubConnect/internal/broker"
	"github.com/router-for-me/HubConnect/internal/buildinfo"
	"github.com/router-for-me/HubConnect/internal/config"
	"github.com/router-for-me/HubConnect/internal/connect"
	"github.com/router-for-me/HubConnect/internal/logging"
	"github.com/router-for-me/HubConnect/internal/popup"
	"github.com/router-for-me/HubConnect/internal/tui"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var configPath string
	var connectMode bool
	var brokerURL string
	var userID string
	var orgID string
	var noBrowser bool
	var pollMS int

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&connectMode, "connect", false, "Run the HubSpot connect widget instead of the broker")
	flag.StringVar(&brokerURL, "broker", "", "Broker base URL used by -connect")
	flag.StringVar(&userID, "user", "TestUser", "User id sent to the broker")
	flag.StringVar(&orgID, "org", "TestOrg", "Organization id sent to the broker")
	flag.BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	flag.IntVar(&pollMS, "poll", 0, "Window poll interval in milliseconds")
	flag.Parse()

	fmt.Printf("HubConnect Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
		log.WithError(errLoad).Warn("failed to load .env file")
	}

	optional := strings.TrimSpace(configPath) == ""
	if optional {
		configPath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfigOptional(configPath, optional)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}
	if brokerURL != "" {
		cfg.Client.BrokerURL = strings.TrimRight(strings.TrimSpace(brokerURL), "/")
	}
	if noBrowser {
		cfg.Client.NoBrowser = true
	}
	if pollMS > 0 {
		cfg.Client.PollIntervalMS = pollMS
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if connectMode {
		if err = runConnect(ctx, cfg, connect.Session{UserID: userID, OrgID: orgID}); err != nil {
			log.Errorf("connect: %v", err)
			os.Exit(1)
		}
		return
	}

	if err = broker.Serve(ctx, cfg); err != nil {
		log.Errorf("broker stopped: %v", err)
		os.Exit(1)
	}
}

// runConnect hosts the widget in the terminal. The browser tab cannot report
// that it closed, so the popup asks the broker whether the flow is still pending.
func runConnect(ctx context.Context, cfg *config.Config, session connect.Session) error {
	client := connect.NewClient(cfg.Client.BrokerURL, time.Duration(cfg.Client.RequestTimeoutSeconds)*time.Second)

	hook := tui.NewLogHook(64)
	log.AddHook(hook)
	if !cfg.LoggingToFile {
		logging.RedirectToWriter(io.Discard)
	}
	out := log.StandardLogger().WriterLevel(log.InfoLevel)
	defer func() {
		_ = out.Close()
	}()

	browser := &popup.Browser{
		NoBrowser: cfg.Client.NoBrowser,
		Out:       out,
		Probe: func(probeCtx context.Context) (bool, error) {
			return client.Pending(probeCtx, session)
		},
	}

	params, err := tui.Run(ctx, tui.Options{
		Session:      session,
		Params:       connect.Params{},
		Backend:      client,
		Popups:       browser,
		Loader:       client,
		Hook:         hook,
		PollInterval: time.Duration(cfg.Client.PollIntervalMS) * time.Millisecond,
	}, nil)
	if err != nil {
		return err
	}
	if params.HasCredentials() {
		fmt.Printf("HubSpot connected for %s/%s\n", session.OrgID, session.UserID)
	}
	return nil
}

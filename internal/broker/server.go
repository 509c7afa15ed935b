package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/HubConnect/internal/config"
	"github.com/router-for-me/HubConnect/internal/logging"
	"github.com/router-for-me/HubConnect/internal/store"
	log "github.com/sirupsen/logrus"
)

// Server is the broker HTTP server.
type Server struct {
	engine *gin.Engine
	server *http.Server
}

// NewServer builds the gin engine with logging middleware and the HubSpot routes.
func NewServer(cfg *config.Config, handler *Handler) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	engine.GET("/healthz", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handler.Register(engine)

	return &Server{
		engine: engine,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("broker listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("broker server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Debug("stopping broker server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("broker shutdown: %w", err)
	}
	return <-errCh
}

// Serve opens the configured store, builds the server and runs it until ctx ends.
func Serve(ctx context.Context, cfg *config.Config) error {
	kv, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := kv.Close(); errClose != nil {
			log.Warnf("close state store: %v", errClose)
		}
	}()
	if pg, ok := kv.(*store.PostgresStore); ok {
		go pg.RunJanitor(ctx, time.Minute)
	}

	handler := NewHandler(cfg, kv)
	if !handler.oauth.Configured() {
		log.Warn("HubSpot client id/secret are not set; /authorize will answer 400")
	}
	return NewServer(cfg, handler).Run(ctx)
}

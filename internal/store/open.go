package store

import (
	"context"
	"strings"

	"github.com/router-for-me/HubConnect/internal/config"
	log "github.com/sirupsen/logrus"
)

// Open selects the backend from configuration: Postgres when a DSN is set,
// otherwise an in-memory store.
func Open(ctx context.Context, cfg config.StoreConfig) (KV, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		log.Info("using in-memory state store")
		return NewMemoryStore(), nil
	}
	pg, err := NewPostgresStore(ctx, PostgresStoreConfig{
		DSN:    cfg.PostgresDSN,
		Schema: cfg.Schema,
		Table:  cfg.Table,
	})
	if err != nil {
		return nil, err
	}
	if err = pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	log.Info("using postgres state store")
	return pg, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/router-for-me/HubConnect/internal/config"
	log "github.com/sirupsen/logrus"
)

// PostgresStoreConfig captures configuration required to initialize a Postgres-backed store.
type PostgresStoreConfig struct {
	DSN    string
	Schema string
	Table  string
}

// PostgresStore persists entries in a PostgreSQL table so several broker replicas
// can share pending states and credential hand-offs.
type PostgresStore struct {
	db  *sql.DB
	cfg PostgresStoreConfig
	now func() time.Time
	mu  sync.Mutex
}

// NewPostgresStore establishes a connection to PostgreSQL and verifies it with a ping.
//
// Parameters:
//   - ctx: Context bounding the initial ping
//   - cfg: DSN, optional schema and table name
//
// Returns:
//   - *PostgresStore: A connected store; call EnsureSchema before first use
//   - error: An error if the DSN is empty or the database is unreachable
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	cfg, err := normalizePostgresConfig(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}

	return &PostgresStore{db: db, cfg: cfg, now: time.Now}, nil
}

// normalizePostgresConfig trims the DSN and falls back to the configured default
// table for stores built without going through config.SanitizeDefaults.
func normalizePostgresConfig(cfg PostgresStoreConfig) (PostgresStoreConfig, error) {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.DSN == "" {
		return cfg, fmt.Errorf("postgres store: DSN is required")
	}
	cfg.Schema = strings.TrimSpace(cfg.Schema)
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = config.DefaultStoreTable
	}
	return cfg, nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the key/value table (and schema when provided).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if schema := strings.TrimSpace(s.cfg.Schema); schema != "" {
		query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(schema))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	table := s.fullTableName(s.cfg.Table)
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, table)); err != nil {
		return fmt.Errorf("postgres store: create kv table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: s.now().Add(ttl).UTC(), Valid: true}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`, s.fullTableName(s.cfg.Table))
	if _, err := s.db.ExecContext(ctx, query, strings.TrimSpace(key), value, expiresAt); err != nil {
		return fmt.Errorf("postgres store: set %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrNotInitialized
	}
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)", s.fullTableName(s.cfg.Table))
	var value []byte
	err := s.db.QueryRowContext(ctx, query, strings.TrimSpace(key), s.now().UTC()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres store: get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.fullTableName(s.cfg.Table))
	if _, err := s.db.ExecContext(ctx, query, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("postgres store: delete %s: %w", key, err)
	}
	return nil
}

// Take deletes the row and returns its value in one statement so two pollers
// cannot both pick up the same credentials.
func (s *PostgresStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrNotInitialized
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1 RETURNING value, expires_at", s.fullTableName(s.cfg.Table))
	var value []byte
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, strings.TrimSpace(key)).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres store: take %s: %w", key, err)
	}
	if expiresAt.Valid && !s.now().Before(expiresAt.Time) {
		return nil, false, nil
	}
	return value, true, nil
}

// PurgeExpired removes rows whose TTL elapsed and reports how many were deleted.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= $1", s.fullTableName(s.cfg.Table))
	res, err := s.db.ExecContext(ctx, query, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres store: purge expired: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Debugf("postgres store: purged %d expired entries", n)
	}
	return n, nil
}

// RunJanitor purges expired rows every interval until ctx is done.
func (s *PostgresStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				log.Warnf("postgres store janitor: %v", err)
			}
		}
	}
}

func (s *PostgresStore) fullTableName(name string) string {
	if strings.TrimSpace(s.cfg.Schema) == "" {
		return quoteIdentifier(name)
	}
	return quoteIdentifier(s.cfg.Schema) + "." + quoteIdentifier(name)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, "\"", "\"\"")
	return "\"" + replaced + "\""
}

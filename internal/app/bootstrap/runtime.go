// Package bootstrap wires stores and clients from configuration for the binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/bitecare-clinic/internal/audit"
	"github.com/wolfman30/bitecare-clinic/internal/bookings"
	appconfig "github.com/wolfman30/bitecare-clinic/internal/config"
	"github.com/wolfman30/bitecare-clinic/internal/database"
	"github.com/wolfman30/bitecare-clinic/internal/events"
	"github.com/wolfman30/bitecare-clinic/internal/slots"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Stores groups the persistence backends chosen by configuration. Outbox and
// Audit are nil when running on in-memory stores.
type Stores struct {
	Slots    slots.Store
	Bookings bookings.Store
	Outbox   *events.OutboxStore
	Audit    *audit.Log

	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// BuildStores opens PostgreSQL when DATABASE_URL is set, otherwise it returns
// in-memory stores suitable for a single instance.
func BuildStores(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.UsesPostgres() {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		return &Stores{
			Slots:    slots.NewMemoryStore(),
			Bookings: bookings.NewMemoryStore(),
		}, nil
	}

	pool, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	logger.Info("connected to postgres")

	return &Stores{
		Slots:    slots.NewPostgresStore(pool),
		Bookings: bookings.NewPostgresStore(pool),
		Outbox:   events.NewOutboxStore(pool),
		Audit:    audit.NewLog(sqlDB),
		pool:     pool,
		sqlDB:    sqlDB,
	}, nil
}

// Pool returns the pgx pool, or nil for in-memory stores.
func (s *Stores) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks the database when one is configured.
func (s *Stores) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if err := s.pool.Ping(ctx); err != nil {
		return database.Unavailable(err)
	}
	return nil
}

// Close releases database connections.
func (s *Stores) Close() error {
	var errs []error
	if s.sqlDB != nil {
		errs = append(errs, s.sqlDB.Close())
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}

// AuditRecorder returns the audit log as a recorder, or nil when there is none.
func (s *Stores) AuditRecorder() bookings.AuditRecorder {
	if s.Audit == nil {
		return nil
	}
	return s.Audit
}

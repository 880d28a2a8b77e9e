// File: internal/service/initializers.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/internal/config"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

const (
	defaultMaxConns     = 10
	pingAttempts        = 5
	tokenCleanupTimeout = 30 * time.Second
)

// Pool is the connection pool the components run on.
type Pool interface {
	store.DBPool
	Close()
}

// PoolOpener connects to the database described by cfg.
type PoolOpener func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Pool, error)

// InitializePool opens a pgx pool and waits for the database to answer,
// retrying the first ping with exponential backoff.
func InitializePool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Pool, error) {
	dsn := cfg.DSN()
	if dsn == "" {
		return nil, errors.New("database URL is not configured (hint: check DATABASE_URL)")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = defaultMaxConns
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = min(2, poolConfig.MaxConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	ping := func() error {
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("Database not reachable yet", zap.Error(err))
			return err
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), pingAttempts-1), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	logger.Info("Database connection pool initialized", zap.Int32("max_conns", poolConfig.MaxConns))
	return pool, nil
}

// TokenCleaner deletes refresh tokens past their expiry.
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// StartTokenJanitor purges expired refresh tokens every interval until ctx
// is cancelled. It manages its lifecycle using the provided WaitGroup.
func StartTokenJanitor(ctx context.Context, wg *sync.WaitGroup, cleaner TokenCleaner, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Debug("Token janitor started", zap.Duration("interval", interval))
		defer logger.Debug("Token janitor stopped")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		sweep := func() {
			// Detached so a sweep in progress is not cut short by shutdown.
			sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenCleanupTimeout)
			defer cancel()
			n, err := cleaner.CleanupExpiredTokens(sweepCtx)
			if err != nil {
				logger.Error("Failed to purge expired refresh tokens", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("Purged expired refresh tokens", zap.Int64("count", n))
			}
		}

		sweep()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
}

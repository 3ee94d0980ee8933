// Package postgres opens the PostgreSQL pool that stores crisis rooms,
// events and stakeholder profiles, and reports its state as metrics.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/crisis-room/internal/pkg/ctxlog"
	"github.com/bissquit/crisis-room/internal/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName       = "crisis-room"
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 16 * time.Second
)

// Config contains PostgreSQL connection configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

// Connect opens a pool and pings it, retrying with exponential backoff
// until ConnectAttempts is exhausted or ctx is done. Each attempt is
// counted in the db connect metric.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	attempts := max(cfg.ConnectAttempts, 1)
	logger := ctxlog.FromContext(ctx)

	var pool *pgxpool.Pool
	attempt := 0
	open := func() error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			metrics.DBConnectAttempts.WithLabelValues("error").Inc()
			return fmt.Errorf("create pool: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			metrics.DBConnectAttempts.WithLabelValues("error").Inc()
			return fmt.Errorf("ping: %w", err)
		}
		metrics.DBConnectAttempts.WithLabelValues("success").Inc()
		pool = p
		return nil
	}

	notify := func(err error, next time.Duration) {
		logger.Warn("database not ready, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", next,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(open, retryPolicy(ctx, cfg, attempts), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("connection cancelled after %d attempts: %w", attempt, ctxErr)
		}
		return nil, fmt.Errorf("connect to database after %d attempts: %w", attempt, err)
	}

	logger.Info("connected to database", "attempts", attempt)
	return pool, nil
}

// retryPolicy doubles the wait from InitialBackoff up to MaxBackoff, without
// jitter, and stops after attempts tries in total.
func retryPolicy(ctx context.Context, cfg Config, attempts int) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultInitialBackoff
	}
	b.MaxInterval = cfg.MaxBackoff
	if b.MaxInterval <= 0 {
		b.MaxInterval = defaultMaxBackoff
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// ReportPoolStats records pool gauges immediately and then every interval
// until ctx is done.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	metrics.RecordDBPoolMetrics(pool)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(pool)
		case <-ctx.Done():
			return
		}
	}
}

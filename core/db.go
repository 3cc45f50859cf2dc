package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const defaultConnectTimeout = 5 * time.Second

// poolConfig turns the database settings into a pgxpool config. Pool size and
// connect timeout come from Config; lifetimes stay fixed.
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("empty database url")
	}
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		pc.MaxConns = int32(cfg.DBMaxConns)
	}
	pc.MinConns = 1
	if pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}
	pc.MaxConnLifetime = 30 * time.Minute
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.HealthCheckPeriod = 30 * time.Second
	if t := cfg.DBConnectTimeout(); t > 0 {
		pc.ConnConfig.ConnectTimeout = t
	}
	return pc, nil
}

// Connect opens the identity database pool and pings it within the
// configured connect timeout.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DBConnectTimeout()
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Int32("max_conns", pc.MaxConns).Msg("connected identity database")
	return pool, nil
}

// OpenIdentityRepository connects, creates the identities table when missing
// and returns the repository with the pool backing it. Callers close the pool.
func OpenIdentityRepository(ctx context.Context, cfg Config) (*PgIdentityRepository, *pgxpool.Pool, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return NewPgIdentityRepository(pool), pool, nil
}

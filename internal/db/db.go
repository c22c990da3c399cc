package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tunes the pool. The shop CLI and the edge server only touch the
// local_store table, so the defaults stay small.
type Options struct {
	ApplicationName string
	MaxConns        int32
	PingTimeout     time.Duration
}

// Connect opens a pgx pool for the local store and pings it before
// returning.
func Connect(ctx context.Context, dsn string, opts ...Options) (*pgxpool.Pool, error) {
	o := Options{ApplicationName: "tiketloka-storefront", MaxConns: 4, PingTimeout: 5 * time.Second}
	if len(opts) > 0 {
		if opts[0].ApplicationName != "" {
			o.ApplicationName = opts[0].ApplicationName
		}
		if opts[0].MaxConns > 0 {
			o.MaxConns = opts[0].MaxConns
		}
		if opts[0].PingTimeout > 0 {
			o.PingTimeout = opts[0].PingTimeout
		}
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = o.MaxConns
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = o.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ClientOption configures Open.
type ClientOption func(*ClientConfig)

// ClientConfig holds Postgres pool configuration.
type ClientConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open connects with lib/pq and verifies the connection.
func Open(dsn string, opts ...ClientOption) (*sqlx.DB, error) {
	cfg := &ClientConfig{
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// WithMaxConnections sets max open and idle connections.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

// WithConnMaxLifetime sets how long a pooled connection may be reused.
func WithConnMaxLifetime(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if d > 0 {
			c.ConnMaxLifetime = d
		}
	}
}

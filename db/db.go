package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Connect opens and verifies the Postgres pool.
func Connect(dsn string, timeout time.Duration) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(25)
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	return pool, nil
}

// HealthChecker answers liveness probes. Injected into the health handler
// so reachability is checked where it is served rather than tracked in a
// process-wide flag.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

type pingChecker struct {
	pool *sql.DB
}

// NewPingChecker reports health by pinging the pool with a short deadline.
func NewPingChecker(pool *sql.DB) HealthChecker {
	return &pingChecker{pool: pool}
}

func (c *pingChecker) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.pool.PingContext(ctx)
}

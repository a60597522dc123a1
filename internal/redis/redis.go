// internal/redis/redis.go
//
// Redis connection wrapper.
//
// Context
// -------
// Redis is a *secondary* dependency here: it backs the rate limiter's
// shared counters and the cross-session logout broadcast.  Both consumers
// are written to survive its absence, so Connect failures at boot are
// logged and tolerated rather than fatal—the caller simply passes nil
// handles down and the dependents run degraded.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config holds connection coordinates.  Empty Addr means "not configured".
type Config struct {
	Addr     string
	Password string
	DB       int
}

const (
	maxRetries    = 3
	retryInterval = time.Second
)

// Connect dials Redis with a small retry loop and verifies the connection
// with a Ping before returning.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolTimeout:  4 * time.Second,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			lastErr = fmt.Errorf("ping redis: %w", err)
			client.Close()
			if i < maxRetries {
				time.Sleep(retryInterval)
			}
			continue
		}
		return client, nil
	}

	return nil, fmt.Errorf("connect redis after %d retries: %w", maxRetries, lastErr)
}

// Package store wires the shared key-value store used by the token
// bucket engine, the sweeper's distributed lock, and the replica
// directory: connection lifecycle, timeouts, and reconnect backoff.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const maxReconnectAttempts = 60

// Config holds the connection parameters for a single store endpoint.
type Config struct {
	URL     string
	Timeout time.Duration
}

// New connects to a single store endpoint. It does not retry: callers
// that need reconnect-with-backoff semantics should use Reconnect.
func New(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: invalid store_url: %w", err)
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout(cfg))
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: initial connection failed: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("connected to store")
	return client, nil
}

func dialTimeout(cfg Config) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return 2 * time.Second
}

// Reconnect retries New with the backoff described in the failure-mode
// policy: min(attempt*1s, 10s), up to maxReconnectAttempts. It gives up
// and returns the last error once attempts are exhausted; callers
// continue to fail open until a later manual recovery or restart.
func Reconnect(ctx context.Context, cfg Config) (*redis.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		client, err := New(cfg)
		if err == nil {
			return client, nil
		}
		lastErr = err

		delay := time.Duration(attempt) * time.Second
		if delay > 10*time.Second {
			delay = 10 * time.Second
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("store reconnect attempt failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	log.Error().Err(lastErr).Int("attempts", maxReconnectAttempts).Msg("store reconnect attempts exhausted, remaining fail-open")
	return nil, fmt.Errorf("store: exhausted %d reconnect attempts: %w", maxReconnectAttempts, lastErr)
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/arashthr/memex/internal/config"
	"github.com/arashthr/memex/internal/logging"
	"github.com/redis/go-redis/v9"
)

// ConnectOptions controls how long Connect keeps retrying an unreachable
// redis before giving up.
type ConnectOptions struct {
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	MaxWait        time.Duration
	PingTimeout    time.Duration
}

var DefaultConnectOptions = ConnectOptions{
	ConnectTimeout: 15 * time.Second,
	RetryInterval:  500 * time.Millisecond,
	MaxWait:        4 * time.Second,
	PingTimeout:    2 * time.Second,
}

func (o ConnectOptions) validate() error {
	if o.ConnectTimeout <= 0 {
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", o.ConnectTimeout)
	}
	if o.RetryInterval <= 0 {
		return fmt.Errorf("RetryInterval must be > 0, got %v", o.RetryInterval)
	}
	if o.MaxWait <= 0 {
		return fmt.Errorf("MaxWait must be > 0, got %v", o.MaxWait)
	}
	if o.PingTimeout <= 0 {
		return fmt.Errorf("PingTimeout must be > 0, got %v", o.PingTimeout)
	}
	return nil
}

// Connect opens a redis client and pings it with exponential backoff until
// it answers or ConnectTimeout passes.
func Connect(ctx context.Context, cfg config.RedisConfig, opts ConnectOptions) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	logging.Logger.Infow("connecting to redis", "addr", cfg.Addr, "timeout", opts.ConnectTimeout)
	wait := opts.RetryInterval
	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err == nil {
			logging.Logger.Infow("connected to redis", "addr", cfg.Addr, "attempts", attempt)
			return client, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			client.Close()
			return nil, fmt.Errorf("redis unavailable at %s after %d attempts: %w", cfg.Addr, attempt, err)
		case <-timer.C:
			logging.Logger.Warnw("redis connection failed, retrying",
				"addr", cfg.Addr, "attempt", attempt, "next_retry_in", wait, "error", err)
			wait *= 2
			if wait > opts.MaxWait {
				wait = opts.MaxWait
			}
		}
	}
}

// OpenLastModified returns the redis backed cache when redis is configured
// and reachable, Nop otherwise. The returned func releases the client.
func OpenLastModified(ctx context.Context, cfg config.RedisConfig, opts ConnectOptions) (LastModified, func() error) {
	if !cfg.Enabled() {
		return Nop{}, func() error { return nil }
	}
	client, err := Connect(ctx, cfg, opts)
	if err != nil {
		logging.Logger.Warnw("continuing without last-modified cache", "error", err)
		return Nop{}, func() error { return nil }
	}
	return &RedisLastModified{Client: client, TTL: cfg.CacheTTL}, client.Close
}

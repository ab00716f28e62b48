// Package redis stores ledger entries in Redis so several notifier replicas
// can share one ledger without a relational database.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotReady is returned when no ping succeeded within the retry budget.
var ErrNotReady = errors.New("redis not ready")

// Connect parses url and pings the server up to attempts times, waiting
// interval between tries.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, ErrNotReady
}

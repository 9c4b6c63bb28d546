package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator remembers seen keys in Redis for a TTL, so every instance
// behind a load balancer drops the same duplicate webhook deliveries.
type Deduplicator struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	log     *slog.Logger
}

// NewDeduplicator creates a Deduplicator storing keys under prefix.
func NewDeduplicator(client redis.UniversalClient, prefix string, ttl time.Duration, log *slog.Logger) *Deduplicator {
	if log == nil {
		log = slog.Default()
	}
	return &Deduplicator{client: client, prefix: prefix, ttl: ttl, timeout: 2 * time.Second, log: log}
}

// Add reports whether key was not seen before. When Redis is unreachable the
// key is treated as new; processing is idempotent downstream.
func (d *Deduplicator) Add(key string, _ struct{}) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	ok, err := d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		d.log.WarnContext(ctx, "dedup lookup failed, treating event as new", slog.String("key", key), slog.Any("error", err))
		return true
	}
	return ok
}

// Remove forgets key so a retried delivery is processed again.
func (d *Deduplicator) Remove(key string) (struct{}, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	n, err := d.client.Del(ctx, d.prefix+key).Result()
	if err != nil {
		d.log.WarnContext(ctx, "dedup remove failed", slog.String("key", key), slog.Any("error", err))
		return struct{}{}, false
	}
	return struct{}{}, n > 0
}

package redis_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/paykit/pkg/redis"
)

func TestDeduplicator(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dedup := redis.NewDeduplicator(client, "webhook:", time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.True(t, dedup.Add("stripe:evt_1", struct{}{}))
	assert.False(t, dedup.Add("stripe:evt_1", struct{}{}))
	assert.True(t, dedup.Add("paddle:evt_1", struct{}{}))
	assert.True(t, mr.Exists("webhook:stripe:evt_1"))

	_, removed := dedup.Remove("stripe:evt_1")
	assert.True(t, removed)
	assert.True(t, dedup.Add("stripe:evt_1", struct{}{}))

	mr.FastForward(2 * time.Hour)
	assert.True(t, dedup.Add("paddle:evt_1", struct{}{}), "expired keys are new again")

	mr.Close()
	assert.True(t, dedup.Add("stripe:evt_2", struct{}{}), "unreachable redis fails open")
}

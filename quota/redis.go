package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/saoki0913/career-compass-sub001/period"
)

const redisKeyPrefix = "credits:daily:"

// incrScript bumps the counter and, on first use of the day, sets the key to
// expire at the next day boundary so counters clean themselves up.
// KEYS[1] = counter key, ARGV[1] = end-of-day unix seconds.
var incrScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
    redis.call("EXPIREAT", KEYS[1], ARGV[1])
end
return c
`)

// RedisCounter keeps daily counts in Redis. INCR is atomic, so the
// create-or-increment race the Postgres backend has to play out over two
// statements collapses into a single command here.
type RedisCounter struct {
	rdb   *redis.Client
	clock *period.Clock
}

var _ Counter = (*RedisCounter)(nil)

// NewRedisCounter creates a Redis-backed daily counter.
func NewRedisCounter(rdb *redis.Client, clock *period.Clock) *RedisCounter {
	return &RedisCounter{rdb: rdb, clock: clock}
}

func (c *RedisCounter) key(identityKey string) string {
	return redisKeyPrefix + identityKey + ":" + c.clock.Today()
}

// Remaining returns the free operations left today for an identity.
func (c *RedisCounter) Remaining(ctx context.Context, identityKey string, dailyLimit int64) (int64, error) {
	count, err := c.rdb.Get(ctx, c.key(identityKey)).Int64()
	if errors.Is(err, redis.Nil) {
		count = 0
	} else if err != nil {
		return 0, fmt.Errorf("reading daily count: %w", err)
	}

	remaining := dailyLimit - count
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Increment bumps today's counter, creating it with an end-of-day expiry on
// first use.
func (c *RedisCounter) Increment(ctx context.Context, identityKey string) error {
	endOfDay := c.clock.EndOfDay(c.clock.Now()).Unix()
	err := incrScript.Run(ctx, c.rdb, []string{c.key(identityKey)}, endOfDay).Err()
	if err != nil {
		return fmt.Errorf("incrementing daily count: %w", err)
	}
	return nil
}

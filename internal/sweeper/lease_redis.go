package sweeper

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLeaseKey = "sweep_lease"

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLease elects a sweeper among processes sharing a redis presence store.
type RedisLease struct {
	client *redis.Client
	key    string
}

func NewRedisLease(client *redis.Client, ns string) *RedisLease {
	return &RedisLease{client: client, key: ns + redisLeaseKey}
}

func (l *RedisLease) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, owner, ttl).Result()
}

func (l *RedisLease) Release(ctx context.Context, owner string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotOwner
	}
	return nil
}

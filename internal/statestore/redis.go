package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// casScript implements compare-and-swap: set key to newVal only if its
// current value equals oldVal, where an absent key matches oldVal="".
const casScript = `
local cur = redis.call('GET', KEYS[1])
if cur == false then cur = '' end
if cur == ARGV[1] then
    redis.call('SET', KEYS[1], ARGV[2])
    return 1
end
return 0
`

// Redis is a Store backed by a go-redis client, shared across replicas.
type Redis struct {
	client *redis.Client
	cas    *redis.Script
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, cas: redis.NewScript(casScript)}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	return r.client.IncrBy(ctx, key, delta).Result()
}

func (r *Redis) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	// DecrBy can go negative under races; clamp with a short Lua guard
	// rather than a second round trip.
	const script = `
local v = redis.call('DECRBY', KEYS[1], ARGV[1])
if v < 0 then
    redis.call('SET', KEYS[1], '0', 'KEEPTTL')
    return 0
end
return v
`
	val, err := redis.NewScript(script).Run(ctx, r.client, []string{key}, delta).Result()
	if err != nil {
		return 0, err
	}
	n, _ := val.(int64)
	return n, nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, key, oldVal, newVal string) (bool, error) {
	val, err := r.cas.Run(ctx, r.client, []string{key}, oldVal, newVal).Result()
	if err != nil {
		return false, err
	}
	n, _ := val.(int64)
	return n == 1, nil
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err() == nil
}

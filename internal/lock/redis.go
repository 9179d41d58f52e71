package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript sets every key to ARGV[1] with a PX of ARGV[2] unless one of
// them belongs to another owner, in which case it returns the blocking
// key/owner pairs and sets nothing.
var acquireScript = redis.NewScript(`
local held = {}
for _, key in ipairs(KEYS) do
	local owner = redis.call('GET', key)
	if owner and owner ~= ARGV[1] then
		table.insert(held, key)
		table.insert(held, owner)
	end
end
if #held > 0 then
	return held
end
for _, key in ipairs(KEYS) do
	redis.call('SET', key, ARGV[1], 'PX', ARGV[2])
end
return held
`)

// releaseScript deletes the keys that still hold ARGV[1].
var releaseScript = redis.NewScript(`
local n = 0
for _, key in ipairs(KEYS) do
	if redis.call('GET', key) == ARGV[1] then
		n = n + redis.call('DEL', key)
	end
end
return n
`)

// RedisStore is a Store shared by every process connected to the same Redis.
// All keys of one call must live on the same node.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a connected go-redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Acquire implements Store.
func (r *RedisStore) Acquire(ctx context.Context, keys []string, owner string, ttl time.Duration) error {
	if len(keys) == 0 {
		return nil
	}

	res, err := acquireScript.Run(ctx, r.client, keys, owner, ttl.Milliseconds()).StringSlice()
	if err != nil {
		return fmt.Errorf("acquiring locks: %w", err)
	}
	if len(res) == 0 {
		return nil
	}

	held := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		held[res[i]] = res[i+1]
	}
	return &HeldError{Held: held}
}

// Release implements Store.
func (r *RedisStore) Release(ctx context.Context, keys []string, owner string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, keys, owner).Err(); err != nil {
		return fmt.Errorf("releasing locks: %w", err)
	}
	return nil
}

// Probe implements Store.
func (r *RedisStore) Probe(ctx context.Context, keys []string) (map[string]string, error) {
	held := make(map[string]string)
	if len(keys) == 0 {
		return held, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("probing locks: %w", err)
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			held[keys[i]] = s
		}
	}
	return held, nil
}

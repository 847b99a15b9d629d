package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 1000

// Redis is a [Repository] backed by a Redis client. Keys are namespaced under prefix.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis wraps client. An empty prefix stores keys verbatim.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{redis: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

// Get implements [Repository].
//
//	Performance: 1 Redis GET.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.redis.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, true, nil
}

// Set implements [Repository].
//
//	Performance: 1 Redis SET (with PX when ttl > 0).
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.redis.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete implements [Repository].
//
//	Performance: 1 Redis DEL.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Scan implements [Repository] with cursor-based SCAN MATCH. The result is not a
// point-in-time snapshot: keys written or removed during the scan may or may not appear.
// On a cluster client every master is scanned.
func (r *Redis) Scan(ctx context.Context, pattern string) ([]string, error) {
	match := r.key(pattern)

	cluster, ok := r.redis.(*redis.ClusterClient)
	if !ok {
		raw, err := scanNode(ctx, r.redis, match)
		if err != nil {
			return nil, err
		}
		return r.trimAll(raw), nil
	}

	var (
		mu  sync.Mutex
		raw []string
	)
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		keys, err := scanNode(ctx, node, match)
		if err != nil {
			return err
		}
		mu.Lock()
		raw = append(raw, keys...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.trimAll(raw), nil
}

func scanNode(ctx context.Context, c redis.Cmdable, match string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (r *Redis) trimAll(raw []string) []string {
	for i, k := range raw {
		raw[i] = r.trim(k)
	}
	return dedupe(raw)
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func (r *Redis) trim(k string) string {
	if r.prefix == "" {
		return k
	}
	return strings.TrimPrefix(k, r.prefix+":")
}

// SCAN may return a key more than once across iterations.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLockLua = redis.NewScript(releaseLockScript)

// RedisLocker is a [Locker] using SET NX PX leases with owner-checked release.
type RedisLocker struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisLocker wraps client. Lease keys are stored under prefix.
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLocker{redis: client, prefix: prefix}
}

// Acquire implements [Locker].
//
//	Performance: 1 Redis SET NX; release is 1 EVALSHA.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, false, err
	}
	owner := hex.EncodeToString(raw[:])
	lockKey := l.prefix + ":" + key

	ok, err := l.redis.SetNX(ctx, lockKey, owner, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return func() {}, false, nil
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		// Release must outlive a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseLockLua.Run(releaseCtx, l.redis, []string{lockKey}, owner).Err()
	}
	return release, true, nil
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key prefix for booking locks
const keyPrefix = "meetingroom:lock:"

// DefaultTTL bounds how long a crashed holder can keep a key
const DefaultTTL = 2 * time.Minute

// ttlMargin is kept between the longest call made under a lock and its expiry
const ttlMargin = 15 * time.Second

// TTLFor returns the configured TTL, raised when needed so a lock outlives a
// call of up to held while it is taken
func TTLFor(configured, held time.Duration) time.Duration {
	if configured <= 0 {
		configured = DefaultTTL
	}
	return max(configured, held+ttlMargin)
}

// releaseScript deletes a key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements booking.Locker across processes using SET NX with a TTL
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a locker over an existing client
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

// Connect parses a redis:// URL and verifies the server answers
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// Lock acquires every key in sorted order, polling until ctx is done
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)

	token := uuid.NewString()
	var held []string

	release := func() {
		// Release even if the caller's context is already cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(releaseCtx, l.client, []string{held[i]}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				log := logging.For("LOCK")
				log.Warn().Err(err).Str("key", held[i]).Msg("failed to release lock")
			}
		}
	}

	for _, key := range sorted {
		if err := l.acquire(ctx, keyPrefix+key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, keyPrefix+key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// acquire spins on SET NX until it wins or ctx ends
func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

package noncestore

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the pending-nonce map with Redis so that a Verifier can
// run as more than one process, using SET NX PX for the atomic
// issue-once-consume-once semantics a sync.Mutex gives MemoryStore within a
// single process. Modeled on the `BackendRedis`/`RedisConfig` option
// pkg/verification/nonce/types.go exposes for the same store interface.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	expiration time.Duration
}

// NewRedisStore builds a RedisStore against an already-constructed client.
func NewRedisStore(client *redis.Client, prefix string, expiration time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "vericare:nonce:"
	}
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	return &RedisStore{client: client, prefix: prefix, expiration: expiration}
}

func (r *RedisStore) key(nonce []byte) string {
	return r.prefix + encodeKey(nonce)
}

// Issue implements Store.
func (r *RedisStore) Issue(ctx context.Context) ([]byte, error) {
	nonce := make([]byte, NonceLength)
	for {
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("noncestore: generate nonce: %w", err)
		}
		ok, err := r.client.SetNX(ctx, r.key(nonce), "1", r.expiration).Result()
		if err != nil {
			return nil, fmt.Errorf("noncestore: redis setnx: %w", err)
		}
		if ok {
			return nonce, nil
		}
		// Astronomically unlikely collision with a still-pending nonce;
		// draw again.
	}
}

// Consume implements Store: GETDEL is atomic, so a concurrent second
// consumer of the same nonce always loses the race and observes "not
// found", matching the single-use invariant.
func (r *RedisStore) Consume(ctx context.Context, nonce []byte) error {
	val, err := r.client.GetDel(ctx, r.key(nonce)).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("noncestore: redis getdel: %w", err)
	}
	if val == "" {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// NewFromConfig builds the pending-nonce Store a binary should run against:
// "redis" dials addr and backs the store with RedisStore, letting the
// Verifier (and any other process with its own pending-nonce map) scale past
// a single process; any other backend value, including "" and "memory",
// falls back to MemoryStore.
func NewFromConfig(backend, addr string, expiration time.Duration) (Store, error) {
	if backend != "redis" {
		return NewMemoryStore(expiration), nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("noncestore: connect redis at %q: %w", addr, err)
	}
	return NewRedisStore(client, "", expiration), nil
}

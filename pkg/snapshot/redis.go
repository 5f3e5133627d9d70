package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "sharedpaint:snapshot:"

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Close() error
}

// RedisStore keeps blobs in Redis. Names are tracked in a set so List does
// not need KEYS.
type RedisStore struct {
	client RedisClient
	prefix string
	owned  bool
}

// RedisStoreOption configures RedisStore behavior.
type RedisStoreOption func(*RedisStore)

// WithRedisPrefix sets the key prefix.
// Default: "sharedpaint:snapshot:".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(r *RedisStore) { r.prefix = prefix }
}

// NewRedisStore wraps an existing client. Close does not close it, as it
// may be shared with other components.
func NewRedisStore(client RedisClient, opts ...RedisStoreOption) *RedisStore {
	r := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenRedisStore connects to the Redis server at url and pings it.
func OpenRedisStore(ctx context.Context, url string, opts ...RedisStoreOption) (*RedisStore, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse redis url: %w", err)
	}
	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("snapshot: redis ping: %w", err)
	}
	r := NewRedisStore(client, opts...)
	r.owned = true
	return r, nil
}

func (r *RedisStore) key(name string) string { return r.prefix + name }
func (r *RedisStore) index() string          { return r.prefix + "_index" }

// Save writes blob under name.
func (r *RedisStore) Save(ctx context.Context, name string, blob []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(name), blob, 0).Err(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.index(), name).Err()
}

// Load returns the blob saved under name.
func (r *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

// Delete removes name.
func (r *RedisStore) Delete(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, r.key(name)).Err(); err != nil {
		return err
	}
	return r.client.SRem(ctx, r.index(), name).Err()
}

// List returns the stored names.
func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.index()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the client if the store opened it.
func (r *RedisStore) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}

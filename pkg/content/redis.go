package content

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces stash keys.
const DefaultRedisPrefix = "stackmap:content:"

// Hash fields of a stashed resource.
const (
	redisFieldMIME = "mime"
	redisFieldBody = "body"
)

// Redis reads resources a page driver stashed into Redis. Each resource is
// a hash at <prefix><url> with fields "mime" and "body".
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a store over client. An empty prefix selects
// [DefaultRedisPrefix].
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// Get reads the stashed resource for url.
func (r *Redis) Get(ctx context.Context, url string) (*Resource, error) {
	fields, err := r.client.HGetAll(ctx, r.key(url)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
	}
	body, ok := fields[redisFieldBody]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	mt := fields[redisFieldMIME]
	if mt == "" {
		mt = TypeByPath(url)
	}
	return &Resource{URL: url, MIMEType: mt, Data: []byte(body)}, nil
}

// Put stashes a resource for url.
func (r *Redis) Put(ctx context.Context, url, mimeType string, data []byte) error {
	err := r.client.HSet(ctx, r.key(url), redisFieldMIME, mimeType, redisFieldBody, data).Err()
	if err != nil {
		return fmt.Errorf("stash %s: %w", url, err)
	}
	return nil
}

func (r *Redis) key(url string) string { return r.prefix + url }

var _ Store = (*Redis)(nil)

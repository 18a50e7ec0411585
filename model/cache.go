package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates the key has no cached response.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores final model responses by key.
type Cache interface {
	Get(ctx context.Context, key string) (*Response, error)
	Set(ctx context.Context, key string, resp *Response) error
}

// CacheKey derives the cache key of a request: the hex sha256 of the seed
// followed by the JSON encoding of the messages and tools.
func CacheKey(req Request) (string, error) {
	seed := 0
	if req.CacheSeed != nil {
		seed = *req.CacheSeed
	}

	data, err := json.Marshal(struct {
		Messages any `json:"messages"`
		Tools    any `json:"tools,omitempty"`
	}{
		Messages: req.Messages,
		Tools:    req.Tools,
	})
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(strconv.Itoa(seed)))
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// InMemoryCache is a process local Cache.
type InMemoryCache struct {
	mu    sync.RWMutex
	items map[string]Response
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{items: make(map[string]Response)}
}

// Get implements Cache.
func (c *InMemoryCache) Get(_ context.Context, key string) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resp, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}

	return &resp, nil
}

// Set implements Cache.
func (c *InMemoryCache) Set(_ context.Context, key string, resp *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = *resp

	return nil
}

// Len returns the number of cached responses.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// RedisCacheOptions configures a RedisCache.
type RedisCacheOptions struct {
	Prefix string
	TTL    time.Duration // 0 keeps entries forever
}

// RedisCache stores responses as JSON in Redis.
type RedisCache struct {
	client redis.UniversalClient
	opts   RedisCacheOptions
}

// NewRedisCache creates a Redis backed cache.
func NewRedisCache(client redis.UniversalClient, optFns ...func(o *RedisCacheOptions)) *RedisCache {
	opts := RedisCacheOptions{
		Prefix: "agentchat:llm:cache:",
		TTL:    24 * time.Hour,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &RedisCache{client: client, opts: opts}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Response, error) {
	data, err := c.client.Get(ctx, c.opts.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.opts.Prefix+key, data, c.opts.TTL).Err()
}

// CachedModel serves seeded requests from a Cache and stores fresh final
// responses. Requests without a CacheSeed bypass the cache.
type CachedModel struct {
	Model
	cache Cache
}

// WithCache wraps m with response caching.
func WithCache(m Model, c Cache) *CachedModel {
	return &CachedModel{Model: m, cache: c}
}

// Generate implements Model.
func (m *CachedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	if req.CacheSeed == nil {
		return m.Model.Generate(ctx, req)
	}

	out := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		key, err := CacheKey(req)
		if err != nil {
			errCh <- err
			return
		}

		if cached, err := m.cache.Get(ctx, key); err == nil {
			cached.Cached = true
			cached.Cost = 0
			out <- *cached
			return
		}

		resp, err := Complete(ctx, m.Model, req, nil)
		if err != nil {
			errCh <- err
			return
		}

		// a failed write only costs a future cache hit
		_ = m.cache.Set(ctx, key, resp)

		out <- *resp
	}()

	return out, errCh
}

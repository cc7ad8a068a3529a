package report

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-progress/internal/platform/cache"
)

// Cache stores generated reports by input fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) (Report, bool, error)
	Set(ctx context.Context, key string, r Report) error
}

// RedisCache keeps reports in redis through the platform cache.
type RedisCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisCache returns a Cache whose entries expire after ttl.
func NewRedisCache(c *cache.Cache, ttl time.Duration) *RedisCache {
	return &RedisCache{cache: c, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Report, bool, error) {
	var r Report
	hit, err := c.cache.GetJSON(ctx, c.cache.Key("report", key), &r)
	if err != nil || !hit {
		return Report{}, false, err
	}
	return r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, r Report) error {
	return c.cache.SetJSON(ctx, c.cache.Key("report", key), r, c.ttl)
}

// Fingerprint hashes the input and model name. Any re-saved record changes
// its version and therefore the fingerprint.
func Fingerprint(in Input, model string) string {
	data, _ := json.Marshal(struct {
		Input Input  `json:"input"`
		Model string `json:"model"`
	}{in, model})
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client or non-positive TTL yields a
// cache that never stores anything.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete drops a cached key. It runs whenever a client is set, so entries
// written under an earlier TTL can still be evicted.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// Source provides price profiles.
type Source interface {
	GetPriceProfile(ctx context.Context, galleryID string) (PriceProfile, error)
}

// CachedSource serves price profiles from Redis and falls back to the wrapped
// source on a miss. Cache failures degrade to the source instead of failing the
// lookup. Missing galleries are never cached.
type CachedSource struct {
	Source Source
	Cache  *Cache
	Logger *zerolog.Logger
}

func profileKey(galleryID string) string {
	return "catalog:profile:" + galleryID
}

// GetPriceProfile implements Source.
func (c CachedSource) GetPriceProfile(ctx context.Context, galleryID string) (PriceProfile, error) {
	logger := c.logger()
	key := profileKey(galleryID)
	var cached PriceProfile
	hit, err := c.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn().Err(err).Str("gallery_id", galleryID).Msg("catalog cache read failed")
	}
	if hit {
		return cached, nil
	}
	profile, err := c.Source.GetPriceProfile(ctx, galleryID)
	if err != nil {
		return PriceProfile{}, err
	}
	if err := c.Cache.SetJSON(ctx, key, profile); err != nil {
		logger.Warn().Err(err).Str("gallery_id", galleryID).Msg("catalog cache write failed")
	}
	return profile, nil
}

// Invalidate evicts a gallery's cached profile after gallery management edits it.
func (c CachedSource) Invalidate(ctx context.Context, galleryID string) error {
	return c.Cache.Delete(ctx, profileKey(galleryID))
}

func (c CachedSource) logger() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

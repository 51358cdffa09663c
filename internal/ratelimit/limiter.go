// Package ratelimit throttles the public quote endpoints.
package ratelimit

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// DefaultPrefix namespaces limiter keys in Redis.
const DefaultPrefix = "galeri:ratelimit"

// New builds a limiter for a formatted rate such as "120-M".
func New(store limiter.Store, rate string) (*limiter.Limiter, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	return limiter.New(store, parsed), nil
}

// NewRedisStore wires a limiter store backed by Redis.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

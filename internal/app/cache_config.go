package app

import "github.com/argushq/argus/internal/cache"

// RedisClientConfig converts the cache configuration tree into Redis client parameters.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  c.Redis.Address,
		Username: c.Redis.Username,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Timeout:  c.Redis.Timeout,
	}
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/ledger-api/internal/application/ports"
)

var _ ports.IdempotencyCache = (*RedisCache)(nil)

// RedisCache caché compartida entre instancias.
type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisCache construye la caché sobre un cliente existente.
func NewRedisCache(client redis.UniversalClient, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "ledger:idempotency:"
	}
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

// Get devuelve el valor guardado o (nil, false, nil) si no existe.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return raw, true, nil
}

// Set guarda con SETNX: el primer resultado registrado para la clave es el que queda.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.SetNX(ctx, c.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

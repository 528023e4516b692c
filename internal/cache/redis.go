package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suuupra/upi-switch/internal/config"
	"github.com/suuupra/upi-switch/internal/models"
)

// ErrMiss reports a cache miss as distinct from a transport failure.
var ErrMiss = errors.New("cache miss")

// VPACache is the advisory read-through cache in front of the VPA store.
type VPACache interface {
	Get(ctx context.Context, vpa string) (*models.VPAMapping, error)
	Set(ctx context.Context, mapping *models.VPAMapping, ttl time.Duration) error
}

type RedisCache struct {
	rdb *redis.Client
}

func NewRedis(cfg config.Config) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

func vpaKey(vpa string) string { return "vpa:" + vpa }

func (c *RedisCache) Get(ctx context.Context, vpa string) (*models.VPAMapping, error) {
	raw, err := c.rdb.Get(ctx, vpaKey(vpa)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var m models.VPAMapping
	if err := json.Unmarshal(raw, &m); err != nil {
		// A corrupt entry is no worse than a miss; the store stays
		// authoritative.
		return nil, ErrMiss
	}
	return &m, nil
}

func (c *RedisCache) Set(ctx context.Context, mapping *models.VPAMapping, ttl time.Duration) error {
	raw, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, vpaKey(mapping.VPA), raw, ttl).Err()
}

func (c *RedisCache) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Close() error { return c.rdb.Close() }

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/mmo-replay/internal/logging"
)

// RedisConfig параметры подключения к Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix добавляется ко всем ключам, чтобы делить базу с каталогом
	Prefix string
	// MaxTTL верхняя граница TTL; 0 означает час
	MaxTTL time.Duration
}

// RedisCache кеш на Redis, общий для всех узлов.
type RedisCache struct {
	client *redis.Client
	prefix string
	maxTTL time.Duration
	log    *logging.Logger
}

// NewRedisCache подключается к Redis и проверяет соединение.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "replay:cache:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log := logging.GetComponentLogger("cache")
	log.Info("🧊 Redis кеш подключён: %s (prefix %s)", cfg.Addr, cfg.Prefix)
	return &RedisCache{client: rdb, prefix: cfg.Prefix, maxTTL: cfg.MaxTTL, log: log}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		r.log.Error("Redis Get %s: %v", key, err)
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return val, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > r.maxTTL {
		ttl = r.maxTTL
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		r.log.Error("Redis Set %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Package cache кеш чтения каталога записей.
//
// Использование:
//
//	c, _ := cache.NewRedisCache(cache.RedisConfig{Addr: "localhost:6379"})
//	catalog := cache.NewCachedCatalog(repo, c, invalidator, 30*time.Second)
//	rec, err := catalog.FindByName(ctx, "match.rec")
//
// Ключи инвалидируются при Save и Delete; с NATSInvalidator об этом узнают
// и остальные узлы, у которых свой кеш в памяти.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache хранилище байтовых значений с TTL.
type Cache interface {
	// Get возвращает ErrCacheMiss, если ключа нет или он истёк.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение; ttl == 0 означает без истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Close() error
}

// Invalidator рассылает и принимает уведомления об инвалидации ключей.
type Invalidator interface {
	PublishInvalidation(ctx context.Context, key string) error

	// SubscribeInvalidations вызывает handler для ключей, инвалидированных другими узлами.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	Close() error
}

// InvalidationHandler обрабатывает уведомление об инвалидации.
type InvalidationHandler func(key string) error

// Stats счётчики попаданий кеша.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// HitRatio доля попаданий; 0 без запросов.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// ErrCacheMiss ключ не найден в кеше.
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

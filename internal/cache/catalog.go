package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/storage"
)

// CachedCatalog каталог с кешем чтения для Get и FindByName.
// List всегда читает основной каталог.
type CachedCatalog struct {
	inner       storage.CatalogRepo
	cache       Cache
	invalidator Invalidator
	ttl         time.Duration
	log         *logging.Logger

	hits   int64
	misses int64
	errs   int64
}

var _ storage.CatalogRepo = (*CachedCatalog)(nil)

// NewCachedCatalog оборачивает inner; invalidator может быть nil.
func NewCachedCatalog(inner storage.CatalogRepo, c Cache, invalidator Invalidator, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedCatalog{
		inner:       inner,
		cache:       c,
		invalidator: invalidator,
		ttl:         ttl,
		log:         logging.GetComponentLogger("cache"),
	}
}

// Start подписывает кеш на инвалидации других узлов
func (cc *CachedCatalog) Start(ctx context.Context) error {
	if cc.invalidator == nil {
		return nil
	}
	return cc.invalidator.SubscribeInvalidations(ctx, func(key string) error {
		return cc.cache.Delete(context.Background(), key)
	})
}

func idKey(id string) string     { return "catalog:id:" + id }
func nameKey(name string) string { return "catalog:name:" + name }

func (cc *CachedCatalog) Save(ctx context.Context, rec *storage.CaptureRecord) error {
	if err := cc.inner.Save(ctx, rec); err != nil {
		return err
	}
	cc.invalidate(ctx, nameKey(rec.Name), idKey(rec.ID))
	return nil
}

func (cc *CachedCatalog) Get(ctx context.Context, id string) (*storage.CaptureRecord, error) {
	return cc.read(ctx, idKey(id), func() (*storage.CaptureRecord, error) {
		return cc.inner.Get(ctx, id)
	})
}

func (cc *CachedCatalog) FindByName(ctx context.Context, name string) (*storage.CaptureRecord, error) {
	return cc.read(ctx, nameKey(name), func() (*storage.CaptureRecord, error) {
		return cc.inner.FindByName(ctx, name)
	})
}

func (cc *CachedCatalog) List(ctx context.Context) ([]*storage.CaptureRecord, error) {
	return cc.inner.List(ctx)
}

func (cc *CachedCatalog) Delete(ctx context.Context, id string) error {
	rec, err := cc.inner.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := cc.inner.Delete(ctx, id); err != nil {
		return err
	}
	cc.invalidate(ctx, nameKey(rec.Name), idKey(id))
	return nil
}

func (cc *CachedCatalog) Close() error {
	var errs []error
	if cc.invalidator != nil {
		errs = append(errs, cc.invalidator.Close())
	}
	errs = append(errs, cc.cache.Close(), cc.inner.Close())
	return errors.Join(errs...)
}

// Stats счётчики попаданий
func (cc *CachedCatalog) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&cc.hits),
		Misses: atomic.LoadInt64(&cc.misses),
		Errors: atomic.LoadInt64(&cc.errs),
	}
}

// read отдаёт значение из кеша, при промахе читает основной каталог.
// Ошибки кеша не мешают чтению, ErrNotFound не кешируется.
func (cc *CachedCatalog) read(ctx context.Context, key string, load func() (*storage.CaptureRecord, error)) (*storage.CaptureRecord, error) {
	raw, err := cc.cache.Get(ctx, key)
	if err == nil {
		var rec storage.CaptureRecord
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			atomic.AddInt64(&cc.hits, 1)
			return &rec, nil
		}
		_ = cc.cache.Delete(ctx, key)
	} else if !IsCacheMiss(err) {
		atomic.AddInt64(&cc.errs, 1)
	}
	atomic.AddInt64(&cc.misses, 1)

	rec, err := load()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(rec); err == nil {
		if err := cc.cache.Set(ctx, key, raw, cc.ttl); err != nil {
			atomic.AddInt64(&cc.errs, 1)
			cc.log.Debug("Не удалось закешировать %s: %v", key, err)
		}
	}
	return rec, nil
}

func (cc *CachedCatalog) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := cc.cache.Delete(ctx, key); err != nil {
			atomic.AddInt64(&cc.errs, 1)
		}
		if cc.invalidator != nil {
			if err := cc.invalidator.PublishInvalidation(ctx, key); err != nil {
				cc.log.Warn("⚠️ Инвалидация %s не разослана: %v", key, err)
			}
		}
	}
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/mmo-replay/internal/logging"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string // Адрес Redis сервера
	Password  string // Пароль (пустой если не требуется)
	DB        int    // Номер базы данных
	KeyPrefix string // Префикс для ключей
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "replay:catalog:",
	}
}

// RedisCatalog хранит записи как JSON-строки и индекс в sorted set по времени завершения
type RedisCatalog struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCatalog подключается к Redis и проверяет соединение
func NewRedisCatalog(config *RedisConfig) (*RedisCatalog, error) {
	defaults := DefaultRedisConfig()
	if config == nil {
		config = defaults
	}
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🔴 Connected to Redis at %s", config.Addr)
	return newRedisCatalogWithClient(client, config.KeyPrefix), nil
}

func newRedisCatalogWithClient(client *redis.Client, prefix string) *RedisCatalog {
	return &RedisCatalog{client: client, keyPrefix: prefix}
}

func (rc *RedisCatalog) recordKey(id string) string { return rc.keyPrefix + "rec:" + id }
func (rc *RedisCatalog) indexKey() string           { return rc.keyPrefix + "index" }
func (rc *RedisCatalog) nameKey(name string) string { return rc.keyPrefix + "name:" + name }

func (rc *RedisCatalog) Save(ctx context.Context, rec *CaptureRecord) error {
	if err := prepare(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog record: %w", err)
	}

	pipe := rc.client.TxPipeline()
	pipe.Set(ctx, rc.recordKey(rec.ID), data, 0)
	pipe.ZAdd(ctx, rc.indexKey(), &redis.Z{Score: float64(rec.FinishedAt.UnixMicro()), Member: rec.ID})
	pipe.Set(ctx, rc.nameKey(rec.Name), rec.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save catalog record %s: %w", rec.ID, err)
	}
	return nil
}

func (rc *RedisCatalog) Get(ctx context.Context, id string) (*CaptureRecord, error) {
	data, err := rc.client.Get(ctx, rc.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog record %s: %w", id, err)
	}
	var rec CaptureRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog record %s: %w", id, err)
	}
	return &rec, nil
}

func (rc *RedisCatalog) FindByName(ctx context.Context, name string) (*CaptureRecord, error) {
	id, err := rc.client.Get(ctx, rc.nameKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog name %s: %w", name, err)
	}
	return rc.Get(ctx, id)
}

func (rc *RedisCatalog) List(ctx context.Context) ([]*CaptureRecord, error) {
	ids, err := rc.client.ZRevRange(ctx, rc.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog index: %w", err)
	}
	out := make([]*CaptureRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := rc.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (rc *RedisCatalog) Delete(ctx context.Context, id string) error {
	rec, err := rc.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := rc.client.TxPipeline()
	pipe.Del(ctx, rc.recordKey(id))
	pipe.ZRem(ctx, rc.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete catalog record %s: %w", id, err)
	}
	// имя могло уже указывать на более новую запись
	if current, err := rc.client.Get(ctx, rc.nameKey(rec.Name)).Result(); err == nil && current == id {
		rc.client.Del(ctx, rc.nameKey(rec.Name))
	}
	return nil
}

func (rc *RedisCatalog) Close() error {
	return rc.client.Close()
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/mmo-replay/internal/config"
)

// ErrNotFound запись каталога не найдена
var ErrNotFound = errors.New("catalog record not found")

// CaptureRecord описание одного файла записи в каталоге.
type CaptureRecord struct {
	ID         string    `json:"id" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	Path       string    `json:"path" bson:"path"`
	Mode       string    `json:"mode" bson:"mode"`
	WorldHash  string    `json:"world_hash" bson:"world_hash"`
	Bytes      int64     `json:"bytes" bson:"bytes"`
	Packets    int64     `json:"packets" bson:"packets"`
	StartedAt  time.Time `json:"started_at" bson:"started_at"`
	FinishedAt time.Time `json:"finished_at" bson:"finished_at"`
}

// CatalogRepo определяет интерфейс каталога записанных файлов.
// Записи ищутся по ID и по имени файла; для повторно сохранённого имени
// возвращается самая свежая запись.
type CatalogRepo interface {
	// Save сохраняет запись; пустой ID заполняется новым UUID.
	Save(ctx context.Context, rec *CaptureRecord) error

	// Get возвращает запись по ID или ErrNotFound.
	Get(ctx context.Context, id string) (*CaptureRecord, error)

	// FindByName возвращает последнюю запись для имени файла или ErrNotFound.
	FindByName(ctx context.Context, name string) (*CaptureRecord, error)

	// List возвращает все записи, новые первыми.
	List(ctx context.Context) ([]*CaptureRecord, error)

	// Delete удаляет запись по ID.
	Delete(ctx context.Context, id string) error

	Close() error
}

// prepare заполняет ID и имя перед сохранением.
func prepare(rec *CaptureRecord) error {
	if rec == nil {
		return errors.New("nil catalog record")
	}
	if rec.Path == "" {
		return errors.New("catalog record without path")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Name == "" {
		rec.Name = filepath.Base(rec.Path)
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	return nil
}

// sortNewestFirst упорядочивает записи по времени завершения.
func sortNewestFirst(recs []*CaptureRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].FinishedAt.After(recs[j].FinishedAt)
	})
}

// NewCatalog создаёт бэкенд каталога по конфигурации.
func NewCatalog(cfg config.CatalogConfig) (CatalogRepo, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCatalog(), nil
	case "badger":
		return NewBadgerCatalog(cfg.BadgerPath)
	case "redis":
		return NewRedisCatalog(&RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	case "maria", "mysql":
		return NewMariaCatalog(cfg.MariaDSN)
	case "mongo":
		return NewMongoCatalog(MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDB})
	default:
		return nil, fmt.Errorf("неизвестный бэкенд каталога: %q", cfg.Backend)
	}
}

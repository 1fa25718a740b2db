// Package app связывает подсистемы сервера: события шины превращаются в
// записи каталога сохранённых файлов.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/mmo-replay/internal/eventbus"
	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/recorder"
	"github.com/annel0/mmo-replay/internal/storage"
)

// CatalogIndexer сохраняет в каталог каждый файл, о котором сообщает capture.saved
type CatalogIndexer struct {
	catalog storage.CatalogRepo
	log     *logging.Logger
	timeout time.Duration

	mu      sync.Mutex
	sub     eventbus.Subscription
	indexed int
}

func NewCatalogIndexer(catalog storage.CatalogRepo) *CatalogIndexer {
	return &CatalogIndexer{
		catalog: catalog,
		log:     logging.GetComponentLogger("catalog"),
		timeout: 5 * time.Second,
	}
}

// Start подписывается на шину. Повторный вызов ничего не делает.
func (ci *CatalogIndexer) Start(ctx context.Context, bus eventbus.EventBus) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if ci.sub != nil {
		return nil
	}
	filter := eventbus.Filter{Types: []string{string(recorder.EventCaptureSaved)}}
	sub, err := bus.Subscribe(ctx, filter, ci.handle)
	if err != nil {
		return fmt.Errorf("catalog indexer subscribe: %w", err)
	}
	ci.sub = sub
	ci.log.Info("📚 Индексатор каталога записей запущен")
	return nil
}

func (ci *CatalogIndexer) Stop() {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if ci.sub != nil {
		ci.sub.Unsubscribe()
		ci.sub = nil
	}
}

// Indexed число сохранённых записей каталога
func (ci *CatalogIndexer) Indexed() int {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return ci.indexed
}

func (ci *CatalogIndexer) handle(ctx context.Context, ev *eventbus.Envelope) {
	var p eventbus.RecorderPayload
	if err := ev.Decode(&p); err != nil {
		ci.log.Warn("⚠️ Событие %s с неверной нагрузкой: %v", ev.ID, err)
		return
	}
	if p.File == "" {
		return
	}

	rec := &storage.CaptureRecord{
		Path:       p.File,
		Mode:       p.Mode,
		WorldHash:  p.WorldHash,
		Bytes:      int64(p.Bytes),
		Packets:    int64(p.Packets),
		StartedAt:  p.StartedAt,
		FinishedAt: p.At,
	}
	ctx, cancel := context.WithTimeout(ctx, ci.timeout)
	defer cancel()
	if err := ci.catalog.Save(ctx, rec); err != nil {
		ci.log.Error("❌ Не удалось записать %s в каталог: %v", p.File, err)
		return
	}

	ci.mu.Lock()
	ci.indexed++
	ci.mu.Unlock()
	ci.log.Info("📚 %s добавлен в каталог (%d пакетов)", rec.Name, rec.Packets)
}

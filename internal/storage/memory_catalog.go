package storage

import (
	"context"
	"sync"
)

// MemoryCatalog реализует CatalogRepo в памяти процесса.
// Используется по умолчанию и в тестах.
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[string]*CaptureRecord
}

// NewMemoryCatalog создает пустой каталог в памяти.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{records: make(map[string]*CaptureRecord)}
}

func (m *MemoryCatalog) Save(ctx context.Context, rec *CaptureRecord) error {
	if err := prepare(rec); err != nil {
		return err
	}
	cp := *rec
	m.mu.Lock()
	m.records[rec.ID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryCatalog) Get(ctx context.Context, id string) (*CaptureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryCatalog) FindByName(ctx context.Context, name string) (*CaptureRecord, error) {
	recs, _ := m.List(ctx)
	for _, rec := range recs {
		if rec.Name == name {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryCatalog) List(ctx context.Context) ([]*CaptureRecord, error) {
	m.mu.RLock()
	out := make([]*CaptureRecord, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryCatalog) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryCatalog) Close() error { return nil }
